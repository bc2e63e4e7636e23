package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/John-Robertt/EBMC/internal/domain"
)

func match1984() domain.ScoredCandidate {
	return domain.ScoredCandidate{Candidate: domain.Candidate{Source: domain.SourceEVrit, Title: "1984", Author: "George Orwell"}}
}

func TestReadDirState_Missing(t *testing.T) {
	st, err := ReadDirState(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(st.ExistingNames) != 0 {
		t.Fatalf("期望空状态：%+v", st)
	}
}

func TestPlanMove_Layout(t *testing.T) {
	root := t.TempDir()
	st, err := ReadDirState(FoundDir(root, domain.SourceEVrit))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	file := domain.BookFile{AbsPath: filepath.Join(root, "in", "Orwell - 1984.epub"), Ext: ".epub"}
	plan, err := PlanMove(root, file, match1984(), st, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := filepath.Join(root, "found_on_evrit", "George_Orwell_1984.epub")
	if plan.Move.DstAbs != want {
		t.Fatalf("期望 dst=%q，实际=%q", want, plan.Move.DstAbs)
	}
	if plan.OPFName != "George_Orwell_1984.opf" {
		t.Fatalf("期望 opf=George_Orwell_1984.opf，实际=%q", plan.OPFName)
	}
	if plan.Source != domain.SourceEVrit || plan.Move.SrcAbs != file.AbsPath {
		t.Fatalf("plan 字段不符合预期：%+v", plan)
	}
}

func TestPlanMove_NameConflictDeterministic(t *testing.T) {
	root := t.TempDir()
	dir := FoundDir(root, domain.SourceEVrit)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	// 目标目录已有同名书，以及 __2 的 opf，计划应生成 __3。
	write(t, filepath.Join(dir, "George_Orwell_1984.epub"))
	write(t, filepath.Join(dir, "George_Orwell_1984__2.opf"))

	st, err := ReadDirState(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	file := domain.BookFile{AbsPath: filepath.Join(root, "a.epub"), Ext: ".epub"}
	p1, err := PlanMove(root, file, match1984(), st, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(p1.Move.DstAbs) != "George_Orwell_1984__3.epub" {
		t.Fatalf("期望 __3，实际=%q", filepath.Base(p1.Move.DstAbs))
	}

	// 同一次运行中第二个同名目标继续顺延（不能与上一个计划冲突）。
	file2 := domain.BookFile{AbsPath: filepath.Join(root, "b.epub"), Ext: ".epub"}
	p2, err := PlanMove(root, file2, match1984(), st, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(p2.Move.DstAbs) != "George_Orwell_1984__4.epub" {
		t.Fatalf("期望 __4，实际=%q", filepath.Base(p2.Move.DstAbs))
	}

	// 不写 OPF 时只看书本身的名字：__2 可用。
	st2, _ := ReadDirState(dir)
	p3, err := PlanMove(root, file, match1984(), st2, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(p3.Move.DstAbs) != "George_Orwell_1984__2.epub" || p3.OPFName != "" {
		t.Fatalf("期望 __2 且不写 opf，实际=%q opf=%q", filepath.Base(p3.Move.DstAbs), p3.OPFName)
	}
}

func TestPlanMove_RejectsMismatchedState(t *testing.T) {
	root := t.TempDir()
	st, _ := ReadDirState(FoundDir(root, domain.SourceSimania))
	_, err := PlanMove(root, domain.BookFile{AbsPath: "/x.epub"}, match1984(), st, false)
	if err == nil {
		t.Fatalf("期望目录状态与 source 不一致时报错")
	}
}

func TestTargetName(t *testing.T) {
	cases := []struct {
		author, title, ext string
		want               string
	}{
		{"George Orwell", "1984", ".epub", "George_Orwell_1984.epub"},
		{"", "1984", ".pdf", "UnknownAuthor_1984.pdf"},
		{"Orwell", "  ", ".pdf", "Orwell_UnknownTitle.pdf"},
		{`A/B: "C"`, "Why? <Now>|*", ".mobi", "AB_C_Why_Now.mobi"},
		{"עמוס עוז", "סיפור על אהבה וחושך", ".epub", "עמוס_עוז_סיפור_על_אהבה_וחושך.epub"},
		{"..hidden", "x", ".txt", "hidden_x.txt"},
	}
	for _, c := range cases {
		if got := TargetName(c.author, c.title, c.ext); got != c.want {
			t.Fatalf("TargetName(%q,%q,%q)=%q，期望 %q", c.author, c.title, c.ext, got, c.want)
		}
	}
}

func TestSafeName_Truncates(t *testing.T) {
	got := SafeName(strings.Repeat("a", 200))
	if n := len([]rune(got)); n != maxPartRunes {
		t.Fatalf("期望截断为 %d 个字符，实际 %d", maxPartRunes, n)
	}

	// 希伯来文每个字符 2 字节：受字节上限约束。
	got = SafeName(strings.Repeat("א", 200))
	if len(got) > maxPartBytes || !utf8.ValidString(got) {
		t.Fatalf("期望不超过 %d 字节且为合法 UTF-8，实际 %d 字节", maxPartBytes, len(got))
	}
}

func TestTargetName_MultiByteFitsFilenameLimit(t *testing.T) {
	// 中日韩字符每个 3 字节，emoji 4 字节。
	for _, r := range []string{"書", "😀"} {
		long := strings.Repeat(r, 200)
		name := TargetName(long, long, ".epub")
		stem := strings.TrimSuffix(name, ".epub")
		if n := len(stem + "__99.opf"); n > 255 {
			t.Fatalf("%q：文件名 %d 字节，超过 255", r, n)
		}
		if n := len(name); n > 255 {
			t.Fatalf("%q：文件名 %d 字节，超过 255", r, n)
		}
		if !utf8.ValidString(name) {
			t.Fatalf("%q：截断破坏了 UTF-8", r)
		}
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
