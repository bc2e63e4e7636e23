package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanBooks_ExcludeCacheAndFoundDirs(t *testing.T) {
	root := t.TempDir()

	// 永久排除 cache 与顶层 found_on_*。
	touch(t, filepath.Join(root, "found_on_evrit", "Orwell_1984.epub"))
	touch(t, filepath.Join(root, "cache", "x.epub"))

	// 非顶层的 found_on_* 只是普通目录。
	touch(t, filepath.Join(root, "in", "found_on_me", "a.pdf"))
	touch(t, filepath.Join(root, "in", "Orwell - 1984.epub"))
	touch(t, filepath.Join(root, "in", "cover.jpg"))

	got, err := ScanBooks(root, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个电子书文件，实际 %d：%+v", len(got), got)
	}
	want := []string{filepath.Join("in", "Orwell - 1984.epub"), filepath.Join("in", "found_on_me", "a.pdf")}
	for i, w := range want {
		if got[i].RelPath != w {
			t.Fatalf("期望 rel[%d]=%q，实际=%q", i, w, got[i].RelPath)
		}
	}
	if got[0].Base != "Orwell - 1984" || got[0].Ext != ".epub" {
		t.Fatalf("base/ext 不符合预期：%+v", got[0])
	}
}

func TestScanBooks_SkipHidden(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, ".trash", "a.epub"))
	touch(t, filepath.Join(root, ".partial.epub"))
	touch(t, filepath.Join(root, "ok.mobi"))

	got, err := ScanBooks(root, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0].RelPath != "ok.mobi" {
		t.Fatalf("隐藏文件/目录应被跳过：%+v", got)
	}
}

func TestScanBooks_ExcludeDirsFromConfig(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "incoming", "a.epub"))
	touch(t, filepath.Join(root, "ok", "b.fb2"))

	got, err := ScanBooks(root, []string{"incoming"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个电子书文件，实际 %d", len(got))
	}
	wantRel := filepath.Join("ok", "b.fb2")
	if got[0].RelPath != wantRel {
		t.Fatalf("期望 rel=%q，实际=%q", wantRel, got[0].RelPath)
	}
}

func TestScanBooks_ExtCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "X.EPUB"))

	got, err := ScanBooks(root, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个电子书文件，实际 %d", len(got))
	}
	// 扩展名保留原始大小写，整理后的文件名沿用它。
	if got[0].Ext != ".EPUB" {
		t.Fatalf("期望 ext=.EPUB，实际=%q", got[0].Ext)
	}
}

func TestIsBookExt(t *testing.T) {
	for _, ext := range []string{".epub", ".PDF", ".azw3", ".djvu", ".docx"} {
		if !IsBookExt(ext) {
			t.Fatalf("期望 %q 是电子书格式", ext)
		}
	}
	for _, ext := range []string{".jpg", ".opf", "", ".mp4"} {
		if IsBookExt(ext) {
			t.Fatalf("期望 %q 不是电子书格式", ext)
		}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
