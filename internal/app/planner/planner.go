package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/scan"
)

const (
	UnknownAuthor = "UnknownAuthor"
	UnknownTitle  = "UnknownTitle"

	// 单个名字片段的上限：最多 60 个字符，且 UTF-8 编码不超过 100 字节。
	// 两段加上 "_"、"__N" 与扩展名/".opf" 仍在常见文件系统 255 字节的文件名限制内。
	maxPartRunes = 60
	maxPartBytes = 100
)

// DirState 是某个 found_on_<source>/ 目录的现状，外加本次运行已经规划出去的名字。
// 同一次运行里，同一目录必须复用同一个 DirState，才能让 __N 的分配保持一致。
type DirState struct {
	Dir           string
	ExistingNames map[string]struct{}
}

// Reserve 把 name 标记为已占用。
func (s DirState) Reserve(name string) { s.ExistingNames[name] = struct{}{} }

func (s DirState) taken(name string) bool {
	_, ok := s.ExistingNames[name]
	return ok
}

// FoundDir 返回 source 对应的整理目录：<root>/found_on_<source>。
func FoundDir(root string, src domain.SourceName) string {
	return filepath.Join(root, scan.FoundDirPrefix+string(src))
}

// ReadDirState 读取目录的现状（只做 ReadDir，不读文件内容）。
// 若 dir 不存在，返回空状态且不报错。
func ReadDirState(dir string) (DirState, error) {
	st := DirState{Dir: dir, ExistingNames: map[string]struct{}{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return DirState{}, err
	}
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// TargetName 生成 "<Author>_<Title><ext>"；缺失的一侧使用 UnknownAuthor/UnknownTitle。
func TargetName(author, title, ext string) string {
	a := SafeName(author)
	if a == "" {
		a = UnknownAuthor
	}
	t := SafeName(title)
	if t == "" {
		t = UnknownTitle
	}
	return a + "_" + t + ext
}

// SafeName 去掉文件系统不允许的字符，并把空白替换为 "_"。
func SafeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '*', '?', ':', '"', '<', '>', '|':
			return -1
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), "_")
	// 以 "." 开头会变成隐藏文件（扫描阶段会跳过它）。
	s = strings.TrimLeft(s, ".")
	if utf8.RuneCountInString(s) > maxPartRunes {
		s = string([]rune(s)[:maxPartRunes])
	}
	for len(s) > maxPartBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}

// PlanMove 为一个已匹配文件生成确定性的执行计划（不做任何写入/移动）。
//
// 目标：<root>/found_on_<source>/<Author>_<Title><ext>。
// 与目录已有文件或本次运行已规划的名字冲突时追加 __2、__3……；
// writeOPF 为 true 时，书与 <stem>.opf 两个名字必须同时空闲。
// 分配出的名字会 Reserve 到 st。
func PlanMove(root string, file domain.BookFile, m domain.ScoredCandidate, st DirState, writeOPF bool) (domain.ItemPlan, error) {
	if strings.TrimSpace(file.AbsPath) == "" {
		return domain.ItemPlan{}, errors.New("源文件路径为空")
	}
	if m.Source == "" {
		return domain.ItemPlan{}, errors.New("匹配结果缺少 source")
	}
	if st.ExistingNames == nil {
		return domain.ItemPlan{}, errors.New("目录状态未初始化")
	}
	if want := FoundDir(root, m.Source); filepath.Clean(st.Dir) != want {
		return domain.ItemPlan{}, fmt.Errorf("目录状态不匹配：期望 %q，实际 %q", want, st.Dir)
	}

	ext := file.Ext
	if ext == "" {
		ext = filepath.Ext(file.AbsPath)
	}
	name := allocName(TargetName(m.Author, m.Title, ext), st, writeOPF)
	st.Reserve(name)

	plan := domain.ItemPlan{
		Source: m.Source,
		Move: domain.MovePlan{
			SrcAbs: file.AbsPath,
			DstAbs: filepath.Join(st.Dir, name),
		},
	}
	if writeOPF {
		plan.OPFName = opfName(name)
		st.Reserve(plan.OPFName)
	}
	return plan, nil
}

func opfName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".opf"
}

func allocName(name string, st DirState, withOPF bool) string {
	free := func(n string) bool {
		if st.taken(n) {
			return false
		}
		return !withOPF || !st.taken(opfName(n))
	}
	if free(name) {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", base, n, ext)
		if free(cand) {
			return cand
		}
	}
}
