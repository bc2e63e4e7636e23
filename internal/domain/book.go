package domain

import (
	"path/filepath"
	"strings"
)

// BookFile 描述一次扫描得到的电子书文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，不读文件内容
type BookFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".epub"（保留原始大小写）
	Size    int64
	ModUnix int64
}

// Name 返回带扩展名的文件名。
func (f BookFile) Name() string { return filepath.Base(f.AbsPath) }

// Hints 返回相对扫描根目录的父目录名，由近及远（不含根目录本身）。
func (f BookFile) Hints() []string {
	dir := filepath.Dir(filepath.ToSlash(f.RelPath))
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.TrimSpace(parts[i])
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}
