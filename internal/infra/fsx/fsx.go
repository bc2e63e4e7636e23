package fsx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV / 不支持硬链接等错误。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层可把它映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename/link 失败。
// 遇到 EXDEV 必须失败并提示用户，不做 copy+delete。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q；请确保源与目标在同一文件系统（本工具不会隐式 copy+delete）：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// MoveNoOverwrite 把 src 移动到 dst，dst 已存在时返回 os.ErrExist（目录等类型冲突返回 PathTypeConflictError）。
//
// 优先用硬链接 + 删除源文件：link 在目标存在时由内核原子地拒绝，不会出现“检查后被别人抢先写入”的覆盖。
// 文件系统不支持硬链接时退化为“检查 + rename”。
func MoveNoOverwrite(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := checkTarget(dst); err != nil {
		return err
	}

	err := linkFunc(src, dst)
	switch {
	case err == nil:
		if rmErr := os.Remove(src); rmErr != nil {
			// 源文件删不掉：撤销链接，保持“要么移动完成，要么什么都没变”。
			_ = os.Remove(dst)
			return rmErr
		}
		return nil
	case errors.Is(err, fs.ErrExist):
		if cerr := checkTarget(dst); cerr != nil {
			return cerr
		}
		return os.ErrExist
	case isEXDEV(err):
		return &CrossDeviceError{Src: src, Dst: dst, Err: err}
	}

	if err := checkTarget(dst); err != nil {
		return err
	}
	return Rename(src, dst)
}

// checkTarget 在 dst 已存在时返回错误；不存在返回 nil。
func checkTarget(dst string) error {
	fi, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
	}
	if !fi.Mode().IsRegular() {
		return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return os.ErrExist
}

// WriteFileAtomicNoOverwrite 在 dir 下原子写入 name（同目录临时文件 + link/rename），目标已存在时返回 os.ErrExist。
//
// 用于 OPF sidecar 等“不允许覆盖”的文件。需要覆盖（例如 report.json）时使用 WriteFileAtomicReplace。
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	if err := checkTarget(filepath.Join(filepath.Clean(dir), name)); err != nil {
		return err
	}
	return writeFileAtomic(dir, name, data, 0o644, false)
}

// WriteFileAtomicReplace 写入并覆盖同名文件（尽量保持原子性；Windows 上为 best-effort）。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	return writeFileAtomic(dir, name, data, 0o644, true)
}

func writeFileAtomic(dir, name string, data []byte, perm os.FileMode, replace bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(dir, name)

	// 创建同目录临时文件（前缀带 '.'，扫描阶段会跳过隐藏文件）。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeAll(tmp, data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if replace {
		if err := Rename(tmpName, dst); err != nil {
			return err
		}
	} else if err := MoveNoOverwrite(tmpName, dst); err != nil {
		return err
	}

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
