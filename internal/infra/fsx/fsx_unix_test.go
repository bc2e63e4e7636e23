//go:build unix

package fsx

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestRename_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := Rename("/a", "/b")
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
}

func TestMoveNoOverwrite_CrossDeviceLink(t *testing.T) {
	old := linkFunc
	linkFunc = func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EXDEV}
	}
	defer func() { linkFunc = old }()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.epub")
	mustWrite(t, src, "x")

	err := MoveNoOverwrite(src, filepath.Join(dir, "found_on_evrit", "a.epub"))
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("跨盘失败时源文件必须保留：%v", err)
	}
}
