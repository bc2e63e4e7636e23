package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/John-Robertt/EBMC/internal/infra/fsx"
)

const (
	DirName    = "cache"
	ReportName = "report.json"
	LockName   = "ebmc.lock"
)

// Store 管理 <path>/cache/ 下的运行产物（report.json 与 apply 互斥锁）。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true），任何写入返回 ErrReadOnly
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // <path>（扫描根目录）
	ReadOnly bool
}

var (
	ErrReadOnly = errors.New("cache: read-only")
	// ErrLocked 表示同一书库上已有另一个 apply 在运行。
	ErrLocked = errors.New("cache: locked")
)

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

func (s Store) Dir() string        { return filepath.Join(s.Root, DirName) }
func (s Store) ReportPath() string { return filepath.Join(s.Dir(), ReportName) }
func (s Store) LockPath() string   { return filepath.Join(s.Dir(), LockName) }

// ReadReport 读取上一次 apply 写下的 report.json；不存在时 ok=false。
func (s Store) ReadReport() ([]byte, bool, error) {
	b, err := os.ReadFile(s.ReportPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WriteReport 原子替换 report.json。
func (s Store) WriteReport(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomicReplace(s.Dir(), ReportName, b)
}

// Lock 以非阻塞方式获取 <path>/cache/ebmc.lock。
// 锁已被其他进程持有时返回 ErrLocked；成功时返回的 unlock 必须调用。
func (s Store) Lock() (unlock func() error, err error) {
	if s.ReadOnly {
		return nil, ErrReadOnly
	}
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(s.LockPath())
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取锁失败：%w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl.Unlock, nil
}
