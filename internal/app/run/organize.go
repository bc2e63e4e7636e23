package run

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/John-Robertt/EBMC/internal/app/planner"
	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/infra/fsx"
	"github.com/John-Robertt/EBMC/internal/opf"
)

type organizeStats struct {
	matched int
	planned int
	moved   int
	failed  int
}

// organize 按 files 顺序串行规划（保证 __N 的分配与并发完成顺序无关）。
// dry-run 只读取目标目录现状；apply 才创建目录、写 OPF、移动文件。
func organize(eff config.EffectiveConfig, files []domain.BookFile, resolutions []domain.Resolution, log *slog.Logger) ([]domain.ItemResult, organizeStats) {
	var stats organizeStats
	items := make([]domain.ItemResult, 0, len(files))
	states := make(map[string]planner.DirState)

	for i, f := range files {
		res := resolutions[i]
		item := resolvedItem(f, res)
		if !res.IsMatched() {
			items = append(items, item)
			continue
		}
		stats.matched++

		dir := planner.FoundDir(eff.Path, res.Match.Source)
		st, ok := states[dir]
		if !ok {
			s, err := planner.ReadDirState(dir)
			if err != nil {
				failItem(&item, domain.ErrCodeIOFailed, fmt.Sprintf("读取目标目录失败：%v", err))
				stats.failed++
				items = append(items, item)
				continue
			}
			st = s
			states[dir] = st
		}

		plan, err := planner.PlanMove(eff.Path, f, *res.Match, st, eff.WriteOPF)
		if err != nil {
			failItem(&item, domain.ErrCodeIOFailed, fmt.Sprintf("规划失败：%v", err))
			stats.failed++
			items = append(items, item)
			continue
		}
		item.Dst = relTo(eff.Path, plan.Move.DstAbs)
		stats.planned++

		if eff.Apply {
			execPlan(&item, plan, res)
			if item.Status == domain.StatusFailed {
				stats.failed++
				log.Warn("整理失败", "file", f.RelPath, "error_code", item.ErrorCode, "error", item.ErrorMsg)
			} else {
				stats.moved++
				log.Info("已整理", "file", f.RelPath, "dst", item.Dst, "source", item.Source)
			}
		}
		items = append(items, item)
	}
	return items, stats
}

// execPlan 严格遵守“移动最后一步”：目录与 OPF 任一步失败都不移动书。
func execPlan(item *domain.ItemResult, p domain.ItemPlan, res domain.Resolution) {
	dir := filepath.Dir(p.Move.DstAbs)
	if err := ensureDir(dir); err != nil {
		if fsx.IsPathTypeConflict(err) {
			failItem(item, domain.ErrCodeTargetConflict, err.Error())
		} else {
			failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("创建目录失败：%v", err))
		}
		return
	}

	opfPath := ""
	if p.OPFName != "" {
		b, err := opf.Encode(res)
		if err != nil {
			failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("生成 OPF 失败：%v", err))
			return
		}
		if err := fsx.WriteFileAtomicNoOverwrite(dir, p.OPFName, b); err != nil {
			if errors.Is(err, os.ErrExist) || fsx.IsPathTypeConflict(err) {
				failItem(item, domain.ErrCodeTargetConflict, fmt.Sprintf("OPF 目标已存在：%s", filepath.Join(dir, p.OPFName)))
			} else {
				failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("写入 OPF 失败：%v", err))
			}
			return
		}
		opfPath = filepath.Join(dir, p.OPFName)
	}

	if err := fsx.MoveNoOverwrite(p.Move.SrcAbs, p.Move.DstAbs); err != nil {
		switch {
		case errors.Is(err, os.ErrExist), fsx.IsPathTypeConflict(err):
			failItem(item, domain.ErrCodeTargetConflict, fmt.Sprintf("目标已存在：%s", p.Move.DstAbs))
		case fsx.IsCrossDevice(err):
			failItem(item, domain.ErrCodeMoveFailed, fmt.Sprintf("跨文件系统移动不受支持：%v", err))
		default:
			failItem(item, domain.ErrCodeMoveFailed, err.Error())
		}
		// 书没有移动：撤掉本次写入的 OPF，避免留下孤立的 sidecar。
		if opfPath != "" && os.Remove(opfPath) == nil {
			item.FileStatus = domain.FileStatusRolledBack
		}
		return
	}
	item.FileStatus = domain.FileStatusMoved
}

func failItem(item *domain.ItemResult, code, msg string) {
	item.Status = domain.StatusFailed
	item.FileStatus = domain.FileStatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func relTo(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}
