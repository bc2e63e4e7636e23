package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/infra/cache"
	"github.com/John-Robertt/EBMC/internal/logging"
	"github.com/John-Robertt/EBMC/internal/resolve"
	"github.com/John-Robertt/EBMC/internal/scan"
	"github.com/John-Robertt/EBMC/internal/source"
)

type options struct {
	obs    Observer
	logger *slog.Logger
}

type Option func(*options)

// WithObserver 注入进度观察者（nil 表示不观察）。
func WithObserver(obs Observer) Option {
	return func(o *options) { o.obs = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单个文件失败不影响其他）。
//
// 流程：scan → resolve（worker pool）→ organize（按文件顺序串行规划；apply 才落盘）。
// apply 全程持有 <path>/cache/ebmc.lock，并在结束前写入 <path>/cache/report.json。
func Execute(ctx context.Context, eff config.EffectiveConfig, adapters []source.Adapter, opts ...Option) domain.RunReport {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	obs := o.obs
	log := logging.OrDiscard(o.logger)

	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}
	log = log.With("run_id", rr.RunID)

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	if len(adapters) == 0 {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, "没有启用任何 source；请检查 sources 配置"))
		return finish()
	}

	store := cache.New(eff.Path, !eff.Apply)
	if eff.Apply {
		unlock, err := store.Lock()
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeLocked,
					fmt.Sprintf("另一个 apply 正在处理该目录（%s）；请等待其结束后重试", store.LockPath())))
			} else {
				rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("获取锁失败：%v", err)))
			}
			return finish()
		}
		defer func() {
			if err := unlock(); err != nil {
				log.Warn("释放锁失败", "path", store.LockPath(), "error", err)
			}
		}()
	}

	scanStarted := time.Now()
	files, err := scan.ScanBooks(eff.Path, eff.ExcludeDirs)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}
	if obs != nil {
		obs.OnPhaseDone(PhaseScan, map[string]any{
			"files": len(files),
		}, time.Since(scanStarted))
	}
	log.Info("扫描完成", "files", len(files))

	resolver := resolve.Resolver{
		Adapters: adapters,
		Config:   eff.ResolveConfig(),
		Logger:   log,
	}
	workers := poolSize(eff.Concurrency, len(files))
	if obs != nil {
		obs.OnPhaseDone(PhaseResolve, map[string]any{
			"workers":     workers,
			"total_items": len(files),
			"sources":     len(adapters),
		}, 0)
	}
	resolutions := resolveAll(ctx, resolver, files, workers, obs)

	organizeStarted := time.Now()
	items, stats := organize(eff, files, resolutions, log)
	rr.Items = append(rr.Items, items...)
	if obs != nil {
		obs.OnPhaseDone(PhaseOrganize, map[string]any{
			"matched": stats.matched,
			"planned": stats.planned,
			"moved":   stats.moved,
			"failed":  stats.failed,
		}, time.Since(organizeStarted))
	}

	out := finish()
	if eff.Apply {
		if err := writeReport(store, out); err != nil {
			log.Error("写入 report.json 失败", "path", store.ReportPath(), "error", err)
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("写入 report.json 失败：%v", err)))
			out = finish()
		}
	}
	return out
}

func poolSize(concurrency, n int) int {
	w := concurrency
	if w < 1 {
		w = 1
	}
	if n > 0 && w > n {
		w = n
	}
	return w
}

// resolveAll 用固定大小的 worker pool 解析全部文件；结果按 files 的下标回填，
// 保证后续规划顺序与完成顺序无关。
func resolveAll(ctx context.Context, r resolve.Resolver, files []domain.BookFile, workers int, obs Observer) []domain.Resolution {
	out := make([]domain.Resolution, len(files))
	if len(files) == 0 {
		return out
	}

	type resolveResult struct {
		idx int
		res domain.Resolution
		dur time.Duration
	}

	jobs := make(chan int)
	results := make(chan resolveResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				f := files[idx]
				oneStarted := time.Now()
				res := r.Resolve(ctx, f.Name(), f.Hints())
				results <- resolveResult{idx: idx, res: res, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for i := range files {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		out[it.idx] = it.res
		if obs != nil {
			obs.OnItemDone(done, len(files), files[it.idx].RelPath, resolvedItem(files[it.idx], it.res), it.dur)
		}
	}
	return out
}

// resolvedItem 把解析结果转成 report 条目（尚未规划目标路径）。
func resolvedItem(f domain.BookFile, res domain.Resolution) domain.ItemResult {
	item := domain.ItemResult{
		File:       f.RelPath,
		SeedTitle:  res.Seed.Title,
		SeedAuthor: res.Seed.Author,
		PoolSize:   res.PoolSize,
		Attempts:   res.Attempts,
	}
	if item.Attempts == nil {
		item.Attempts = []domain.SourceAttempt{}
	}

	switch res.Outcome {
	case domain.OutcomeMatched:
		m := res.Match
		item.Status = domain.StatusProcessed
		item.FileStatus = domain.FileStatusPlanned
		item.Source = string(m.Source)
		item.Title = m.Title
		item.Author = m.Author
		item.Identifier = m.Identifier
		item.URL = m.URL
		item.Score = m.Combined
	case domain.OutcomeUnresolved:
		item.Status = domain.StatusUnmatched
		item.FileStatus = domain.FileStatusUntouched
		item.ErrorCode = domain.ErrCodeUnresolved
		item.ErrorMsg = unresolvedMsg(res)
		if res.Best != nil {
			item.Score = res.Best.Combined
		}
	default:
		item.Status = domain.StatusFailed
		item.FileStatus = domain.FileStatusUntouched
		item.ErrorCode = domain.ErrCodeResolveFailed
		item.ErrorMsg = res.Reason
	}
	return item
}

func unresolvedMsg(res domain.Resolution) string {
	if res.Seed.Empty() {
		return "无法从文件名提取书名或作者"
	}
	if res.PoolSize == 0 {
		failed := 0
		for _, a := range res.Attempts {
			if !a.OK() {
				failed++
			}
		}
		if failed > 0 && failed == len(res.Attempts) {
			return "所有 source 均失败，没有得到任何候选；请检查网络或 proxy.url 后重试"
		}
		return "所有 source 均未返回候选"
	}
	if res.Best == nil {
		return fmt.Sprintf("%d 个候选均未达到阈值", res.PoolSize)
	}
	return fmt.Sprintf("最佳候选 %s《%s》得分 %.2f，未达到阈值", res.Best.Source, res.Best.Title, res.Best.Combined)
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		File:      "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Attempts:  []domain.SourceAttempt{},
	}
}

func writeReport(store cache.Store, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return store.WriteReport(b)
}
