// Package dispatch 把一个 seed 并发分发给所有 source，并在截止时间内合并结果。
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/logging"
	"github.com/John-Robertt/EBMC/internal/source"
)

const (
	DefaultAdapterTimeout = 10 * time.Second
	DefaultDeadline       = 20 * time.Second
)

// DeadlineMsg 是“整体截止时仍未返回”的 source 在 attempt 中的错误信息。
const DeadlineMsg = "deadline"

type Options struct {
	// AdapterTimeout 只约束单个 source 调用；<=0 时使用默认值。
	AdapterTimeout time.Duration
	// Deadline 是整体等待上限；<=0 时使用默认值。
	Deadline time.Duration
	Logger   *slog.Logger
}

// Pool 是一次分发的合并结果。
//
// Candidates 按 source 返回的先后顺序追加（matcher 不依赖这个顺序）；
// Attempts 按 adapters 的传入顺序排列，覆盖每一个 source。
type Pool struct {
	Candidates []domain.Candidate
	Attempts   []domain.SourceAttempt
}

type outcome struct {
	idx   int
	cands []domain.Candidate
	err   error
	dur   time.Duration
}

type callResult struct {
	cands []domain.Candidate
	err   error
}

// Dispatch 并发调用全部 adapters。它从不返回错误：
// 单个 source 的失败只体现在 Attempts 与日志里，候选池允许只包含部分 source 的结果。
func Dispatch(ctx context.Context, seed domain.QuerySeed, adapters []source.Adapter, opts Options) Pool {
	if len(adapters) == 0 {
		return Pool{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.OrDiscard(opts.Logger)
	adapterTimeout := opts.AdapterTimeout
	if adapterTimeout <= 0 {
		adapterTimeout = DefaultAdapterTimeout
	}
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	names := make([]domain.SourceName, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}

	// 容量等于 adapter 数：截止后仍在运行的 goroutine 写入也不会阻塞。
	results := make(chan outcome, len(adapters))
	for i, a := range adapters {
		go call(ctx, i, a, seed, adapterTimeout, results)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var (
		pool     Pool
		attempts = make([]domain.SourceAttempt, len(adapters))
		done     = make([]bool, len(adapters))
		received int
	)

wait:
	for received < len(adapters) {
		select {
		case o := <-results:
			received++
			done[o.idx] = true
			attempts[o.idx] = record(log, names[o.idx], o)
			if o.err != nil {
				continue
			}
			for _, c := range o.cands {
				if c.Source == "" {
					c.Source = names[o.idx]
				}
				pool.Candidates = append(pool.Candidates, c)
			}
		case <-timer.C:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	for i := range adapters {
		if done[i] {
			continue
		}
		attempts[i] = domain.SourceAttempt{
			Source:    names[i],
			ErrorKind: string(source.KindTimeout),
			ErrorMsg:  DeadlineMsg,
		}
		log.Warn("source 在整体截止时间内未返回，已放弃", "source", names[i], "seed_title", seed.Title)
	}
	pool.Attempts = attempts
	return pool
}

// call 在独立的超时 context 中执行一次 Query。
// adapter 忽略 ctx 时，超时后直接放弃等待（内层 goroutine 写入带缓冲的 channel 后退出）。
func call(parent context.Context, idx int, a source.Adapter, seed domain.QuerySeed, timeout time.Duration, out chan<- outcome) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("source panic: %v", r)}
			}
		}()
		cands, err := a.Query(ctx, seed)
		done <- callResult{cands: cands, err: err}
	}()

	var r callResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = callResult{err: ctx.Err()}
	}
	out <- outcome{idx: idx, cands: r.cands, err: r.err, dur: time.Since(start)}
}

func record(log *slog.Logger, name domain.SourceName, o outcome) domain.SourceAttempt {
	at := domain.SourceAttempt{
		Source:     name,
		Duration:   o.dur,
		DurationMS: o.dur.Milliseconds(),
	}
	if o.err != nil {
		se := source.Classify(name, o.err)
		at.ErrorKind = string(se.Kind)
		at.ErrorMsg = se.Err.Error()
		log.Warn("source 查询失败", "source", name, "kind", se.Kind, "duration_ms", at.DurationMS, "error", se.Err)
		return at
	}
	at.Candidates = len(o.cands)
	log.Debug("source 查询完成", "source", name, "candidates", at.Candidates, "duration_ms", at.DurationMS)
	return at
}
