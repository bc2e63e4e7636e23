// Package resolve 把“文件名 → 检索种子 → 多源候选 → 匹配结果”串成一次完整解析。
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/John-Robertt/EBMC/internal/dispatch"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/extract"
	"github.com/John-Robertt/EBMC/internal/logging"
	"github.com/John-Robertt/EBMC/internal/match"
	"github.com/John-Robertt/EBMC/internal/source"
)

// Config 是核心流程消费的全部配置。
type Config struct {
	Policy         match.Policy
	AdapterTimeout time.Duration
	Deadline       time.Duration
	// PathHints 为 true 时，文件名未给出作者会尝试用父目录名补全。
	PathHints bool
}

func DefaultConfig() Config {
	return Config{
		Policy:         match.DefaultPolicy(),
		AdapterTimeout: dispatch.DefaultAdapterTimeout,
		Deadline:       dispatch.DefaultDeadline,
	}
}

func (c Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if c.AdapterTimeout <= 0 {
		return fmt.Errorf("adapter_timeout 必须为正数，实际 %s", c.AdapterTimeout)
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline 必须为正数，实际 %s", c.Deadline)
	}
	return nil
}

// Resolver 可以被多个 goroutine 并发使用（自身不持有可变状态）。
type Resolver struct {
	Adapters []source.Adapter
	Config   Config
	Logger   *slog.Logger
}

func (r Resolver) validate() error {
	if err := r.Config.Validate(); err != nil {
		return err
	}
	if len(r.Adapters) == 0 {
		return errors.New("至少需要一个 source")
	}
	for i, a := range r.Adapters {
		if a == nil {
			return fmt.Errorf("source[%d] 为空", i)
		}
	}
	return nil
}

// Resolve 对单个文件执行完整解析。
//
// 约束：
// - 永不返回 error：配置非法或任一阶段 panic 都收敛为 Failed
// - 未过阈值是正常终态（Unresolved），不是失败
// - adapters 对同一输入返回相同结果时，多次调用结果一致
func (r Resolver) Resolve(ctx context.Context, filename string, hints []string) (res domain.Resolution) {
	log := logging.OrDiscard(r.Logger)
	var seed domain.QuerySeed

	defer func() {
		if p := recover(); p != nil {
			log.Error("解析过程发生 panic", "file", filename, "panic", p, "stack", string(debug.Stack()))
			res = domain.Failed(seed, fmt.Sprintf("internal error: %v", p))
		}
	}()

	if err := r.validate(); err != nil {
		return domain.Failed(domain.QuerySeed{RawFilename: filename}, "invalid config: "+err.Error())
	}

	if !r.Config.PathHints {
		hints = nil
	}
	seed = extract.Extract(filename, hints)
	log.Debug("提取检索种子", "file", filename, "title", seed.Title, "author", seed.Author)

	pool := dispatch.Dispatch(ctx, seed, r.Adapters, dispatch.Options{
		AdapterTimeout: r.Config.AdapterTimeout,
		Deadline:       r.Config.Deadline,
		Logger:         log,
	})

	dec := match.Match(seed, pool.Candidates, r.Config.Policy)
	if dec.Matched {
		res = domain.Matched(seed, dec.Winner)
		log.Info("匹配成功", "file", filename, "source", dec.Winner.Source, "title", dec.Winner.Title, "score", dec.Winner.Combined)
	} else {
		res = domain.Unresolved(seed, dec.Best())
		log.Info("未达到阈值", "file", filename, "pool", len(pool.Candidates))
	}
	res.PoolSize = len(pool.Candidates)
	res.Attempts = pool.Attempts
	return res
}

// Resolve 是 Resolver.Resolve 的便捷包装（不输出日志）。
func Resolve(ctx context.Context, filename string, hints []string, adapters []source.Adapter, cfg Config) domain.Resolution {
	return Resolver{Adapters: adapters, Config: cfg}.Resolve(ctx, filename, hints)
}
