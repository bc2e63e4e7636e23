// Package source 定义外部书目来源（source adapter）的统一接口与错误分类。
package source

import (
	"context"

	"github.com/John-Robertt/EBMC/internal/domain"
)

// Adapter 把“站点变化”限制在各自的子包内部；dispatcher 只依赖这个接口。
//
// 约束：
// - 超时由 ctx 的 deadline 承载；到期后 dispatcher 直接放弃，不重试
// - seed 只有 title、只有 author、两者都有都必须能安全调用
// - seed 两者都缺失时返回 (nil, nil)，而不是报错
// - 失败时返回 *Error（带 Kind），错误永远不会越过 dispatcher
type Adapter interface {
	Name() domain.SourceName
	Query(ctx context.Context, seed domain.QuerySeed) ([]domain.Candidate, error)
}

// SearchResult 是网页搜索引擎的一条结果。
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher 是网页搜索引擎的最小接口（站点 source 通过 "site:<domain>" 复用它）。
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}
