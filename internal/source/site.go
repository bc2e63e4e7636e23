package source

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/John-Robertt/EBMC/internal/domain"
)

// DefaultResultsPerSource 是每个站点最多进入详情页的搜索结果数。
const DefaultResultsPerSource = 3

// Detail 是详情页解析出的最小字段集。
type Detail struct {
	Title  string
	Author string
}

// ParseFunc 必须是纯函数：相同输入 => 相同输出。
type ParseFunc func(html []byte, pageURL string) (Detail, error)

// Site 是“先 site:<domain> 网页搜索，再逐个进入详情页解析”的通用 source。
//
// 约束：
// - 只有落在 Domain 上的搜索结果才会被抓取
// - 单个详情页失败只跳过该页；全部失败才返回最后一个错误
// - Identifier 从详情页 URL 中按 IDPattern 的第一个分组提取（提取不到则为空）
type Site struct {
	Source    domain.SourceName
	Domain    string
	IDPattern *regexp.Regexp
	Parse     ParseFunc

	Searcher Searcher
	Client   *http.Client

	// Limit 为 0 时使用 DefaultResultsPerSource。
	Limit int
}

func (s *Site) Name() domain.SourceName { return s.Source }

func (s *Site) limit() int {
	if s.Limit <= 0 {
		return DefaultResultsPerSource
	}
	return s.Limit
}

func (s *Site) Query(ctx context.Context, seed domain.QuerySeed) ([]domain.Candidate, error) {
	if seed.Empty() {
		return nil, nil
	}
	if s.Searcher == nil || s.Parse == nil {
		return nil, NewError(s.Source, KindNetwork, errors.New("source 未完整配置（searcher/parse 为空）"))
	}

	// 多取一些结果：搜索引擎偶尔会混入非目标域名的链接。
	results, err := s.Searcher.Search(ctx, "site:"+s.Domain+" "+seed.Query(), s.limit()*2)
	if err != nil {
		return nil, Classify(s.Source, err)
	}

	var (
		out     []domain.Candidate
		lastErr error
		tried   int
		seen    = map[string]struct{}{}
	)
	for _, r := range results {
		if tried >= s.limit() {
			break
		}
		if !OnDomain(r.URL, s.Domain) {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		tried++

		html, ferr := FetchHTML(ctx, s.Client, r.URL)
		if ferr != nil {
			lastErr = ferr
			if ctx.Err() != nil {
				break
			}
			continue
		}

		d, perr := s.Parse(html, r.URL)
		if perr != nil {
			lastErr = NewError(s.Source, KindParse, perr)
			continue
		}
		title := NormSpace(d.Title)
		if title == "" {
			lastErr = NewError(s.Source, KindParse, errors.New("详情页缺少标题（站点结构可能变化）"))
			continue
		}

		out = append(out, domain.Candidate{
			Source:     s.Source,
			Title:      title,
			Author:     NormSpace(d.Author),
			Identifier: s.ID(r.URL),
			URL:        r.URL,
		})
	}

	if len(out) == 0 && lastErr != nil {
		return nil, Classify(s.Source, lastErr)
	}
	return out, nil
}

// ID 从详情页 URL 提取站点内的书目编号。
func (s *Site) ID(pageURL string) string {
	if s.IDPattern == nil {
		return ""
	}
	u := strings.TrimSpace(pageURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	m := s.IDPattern.FindStringSubmatch(u)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
