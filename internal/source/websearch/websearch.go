// Package websearch 实现通用网页搜索（DuckDuckGo HTML 端点）。
//
// 它同时扮演两个角色：
// - source.Searcher：供站点 source 以 "site:<domain>" 方式复用
// - source.Adapter：作为兜底 source，直接把搜索结果标题当作候选
package websearch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/source"
)

// DefaultBaseURL 是无 JS 的 HTML 搜索端点。
const DefaultBaseURL = "https://html.duckduckgo.com/html/"

// Engine 通过 GET <BaseURL>?q=<query> 获取搜索结果页。
type Engine struct {
	// BaseURL 为空时使用 DefaultBaseURL。
	BaseURL string
	Client  *http.Client
}

func (e Engine) baseURL() string {
	u := strings.TrimSpace(e.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return u
}

func (e Engine) Search(ctx context.Context, query string, limit int) ([]source.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query 不能为空")
	}

	u, err := url.Parse(e.baseURL())
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	html, err := source.FetchHTML(ctx, e.Client, u.String())
	if err != nil {
		return nil, err
	}
	results, err := ParseResults(html, u.String())
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ParseResults 把搜索结果页解析为有序结果列表（纯函数）。
//
// 约束：
// - 广告条目（.result--ad）跳过
// - 跳转链接 /l/?uddg=<real> 还原为真实 URL
// - 人机验证页返回 *source.BlockedError（按限流处理）
func ParseResults(html []byte, pageURL string) ([]source.SearchResult, error) {
	if len(html) == 0 {
		return nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	if doc.Find("form#challenge-form, .anomaly-modal").Length() > 0 {
		return nil, &source.BlockedError{URL: pageURL, Reason: "搜索引擎要求人机验证"}
	}

	var out []source.SearchResult
	doc.Find("div.result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		target := unwrapRedirect(source.ResolveURL(pageURL, href))
		title := source.NormSpace(a.Text())
		if target == "" || title == "" {
			return
		}
		out = append(out, source.SearchResult{
			Title:   title,
			URL:     target,
			Snippet: source.NormSpace(s.Find(".result__snippet").First().Text()),
		})
	})
	return out, nil
}

func unwrapRedirect(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return raw
}

// Adapter 是兜底 source：搜索词不带 site: 限定，结果标题直接作为候选标题。
// 搜索结果不含结构化作者，因此 Author 恒为空（matcher 会只按标题打分）。
type Adapter struct {
	Searcher source.Searcher

	// Limit 为 0 时使用 source.DefaultResultsPerSource。
	Limit int
}

func (Adapter) Name() domain.SourceName { return domain.SourceWebSearch }

func (a Adapter) Query(ctx context.Context, seed domain.QuerySeed) ([]domain.Candidate, error) {
	if seed.Empty() {
		return nil, nil
	}
	if a.Searcher == nil {
		return nil, source.NewError(domain.SourceWebSearch, source.KindNetwork, errors.New("searcher 不能为空"))
	}
	limit := a.Limit
	if limit <= 0 {
		limit = source.DefaultResultsPerSource
	}

	results, err := a.Searcher.Search(ctx, seed.Query(), limit)
	if err != nil {
		return nil, source.Classify(domain.SourceWebSearch, err)
	}

	out := make([]domain.Candidate, 0, len(results))
	for _, r := range results {
		title := cleanTitle(r.Title)
		if title == "" {
			continue
		}
		out = append(out, domain.Candidate{
			Source: domain.SourceWebSearch,
			Title:  title,
			URL:    r.URL,
		})
	}
	return out, nil
}

// 搜索结果标题通常带站点后缀，例如 "1984 - Wikipedia" / "1984 | Goodreads"。
func cleanTitle(s string) string {
	s = source.NormSpace(s)
	for _, sep := range []string{" | ", " - ", " — ", " – "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			s = strings.TrimSpace(s[:i])
			break
		}
	}
	return s
}
