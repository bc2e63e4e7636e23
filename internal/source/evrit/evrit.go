// Package evrit 实现 e-vrit.co.il（希伯来语电子书商店）的详情页解析。
package evrit

import (
	"bytes"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/source"
)

const Domain = "e-vrit.co.il"

// 详情页形如 https://www.e-vrit.co.il/Product/1234/<slug>
var idPattern = regexp.MustCompile(`/Product/(\d+)(?:/|$)`)

// New 返回 e-vrit 的 source；limit 为 0 时使用默认值。
func New(s source.Searcher, c *http.Client, limit int) *source.Site {
	return &source.Site{
		Source:    domain.SourceEVrit,
		Domain:    Domain,
		IDPattern: idPattern,
		Parse:     Parse,
		Searcher:  s,
		Client:    c,
		Limit:     limit,
	}
}

// Parse 从详情页提取书名与作者。
//
// 书名取第一个 <h1>，缺失时回退 og:title；作者取全部 a.author-link（去重后以 ", " 连接）。
func Parse(html []byte, pageURL string) (source.Detail, error) {
	if len(html) == 0 {
		return source.Detail{}, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return source.Detail{}, err
	}

	title := source.NormSpace(doc.Find("h1").First().Text())
	if title == "" {
		if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
			title = source.NormSpace(v)
		}
	}
	if title == "" {
		return source.Detail{}, errors.New("未找到书名（h1/og:title）")
	}

	var authors []string
	seen := map[string]struct{}{}
	doc.Find("a.author-link").Each(func(_ int, s *goquery.Selection) {
		a := source.NormSpace(s.Text())
		if a == "" {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		authors = append(authors, a)
	})

	return source.Detail{Title: title, Author: strings.Join(authors, ", ")}, nil
}
