// Package steimatzky 实现 steimatzky.co.il 的详情页解析。
package steimatzky

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

const Domain = "steimatzky.co.il"

// 详情页 URL 以数字编号结尾，例如 https://www.steimatzky.co.il/011290019
var idPattern = regexp.MustCompile(`/(\d+)/?$`)

// 作者块常带前缀，例如 "מאת: ג'ורג' אורוול" 或 "By: George Orwell"。
var authorPrefixes = []string{"מאת:", "מאת", "By:", "by:"}

func New(s source.Searcher, c *http.Client, limit int) *source.Site {
	return &source.Site{
		Source:    domain.SourceSteimatzky,
		Domain:    Domain,
		IDPattern: idPattern,
		Parse:     Parse,
		Searcher:  s,
		Client:    c,
		Limit:     limit,
	}
}

// Parse 书名取 span[itemprop=name]，作者取 div.product-author。
func Parse(html []byte, pageURL string) (source.Detail, error) {
	if len(html) == 0 {
		return source.Detail{}, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return source.Detail{}, err
	}

	title := source.NormSpace(doc.Find(`span[itemprop="name"]`).First().Text())
	if title == "" {
		title = source.NormSpace(doc.Find("h1.page-title").First().Text())
	}
	if title == "" {
		return source.Detail{}, errors.New("未找到书名（itemprop=name）")
	}

	author := source.NormSpace(doc.Find("div.product-author").First().Text())
	for _, p := range authorPrefixes {
		if strings.HasPrefix(author, p) {
			author = strings.TrimSpace(strings.TrimPrefix(author, p))
			break
		}
	}
	return source.Detail{Title: title, Author: author}, nil
}
