// Package simania 实现 simania.co.il（希伯来语书目社区）的详情页解析。
package simania

import (
	"bytes"
	"errors"
	"net/http"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/source"
)

const Domain = "simania.co.il"

var idPattern = regexp.MustCompile(`/book/(\d+)`)

func New(s source.Searcher, c *http.Client, limit int) *source.Site {
	return &source.Site{
		Source:    domain.SourceSimania,
		Domain:    Domain,
		IDPattern: idPattern,
		Parse:     Parse,
		Searcher:  s,
		Client:    c,
		Limit:     limit,
	}
}

// Parse 书名取第一个 <h2>，作者取第一个 <h3>（页面没有更稳定的语义标记）。
func Parse(html []byte, pageURL string) (source.Detail, error) {
	if len(html) == 0 {
		return source.Detail{}, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return source.Detail{}, err
	}

	title := source.NormSpace(doc.Find("h2").First().Text())
	if title == "" {
		return source.Detail{}, errors.New("未找到书名（h2）")
	}
	return source.Detail{
		Title:  title,
		Author: source.NormSpace(doc.Find("h3").First().Text()),
	}, nil
}
