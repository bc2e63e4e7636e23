// Package opf 生成与电子书同目录的 OPF 2.0 元数据 sidecar（Calibre 等阅读器/书库可读取）。
package opf

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/John-Robertt/EBMC/internal/domain"
)

const (
	nsOPF = "http://www.idpf.org/2007/opf"
	nsDC  = "http://purl.org/dc/elements/1.1/"
)

type pkg struct {
	XMLName  xml.Name `xml:"package"`
	XMLNS    string   `xml:"xmlns,attr"`
	UniqueID string   `xml:"unique-identifier,attr"`
	Version  string   `xml:"version,attr"`
	Metadata metadata `xml:"metadata"`
}

type metadata struct {
	XMLNSDC  string `xml:"xmlns:dc,attr"`
	XMLNSOPF string `xml:"xmlns:opf,attr"`

	Title      string     `xml:"dc:title"`
	Creator    *creator   `xml:"dc:creator,omitempty"`
	Identifier identifier `xml:"dc:identifier"`
	Source     string     `xml:"dc:source,omitempty"`
	Meta       []meta     `xml:"meta"`
}

type creator struct {
	Role  string `xml:"opf:role,attr"`
	Value string `xml:",chardata"`
}

type identifier struct {
	ID     string `xml:"id,attr"`
	Scheme string `xml:"opf:scheme,attr"`
	Value  string `xml:",chardata"`
}

type meta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// Encode 把已匹配的 Resolution 转成 OPF 2.0 package 文档。
//
// 规则：
// - 只接受 OutcomeMatched（未匹配的文件不会被整理，也就不需要 sidecar）
// - dc:identifier 使用站点编号；站点没有编号时，由 URL（或 source+title）派生稳定的 urn:uuid
// - 输出只依赖输入，不含时间戳等非确定字段
func Encode(res domain.Resolution) ([]byte, error) {
	if !res.IsMatched() || res.Match == nil {
		return nil, errors.New("只有已匹配的结果才能生成 OPF")
	}
	m := res.Match
	title := strings.TrimSpace(m.Title)
	if title == "" {
		return nil, errors.New("匹配结果缺少书名")
	}

	md := metadata{
		XMLNSDC:  nsDC,
		XMLNSOPF: nsOPF,
		Title:    title,
		Identifier: identifier{
			ID:     "BookId",
			Scheme: string(m.Source),
			Value:  bookID(*m),
		},
		Source: strings.TrimSpace(m.URL),
		Meta: []meta{
			{Name: "ebmc:source", Content: string(m.Source)},
			{Name: "ebmc:score", Content: strconv.FormatFloat(m.Combined, 'f', 4, 64)},
			{Name: "ebmc:original_filename", Content: res.Seed.RawFilename},
		},
	}
	if a := strings.TrimSpace(m.Author); a != "" {
		md.Creator = &creator{Role: "aut", Value: a}
	}

	b, err := xml.MarshalIndent(pkg{
		XMLNS:    nsOPF,
		UniqueID: "BookId",
		Version:  "2.0",
		Metadata: md,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(b, '\n')...), nil
}

func bookID(m domain.ScoredCandidate) string {
	if id := strings.TrimSpace(m.Identifier); id != "" {
		return id
	}
	key := strings.TrimSpace(m.URL)
	if key == "" {
		key = string(m.Source) + ":" + strings.TrimSpace(m.Title) + ":" + strings.TrimSpace(m.Author)
	}
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
