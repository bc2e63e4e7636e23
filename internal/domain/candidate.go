package domain

import (
	"fmt"
	"strings"
)

// SourceName 是外部书目来源的枚举（小写，用于目录名 found_on_<source> 与 report）。
type SourceName string

const (
	SourceEVrit      SourceName = "evrit"
	SourceSteimatzky SourceName = "steimatzky"
	SourceSimania    SourceName = "simania"
	SourceWebSearch  SourceName = "websearch"
)

// DefaultPriority 是同分时的固定优先级：专门的书目站点优先于通用网页搜索。
var DefaultPriority = []SourceName{SourceEVrit, SourceSteimatzky, SourceSimania, SourceWebSearch}

// ParseSourceName 校验并规范化 source 名称（大小写不敏感）。
func ParseSourceName(s string) (SourceName, error) {
	n := SourceName(strings.ToLower(strings.TrimSpace(s)))
	switch n {
	case SourceEVrit, SourceSteimatzky, SourceSimania, SourceWebSearch:
		return n, nil
	case "":
		return "", fmt.Errorf("source 不能为空")
	default:
		return "", fmt.Errorf("未知 source：%q", s)
	}
}

// Display 返回用于终端展示的名称。
func (n SourceName) Display() string {
	switch n {
	case SourceEVrit:
		return "EVrit"
	case SourceSteimatzky:
		return "Steimatzky"
	case SourceSimania:
		return "Simania"
	case SourceWebSearch:
		return "WebSearch"
	default:
		return string(n)
	}
}

// Candidate 是某个 source 返回的一条原始结果。
//
// 约束：
// - 同一本书可能被多个 source 各自返回；这里不做去重，排序完全交给 matcher
// - Author/Identifier 允许为空
type Candidate struct {
	Source     SourceName `json:"source"`
	Title      string     `json:"title"`
	Author     string     `json:"author,omitempty"`
	Identifier string     `json:"identifier,omitempty"`
	URL        string     `json:"url"`
}

// ScoredCandidate 是 matcher 对 Candidate 的打分结果（临时值，不落盘）。
//
// AuthorKnown=false 表示作者分“不适用”（seed 或 candidate 缺作者），
// 此时 Combined 只由 TitleScore 决定。
type ScoredCandidate struct {
	Candidate

	TitleScore  float64 `json:"title_score"`
	AuthorScore float64 `json:"author_score"`
	AuthorKnown bool    `json:"author_known"`
	Combined    float64 `json:"combined"`
}
