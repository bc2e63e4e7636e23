package domain

import "strings"

// QuerySeed 是从文件名推断出的检索种子（不是事实，只是模糊检索的起点）。
// Title/Author 为空串表示“缺失”。一次解析只产生一个 seed，产生后不再修改。
type QuerySeed struct {
	RawFilename string
	Title       string
	Author      string
}

func (s QuerySeed) HasTitle() bool  { return strings.TrimSpace(s.Title) != "" }
func (s QuerySeed) HasAuthor() bool { return strings.TrimSpace(s.Author) != "" }

// Empty 表示 title 与 author 都缺失；此时 source 直接返回空结果。
func (s QuerySeed) Empty() bool { return !s.HasTitle() && !s.HasAuthor() }

// Query 把 title 与 author 拼成一条搜索词（缺失的一侧省略）。
func (s QuerySeed) Query() string {
	parts := make([]string, 0, 2)
	if s.HasTitle() {
		parts = append(parts, strings.TrimSpace(s.Title))
	}
	if s.HasAuthor() {
		parts = append(parts, strings.TrimSpace(s.Author))
	}
	return strings.Join(parts, " ")
}
