// Package extract 从文件名（以及可选的目录名）推断检索种子。
//
// 这是启发式规则而不是语法：输出只是模糊检索的起点，永远不会失败。
package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/EBMC/internal/domain"
)

var (
	// 方括号/花括号里通常是发布组、来源站点等噪音，整体删除。
	bracketRE = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
	parenRE   = regexp.MustCompile(`\(([^)]*)\)`)
	yearRE    = regexp.MustCompile(`^(1[5-9]|20)[0-9]{2}$`)
	versionRE = regexp.MustCompile(`^v[0-9]+$`)

	// 序号前缀必须带分隔符（"01 - "、"003_"），避免把 "12 Rules" 之类的标题误删。
	numPrefixRE = regexp.MustCompile(`^[0-9]{1,3}\s*[-–—._)]\s*`)

	spacedDashRE       = regexp.MustCompile(`\s+[-–—]\s+`)
	doubleUnderscoreRE = regexp.MustCompile(`__+|\s+_\s+`)
)

var noiseTokens = map[string]struct{}{
	"retail":    {},
	"ebook":     {},
	"e-book":    {},
	"epub":      {},
	"pdf":       {},
	"mobi":      {},
	"azw":       {},
	"azw3":      {},
	"fb2":       {},
	"djvu":      {},
	"ocr":       {},
	"calibre":   {},
	"converted": {},
}

// 这些目录名太泛，不能当作作者提示。
var genericDirs = map[string]struct{}{
	"books":     {},
	"ebooks":    {},
	"e-books":   {},
	"book":      {},
	"downloads": {},
	"download":  {},
	"library":   {},
	"new":       {},
	"misc":      {},
	"unsorted":  {},
	"inbox":     {},
	"tmp":       {},
	"temp":      {},
	"scans":     {},
	"epub":      {},
	"pdf":       {},
}

// splitRule 是按优先级尝试的“作者/标题”分隔规则；返回分隔符的位置区间。
type splitRule func(s string) (start, end int, ok bool)

var splitRules = []splitRule{
	regexpRule(spacedDashRE),
	regexpRule(doubleUnderscoreRE),
	singleRule("–", false),
	singleRule("-", false),
	singleRule("_", true),
}

func regexpRule(re *regexp.Regexp) splitRule {
	return func(s string) (int, int, bool) {
		loc := re.FindStringIndex(s)
		if loc == nil {
			return 0, 0, false
		}
		return loc[0], loc[1], true
	}
}

// singleRule 只在分隔符恰好出现一次时生效；noSpaces=true 时还要求整串不含空格。
func singleRule(sep string, noSpaces bool) splitRule {
	return func(s string) (int, int, bool) {
		if strings.Count(s, sep) != 1 {
			return 0, 0, false
		}
		if noSpaces && strings.ContainsAny(s, " \t") {
			return 0, 0, false
		}
		i := strings.Index(s, sep)
		return i, i + len(sep), true
	}
}

// Extract 从文件名与目录提示中推断 QuerySeed。
//
// 规则：
// - 去扩展名、去噪音（括号组、发布标签、序号前缀）
// - 按优先级尝试分隔符拆出 "author - title"；两侧都不“平凡”才接受
// - 否则整串作为 title，author 缺失
// - hints（由近及远的目录名）只在文件名没给出作者时用来补作者
func Extract(filename string, hints []string) domain.QuerySeed {
	raw := strings.TrimSpace(filepath.Base(filename))
	seed := domain.QuerySeed{RawFilename: raw}

	name := norm.NFC.String(stripExt(raw))
	name = strings.TrimSpace(stripBrackets(name))
	if rest := numPrefixRE.ReplaceAllString(name, ""); strings.TrimSpace(rest) != "" {
		name = rest
	}
	name = strings.TrimSpace(name)

	for _, rule := range splitRules {
		start, end, ok := rule(name)
		if !ok {
			continue
		}
		author := clean(name[:start])
		title := clean(name[end:])
		if nonTrivial(author) && nonTrivial(title) {
			seed.Author = author
			seed.Title = title
			return seed
		}
		// 一旦命中更高优先级的分隔符但拆分不成立，就不再尝试更弱的规则。
		break
	}

	seed.Title = clean(name)
	if seed.Title == "" {
		seed.Title = raw
	}
	seed.Author = authorFromHints(hints, seed.Title)
	return seed
}

// Clean 把一段文件名片段规范化为可读文本（供目录提示等复用）。
func Clean(s string) string { return clean(norm.NFC.String(s)) }

func stripExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) > 6 {
		return name
	}
	for _, r := range ext[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return name
		}
	}
	base := strings.TrimSuffix(name, ext)
	if strings.TrimSpace(base) == "" {
		return name
	}
	return base
}

func stripBrackets(s string) string {
	s = bracketRE.ReplaceAllString(s, " ")
	return parenRE.ReplaceAllStringFunc(s, func(m string) string {
		inner := strings.TrimSpace(m[1 : len(m)-1])
		if inner == "" || yearRE.MatchString(inner) || isNoise(inner) {
			return " "
		}
		return " " + inner + " "
	})
}

func clean(s string) string {
	s = strings.NewReplacer("_", " ", ".", " ").Replace(s)
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if isNoise(f) {
			continue
		}
		out = append(out, f)
	}
	return strings.TrimFunc(strings.Join(out, " "), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("-–—,;:+", r)
	})
}

func isNoise(tok string) bool {
	low := strings.ToLower(strings.TrimSpace(tok))
	if _, ok := noiseTokens[low]; ok {
		return true
	}
	return versionRE.MatchString(low)
}

// nonTrivial：至少 2 个词，或至少 3 个字符。
func nonTrivial(s string) bool {
	if len(strings.Fields(s)) >= 2 {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= 3
}

func authorFromHints(hints []string, title string) string {
	for _, h := range hints {
		c := Clean(h)
		if !nonTrivial(c) {
			continue
		}
		if _, ok := genericDirs[strings.ToLower(c)]; ok {
			continue
		}
		if strings.EqualFold(c, title) {
			continue
		}
		return c
	}
	return ""
}
