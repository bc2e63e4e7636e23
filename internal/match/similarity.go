package match

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize 把文本规范化为用于比较的形态：
// NFKC + case fold，去掉组合附加符（如希伯来文点符），标点视为空白，折叠空白。
func Normalize(s string) string {
	s = folder.String(norm.NFKC.String(s))
	s = norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return norm.NFC.String(strings.TrimSpace(b.String()))
}

// Similarity 计算两段文本的近似相似度，范围 [0,1]。
//
// 算法是 token-set ratio：把两侧的词集合拆成“交集 + 各自剩余”，
// 取 交集/交集+剩余A/交集+剩余B 两两之间编辑距离比值的最大值。
// 以交集为一侧的比值再乘以 覆盖率^(1/4)（覆盖率 = 交集词数 / 较大一侧词数），
// 一个词的子集不会因此拿到满分：1/2 覆盖约 0.84，1/3 覆盖约 0.76。
// 词序与重复词不影响结果；任一侧为空时返回 0。
func Similarity(a, b string) float64 {
	ta := tokenSet(Normalize(a))
	tb := tokenSet(Normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(inter, " ")
	ca := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	cb := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	best := ratio(ca, cb)
	if sect != "" {
		cover := math.Sqrt(math.Sqrt(float64(len(inter)) / float64(max(len(ta), len(tb)))))
		best = max(best, cover*ratio(sect, ca), cover*ratio(sect, cb))
	}
	return best
}

// ratio = 1 - 编辑距离 / 较长串长度（按 rune 计）。
func ratio(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(max(la, lb))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}
