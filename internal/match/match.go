// Package match 把一池子来源各异的候选结果收敛为单一判定：Matched 或 Unresolved。
package match

import (
	"errors"
	"fmt"
	"sort"

	"github.com/John-Robertt/EBMC/internal/domain"
)

const (
	DefaultThreshold    = 0.80
	DefaultTitleWeight  = 0.7
	DefaultAuthorWeight = 0.3
)

// Policy 是判定策略。Threshold 是固定常量，不随候选池变化（硬阈值，不是相对最优）。
type Policy struct {
	Threshold    float64
	TitleWeight  float64
	AuthorWeight float64

	// Priority 决定精确同分时的胜者：越靠前越优先。
	Priority []domain.SourceName
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:    DefaultThreshold,
		TitleWeight:  DefaultTitleWeight,
		AuthorWeight: DefaultAuthorWeight,
		Priority:     append([]domain.SourceName(nil), domain.DefaultPriority...),
	}
}

// Validate 检查策略本身是否可用（不合法的策略属于内部故障，而不是匹配结果）。
func (p Policy) Validate() error {
	if !(p.Threshold > 0 && p.Threshold <= 1) {
		return fmt.Errorf("threshold 必须在 (0, 1] 内，实际 %v", p.Threshold)
	}
	if p.TitleWeight < 0 || p.AuthorWeight < 0 {
		return errors.New("title/author 权重不能为负")
	}
	if p.TitleWeight+p.AuthorWeight <= 0 {
		return errors.New("title/author 权重之和必须大于 0")
	}
	if p.TitleWeight < p.AuthorWeight {
		return fmt.Errorf("title 权重（%v）不能小于 author 权重（%v）", p.TitleWeight, p.AuthorWeight)
	}
	if len(p.Priority) == 0 {
		return errors.New("priority 不能为空")
	}
	seen := make(map[domain.SourceName]struct{}, len(p.Priority))
	for _, n := range p.Priority {
		if _, err := domain.ParseSourceName(string(n)); err != nil {
			return fmt.Errorf("priority 非法：%w", err)
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("priority 重复：%q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Decision 是 Match 的结果。Ranked 按最终排序（最好在前），Matched=false 时 Winner 仅供解释。
type Decision struct {
	Matched bool
	Winner  domain.ScoredCandidate
	Ranked  []domain.ScoredCandidate
}

// Best 返回排名第一的候选（池为空时返回 nil）。
func (d Decision) Best() *domain.ScoredCandidate {
	if len(d.Ranked) == 0 {
		return nil
	}
	b := d.Ranked[0]
	return &b
}

// Score 对单个候选打分。
//
// author 只有在 seed 与 candidate 两侧都有时才参与组合；
// 缺失的一侧既不加分也不扣分，Combined 直接等于 TitleScore。
func Score(seed domain.QuerySeed, c domain.Candidate, p Policy) domain.ScoredCandidate {
	sc := domain.ScoredCandidate{Candidate: c}
	sc.TitleScore = Similarity(seed.Title, c.Title)

	if seed.HasAuthor() && Normalize(c.Author) != "" {
		sc.AuthorKnown = true
		sc.AuthorScore = Similarity(seed.Author, c.Author)
		sc.Combined = (p.TitleWeight*sc.TitleScore + p.AuthorWeight*sc.AuthorScore) / (p.TitleWeight + p.AuthorWeight)
	} else {
		sc.Combined = sc.TitleScore
	}
	return sc
}

// Rank 对候选池打分并排序。排序只依赖分数与显式优先级，与输入顺序无关。
func Rank(seed domain.QuerySeed, pool []domain.Candidate, p Policy) []domain.ScoredCandidate {
	ranked := make([]domain.ScoredCandidate, 0, len(pool))
	for _, c := range pool {
		ranked = append(ranked, Score(seed, c, p))
	}

	prio := make(map[domain.SourceName]int, len(p.Priority))
	for i, n := range p.Priority {
		prio[n] = i
	}
	rank := func(n domain.SourceName) int {
		if i, ok := prio[n]; ok {
			return i
		}
		return len(prio)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if ra, rb := rank(a.Source), rank(b.Source); ra != rb {
			return ra < rb
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Identifier < b.Identifier
	})
	return ranked
}

// Match 选出最高分候选，并用硬阈值决定是否接受。空池直接 Unresolved。
func Match(seed domain.QuerySeed, pool []domain.Candidate, p Policy) Decision {
	ranked := Rank(seed, pool, p)
	if len(ranked) == 0 {
		return Decision{}
	}
	w := ranked[0]
	return Decision{
		Matched: w.Combined >= p.Threshold,
		Winner:  w,
		Ranked:  ranked,
	}
}
