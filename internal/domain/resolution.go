package domain

import "time"

// Outcome 是一次解析的终态；三者互斥。
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeFailed     Outcome = "failed"
)

// SourceAttempt 记录一次 source 调用的元数据（错误在 dispatcher 边界被吸收，只保留这里的描述）。
type SourceAttempt struct {
	Source     SourceName    `json:"source"`
	Candidates int           `json:"candidates"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	ErrorMsg   string        `json:"error_msg,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// OK 表示该 source 正常返回（结果可以为空）。
func (a SourceAttempt) OK() bool { return a.ErrorKind == "" }

// Resolution 是单个文件的最终解析结果，也是交给整理阶段的唯一实体。
//
// 只能通过 Matched / Unresolved / Failed 构造，保证 Outcome 恰好是一种。
type Resolution struct {
	Seed    QuerySeed
	Outcome Outcome

	// Match 仅在 OutcomeMatched 时非空。
	Match *ScoredCandidate
	// Reason 仅在 OutcomeFailed 时非空。
	Reason string

	// Best 是未过阈值时的最高分候选，仅用于 report 解释，永远不会被当作匹配。
	Best     *ScoredCandidate
	PoolSize int
	Attempts []SourceAttempt
}

func Matched(seed QuerySeed, sc ScoredCandidate) Resolution {
	m := sc
	return Resolution{Seed: seed, Outcome: OutcomeMatched, Match: &m}
}

func Unresolved(seed QuerySeed, best *ScoredCandidate) Resolution {
	r := Resolution{Seed: seed, Outcome: OutcomeUnresolved}
	if best != nil {
		b := *best
		r.Best = &b
	}
	return r
}

func Failed(seed QuerySeed, reason string) Resolution {
	if reason == "" {
		reason = "unknown failure"
	}
	return Resolution{Seed: seed, Outcome: OutcomeFailed, Reason: reason}
}

func (r Resolution) IsMatched() bool { return r.Outcome == OutcomeMatched && r.Match != nil }
