package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusUnmatched = "unmatched"
)

const (
	FileStatusPlanned    = "planned"
	FileStatusMoved      = "moved"
	FileStatusUntouched  = "untouched"
	FileStatusRolledBack = "rolled_back"
	FileStatusFailed     = "failed"
)

const (
	ErrCodeUnresolved        = "unresolved"
	ErrCodeResolveFailed     = "resolve_failed"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeMoveFailed        = "move_failed"
	ErrCodeLocked            = "locked"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Unmatched int `json:"unmatched"`
}

// ItemResult 是单个输入文件的结果。File 为空的条目是合成项（配置错误/锁冲突等）。
type ItemResult struct {
	File string `json:"file"`
	Dst  string `json:"dst"`

	SeedTitle  string `json:"seed_title"`
	SeedAuthor string `json:"seed_author"`

	Source     string  `json:"source"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Identifier string  `json:"identifier"`
	URL        string  `json:"url"`
	Score      float64 `json:"score"`

	Status     string `json:"status"`
	FileStatus string `json:"file_status"`
	ErrorCode  string `json:"error_code"`
	ErrorMsg   string `json:"error_msg"`

	PoolSize int             `json:"pool_size"`
	Attempts []SourceAttempt `json:"attempts"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 file 字典序；file=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].File
		b := r.Items[j].File
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusFailed:
			s.Failed++
		case StatusUnmatched:
			s.Unmatched++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	return json.Marshal(a)
}
