package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/infra/cache"
	"github.com/John-Robertt/EBMC/internal/source"
)

// emitReport：stdout 为 TTY 时输出人类可读摘要；否则 stdout 必须且仅输出一个 RunReport JSON。
func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if isTTY(stdout) {
		fmt.Fprintln(stdout, summaryLine(rr))
		if rr.Summary.Failed > 0 || rr.Summary.Unmatched > 0 {
			fmt.Fprintln(stderr, problemTable(rr))
		}
		return
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：processed=%d failed=%d unmatched=%d",
		rr.Summary.Processed, rr.Summary.Failed, rr.Summary.Unmatched,
	)
}

// problemTable 列出未匹配/失败的条目，便于用户逐个修复文件名后重跑。
func problemTable(rr domain.RunReport) string {
	rows := make([][]string, 0, len(rr.Items))
	for _, it := range rr.Items {
		if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
			continue
		}
		file := it.File
		if file == "" {
			file = "<run>"
		}
		score := ""
		if it.Score > 0 {
			score = fmt.Sprintf("%.2f", it.Score)
		}
		rows = append(rows, []string{file, it.ErrorCode, score, truncate(it.ErrorMsg, 100)})
	}
	return renderTable(
		[]string{"文件", "错误码", "最高分", "说明"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func reportForError(path string, apply bool, code string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       path,
		DryRun:     !apply,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
			Attempts:  []domain.SourceAttempt{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", cache.New(eff.Path, true).ReportPath())
	}
	fmt.Fprintf(w, "out: %s\n", filepath.Join(eff.Path, "found_on_<source>"))
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// formatAttemptChain 把 source 调用记录压成一行：evrit:ok(1);steimatzky:timeout。
// max<0 表示全部输出。
func formatAttemptChain(attempts []domain.SourceAttempt, onlyFailed bool, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if onlyFailed && a.OK() {
			continue
		}
		s := string(a.Source) + ":"
		if a.OK() {
			s += fmt.Sprintf("ok(%d)", a.Candidates)
		} else {
			s += a.ErrorKind
			if a.ErrorKind == string(source.KindTimeout) && a.ErrorMsg != "" {
				s += "(" + truncate(a.ErrorMsg, 40) + ")"
			}
		}
		parts = append(parts, s)
		if max > 0 && len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}
