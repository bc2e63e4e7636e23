package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/EBMC/internal/app/run"
	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/infra/cache"
	"github.com/John-Robertt/EBMC/internal/source/websearch"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行（在线检索单个文件可能要十几秒）
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers   int
	total     int
	done      int
	ok        int
	fail      int
	unmatched int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不建目录/不写入/不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] EBMC run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  sources: %s\n", sourceList(eff.Sources))
	fmt.Fprintf(p.w, "  threshold: %.2f (title=%.2f author=%.2f)\n", eff.Threshold, eff.TitleWeight, eff.AuthorWeight)
	fmt.Fprintf(p.w, "  timeout: source=%s deadline=%s\n", eff.AdapterTimeout, eff.Deadline)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  search: %s\n", searchURL(eff.SearchURL))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  path_hints: %s  write_opf: %s\n", onOff(eff.PathHints), onOff(eff.WriteOPF))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 found_on_*/, cache/\n", formatStringListJSON(eff.ExcludeDirs))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", filepath.Join(eff.Path, "found_on_<source>"))
	if eff.Apply {
		fmt.Fprintf(p.w, "  report: %s\n", cache.New(eff.Path, true).ReportPath())
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case run.PhaseScan:
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case run.PhaseResolve:
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "检索: workers=%d total_items=%d sources=%d\n\n",
			p.workers, p.total, intField(fields, "sources"),
		)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case run.PhaseOrganize:
		fmt.Fprintf(p.w, "\n整理: matched=%d planned=%d moved=%d failed=%d (%s)\n",
			intField(fields, "matched"),
			intField(fields, "planned"),
			intField(fields, "moved"),
			intField(fields, "failed"),
			formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, file string, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK source=%s score=%.2f 《%s》%s%s (%s)\n",
			idx, total, file, res.Source, res.Score, truncate(res.Title, 60),
			authorNote(res.Author), degradedNote(res.Attempts), formatShortDuration(dur),
		)
	case domain.StatusUnmatched:
		p.unmatched++
		fmt.Fprintf(p.w, "[%d/%d] %s UNMATCHED pool=%d best=%.2f%s (%s)\n",
			idx, total, file, res.PoolSize, res.Score, degradedNote(res.Attempts), formatShortDuration(dur),
		)
	default:
		p.fail++
		chain := formatAttemptChain(res.Attempts, false, -1)
		if chain != "" {
			chain = " attempts=" + chain
		}
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s%s (%s)\n",
			idx, total, file, res.ErrorCode, truncate(res.ErrorMsg, 160), chain, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, unmatched, active int, activeFiles []string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printProgressLocked(done, total, ok, fail, unmatched, active, elapsed)
	if len(activeFiles) > 0 {
		fmt.Fprintf(p.w, "  active: %s\n", truncate(strings.Join(activeFiles, ", "), 160))
	}
}

func (p *progressUI) printProgressLocked(done, total, ok, fail, unmatched, active int, elapsed time.Duration) {
	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d unmatched=%d active=%d elapsed=%s\n",
		done, total, ok, fail, unmatched, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.done; remain < active {
						active = remain
					}
					p.printProgressLocked(p.done, p.total, p.ok, p.fail, p.unmatched, active, time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func sourceList(xs []domain.SourceName) string {
	if len(xs) == 0 {
		xs = domain.DefaultPriority
	}
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		parts = append(parts, x.Display())
	}
	return strings.Join(parts, ", ")
}

func searchURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return websearch.DefaultBaseURL
	}
	return truncate(raw, 120)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func authorNote(author string) string {
	if strings.TrimSpace(author) == "" {
		return ""
	}
	return " " + truncate(author, 40)
}

// degradedNote 只展示失败的 source；全部正常时为空。
func degradedNote(attempts []domain.SourceAttempt) string {
	chain := formatAttemptChain(attempts, true, 3)
	if chain == "" {
		return ""
	}
	return " degraded(" + chain + ")"
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
