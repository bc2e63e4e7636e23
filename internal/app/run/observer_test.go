package run

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/EBMC/internal/config"
	"github.com/John-Robertt/EBMC/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, file string, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, file)
}

func (o *recordObserver) OnProgress(done, total, ok, fail, unmatched, active int, activeFiles []string, elapsed time.Duration) {
	// keepalive 由 CLI 触发；这里无需断言。
}

func TestExecute_WithObserver_EmitsPhaseAndItemEvents(t *testing.T) {
	root := t.TempDir()
	writeBook(t, root, "Orwell - 1984.epub")
	writeBook(t, root, "random_scan_0001.pdf")

	obs := &recordObserver{}
	_ = Execute(context.Background(), testEff(root, false), stubAdapters(), WithObserver(obs))

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{PhaseScan, PhaseResolve, PhaseOrganize}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	sort.Strings(obs.items)
	if !reflect.DeepEqual(obs.items, []string{"Orwell - 1984.epub", "random_scan_0001.pdf"}) {
		t.Fatalf("条目事件不符合预期：items=%v", obs.items)
	}
}

func TestExecute_NilObserver_SameItems(t *testing.T) {
	root := t.TempDir()
	writeBook(t, root, "Orwell - 1984.epub")
	writeBook(t, root, "random_scan_0001.pdf")

	cfg := testEff(root, false)
	a := Execute(context.Background(), cfg, stubAdapters())
	b := Execute(context.Background(), cfg, stubAdapters(), WithObserver(nil))

	if !reflect.DeepEqual(stripTimings(a.Items), stripTimings(b.Items)) {
		t.Fatalf("nil observer 不应改变结果：\na=%+v\nb=%+v", a.Items, b.Items)
	}
}

func stripTimings(items []domain.ItemResult) []domain.ItemResult {
	out := make([]domain.ItemResult, len(items))
	for i, it := range items {
		atts := make([]domain.SourceAttempt, len(it.Attempts))
		for j, a := range it.Attempts {
			a.Duration, a.DurationMS = 0, 0
			atts[j] = a
		}
		it.Attempts = atts
		out[i] = it
	}
	return out
}

// syncBuffer 允许多个 worker 并发写日志。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecute_ResolveLogsCarryRunID(t *testing.T) {
	root := t.TempDir()
	writeBook(t, root, "Orwell - 1984.epub")
	writeBook(t, root, "random_scan_0001.pdf")

	var out syncBuffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rr := Execute(context.Background(), testEff(root, false), stubAdapters(), WithLogger(logger))

	resolveMsgs := map[string]bool{"提取检索种子": true, "匹配成功": true, "未达到阈值": true}
	seen := 0
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("日志不是 JSON：%v：%s", err, sc.Text())
		}
		msg, _ := rec["msg"].(string)
		if !resolveMsgs[msg] {
			continue
		}
		seen++
		if rec["run_id"] != rr.RunID {
			t.Fatalf("解析日志 %q 缺少 run_id=%s：%s", msg, rr.RunID, sc.Text())
		}
	}
	// 两个文件各一条种子日志，外加一条匹配成功、一条未达阈值。
	if seen < 4 {
		t.Fatalf("期望至少 4 条解析日志，实际 %d：\n%s", seen, out.String())
	}
}
