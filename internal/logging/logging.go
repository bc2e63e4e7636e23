// Package logging 构造全局使用的 slog.Logger。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options 描述 logger 的构造参数。
type Options struct {
	// Level: debug/info/warn/error，空串为 info。
	Level string
	// Format: text/json，空串为 text。
	Format string
	// Writer 为空时写 stderr（stdout 留给报告输出）。
	Writer io.Writer
}

func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text", "console":
		return slog.New(slog.NewTextHandler(w, ho)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, ho)), nil
	default:
		return nil, fmt.Errorf("log format: 不支持的取值 %q", opts.Format)
	}
}

// ParseLevel 解析日志级别（大小写不敏感）。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level: 不支持的取值 %q", s)
	}
}

// LevelForVerbosity 把 -v 次数映射为级别：0=warn，1=info，>=2=debug。
func LevelForVerbosity(n int) string {
	switch {
	case n <= 0:
		return "warn"
	case n == 1:
		return "info"
	default:
		return "debug"
	}
}

// Discard 返回丢弃全部输出的 logger（测试与库调用方未注入 logger 时使用）。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard 在 l 为空时返回 Discard()。
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
