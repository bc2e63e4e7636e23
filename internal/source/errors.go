package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/John-Robertt/EBMC/internal/domain"
)

// Kind 是 source 失败的分类。
type Kind string

const (
	KindNetwork     Kind = "network"
	KindParse       Kind = "parse"
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
)

// Error 是 source 阶段的可追溯错误。
// dispatcher 据此把失败记录为 SourceAttempt.ErrorKind，不会继续向上传播。
type Error struct {
	Source domain.SourceName
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source=%s kind=%s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError 构造带明确分类的错误（例如详情页解析失败）。
func NewError(src domain.SourceName, kind Kind, err error) *Error {
	return &Error{Source: src, Kind: kind, Err: err}
}

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BlockedError 表示请求被引导到了“验证/拦截”页面（例如搜索引擎的人机验证）。
// 不尝试绕过，按限流处理。
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

// Classify 把任意错误归类为 *Error。已经是 *Error 的保留原分类（只补 Source）。
func Classify(src domain.SourceName, err error) *Error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		out := *se
		if out.Source == "" {
			out.Source = src
		}
		return &out
	}

	return &Error{Source: src, Kind: kindOf(err), Err: err}
}

// KindOf 返回 err 的分类；nil 返回空串。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return kindOf(err)
}

func kindOf(err error) Kind {
	var be *BlockedError
	if errors.As(err, &be) {
		return KindRateLimited
	}

	var hs *HTTPStatusError
	if errors.As(err, &hs) {
		if hs.StatusCode == http.StatusTooManyRequests {
			return KindRateLimited
		}
		return KindNetwork
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
