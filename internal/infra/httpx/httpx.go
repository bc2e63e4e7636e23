package httpx

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout       = 20 * time.Second
	DefaultRatePerSecond = 1.0
	defaultRetryMax      = 2
)

// Options 描述抓取用 HTTP client 的网络策略。
type Options struct {
	// ProxyURL 非空时所有请求走代理，且每请求新连接。
	ProxyURL string
	// RatePerSecond 是每个 host 的令牌桶速率；<=0 表示不限速。
	RatePerSecond float64
	// Burst 是每个 host 的令牌桶容量；<=0 视为 1。
	// 同时在途的请求数不超过 Burst 时，首轮请求无需排队。
	Burst int
	// Timeout 是单请求总超时；<=0 使用 DefaultTimeout。
	Timeout time.Duration
}

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 按 host 限速 + 有界重试”固化为统一策略。
//
// source 只负责“定位页面 + 解析 HTML”，不关心网络策略细节。
// 同一个 Transport 被所有 goroutine 共享，因此限速对整个进程生效。
type Transport struct {
	Base *http.Transport

	ua      *uaPool
	limiter *hostLimiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		// 每次尝试（包括重试）都要拿令牌；ctx 到期时 Wait 直接返回错误。
		if err := t.limiter.wait(req); err != nil {
			return nil, err
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.ua.random())
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewClient 构造用于站点/搜索页面抓取的 HTTP client。
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	disableKeepAlives := false
	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 必须是完整 URL（例如 http://127.0.0.1:7890）")
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		limiter:           newHostLimiter(opts.RatePerSecond, opts.Burst),
		RetryMax:          defaultRetryMax,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// hostLimiter 为每个 host 维护一个令牌桶。
type hostLimiter struct {
	limit rate.Limit
	burst int

	mu     sync.Mutex
	byHost map[string]*rate.Limiter
}

func newHostLimiter(perSecond float64, burst int) *hostLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &hostLimiter{limit: rate.Limit(perSecond), burst: burst, byHost: map[string]*rate.Limiter{}}
}

func (h *hostLimiter) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.byHost[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.byHost[host] = l
	}
	return l
}

func (h *hostLimiter) wait(req *http.Request) error {
	if h == nil || req.URL == nil {
		return nil
	}
	ctx := req.Context()
	if err := h.get(strings.ToLower(req.URL.Hostname())).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// 令牌在 deadline 之前不可得：Wait 提前拒绝，按超时上报。
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
