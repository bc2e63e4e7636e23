package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// 详情页/搜索页的上限；超过即视为异常页面，避免把整个大文件读进内存。
const maxPageBytes = 4 << 20

// FetchHTML 以 GET 抓取页面；非 2xx 返回 *HTTPStatusError。
func FetchHTML(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// ResolveURL 把 href 解析为绝对 URL（"//host/..." 补 https）。
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

// OnDomain 判断 rawURL 的 host 是否是 domain 或其子域名。
func OnDomain(rawURL, domain string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(strings.TrimSpace(domain))
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// NormSpace 折叠空白并去掉首尾空白。
func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
