package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/EBMC/internal/dispatch"
	"github.com/John-Robertt/EBMC/internal/domain"
	"github.com/John-Robertt/EBMC/internal/infra/httpx"
	"github.com/John-Robertt/EBMC/internal/logging"
	"github.com/John-Robertt/EBMC/internal/match"
	"github.com/John-Robertt/EBMC/internal/resolve"
	"github.com/John-Robertt/EBMC/internal/source"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 ebmc.toml。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = domain.ErrCodeConfigMissingPath
)

const (
	// FileName 是配置文件名（位于书库根目录或 cwd）。
	FileName = "ebmc.toml"
	// EnvFileName 是可选的环境变量文件（位于 cwd）。
	EnvFileName = ".env"

	EnvProxyURL  = "EBMC_PROXY_URL"
	EnvSearchURL = "EBMC_SEARCH_URL"
)

const (
	DefaultConcurrency = 4
	maxConcurrency     = 32
	maxResultsPerSrc   = 10
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply=true。
type CLIArgs struct {
	Path string

	Apply    bool
	ApplySet bool

	Threshold    float64
	ThresholdSet bool

	Concurrency    int
	ConcurrencySet bool

	LogLevel    string
	LogLevelSet bool

	LogFormat    string
	LogFormatSet bool
}

// FileConfig 对应 ebmc.toml 的解析结构。未知字段忽略。
type FileConfig struct {
	Path        string `toml:"path"`
	Apply       *bool  `toml:"apply"`
	Concurrency int    `toml:"concurrency"`

	Threshold    *float64 `toml:"threshold"`
	TitleWeight  *float64 `toml:"title_weight"`
	AuthorWeight *float64 `toml:"author_weight"`

	// 时长使用 Go duration 字符串，例如 "10s"、"1m30s"。
	AdapterTimeout string `toml:"adapter_timeout"`
	Deadline       string `toml:"deadline"`

	Priority         []string `toml:"priority"`
	Sources          []string `toml:"sources"`
	ResultsPerSource int      `toml:"results_per_source"`

	PathHints bool  `toml:"path_hints"`
	WriteOPF  *bool `toml:"write_opf"`

	Proxy         *ProxyConfig `toml:"proxy"`
	SearchURL     string       `toml:"search_url"`
	RatePerSecond *float64     `toml:"rate_per_second"`

	ExcludeDirs []string `toml:"exclude_dirs"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

type ProxyConfig struct {
	URL string `toml:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string
	// ConfigFile 是实际读取到的配置文件（不存在时为空）。
	ConfigFile string

	Apply       bool
	Concurrency int

	Threshold      float64
	TitleWeight    float64
	AuthorWeight   float64
	AdapterTimeout time.Duration
	Deadline       time.Duration
	Priority       []domain.SourceName

	// Sources 是启用的 source（按此顺序注册）。
	Sources          []domain.SourceName
	ResultsPerSource int

	PathHints bool
	WriteOPF  bool

	ProxyURL      string
	SearchURL     string
	RatePerSecond float64

	ExcludeDirs []string

	LogLevel  string
	LogFormat string
}

// Policy 返回 matcher 使用的策略。
func (e EffectiveConfig) Policy() match.Policy {
	return match.Policy{
		Threshold:    e.Threshold,
		TitleWeight:  e.TitleWeight,
		AuthorWeight: e.AuthorWeight,
		Priority:     append([]domain.SourceName(nil), e.Priority...),
	}
}

// ResolveConfig 返回核心解析流程消费的配置。
func (e EffectiveConfig) ResolveConfig() resolve.Config {
	return resolve.Config{
		Policy:         e.Policy(),
		AdapterTimeout: e.AdapterTimeout,
		Deadline:       e.Deadline,
		PathHints:      e.PathHints,
	}
}

// HTTPOptions 返回抓取用 HTTP client 的网络策略。
func (e EffectiveConfig) HTTPOptions() httpx.Options {
	return httpx.Options{
		ProxyURL:      e.ProxyURL,
		RatePerSecond: e.RatePerSecond,
		Burst:         e.InFlight(),
		Timeout:       e.AdapterTimeout,
	}
}

// InFlight 是同一时刻最多在途的检索请求数：每个并发文件对每个 source 各搜索一次。
// 所有 source 都经同一个搜索 host，因此它也是该 host 令牌桶需要的容量。
func (e EffectiveConfig) InFlight() int {
	n := len(e.Sources)
	if n == 0 {
		n = len(domain.DefaultPriority)
	}
	c := e.Concurrency
	if c < 1 {
		c = 1
	}
	return c * n
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件与环境变量，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/ebmc.toml（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/ebmc.toml（必选），且其中必须包含 path
// 3) 环境变量：进程环境 > <cwd>/.env（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	env, err := LoadEnv(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, EnvFileName), Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/ebmc.toml。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)
		fc, exists, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		eff, err := merge(absPath, cli, env, fc, cfgPath)
		if err == nil && exists {
			eff.ConfigFile = cfgPath
		}
		return eff, err
	}

	// CLI 没给 path：必须读取 <cwd>/ebmc.toml，且其中必须包含 path。
	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	eff, err := merge(absCleanFrom(cwdAbs, fc.Path), cli, env, fc, cfgPath)
	if err == nil {
		eff.ConfigFile = cfgPath
	}
	return eff, err
}

// LoadEnv 读取 <dir>/.env（可选），再用进程环境覆盖同名键。只返回 EBMC_ 前缀的键。
func LoadEnv(dir string) (map[string]string, error) {
	out := map[string]string{}
	p := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(p); err == nil {
		m, err := godotenv.Read(p)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			if strings.HasPrefix(k, "EBMC_") {
				out[k] = v
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	for _, k := range []string{EnvProxyURL, EnvSearchURL} {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func merge(absPath string, cli CLIArgs, env map[string]string, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	concurrency = clamp(concurrency, 1, maxConcurrency)

	def := match.DefaultPolicy()
	pol := match.Policy{
		Threshold:    pickFloat(fc.Threshold, def.Threshold),
		TitleWeight:  pickFloat(fc.TitleWeight, def.TitleWeight),
		AuthorWeight: pickFloat(fc.AuthorWeight, def.AuthorWeight),
		Priority:     def.Priority,
	}
	if cli.ThresholdSet {
		pol.Threshold = cli.Threshold
	}
	if len(fc.Priority) > 0 {
		p, err := parseSources(fc.Priority)
		if err != nil {
			return invalid(fmt.Errorf("priority：%w", err))
		}
		pol.Priority = p
	}
	if err := pol.Validate(); err != nil {
		return invalid(err)
	}

	adapterTimeout, err := parseDuration("adapter_timeout", fc.AdapterTimeout, dispatch.DefaultAdapterTimeout)
	if err != nil {
		return invalid(err)
	}
	deadline, err := parseDuration("deadline", fc.Deadline, dispatch.DefaultDeadline)
	if err != nil {
		return invalid(err)
	}

	sources := append([]domain.SourceName(nil), domain.DefaultPriority...)
	if len(fc.Sources) > 0 {
		sources, err = parseSources(fc.Sources)
		if err != nil {
			return invalid(fmt.Errorf("sources：%w", err))
		}
	}

	results := fc.ResultsPerSource
	if results == 0 {
		results = source.DefaultResultsPerSource
	}
	results = clamp(results, 1, maxResultsPerSrc)

	writeOPF := true
	if fc.WriteOPF != nil {
		writeOPF = *fc.WriteOPF
	}

	// proxy / search_url：环境变量 > config
	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if v, ok := env[EnvProxyURL]; ok {
		proxyURL = strings.TrimSpace(v)
	}
	if proxyURL != "" {
		if err := validateHTTPURL(proxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}

	searchURL := strings.TrimSpace(fc.SearchURL)
	if v, ok := env[EnvSearchURL]; ok {
		searchURL = strings.TrimSpace(v)
	}
	if searchURL != "" {
		if err := validateHTTPURL(searchURL); err != nil {
			return invalid(fmt.Errorf("search_url 无效：%w", err))
		}
	}

	ratePerSecond := pickFloat(fc.RatePerSecond, defaultRate(concurrency*len(sources), adapterTimeout))
	if ratePerSecond < 0 {
		return invalid(fmt.Errorf("rate_per_second 不能为负数：%v", ratePerSecond))
	}

	logLevel := fc.LogLevel
	if cli.LogLevelSet {
		logLevel = cli.LogLevel
	}
	if _, err := logging.ParseLevel(logLevel); err != nil {
		return invalid(err)
	}
	logFormat := fc.LogFormat
	if cli.LogFormatSet {
		logFormat = cli.LogFormat
	}
	switch strings.ToLower(strings.TrimSpace(logFormat)) {
	case "", "text", "json":
	default:
		return invalid(fmt.Errorf("log_format 只能是 text 或 json，实际是 %q", logFormat))
	}

	return EffectiveConfig{
		Path:             absPath,
		Apply:            apply,
		Concurrency:      concurrency,
		Threshold:        pol.Threshold,
		TitleWeight:      pol.TitleWeight,
		AuthorWeight:     pol.AuthorWeight,
		AdapterTimeout:   adapterTimeout,
		Deadline:         deadline,
		Priority:         pol.Priority,
		Sources:          sources,
		ResultsPerSource: results,
		PathHints:        fc.PathHints,
		WriteOPF:         writeOPF,
		ProxyURL:         proxyURL,
		SearchURL:        searchURL,
		RatePerSecond:    ratePerSecond,
		ExcludeDirs:      append([]string(nil), fc.ExcludeDirs...),
		LogLevel:         strings.ToLower(strings.TrimSpace(logLevel)),
		LogFormat:        strings.ToLower(strings.TrimSpace(logFormat)),
	}, nil
}

func parseSources(in []string) ([]domain.SourceName, error) {
	out := make([]domain.SourceName, 0, len(in))
	seen := map[domain.SourceName]struct{}{}
	for _, s := range in {
		n, err := domain.ParseSourceName(s)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			return nil, fmt.Errorf("重复的 source：%q", n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s 无效：%w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须为正数，实际 %s", field, s)
	}
	return d, nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("必须是 http/https 完整 URL：%q", s)
	}
	return nil
}

// defaultRate 保证一整轮排队的检索请求在半个 adapter_timeout 内拿到令牌，
// 且不低于 httpx.DefaultRatePerSecond。
func defaultRate(inflight int, adapterTimeout time.Duration) float64 {
	r := httpx.DefaultRatePerSecond
	if adapterTimeout <= 0 {
		return r
	}
	if need := 2 * float64(inflight) / adapterTimeout.Seconds(); need > r {
		r = need
	}
	return r
}

func pickFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
