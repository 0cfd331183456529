package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "SHARE_RUNNER_CONFIG"
	EnvBaseURL    = "SHARE_RUNNER_BASE_URL"
	EnvHTTPAddr   = "SHARE_RUNNER_HTTP_ADDR"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Files    FilesConfig    `yaml:"files"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Limits   LimitsConfig   `yaml:"limits"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Provider ProviderConfig `yaml:"provider"`
	Auth     AuthConfig     `yaml:"auth"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	// Addr 为空时不启动状态接口。
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	// SQLitePath 为空时不落库。
	SQLitePath string `yaml:"sqlitePath"`
}

type FilesConfig struct {
	Tokens      string `yaml:"tokens"`
	Proxies     string `yaml:"proxies"`
	Credentials string `yaml:"credentials"`
}

type ProxyConfig struct {
	Global string `yaml:"global"`
}

type LimitsConfig struct {
	GlobalQPS   float64 `yaml:"globalQPS"`
	GlobalBurst int     `yaml:"globalBurst"`
	// MaxInFlight 同时处理的账号数，默认 1（严格串行）。
	MaxInFlight      int `yaml:"maxInFlight"`
	ShareAttempts    int `yaml:"shareAttempts"`
	ShareRetryWaitMs int `yaml:"shareRetryWaitMs"`
	AccountGapMs     int `yaml:"accountGapMs"`
}

func (c LimitsConfig) ShareRetryWait() time.Duration {
	if c.ShareRetryWaitMs <= 0 {
		return 1 * time.Second
	}
	return time.Duration(c.ShareRetryWaitMs) * time.Millisecond
}

func (c LimitsConfig) AccountGap() time.Duration {
	if c.AccountGapMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.AccountGapMs) * time.Millisecond
}

type ScheduleConfig struct {
	IntervalMs int `yaml:"intervalMs"`
}

func (c ScheduleConfig) Interval() time.Duration {
	if c.IntervalMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.IntervalMs) * time.Millisecond
}

type ProviderConfig struct {
	BaseURL   string `yaml:"baseURL"`
	TimeoutMs int    `yaml:"timeoutMs"`
	UserAgent string `yaml:"userAgent"`
}

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type AuthMode string

const (
	AuthModeLogin   AuthMode = "login"
	AuthModeBrowser AuthMode = "browser"
	AuthModeNone    AuthMode = "none"
)

type AuthConfig struct {
	Mode AuthMode `yaml:"mode"`
	// LoginURL 浏览器登录页地址，仅 browser 模式使用。
	LoginURL string `yaml:"loginURL"`
	// TokenKey 登录成功后 token 所在的 localStorage key。
	TokenKey  string `yaml:"tokenKey"`
	Headless  *bool  `yaml:"headless"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

func (c AuthConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c AuthConfig) IsHeadless() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

type NotifyConfig struct {
	Email EmailConfig `yaml:"email"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Email    string `yaml:"email"`
	AuthCode string `yaml:"authCode"`
	// SummaryWindowMs 合并发送窗口，<=0 表示立即发送。
	SummaryWindowMs int `yaml:"summaryWindowMs"`
}

func (c EmailConfig) SummaryWindow() time.Duration {
	if c.SummaryWindowMs <= 0 {
		return 0
	}
	return time.Duration(c.SummaryWindowMs) * time.Millisecond
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Buffer int    `yaml:"buffer"`
}

// Load 读取 yaml 配置；文件不存在时全部使用默认值。
// 调用前会尝试加载当前目录的 .env，环境变量优先于文件内容。
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path == "" {
		path = "./config.yaml"
	}

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPAddr)); v != "" {
		c.Server.Addr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Files.Tokens == "" {
		c.Files.Tokens = "token.txt"
	}
	if c.Files.Proxies == "" {
		c.Files.Proxies = "proxy.txt"
	}
	if c.Files.Credentials == "" {
		c.Files.Credentials = "account.txt"
	}
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 5
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 10
	}
	if c.Limits.MaxInFlight <= 0 {
		c.Limits.MaxInFlight = 1
	}
	if c.Limits.ShareAttempts <= 0 {
		c.Limits.ShareAttempts = 5
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.example.com"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeLogin
	}
	if c.Auth.TokenKey == "" {
		c.Auth.TokenKey = "token"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Buffer <= 0 {
		c.Log.Buffer = 200
	}
}

func (c Config) validate() error {
	if c.Provider.BaseURL == "" {
		return errors.New("provider.baseURL is required")
	}
	switch c.Auth.Mode {
	case AuthModeLogin, AuthModeNone:
	case AuthModeBrowser:
		if strings.TrimSpace(c.Auth.LoginURL) == "" {
			return errors.New("auth.loginURL is required in browser mode")
		}
	default:
		return errors.New("auth.mode must be one of login, browser, none")
	}
	if c.Notify.Email.Enabled && strings.TrimSpace(c.Notify.Email.Email) == "" {
		return errors.New("notify.email.email is required when enabled")
	}
	return nil
}
