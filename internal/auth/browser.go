package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"share_runner/internal/config"
	"share_runner/internal/logbus"
	"share_runner/internal/model"
)

const (
	emailSelector    = `input[type="email"], input[name="email"], input[name="username"]`
	passwordSelector = `input[type="password"]`
	submitSelector   = `button[type="submit"]`
)

// BrowserRefresher 用无头浏览器走登录页，登录成功后从 localStorage 取 token。
// 每个凭据单独启动一个浏览器，走该行对应的代理，登录结束即关闭。
type BrowserRefresher struct {
	mu     sync.Mutex
	cfg    config.AuthConfig
	writer tokenWriter
}

func NewBrowserRefresher(cfg config.AuthConfig, files config.FilesConfig, bus *logbus.Bus) *BrowserRefresher {
	return &BrowserRefresher{cfg: cfg, writer: tokenWriter{files: files, bus: bus}}
}

func (r *BrowserRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.refreshAll(ctx, func(ctx context.Context, _ int, cred model.Credential, proxy string) (string, error) {
		return r.loginWithProxy(ctx, cred, proxy)
	})
}

func (r *BrowserRefresher) loginWithProxy(ctx context.Context, cred model.Credential, proxy string) (string, error) {
	server, user, pass, err := chromeProxy(proxy)
	if err != nil {
		return "", err
	}

	l := launcher.New().Headless(r.cfg.IsHeadless())
	if server != "" {
		l = l.Proxy(server)
	}
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	// Chrome 的 --proxy-server 不接受用户名密码，代理认证走 CDP。
	if user != "" {
		wait := browser.HandleAuth(user, pass)
		go func() { _ = wait() }()
	}
	return r.loginOnce(ctx, browser, cred)
}

// chromeProxy 把代理 URL 拆成 --proxy-server 的值和认证信息。
func chromeProxy(raw string) (server, user, pass string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", "", fmt.Errorf("invalid proxy %q", raw)
	}
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	return u.Scheme + "://" + u.Host, user, pass, nil
}

func (r *BrowserRefresher) loginOnce(ctx context.Context, browser *rod.Browser, cred model.Credential) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()

	incognito, err := browser.Incognito()
	if err != nil {
		return "", err
	}
	defer func() { _ = incognito.Close() }()

	page, err := stealth.Page(incognito)
	if err != nil {
		return "", err
	}
	page = page.Context(ctx)

	if err := page.Navigate(r.cfg.LoginURL); err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", err
	}

	email, err := page.Element(emailSelector)
	if err != nil {
		return "", fmt.Errorf("email input: %w", err)
	}
	if err := email.Input(cred.Email); err != nil {
		return "", err
	}
	password, err := page.Element(passwordSelector)
	if err != nil {
		return "", fmt.Errorf("password input: %w", err)
	}
	if err := password.Input(cred.Password); err != nil {
		return "", err
	}
	submit, err := page.Element(submitSelector)
	if err != nil {
		return "", fmt.Errorf("submit button: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", err
	}

	return waitForToken(ctx, page, r.cfg.TokenKey)
}

func waitForToken(ctx context.Context, page *rod.Page, key string) (string, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		res, err := page.Eval(`(k) => localStorage.getItem(k)`, key)
		if err == nil && res != nil && !res.Value.Nil() {
			if tok := strings.Trim(strings.TrimSpace(res.Value.Str()), `"`); tok != "" {
				return tok, nil
			}
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", errors.New("timed out waiting for token after login")
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
