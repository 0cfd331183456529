package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"share_runner/internal/accounts"
	"share_runner/internal/config"
	"share_runner/internal/logbus"
	"share_runner/internal/model"
)

var ErrRefreshDisabled = errors.New("token refresh disabled")

type Refresher interface {
	Refresh(ctx context.Context) error
}

type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// loginFunc 用第 i 条凭据换一个新 token。
type loginFunc func(ctx context.Context, i int, cred model.Credential, proxy string) (string, error)

type tokenWriter struct {
	files config.FilesConfig
	bus   *logbus.Bus
}

// refreshAll 逐个登录；某个凭据登录失败时沿用该行原来的 token，保持行序与代理对应关系不变。
// 失败行没有旧 token 可用时，只写它之前的行，后面的行不能前移。
func (w tokenWriter) refreshAll(ctx context.Context, login loginFunc) error {
	creds, err := accounts.ReadCredentials(w.files.Credentials)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return fmt.Errorf("no credentials in %s", w.files.Credentials)
	}
	old, err := accounts.ReadTokens(w.files.Tokens)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	proxies, err := accounts.ReadProxies(w.files.Proxies)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	rows := make([]string, len(creds))
	isFresh := make([]bool, len(creds))
	for i, cred := range creds {
		if err := ctx.Err(); err != nil {
			return err
		}
		proxy := ""
		if len(proxies) > 0 {
			proxy = proxies[i%len(proxies)]
		}
		tok, err := login(ctx, i, cred, proxy)
		if err != nil {
			if w.bus != nil {
				w.bus.Log("warn", "login failed", map[string]any{
					"account": i + 1,
					"email":   cred.Email,
					"error":   err.Error(),
				})
			}
			if i < len(old) {
				rows[i] = old[i]
			}
			continue
		}
		rows[i] = tok
		isFresh[i] = true
	}

	tokens, fresh := keepLeadingRows(rows, isFresh)
	if len(tokens) < len(rows) && w.bus != nil {
		w.bus.Log("warn", "token file truncated at first row without a token", map[string]any{
			"account": len(tokens) + 1,
			"dropped": len(rows) - len(tokens),
		})
	}
	if fresh == 0 {
		return errors.New("token refresh produced no new token")
	}
	if err := accounts.WriteTokens(w.files.Tokens, tokens); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	if w.bus != nil {
		w.bus.Log("info", "tokens refreshed", map[string]any{
			"fresh": fresh,
			"total": len(tokens),
			"file":  w.files.Tokens,
		})
	}
	return nil
}

// keepLeadingRows 返回第一个空行之前的 token 以及其中新 token 的数量。
func keepLeadingRows(rows []string, isFresh []bool) ([]string, int) {
	fresh := 0
	for i, tok := range rows {
		if tok == "" {
			return rows[:i], fresh
		}
		if isFresh[i] {
			fresh++
		}
	}
	return rows, fresh
}

// New 按 auth.mode 选择实现。
func New(cfg config.Config, login Loginer, bus *logbus.Bus) Refresher {
	switch cfg.Auth.Mode {
	case config.AuthModeBrowser:
		return NewBrowserRefresher(cfg.Auth, cfg.Files, bus)
	case config.AuthModeNone:
		return RefresherFunc(func(context.Context) error {
			if bus != nil {
				bus.Log("warn", "token refresh disabled, update the token file manually", map[string]any{"file": cfg.Files.Tokens})
			}
			return ErrRefreshDisabled
		})
	default:
		return NewLoginRefresher(login, cfg.Files, bus)
	}
}
