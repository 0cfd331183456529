package auth

import (
	"context"
	"sync"

	"share_runner/internal/config"
	"share_runner/internal/logbus"
	"share_runner/internal/model"
)

type Loginer interface {
	Login(ctx context.Context, cred model.Credential, proxy string) (string, error)
}

// LoginRefresher 通过登录接口换取新 token 并写回 token 文件。
type LoginRefresher struct {
	mu     sync.Mutex
	login  Loginer
	writer tokenWriter
}

func NewLoginRefresher(login Loginer, files config.FilesConfig, bus *logbus.Bus) *LoginRefresher {
	return &LoginRefresher{login: login, writer: tokenWriter{files: files, bus: bus}}
}

func (r *LoginRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.refreshAll(ctx, func(ctx context.Context, _ int, cred model.Credential, proxy string) (string, error) {
		return r.login.Login(ctx, cred, proxy)
	})
}
