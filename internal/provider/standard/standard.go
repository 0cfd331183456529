package standard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"share_runner/internal/config"
	"share_runner/internal/logbus"
	"share_runner/internal/model"
	"share_runner/internal/provider"
	"share_runner/internal/utils"
)

type StandardProvider struct {
	cfg      config.ProviderConfig
	proxyCfg config.ProxyConfig
	bus      *logbus.Bus
	limiter  *rate.Limiter
}

func New(cfg config.ProviderConfig, proxyCfg config.ProxyConfig, limits config.LimitsConfig, bus *logbus.Bus) *StandardProvider {
	qps := limits.GlobalQPS
	if qps <= 0 {
		qps = 5
	}
	burst := limits.GlobalBurst
	if burst <= 0 {
		burst = 10
	}
	return &StandardProvider{
		cfg:      cfg,
		proxyCfg: proxyCfg,
		bus:      bus,
		limiter:  rate.NewLimiter(rate.Limit(qps), burst),
	}
}

func (p *StandardProvider) Name() string { return "standard" }

type messageResp struct {
	Message string `json:"message"`
}

type missionsResp struct {
	Message string `json:"message,omitempty"`
	Data    struct {
		Missions []model.Mission `json:"missions"`
	} `json:"data"`
}

type shareResp struct {
	Message string `json:"message"`
	Data    struct {
		Balances struct {
			Point float64 `json:"POINT"`
		} `json:"balances"`
	} `json:"data"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResp struct {
	Message string `json:"message,omitempty"`
	Data    struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

func (p *StandardProvider) CheckMissions(ctx context.Context, account model.Account) ([]model.Mission, error) {
	var out missionsResp
	if err := p.do(ctx, account.Token, account.Proxy, resty.MethodGet, "/missions", nil, &out); err != nil {
		return nil, err
	}
	return out.Data.Missions, nil
}

func (p *StandardProvider) CompleteMission(ctx context.Context, account model.Account, missionID string) (model.CompleteResult, error) {
	if strings.TrimSpace(missionID) == "" {
		return model.CompleteResult{}, errors.New("missionId is required")
	}
	var out messageResp
	path := "/missions/" + url.PathEscape(missionID) + "/complete"
	if err := p.do(ctx, account.Token, account.Proxy, resty.MethodGet, path, nil, &out); err != nil {
		return model.CompleteResult{}, err
	}
	return model.CompleteResult{Message: out.Message}, nil
}

func (p *StandardProvider) ShareBandwidth(ctx context.Context, account model.Account, report model.ShareReport) (model.ShareResult, error) {
	var out shareResp
	if err := p.do(ctx, account.Token, account.Proxy, resty.MethodPost, "/bandwidth/share", report, &out); err != nil {
		return model.ShareResult{}, err
	}
	return model.ShareResult{Message: out.Message, Points: out.Data.Balances.Point}, nil
}

func (p *StandardProvider) Login(ctx context.Context, cred model.Credential, proxy string) (string, error) {
	var out loginResp
	body := loginReq{Username: cred.Email, Password: cred.Password}
	if err := p.do(ctx, "", proxy, resty.MethodPost, "/users/login", body, &out); err != nil {
		return "", err
	}
	token := strings.TrimSpace(out.Data.AccessToken)
	if token == "" {
		msg := out.Message
		if msg == "" {
			msg = "login response missing accessToken"
		}
		return "", errors.New(msg)
	}
	return token, nil
}

func (p *StandardProvider) do(ctx context.Context, token, proxy, method, path string, body, result any) error {
	op := method + " " + path
	if err := p.limiter.Wait(ctx); err != nil {
		return &provider.NetworkError{Op: op, Err: err}
	}

	req := p.newClient(token, proxy).R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return &provider.NetworkError{Op: op, Err: err}
	}
	if !resp.IsSuccess() {
		return &provider.HTTPError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       truncate(strings.TrimSpace(resp.String()), 200),
		}
	}
	if result == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (p *StandardProvider) newClient(token, proxy string) *resty.Client {
	client := resty.New().
		SetBaseURL(p.cfg.BaseURL).
		SetTimeout(p.cfg.Timeout()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", utils.NormalizeUserAgent(p.cfg.UserAgent))

	if proxy == "" {
		proxy = p.proxyCfg.Global
	}
	if proxy != "" {
		client.SetProxy(proxy)
	}
	if token != "" {
		client.SetAuthToken(token)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if p.bus != nil {
			p.bus.Log("debug", "http request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})
	return client
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
