package standard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"share_runner/internal/config"
	"share_runner/internal/model"
	"share_runner/internal/provider"
)

func newTestProvider(t *testing.T, h http.Handler) *StandardProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(
		config.ProviderConfig{BaseURL: srv.URL, TimeoutMs: 2000},
		config.ProxyConfig{},
		config.LimitsConfig{GlobalQPS: 1000, GlobalBurst: 100},
		nil,
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCheckMissions_DecodesAndSendsBearer(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/missions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"missions": []map[string]any{
					{"missionId": "m1", "status": "available"},
					{"missionId": "m2", "status": "done"},
				},
			},
		})
	}))

	missions, err := p.CheckMissions(context.Background(), model.Account{Index: 1, Token: "tok-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(missions) != 2 || missions[0].ID != "m1" || !missions[0].Available() || missions[1].Available() {
		t.Fatalf("missions = %+v", missions)
	}
}

func TestCheckMissions_401IsUnauthorized(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
	}))

	_, err := p.CheckMissions(context.Background(), model.Account{Token: "expired"})
	if !errors.Is(err, provider.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	var httpErr *provider.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %#v", err)
	}
}

func TestShareBandwidth_PostsQualityAndReadsBalance(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bandwidth/share" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Quality int `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Quality != 77 {
			t.Errorf("quality = %d", body.Quality)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "ok",
			"data":    map[string]any{"balances": map[string]any{"POINT": 1234.5}},
		})
	}))

	res, err := p.ShareBandwidth(context.Background(), model.Account{Token: "t"}, model.ShareReport{Quality: 77})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "ok" || res.Points != 1234.5 {
		t.Fatalf("res = %+v", res)
	}
}

func TestShareBandwidth_ServerErrorIsHTTPError(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	_, err := p.ShareBandwidth(context.Background(), model.Account{Token: "t"}, model.ShareReport{Quality: 60})
	var httpErr *provider.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
	if !provider.IsRetryable(err) {
		t.Fatal("5xx should be retryable")
	}
}

func TestCompleteMission_EscapesID(t *testing.T) {
	var hits atomic.Int32
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.EscapedPath() != "/missions/a%2Fb/complete" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "mission completed"})
	}))

	res, err := p.CompleteMission(context.Background(), model.Account{Token: "t"}, "a/b")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "mission completed" || hits.Load() != 1 {
		t.Fatalf("res = %+v hits = %d", res, hits.Load())
	}

	if _, err := p.CompleteMission(context.Background(), model.Account{Token: "t"}, " "); err == nil {
		t.Fatal("expected error for empty mission id")
	}
}

func TestLogin_ReturnsAccessToken(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login should not carry a bearer token")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "a@x.io" || body["password"] != "pw" {
			t.Errorf("body = %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"accessToken": "fresh"}})
	}))

	tok, err := p.Login(context.Background(), model.Credential{Email: "a@x.io", Password: "pw"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "fresh" {
		t.Fatalf("token = %q", tok)
	}
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := New(config.ProviderConfig{BaseURL: base, TimeoutMs: 500}, config.ProxyConfig{}, config.LimitsConfig{GlobalQPS: 100, GlobalBurst: 10}, nil)
	_, err := p.CheckMissions(context.Background(), model.Account{Token: "t"})
	var netErr *provider.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v", err)
	}
}
