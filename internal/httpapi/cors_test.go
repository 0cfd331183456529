package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"share_runner/internal/config"
)

func TestCorsPolicy_AllowOrigin(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.CorsConfig
		origin string
		want   string
	}{
		{"listed", config.CorsConfig{AllowOrigins: []string{"http://UI.local"}}, "http://ui.local", "http://ui.local"},
		{"unlisted", config.CorsConfig{AllowOrigins: []string{"http://ui.local"}}, "http://evil.local", ""},
		{"wildcard", config.CorsConfig{AllowOrigins: []string{"*"}}, "http://any.local", "*"},
		{"wildcard with credentials echoes", config.CorsConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}, "http://any.local", "http://any.local"},
		{"no origin", config.CorsConfig{AllowOrigins: []string{"*"}}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newCorsPolicy(tt.cfg).allowOrigin(tt.origin); got != tt.want {
				t.Fatalf("allowOrigin(%q) = %q, want %q", tt.origin, got, tt.want)
			}
		})
	}
}

func TestCorsMiddleware_RejectsUnlistedPreflight(t *testing.T) {
	var reached bool
	h := corsMiddleware(config.CorsConfig{AllowOrigins: []string{"http://ui.local"}}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("code = %d headers = %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !reached || rec.Code != http.StatusOK || rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("code = %d reached = %v headers = %v", rec.Code, reached, rec.Header())
	}
}
