package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvHTTPAddr, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.BaseURL != "https://api.example.com" {
		t.Fatalf("baseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Limits.ShareAttempts != 5 {
		t.Fatalf("shareAttempts = %d", cfg.Limits.ShareAttempts)
	}
	if cfg.Limits.MaxInFlight != 1 {
		t.Fatalf("maxInFlight = %d", cfg.Limits.MaxInFlight)
	}
	if got := cfg.Limits.ShareRetryWait(); got != time.Second {
		t.Fatalf("shareRetryWait = %v", got)
	}
	if got := cfg.Limits.AccountGap(); got != time.Minute {
		t.Fatalf("accountGap = %v", got)
	}
	if got := cfg.Schedule.Interval(); got != time.Minute {
		t.Fatalf("interval = %v", got)
	}
	if cfg.Files.Tokens != "token.txt" || cfg.Files.Proxies != "proxy.txt" {
		t.Fatalf("files = %+v", cfg.Files)
	}
	if cfg.Auth.Mode != AuthModeLogin {
		t.Fatalf("auth.mode = %q", cfg.Auth.Mode)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	body := `
provider:
  baseURL: http://127.0.0.1:8080/mock
limits:
  shareAttempts: 3
  accountGapMs: 250
schedule:
  intervalMs: 1500
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvHTTPAddr, ":9911")
	t.Setenv(EnvBaseURL, "")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.BaseURL != "http://127.0.0.1:8080/mock" {
		t.Fatalf("baseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Limits.ShareAttempts != 3 {
		t.Fatalf("shareAttempts = %d", cfg.Limits.ShareAttempts)
	}
	if got := cfg.Limits.AccountGap(); got != 250*time.Millisecond {
		t.Fatalf("accountGap = %v", got)
	}
	if got := cfg.Schedule.Interval(); got != 1500*time.Millisecond {
		t.Fatalf("interval = %v", got)
	}
	if cfg.Server.Addr != ":9911" {
		t.Fatalf("server.addr = %q", cfg.Server.Addr)
	}
}

func TestLoad_RejectsBrowserModeWithoutLoginURL(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte("auth:\n  mode: browser\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error")
	}
}
