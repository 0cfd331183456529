package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"share_runner/internal/auth"
	"share_runner/internal/config"
	"share_runner/internal/engine"
	"share_runner/internal/httpapi"
	"share_runner/internal/logbus"
	"share_runner/internal/notify"
	"share_runner/internal/provider/standard"
	"share_runner/internal/scheduler"
	"share_runner/internal/store/sqlite"
)

const banner = `
  ___ _                      ___
 / __| |_  __ _ _ _ ___     | _ \_  _ _ _  _ _  ___ _ _
 \__ \ ' \/ _' | '_/ -_)    |   / || | ' \| ' \/ -_) '_|
 |___/_||_\__,_|_| \___|____|_|_\\_,_|_||_|_||_\___|_|
                      |_____|
`

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logbus.NewConsoleLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()
	logger.Debug(banner)

	bus := logbus.New(cfg.Log.Buffer).WithLogger(logger)
	defer bus.Close()

	if err := run(cfg, bus); err != nil {
		logger.Error("runner exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, bus *logbus.Bus) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *sqlite.Store
	if cfg.Storage.SQLitePath != "" {
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer s.Close()
		store = s
	}

	prov := standard.New(cfg.Provider, cfg.Proxy, cfg.Limits, bus)

	var notifier notify.Notifier
	var email *notify.EmailNotifier
	if cfg.Notify.Email.Enabled {
		email = notify.NewEmailNotifier(cfg.Notify.Email, bus)
		notifier = email
	}

	sched := scheduler.New(cfg.Schedule.Interval(), bus)
	eng := engine.New(engine.Options{
		Provider:  prov,
		Bus:       bus,
		Store:     store,
		Refresher: auth.New(cfg, prov, bus),
		Scheduler: sched,
		Notifier:  notifier,
		Files:     cfg.Files,
		Limits:    cfg.Limits,
	})

	bus.Log("info", "runner starting", map[string]any{
		"provider":   prov.Name(),
		"baseURL":    cfg.Provider.BaseURL,
		"interval":   cfg.Schedule.Interval().String(),
		"authMode":   string(cfg.Auth.Mode),
		"tokens":     cfg.Files.Tokens,
		"ledger":     cfg.Storage.SQLitePath != "",
		"httpAddr":   cfg.Server.Addr,
		"emailAlert": cfg.Notify.Email.Enabled,
	})

	sched.Start(ctx, sweepFunc(eng.RunSweep, bus))

	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Addr != "" {
		api := httpapi.New(httpapi.Options{
			Cfg:       cfg,
			Bus:       bus,
			Store:     store,
			Engine:    eng,
			Scheduler: sched,
		})
		server = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			serverErr <- server.ListenAndServe()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		bus.Log("info", "shutdown signal received", nil)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		bus.Log("warn", "scheduler stop timed out", map[string]any{"error": err.Error()})
	}
	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	if email != nil {
		_ = email.Close(shutdownCtx)
	}
	bus.Log("info", "runner stopped", nil)
	return runErr
}

// sweepFunc 引擎已经记过日志的错误（NoCredentials、取消、重入）不再重复记录。
func sweepFunc(runSweep func(context.Context) error, bus *logbus.Bus) scheduler.Func {
	return func(ctx context.Context) {
		err := runSweep(ctx)
		switch {
		case err == nil,
			errors.Is(err, context.Canceled),
			errors.Is(err, engine.ErrNoCredentials),
			errors.Is(err, engine.ErrSweepRunning):
			return
		}
		bus.Log("error", "sweep ended with error", map[string]any{"error": err.Error()})
	}
}
