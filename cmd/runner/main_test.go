package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"share_runner/internal/engine"
	"share_runner/internal/logbus"
)

func TestSweepFunc_LogsOnlyUnhandledErrors(t *testing.T) {
	tests := []struct {
		err  error
		logs int
	}{
		{nil, 0},
		{engine.ErrNoCredentials, 0},
		{fmt.Errorf("sweep: %w", engine.ErrNoCredentials), 0},
		{context.Canceled, 0},
		{engine.ErrSweepRunning, 0},
		{errors.New("read tokens: permission denied"), 1},
	}
	for _, tt := range tests {
		bus := logbus.New(10)
		sweepFunc(func(context.Context) error { return tt.err }, bus)(context.Background())
		if got := len(bus.Logs()); got != tt.logs {
			t.Fatalf("err %v: logs = %d, want %d", tt.err, got, tt.logs)
		}
	}
}
