package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"share_runner/internal/logbus"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_RunsImmediatelyAndPeriodically(t *testing.T) {
	var calls atomic.Int32
	s := New(30*time.Millisecond, nil)
	s.Start(context.Background(), func(context.Context) { calls.Add(1) })
	defer func() { _ = s.Stop(context.Background()) }()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })
	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 3 })
}

func TestScheduler_SkipsTicksWhileSweepRuns(t *testing.T) {
	bus := logbus.New(50)
	release := make(chan struct{})
	var active, maxActive atomic.Int32

	s := New(20*time.Millisecond, bus)
	s.Start(context.Background(), func(ctx context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		active.Add(-1)
	})

	waitFor(t, 2*time.Second, func() bool { return s.Skipped() >= 2 })
	if s.TriggerNow() {
		t.Fatal("TriggerNow should refuse while a sweep is running")
	}
	close(release)
	_ = s.Stop(context.Background())

	if maxActive.Load() != 1 {
		t.Fatalf("max concurrent sweeps = %d", maxActive.Load())
	}
	found := false
	for _, l := range bus.Logs() {
		if l.Msg == "sweep skipped: previous sweep still running" {
			found = true
		}
	}
	if !found {
		t.Fatal("skip was not logged")
	}
}

func TestScheduler_PauseStopsTicksResumeRearms(t *testing.T) {
	var calls atomic.Int32
	s := New(25*time.Millisecond, nil)
	s.Start(context.Background(), func(context.Context) { calls.Add(1) })
	defer func() { _ = s.Stop(context.Background()) }()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })
	s.Pause()
	if !s.Paused() {
		t.Fatal("expected paused")
	}
	// 等正在跑的那一轮（如果有）结束
	waitFor(t, time.Second, func() bool { return !s.Running() })
	before := calls.Load()
	time.Sleep(120 * time.Millisecond)
	if got := calls.Load(); got != before {
		t.Fatalf("ticks fired while paused: %d -> %d", before, got)
	}

	s.Resume()
	if s.Paused() {
		t.Fatal("expected resumed")
	}
	waitFor(t, time.Second, func() bool { return calls.Load() > before })
}

func TestScheduler_PauseResumeFromInsideSweep(t *testing.T) {
	var calls atomic.Int32
	s := New(50*time.Millisecond, nil)
	s.Start(context.Background(), func(context.Context) {
		if calls.Add(1) == 1 {
			s.Pause()
			time.Sleep(60 * time.Millisecond)
			s.Resume()
		}
	})
	defer func() { _ = s.Stop(context.Background()) }()

	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 2 })
	if s.Skipped() != 0 {
		t.Fatalf("skipped = %d, paused timer should not tick", s.Skipped())
	}
}

func TestScheduler_StopCancelsRunningSweep(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	s := New(time.Hour, nil)
	s.Start(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if !cancelled.Load() {
		t.Fatal("sweep context was not cancelled")
	}
	if s.TriggerNow() {
		t.Fatal("stopped scheduler should not run")
	}
}
