package engine

import (
	"context"
	"sync"
	"time"

	"share_runner/internal/model"
)

// sweepRun 一轮 sweep 内共享的计数和 token 刷新状态。
type sweepRun struct {
	e *Engine

	mu    sync.Mutex
	state model.SweepState

	refreshMu   sync.Mutex
	refreshDone bool
}

func (r *sweepRun) addCompleted() { r.bump(func(s *model.SweepState) { s.Completed++ }) }
func (r *sweepRun) addShared()    { r.bump(func(s *model.SweepState) { s.Shared++ }) }
func (r *sweepRun) addFailed()    { r.bump(func(s *model.SweepState) { s.Failed++ }) }

func (r *sweepRun) bump(fn func(s *model.SweepState)) {
	r.mu.Lock()
	fn(&r.state)
	r.mu.Unlock()
	r.publish()
}

func (r *sweepRun) snapshot() model.SweepState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *sweepRun) publish() {
	sw := r.snapshot()
	r.e.mu.Lock()
	r.e.sweep = &sw
	r.e.mu.Unlock()
	if r.e.bus != nil {
		r.e.bus.Publish("sweep_state", sw)
	}
}

// refresh 一轮 sweep 最多刷新一次 token：token 文件里的所有账号共用同一次刷新结果。
// 刷新期间暂停调度器，避免新的 tick 读到写了一半的 token。
func (r *sweepRun) refresh(ctx context.Context, acc model.Account) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if r.refreshDone {
		r.e.log("info", "tokens already refreshed in this sweep", map[string]any{"account": acc.Index, "token": acc.TokenPrefix()})
		return
	}
	r.refreshDone = true

	if r.e.refresher == nil {
		r.e.log("warn", "no token refresher configured", map[string]any{"account": acc.Index})
		return
	}

	if p := r.e.pauser(); p != nil {
		p.Pause()
		defer p.Resume()
	}

	started := time.Now()
	if err := r.e.refresher.Refresh(ctx); err != nil {
		r.e.log("error", "token refresh failed", map[string]any{"account": acc.Index, "error": err.Error()})
		r.mu.Lock()
		r.state.LastError = err.Error()
		r.mu.Unlock()
		return
	}
	r.bump(func(s *model.SweepState) { s.Refreshed++ })
	r.e.log("info", "token refresh finished, new tokens apply from the next sweep", map[string]any{
		"account":    acc.Index,
		"durationMs": time.Since(started).Milliseconds(),
	})
}

func (r *sweepRun) finish(ctx context.Context) {
	r.mu.Lock()
	r.state.FinishedAtMs = time.Now().UnixMilli()
	if err := ctx.Err(); err != nil && r.state.LastError == "" {
		r.state.LastError = err.Error()
	}
	sw := r.state
	r.mu.Unlock()
	r.publish()

	if r.e.store != nil {
		if err := r.e.store.UpsertSweep(context.WithoutCancel(ctx), sw); err != nil {
			r.e.log("warn", "ledger write failed", map[string]any{"error": err.Error()})
		}
	}
	r.e.log("info", "sweep finished", map[string]any{
		"sweepId":    sw.ID,
		"accounts":   sw.Accounts,
		"completed":  sw.Completed,
		"shared":     sw.Shared,
		"failed":     sw.Failed,
		"refreshed":  sw.Refreshed,
		"durationMs": sw.FinishedAtMs - sw.StartedAtMs,
	})
}
