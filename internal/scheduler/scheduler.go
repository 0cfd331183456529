package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"share_runner/internal/logbus"
)

type Func func(ctx context.Context)

// Scheduler 周期触发一次 sweep。同一时刻最多只有一个 sweep 在跑，
// 上一轮还没结束时到点的 tick 直接跳过。
type Scheduler struct {
	interval time.Duration
	bus      *logbus.Bus

	mu      sync.Mutex
	fn      Func
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	gen     uint64
	started bool
	paused  bool

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	wg      sync.WaitGroup
}

func New(interval time.Duration, bus *logbus.Bus) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{interval: interval, bus: bus}
}

// Start 立即跑一轮，并按 interval 周期触发。
func (s *Scheduler) Start(ctx context.Context, fn Func) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.paused = false
	s.fn = fn
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.armLocked()
	s.mu.Unlock()

	s.fire("start")
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.started = false
	s.disarmLocked()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause 取消周期触发；正在跑的 sweep 不受影响。
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.paused {
		return
	}
	s.paused = true
	s.disarmLocked()
	if s.bus != nil {
		s.bus.Log("debug", "scheduler paused", nil)
	}
}

// Resume 从当前时刻重新计时。
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || !s.paused {
		return
	}
	s.paused = false
	s.armLocked()
	if s.bus != nil {
		s.bus.Log("debug", "scheduler resumed", map[string]any{"intervalMs": s.interval.Milliseconds()})
	}
}

// TriggerNow 没有 sweep 在跑时立即开始一轮。
func (s *Scheduler) TriggerNow() bool {
	return s.fire("manual")
}

func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) Runs() int64 { return s.runs.Load() }

func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) armLocked() {
	s.disarmLocked()
	gen := s.gen
	s.timer = time.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *Scheduler) disarmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if !s.started || s.paused || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.armLocked()
	s.mu.Unlock()

	s.fire("tick")
}

func (s *Scheduler) fire(reason string) bool {
	s.mu.Lock()
	if !s.started || s.fn == nil {
		s.mu.Unlock()
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.skipped.Add(1)
		if s.bus != nil {
			s.bus.Log("warn", "sweep skipped: previous sweep still running", map[string]any{"reason": reason})
		}
		return false
	}
	s.wg.Add(1)
	ctx, fn := s.ctx, s.fn
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.runs.Add(1)
		fn(ctx)
	}()
	return true
}
