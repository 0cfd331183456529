package engine

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"share_runner/internal/accounts"
	"share_runner/internal/config"
	"share_runner/internal/logbus"
	"share_runner/internal/model"
	"share_runner/internal/notify"
	"share_runner/internal/provider"
	"share_runner/internal/store/sqlite"
)

var (
	ErrNoCredentials = errors.New("no credentials: token file is empty")
	ErrSweepRunning  = errors.New("sweep already running")
)

type Refresher interface {
	Refresh(ctx context.Context) error
}

// Pauser 由调度器实现；刷新 token 期间暂停周期触发。
type Pauser interface {
	Pause()
	Resume()
}

type SleepFunc func(ctx context.Context, d time.Duration) bool

type Options struct {
	Provider  provider.Provider
	Bus       *logbus.Bus
	Store     *sqlite.Store
	Refresher Refresher
	Scheduler Pauser
	Notifier  notify.Notifier
	Files     config.FilesConfig
	Limits    config.LimitsConfig

	// Sleep 和 Rand 仅测试时替换。
	Sleep SleepFunc
	Rand  *rand.Rand
}

type Engine struct {
	provider  provider.Provider
	bus       *logbus.Bus
	store     *sqlite.Store
	refresher Refresher
	scheduler Pauser
	notifier  notify.Notifier
	files     config.FilesConfig
	limits    config.LimitsConfig
	sleep     SleepFunc

	randMu sync.Mutex
	rand   *rand.Rand

	mu      sync.Mutex
	running bool
	sweep   *model.SweepState
	states  map[int]*model.AccountState
}

func New(opts Options) *Engine {
	e := &Engine{
		provider:  opts.Provider,
		bus:       opts.Bus,
		store:     opts.Store,
		refresher: opts.Refresher,
		scheduler: opts.Scheduler,
		notifier:  opts.Notifier,
		files:     opts.Files,
		limits:    opts.Limits,
		sleep:     opts.Sleep,
		rand:      opts.Rand,
		states:    make(map[int]*model.AccountState),
	}
	if e.sleep == nil {
		e.sleep = sleepFor
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

// SetScheduler 调度器依赖引擎的 RunSweep，构造完成后再回填。
func (e *Engine) SetScheduler(p Pauser) {
	e.mu.Lock()
	e.scheduler = p
	e.mu.Unlock()
}

func (e *Engine) State() model.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := model.EngineState{Running: e.running, Accounts: make([]model.AccountState, 0, len(e.states))}
	if e.sweep != nil {
		sw := *e.sweep
		out.Sweep = &sw
	}
	for _, st := range e.states {
		out.Accounts = append(out.Accounts, *st)
	}
	sort.Slice(out.Accounts, func(i, j int) bool { return out.Accounts[i].Index < out.Accounts[j].Index })
	return out
}

// RunSweep 按文件顺序处理所有账号一遍。单个账号的错误只记日志，不会中断整轮。
func (e *Engine) RunSweep(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrSweepRunning
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	tokens, err := accounts.ReadTokens(e.files.Tokens)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log("error", "read token file failed", map[string]any{"file": e.files.Tokens, "error": err.Error()})
		return err
	}
	if len(tokens) == 0 {
		e.log("error", "NoCredentials: no tokens to run", map[string]any{"file": e.files.Tokens})
		return ErrNoCredentials
	}

	proxies, err := accounts.ReadProxies(e.files.Proxies)
	if err != nil {
		fields := map[string]any{"file": e.files.Proxies}
		if !errors.Is(err, os.ErrNotExist) {
			fields["error"] = err.Error()
		}
		e.log("warn", "proxy list unavailable, running without proxies", fields)
		proxies = nil
	}
	accs := accounts.Zip(tokens, proxies)

	run := &sweepRun{
		e: e,
		state: model.SweepState{
			ID:          uuid.NewString(),
			StartedAtMs: time.Now().UnixMilli(),
			Accounts:    len(accs),
		},
	}

	e.mu.Lock()
	e.states = make(map[int]*model.AccountState, len(accs))
	for _, acc := range accs {
		e.states[acc.Index] = &model.AccountState{
			Index:       acc.Index,
			TokenPrefix: acc.TokenPrefix(),
			Proxy:       acc.Proxy,
			Phase:       model.PhaseIdle,
		}
	}
	e.mu.Unlock()
	run.publish()
	if e.store != nil {
		if err := e.store.UpsertSweep(ctx, run.snapshot()); err != nil {
			e.log("warn", "ledger write failed", map[string]any{"error": err.Error()})
		}
	}

	e.log("info", "sweep started", map[string]any{
		"sweepId":  run.state.ID,
		"accounts": len(accs),
		"proxies":  len(proxies),
	})

	if e.limits.MaxInFlight > 1 {
		e.runPool(ctx, run, accs)
	} else {
		for i, acc := range accs {
			if i > 0 && !e.waitGap(ctx, acc) {
				break
			}
			e.runAccount(ctx, run, acc)
		}
	}

	run.finish(ctx)
	return ctx.Err()
}

// runPool 按文件顺序把账号投进容量为 MaxInFlight 的池子，相邻两个账号的启动间隔仍然是 AccountGap。
func (e *Engine) runPool(ctx context.Context, run *sweepRun, accs []model.Account) {
	sem := make(chan struct{}, e.limits.MaxInFlight)
	var wg sync.WaitGroup
	defer wg.Wait()

	for i, acc := range accs {
		if i > 0 && !e.waitGap(ctx, acc) {
			return
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func(acc model.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			e.runAccount(ctx, run, acc)
		}(acc)
	}
}

func (e *Engine) waitGap(ctx context.Context, next model.Account) bool {
	gap := e.limits.AccountGap()
	e.log("info", "waiting before next account", map[string]any{
		"next":    next.Index,
		"seconds": gap.Seconds(),
	})
	return e.sleep(ctx, gap)
}

func (e *Engine) runAccount(ctx context.Context, run *sweepRun, acc model.Account) {
	if ctx.Err() != nil {
		return
	}
	fields := func(extra map[string]any) map[string]any {
		f := map[string]any{"account": acc.Index, "token": acc.TokenPrefix()}
		for k, v := range extra {
			f[k] = v
		}
		return f
	}

	var (
		completed int
		lastErr   string
	)
	defer func() {
		e.updateAccount(ctx, acc, func(st *model.AccountState) {
			st.Phase = model.PhaseIdle
			st.LastError = lastErr
		}, completed)
	}()

	e.updateAccount(ctx, acc, func(st *model.AccountState) { st.Phase = model.PhaseCheckingMissions }, -1)
	missions, err := e.provider.CheckMissions(ctx, acc)
	switch {
	case errors.Is(err, provider.ErrUnauthorized):
		lastErr = err.Error()
		e.log("warn", "token expired, refreshing tokens", fields(nil))
		e.notify(ctx, notify.Event{Kind: notify.EventTokenExpired, AccountIndex: acc.Index, TokenPrefix: acc.TokenPrefix()})
		e.updateAccount(ctx, acc, func(st *model.AccountState) { st.Phase = model.PhaseRefreshingToken }, -1)
		run.refresh(ctx, acc)
		return
	case err != nil:
		lastErr = err.Error()
		e.log("error", "mission check failed", fields(map[string]any{"error": err.Error()}))
		missions = nil
	}

	ids := model.AvailableMissionIDs(missions)
	if len(ids) > 0 {
		e.updateAccount(ctx, acc, func(st *model.AccountState) { st.Phase = model.PhaseCompletingMissions }, -1)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		res, err := e.provider.CompleteMission(ctx, acc, id)
		if err != nil {
			lastErr = err.Error()
			e.log("error", "mission completion failed", fields(map[string]any{"missionId": id, "error": err.Error()}))
			continue
		}
		completed++
		run.addCompleted()
		e.log("info", "mission completed", fields(map[string]any{"missionId": id, "message": res.Message}))
		if e.store != nil {
			if err := e.store.RecordMissionCompletion(ctx, sqlite.MissionCompletion{
				SweepID:   run.state.ID,
				TokenHash: sqlite.TokenHash(acc.Token),
				MissionID: id,
				Message:   res.Message,
			}); err != nil {
				e.log("warn", "ledger write failed", map[string]any{"error": err.Error()})
			}
		}
		e.notify(ctx, notify.Event{Kind: notify.EventMissionCompleted, AccountIndex: acc.Index, TokenPrefix: acc.TokenPrefix(), MissionID: id, Message: res.Message})
	}

	if ctx.Err() != nil {
		return
	}
	e.updateAccount(ctx, acc, func(st *model.AccountState) { st.Phase = model.PhaseSharingBandwidth }, -1)
	res, quality, attempts, err := e.share(ctx, acc)
	if e.store != nil && attempts > 0 {
		rec := sqlite.ShareRecord{
			SweepID:   run.state.ID,
			TokenHash: sqlite.TokenHash(acc.Token),
			Quality:   quality,
			Points:    res.Points,
			Attempts:  attempts,
			OK:        err == nil,
			Message:   res.Message,
		}
		if err != nil {
			rec.Message = err.Error()
		}
		if werr := e.store.RecordShare(ctx, rec); werr != nil {
			e.log("warn", "ledger write failed", map[string]any{"error": werr.Error()})
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		lastErr = err.Error()
		run.addFailed()
		e.notify(ctx, notify.Event{Kind: notify.EventShareFailed, AccountIndex: acc.Index, TokenPrefix: acc.TokenPrefix(), Message: err.Error()})
		return
	}
	run.addShared()
	e.updateAccount(ctx, acc, func(st *model.AccountState) {
		st.Points = res.Points
		st.Quality = quality
	}, -1)
}

// share 每次尝试都重新生成 quality；只在两次尝试之间等待。
func (e *Engine) share(ctx context.Context, acc model.Account) (model.ShareResult, int, int, error) {
	maxAttempts := e.limits.ShareAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	wait := e.limits.ShareRetryWait()

	var lastErr error
	quality := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && !e.sleep(ctx, wait) {
			return model.ShareResult{}, quality, attempt - 1, ctx.Err()
		}
		report := e.newShareReport()
		quality = report.Quality
		res, err := e.provider.ShareBandwidth(ctx, acc, report)
		if err == nil {
			e.log("info", "bandwidth shared", map[string]any{
				"account": acc.Index,
				"token":   acc.TokenPrefix(),
				"quality": report.Quality,
				"points":  res.Points,
				"attempt": attempt,
				"message": res.Message,
			})
			return res, quality, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return model.ShareResult{}, quality, attempt, ctx.Err()
		}
		e.log("warn", "bandwidth share attempt failed", map[string]any{
			"account":   acc.Index,
			"token":     acc.TokenPrefix(),
			"attempt":   attempt,
			"quality":   report.Quality,
			"retryable": provider.IsRetryable(err),
			"error":     err.Error(),
		})
	}
	e.log("error", "max retries reached, bandwidth share failed", map[string]any{
		"account":  acc.Index,
		"token":    acc.TokenPrefix(),
		"attempts": maxAttempts,
	})
	return model.ShareResult{}, quality, maxAttempts, lastErr
}

func (e *Engine) newShareReport() model.ShareReport {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return model.NewShareReport(e.rand)
}

// updateAccount missionsDelta < 0 时只更新内存状态，不写库。
func (e *Engine) updateAccount(ctx context.Context, acc model.Account, fn func(st *model.AccountState), missionsDelta int) {
	e.mu.Lock()
	st := e.states[acc.Index]
	if st == nil {
		st = &model.AccountState{Index: acc.Index, TokenPrefix: acc.TokenPrefix(), Proxy: acc.Proxy}
		e.states[acc.Index] = st
	}
	fn(st)
	if missionsDelta > 0 {
		st.MissionsCompleted += missionsDelta
	}
	st.UpdatedAtMs = time.Now().UnixMilli()
	snap := *st
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish("account_state", snap)
	}
	if missionsDelta < 0 || e.store == nil {
		return
	}
	snap.MissionsCompleted = missionsDelta
	if err := e.store.UpsertAccountState(context.WithoutCancel(ctx), sqlite.TokenHash(acc.Token), snap); err != nil {
		e.log("warn", "ledger write failed", map[string]any{"error": err.Error()})
	}
}

func (e *Engine) notify(ctx context.Context, evt notify.Event) {
	if e.notifier == nil {
		return
	}
	if evt.At == 0 {
		evt.At = time.Now().UnixMilli()
	}
	e.notifier.Notify(ctx, evt)
}

func (e *Engine) log(level, msg string, fields map[string]any) {
	if e.bus != nil {
		e.bus.Log(level, msg, fields)
	}
}

func (e *Engine) pauser() Pauser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
