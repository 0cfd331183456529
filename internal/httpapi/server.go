package httpapi

import (
	"net/http"
	"strconv"

	"share_runner/internal/config"
	"share_runner/internal/logbus"
	"share_runner/internal/model"
	"share_runner/internal/store/sqlite"
	"share_runner/internal/ws"
)

type StateSource interface {
	State() model.EngineState
}

type Trigger interface {
	TriggerNow() bool
	Paused() bool
	Running() bool
	Runs() int64
	Skipped() int64
}

type Options struct {
	Cfg       config.Config
	Bus       *logbus.Bus
	Store     *sqlite.Store
	Engine    StateSource
	Scheduler Trigger
}

// Server 只读状态接口，外加一个手动触发 sweep 的入口。Store 为 nil 时历史类接口返回空列表。
type Server struct {
	cfg       config.Config
	bus       *logbus.Bus
	store     *sqlite.Store
	engine    StateSource
	scheduler Trigger
	ws        *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:       opts.Cfg,
		bus:       opts.Bus,
		store:     opts.Store,
		engine:    opts.Engine,
		scheduler: opts.Scheduler,
		ws:        ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/state", s.handleState)
	api.HandleFunc("/api/v1/accounts", s.handleAccounts)
	api.HandleFunc("/api/v1/sweeps", s.handleSweeps)
	api.HandleFunc("/api/v1/missions", s.handleMissions)
	api.HandleFunc("/api/v1/logs", s.handleLogs)
	api.HandleFunc("/api/v1/sweep/trigger", s.handleTrigger)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	out := map[string]any{"engine": s.engine.State()}
	if s.scheduler != nil {
		out["scheduler"] = map[string]any{
			"paused":  s.scheduler.Paused(),
			"running": s.scheduler.Running(),
			"runs":    s.scheduler.Runs(),
			"skipped": s.scheduler.Skipped(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// handleAccounts 有库时返回累计值，否则返回本轮内存快照。
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(s.engine.State().Accounts)})
		return
	}
	states, err := s.store.ListAccountStates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(states)})
}

func (s *Server) handleSweeps(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		var out []model.SweepState
		if sw := s.engine.State().Sweep; sw != nil {
			out = append(out, *sw)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(out)})
		return
	}
	sweeps, err := s.store.ListSweeps(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(sweeps)})
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": []sqlite.MissionCompletion{}})
		return
	}
	list, err := s.store.ListMissionCompletions(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(list)})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	var logs []logbus.LogData
	if s.bus != nil {
		logs = s.bus.Logs()
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(logs)})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "scheduler not running"})
		return
	}
	if !s.scheduler.TriggerNow() {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "sweep already running"})
		return
	}
	if s.bus != nil {
		s.bus.Log("info", "sweep triggered via api", map[string]any{"remote": r.RemoteAddr})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 50
	}
	if n > 500 {
		return 500
	}
	return n
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
