package core

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watchdog/internal/config"
	"watchdog/internal/services/scheduler"
	"watchdog/internal/storage"
	logx "watchdog/pkg/logx"
)

const defaultAdminAddr = "127.0.0.1:6060"

// adminServer manages the lifecycle of the observability HTTP listener.
//
// Endpoints:
//   - /healthz        liveness + store reachability
//   - /events         recent log entries, newest first (?limit=N)
//   - /schedules      scheduler snapshot
//   - /metrics        Prometheus exposition
//   - /debug/pprof/*  optional, admin.pprof
type adminServer struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	addr string

	store storage.Store
	sched *scheduler.Service
}

func newAdminServer(log logx.Logger, store storage.Store, sched *scheduler.Service) *adminServer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &adminServer{log: log.With(logx.String("comp", "admin")), store: store, sched: sched}
}

// Apply starts/stops the admin server according to cfg.
func (a *adminServer) Apply(ctx context.Context, cfg config.AdminConfig) {
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAdminAddr
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !cfg.Enabled {
		a.stopLocked(ctx)
		return
	}
	if a.srv != nil && a.addr == addr {
		return
	}
	a.stopLocked(ctx)
	a.startLocked(addr, cfg.Pprof)
}

func (a *adminServer) Stop(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked(ctx)
}

// Addr returns the bound listener address, or "" when stopped.
func (a *adminServer) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

func (a *adminServer) startLocked(addr string, withPprof bool) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/events", a.handleEvents)
	mux.HandleFunc("/schedules", a.handleSchedules)
	mux.Handle("/metrics", promhttp.Handler())
	if withPprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.log.Warn("admin listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}

	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	a.srv = srv
	a.ln = ln
	a.addr = addr

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("admin server exited", logx.Err(err))
		}
	}()
	a.log.Info("admin server listening", logx.String("addr", addr))
}

func (a *adminServer) stopLocked(ctx context.Context) {
	if a.srv == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = a.srv.Shutdown(sctx)
	a.srv = nil
	a.ln = nil
	a.addr = ""
}

func (a *adminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type health struct {
		OK      bool   `json:"ok"`
		Store   string `json:"store"`
		Entries int64  `json:"entries,omitempty"`
	}
	h := health{OK: true, Store: "disabled"}
	if a.store != nil {
		n, err := a.store.Count(r.Context())
		if err != nil {
			h.OK = false
			h.Store = "unavailable"
		} else {
			h.Store = "ok"
			h.Entries = n
		}
	}
	code := http.StatusOK
	if !h.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (a *adminServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.Error(w, "event store disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be 1..1000", http.StatusBadRequest)
			return
		}
		limit = n
	}
	events, err := a.store.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *adminServer) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if a.sched == nil {
		http.Error(w, "scheduler disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a.sched.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
