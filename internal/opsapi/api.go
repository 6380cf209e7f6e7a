// Package opsapi serves the operational HTTP surface: health, metrics,
// ledger history, tracker statistics and on-demand cycles.
package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expirywatch/internal/dispatch"
	"expirywatch/internal/ledger"
	"expirywatch/internal/tracker"
	logx "expirywatch/pkg/logx"
)

// CycleRunner runs one dispatch cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (dispatch.BatchReport, error)
}

// HistorySource returns ledger records for an item.
type HistorySource interface {
	History(ctx context.Context, itemID int64) ([]ledger.Record, error)
}

// StatsProvider returns tracker statistics. ok is false when the tracker
// cannot summarize itself.
type StatsProvider interface {
	Stats(ctx context.Context) (st tracker.Stats, ok bool, err error)
}

// Deps are the API's collaborators. Any of them may be nil; the matching
// routes then answer 404.
type Deps struct {
	Cycles   CycleRunner
	Ledger   HistorySource
	Stats    StatsProvider
	Gatherer prometheus.Gatherer
	// Profiling mounts the runtime profiler under /debug/pprof.
	Profiling bool
}

// API holds dependencies for HTTP handlers.
type API struct {
	log  logx.Logger
	deps Deps
}

func New(log logx.Logger, d Deps) *API {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &API{log: log, deps: d}
}

// Handler returns the complete router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches the endpoints to r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if a.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if a.deps.Profiling {
		r.Mount("/debug", middleware.Profiler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/items/{id}/ledger", a.handleLedger)
		r.Get("/stats", a.handleStats)
		r.Post("/cycles", a.handleCycle)
	})
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ledger == nil {
		writeError(w, http.StatusNotFound, "ledger not available")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	recs, err := a.deps.Ledger.History(r.Context(), id)
	if err != nil {
		a.log.Error("ledger history failed", logx.Int64("item_id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recs == nil {
		recs = []ledger.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "records": recs})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.deps.Stats == nil {
		writeError(w, http.StatusNotFound, "statistics not available")
		return
	}
	st, ok, err := a.deps.Stats.Stats(r.Context())
	if err != nil {
		a.log.Error("tracker statistics failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "statistics not available")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleCycle(w http.ResponseWriter, r *http.Request) {
	if a.deps.Cycles == nil {
		writeError(w, http.StatusNotFound, "dispatch not available")
		return
	}
	// A client disconnect must not cut a cycle short after deliveries began.
	rep, err := a.deps.Cycles.RunCycle(context.WithoutCancel(r.Context()))
	if err != nil {
		a.log.Warn("on-demand cycle failed", logx.Err(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server runs the API on a TCP address.
type Server struct {
	log logx.Logger
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. Serve must be called to accept connections.
func Listen(addr string, h http.Handler, log logx.Logger) (*Server, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		log: log,
		ln:  ln,
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	s.log.Info("listening", logx.String("addr", s.Addr()))
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
