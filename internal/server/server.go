package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"score-trader/internal/alerts"
	"score-trader/internal/engine"
	"score-trader/internal/logger"
	"score-trader/internal/report"
	"score-trader/internal/types"
)

// StateSource is the engine as the HTTP surface sees it: a snapshot
// published at cycle boundaries, so readers never observe a cycle's
// mutations half applied, plus the one mutating hook.
type StateSource interface {
	Snapshot() engine.Snapshot
	TriggerEmergencyExit(ctx context.Context) []types.Position
}

// Server is the read-mostly HTTP surface over the published engine
// state. All trading decisions stay in the scan cycle; the only write
// endpoint is the manual emergency exit.
type Server struct {
	state  StateSource
	alerts *alerts.Manager
	http   *http.Server
}

func New(addr string, state StateSource, am *alerts.Manager) *Server {
	s := &Server{state: state, alerts: am}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /positions", s.handlePositions)
	mux.HandleFunc("GET /positions/closed", s.handleClosed)
	mux.HandleFunc("GET /portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /alerts", s.handleAlerts)
	mux.HandleFunc("GET /performance", s.handlePerformance)
	mux.HandleFunc("POST /emergency-exit", s.handleEmergencyExit)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	side := types.Side(r.URL.Query().Get("side"))

	open := s.state.Snapshot().Open
	out := make([]types.Position, 0, len(open))
	for _, p := range open {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		if side != "" && p.Side != side {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClosed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot().Closed)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot().Portfolio)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	severity := types.Severity(r.URL.Query().Get("severity"))
	writeJSON(w, http.StatusOK, s.alerts.List(severity))
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, report.Summarize(s.state.Snapshot().Closed))
}

func (s *Server) handleEmergencyExit(w http.ResponseWriter, r *http.Request) {
	logger.Warn(r.Context(), "Manual emergency exit requested", "remote", r.RemoteAddr)
	closed := s.state.TriggerEmergencyExit(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"closed": closed,
		"count":  len(closed),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(context.Background(), "Response encode failed", "error", err)
	}
}
