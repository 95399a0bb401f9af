// Package server exposes the read-only status surface and the kill-switch
// control over HTTP. It is an operator interface, not a public API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
	"github.com/psifund/fundbot/internal/notify"
)

// PositionLister exposes a fund's open positions for the status surface.
type PositionLister interface {
	Positions(fundID string) []domain.Position
}

// Server is the status HTTP server.
type Server struct {
	addr      string
	registry  *fund.Registry
	positions PositionLister
	notifier  *notify.Notifier
	logger    *slog.Logger

	httpServer *http.Server
}

// New creates a Server. positions and notifier may be nil when not wired.
func New(addr string, registry *fund.Registry, positions PositionLister, notifier *notify.Notifier, logger *slog.Logger) *Server {
	s := &Server{
		addr:      addr,
		registry:  registry,
		positions: positions,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/funds", s.handleFunds)
	mux.HandleFunc("GET /api/funds/{id}", s.handleFund)
	mux.HandleFunc("POST /api/funds/{id}/killswitch", s.handleKillSwitch)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.logRequests(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", slog.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fundsResponse struct {
	Funds  []fund.Status `json:"funds"`
	Totals fund.Totals   `json:"totals"`
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	statuses, totals := s.registry.Statuses()
	writeJSON(w, http.StatusOK, fundsResponse{Funds: statuses, Totals: totals})
}

type fundDetailResponse struct {
	fund.Status
	Positions []domain.Position `json:"positions,omitempty"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown fund")
		return
	}

	resp := fundDetailResponse{Status: st.Snapshot()}
	if s.positions != nil {
		resp.Positions = s.positions.Positions(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

type killSwitchRequest struct {
	On bool `json:"on"`
}

func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown fund")
		return
	}

	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	st.SetKillSwitch(req.On)
	s.logger.Warn("kill switch set",
		slog.String("fund", id),
		slog.Bool("on", req.On),
	)
	if req.On && s.notifier != nil {
		s.notifier.KillSwitchTripped(r.Context(), id, "set via status api")
	}
	writeJSON(w, http.StatusOK, map[string]any{"fund_id": id, "kill_switch": req.On})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
