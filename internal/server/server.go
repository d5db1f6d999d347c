// Package server exposes the gateway over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/gate"
	"github.com/straja-ai/tonegate/internal/persona"
	"github.com/straja-ai/tonegate/internal/telemetry"
)

// DefaultMaxBodyBytes bounds request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 64 << 10

// Options configures a Server.
type Options struct {
	Gate         *gate.Gate
	Observer     *Observer
	Telemetry    *telemetry.Provider
	Logger       *zap.Logger
	MaxBodyBytes int64
}

// Server wraps the HTTP routes of the gateway.
type Server struct {
	router       chi.Router
	gate         *gate.Gate
	observer     *Observer
	telemetry    *telemetry.Provider
	logger       *zap.Logger
	maxBodyBytes int64
}

// New builds the router. The gate is required.
func New(opts Options) (*Server, error) {
	if opts.Gate == nil {
		return nil, errors.New("server: gate is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		gate:         opts.Gate,
		observer:     opts.Observer,
		telemetry:    opts.Telemetry,
		logger:       logger,
		maxBodyBytes: maxBody,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/personas", s.handlePersonas)
	r.Post("/v1/rewrite", s.handleRewrite)
	r.Get("/v1/requests/{id}", s.handleRequestStatus)
	// Path served by the first release of the service; existing clients still call it.
	r.Post("/analisar-mensagem", s.handleRewrite)

	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tonegate listening", zap.String("addr", addr), zap.String("strategy", string(s.gate.Strategy())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

type personaView struct {
	ID          string `json:"id"`
	MinimumPlan string `json:"minimumPlan,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	reg := s.gate.Personas()
	ids := reg.IDs()
	out := make([]personaView, 0, len(ids))
	for _, id := range ids {
		p, _ := reg.Lookup(id)
		v := personaView{ID: p.ID, Default: id == reg.DefaultID()}
		if p.MinimumPlan != persona.PlanNone {
			v.MinimumPlan = p.MinimumPlan.String()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// --- JSON helpers ---

type errorBody struct {
	Error             string `json:"error"`
	IsUpgradeRequired bool   `json:"isUpgradeRequired,omitempty"`
}

// writeError renders a gate error. Only the caller-safe message is written.
func writeError(w http.ResponseWriter, err *gate.Error) {
	writeJSON(w, err.Status, errorBody{Error: err.Message, IsUpgradeRequired: err.UpgradeRequired})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
