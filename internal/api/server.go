package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/eligibility"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/orchestrator"
	"github.com/JakeFAU/pagewatch/internal/retention"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// checkTimeout bounds a manual check: a cheap fetch plus one escalation.
const checkTimeout = 2 * time.Minute

// Runner is the orchestrator surface the API drives.
type Runner interface {
	CheckTarget(ctx context.Context, targetID string) (orchestrator.Outcome, error)
	Tick(ctx context.Context) (orchestrator.Summary, error)
	TickOwner(ctx context.Context, ownerID string) (orchestrator.Summary, error)
}

// Gate evaluates eligibility without side effects.
type Gate interface {
	Evaluate(target watch.Target, mode eligibility.Mode) eligibility.Decision
}

// TargetReader loads targets.
type TargetReader interface {
	GetTarget(ctx context.Context, targetID string) (watch.Target, error)
}

// Sweeper runs retention.
type Sweeper interface {
	Run(ctx context.Context) (retention.Report, error)
}

// ReadyCheck is a named dependency probe used by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Runner  Runner
	Gate    Gate
	Targets TargetReader
	Sweeper Sweeper
	Ready   []ReadyCheck
}

// Server wires HTTP handlers to the orchestrator and sweeper.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/targets/{target_id}", func(r chi.Router) {
			r.With(timeoutMiddleware(checkTimeout)).Post("/check", s.checkTarget)
			r.Get("/eligibility", s.eligibility)
		})
		r.Post("/ticks", s.tick)
		r.Post("/owners/{owner_id}/ticks", s.tickOwner)
		r.Post("/retention/sweep", s.sweep)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failures := map[string]string{}
	for _, check := range s.deps.Ready {
		if err := check.Check(ctx); err != nil {
			failures[check.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
