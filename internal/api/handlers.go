package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/eligibility"
	"github.com/JakeFAU/pagewatch/internal/orchestrator"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

type eligibilityResponse struct {
	TargetID    string `json:"target_id"`
	Eligible    bool   `json:"eligible"`
	Reason      string `json:"reason,omitempty"`
	URLEligible bool   `json:"url_eligible"`
}

func (s *Server) checkTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "target_id")
	out, err := s.deps.Runner.CheckTarget(r.Context(), targetID)
	if err != nil {
		s.targetError(w, targetID, err)
		return
	}
	s.writeJSON(w, outcomeStatus(out), out)
}

// outcomeStatus maps a manual check outcome onto an HTTP status.
func outcomeStatus(out orchestrator.Outcome) int {
	switch out.Status {
	case orchestrator.StatusDenied, orchestrator.StatusSkipped, orchestrator.StatusDeferred:
		if out.Guardrail != "" {
			return http.StatusTooManyRequests
		}
		return http.StatusConflict
	case orchestrator.StatusFailed:
		var fe *watch.FetchError
		if errors.As(out.Err, &fe) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (s *Server) eligibility(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "target_id")
	target, err := s.deps.Targets.GetTarget(r.Context(), targetID)
	if err != nil {
		s.targetError(w, targetID, err)
		return
	}
	mode := eligibility.ModeScheduled
	if r.URL.Query().Get("mode") == "manual" {
		mode = eligibility.ModeManual
	}
	decision := s.deps.Gate.Evaluate(target, mode)
	s.writeJSON(w, http.StatusOK, eligibilityResponse{
		TargetID:    target.ID,
		Eligible:    decision.Eligible,
		Reason:      decision.Reason,
		URLEligible: eligibility.IsEligibleURL(target.URL),
	})
}

func (s *Server) tick(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Runner.Tick(r.Context())
	if err != nil {
		s.logger.Error("tick failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) tickOwner(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	summary, err := s.deps.Runner.TickOwner(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("owner tick failed", zap.String("owner_id", ownerID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		s.writeError(w, http.StatusNotImplemented, "retention sweeper not configured")
		return
	}
	report, err := s.deps.Sweeper.Run(r.Context())
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "retention sweep failed")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) targetError(w http.ResponseWriter, targetID string, err error) {
	if errors.Is(err, watch.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}
	s.logger.Error("target request failed", zap.String("target_id", targetID), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
