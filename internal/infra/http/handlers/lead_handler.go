package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
)

type leadScorer interface {
	ExecuteLead(ctx context.Context, leadID string) (*entity.Lead, error)
	HighValueLeads(ctx context.Context, limit int) ([]*entity.Lead, error)
	Distribution(ctx context.Context) ([]entity.ScoreBucket, error)
}

type HighValueResponse struct {
	Leads []*entity.Lead `json:"leads"`
	Count int            `json:"count"`
}

type ScoreDistributionResponse struct {
	Distribution []entity.ScoreBucket `json:"distribution"`
}

type LeadHandler struct {
	Scores leadScorer
	logger *zap.Logger
}

func NewLeadHandler(scores leadScorer, logger *zap.Logger) *LeadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadHandler{Scores: scores, logger: logger}
}

// RefreshScore (POST /api/leads/{id}/score) recomputes one lead from its
// send history and returns the updated lead.
func (h *LeadHandler) RefreshScore(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Scores.ExecuteLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// HighValue (GET /api/leads/high-value?limit=)
func (h *LeadHandler) HighValue(w http.ResponseWriter, r *http.Request) {
	limit, ok := positiveQueryInt(r, "limit")
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
		return
	}

	leads, err := h.Scores.HighValueLeads(r.Context(), limit)
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	if leads == nil {
		leads = []*entity.Lead{}
	}
	writeJSON(w, http.StatusOK, HighValueResponse{Leads: leads, Count: len(leads)})
}

// ScoreDistribution (GET /api/leads/score-distribution) reports lead count
// and average score per status.
func (h *LeadHandler) ScoreDistribution(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.Scores.Distribution(r.Context())
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ScoreDistributionResponse{Distribution: buckets})
}
