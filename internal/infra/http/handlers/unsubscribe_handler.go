package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/usecase"
)

type unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) (*usecase.UnsubscribeResult, error)
}

type UnsubscribeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

type UnsubscribeHandler struct {
	Ingestor    unsubscriber
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

func NewUnsubscribeHandler(ingestor unsubscriber, logger *zap.Logger) *UnsubscribeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnsubscribeHandler{
		Ingestor:    ingestor,
		rateLimiter: NewRateLimiter(20, time.Minute),
		logger:      logger,
	}
}

// Handle (GET|POST /api/webhooks/unsubscribe/{token}) is idempotent: a
// repeated call confirms again without touching the lead.
func (h *UnsubscribeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !h.rateLimiter.Allow(clientIP(r)) {
		writeErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
		return
	}

	result, err := h.Ingestor.Unsubscribe(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}

	msg := "You have been unsubscribed and will not receive further emails."
	if result.AlreadyUnsubscribed {
		msg = "You were already unsubscribed."
	}
	writeJSON(w, http.StatusOK, UnsubscribeResponse{Success: true, Message: msg, Email: result.Email})
}
