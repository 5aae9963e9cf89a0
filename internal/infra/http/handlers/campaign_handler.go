package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/usecase"
)

type campaignCreator interface {
	Execute(ctx context.Context, input usecase.CreateCampaignInput) (*entity.Campaign, error)
}

type campaignUpdater interface {
	Execute(ctx context.Context, id string, input usecase.UpdateCampaignInput) (*entity.Campaign, error)
}

type campaignReader interface {
	Get(ctx context.Context, id string) (*entity.Campaign, error)
	Stats(ctx context.Context, id string) (*usecase.CampaignWithStats, error)
	History(ctx context.Context, id string, page, limit int) (*usecase.CampaignHistoryPage, error)
}

type CampaignHandler struct {
	CreateUC campaignCreator
	UpdateUC campaignUpdater
	QueryUC  campaignReader
	logger   *zap.Logger
}

func NewCampaignHandler(create campaignCreator, update campaignUpdater, query campaignReader, logger *zap.Logger) *CampaignHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignHandler{CreateUC: create, UpdateUC: update, QueryUC: query, logger: logger}
}

// Create (POST /api/email-campaigns) stores the campaign and queues its
// delivery; the response never waits for the sends.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input usecase.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}

	campaign, err := h.CreateUC.Execute(r.Context(), input)
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.QueryUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input usecase.UpdateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}

	campaign, err := h.UpdateUC.Execute(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.QueryUC.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// History (GET /api/email-campaigns/{id}/history?page=&limit=)
func (h *CampaignHandler) History(w http.ResponseWriter, r *http.Request) {
	page, ok := positiveQueryInt(r, "page")
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "page must be a positive integer")
		return
	}
	limit, ok := positiveQueryInt(r, "limit")
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
		return
	}

	history, err := h.QueryUC.History(r.Context(), chi.URLParam(r, "id"), page, limit)
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
