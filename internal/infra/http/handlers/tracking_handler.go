package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/usecase"
)

// transparent 1x1 GIF
var pixelGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

type eventIngestor interface {
	Execute(ctx context.Context, ev entity.Event) (*usecase.IngestResult, error)
}

type TrackingHandler struct {
	Ingestor eventIngestor
	logger   *zap.Logger
}

func NewTrackingHandler(ingestor eventIngestor, logger *zap.Logger) *TrackingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingHandler{Ingestor: ingestor, logger: logger}
}

// Open (GET /track/open/{id}) records the open and always answers with the
// pixel, whatever happened to the record.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev := entity.Event{Type: entity.EventOpened, HistoryID: id}
	if _, err := h.Ingestor.Execute(r.Context(), ev); err != nil {
		h.logger.Warn("open not recorded", zap.String("email_history_id", id), zap.Error(err))
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

// Click (GET /track/click/{id}?url=) records the click and redirects to the
// target. Only absolute http(s) targets of known send records are followed.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, ok := redirectTarget(r.URL.Query().Get("url"))
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_URL", "an absolute http(s) url is required")
		return
	}

	ev := entity.Event{Type: entity.EventClicked, HistoryID: id}
	if _, err := h.Ingestor.Execute(r.Context(), ev); err != nil {
		if usecase.DomainCode(err) == usecase.CodeEmailHistoryNotFound {
			writeErrorResponse(w, http.StatusNotFound, usecase.CodeEmailHistoryNotFound, "unknown tracking link")
			return
		}
		// the reader still gets where they were going
		h.logger.Warn("click not recorded", zap.String("email_history_id", id), zap.Error(err))
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func redirectTarget(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
