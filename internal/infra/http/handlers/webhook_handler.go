package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/usecase"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	maxWebhookBody  = 1 << 20
)

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		EmailProviderID string     `json:"email_provider_id"`
		MessageUUID     string     `json:"message_uuid"`
		Reason          string     `json:"reason"`
		BounceType      string     `json:"bounce_type"`
		Timestamp       *time.Time `json:"timestamp"`
	} `json:"data"`
}

type WebhookResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

type WebhookHandler struct {
	Ingestor eventIngestor
	Secret   string
	logger   *zap.Logger
}

func NewWebhookHandler(ingestor eventIngestor, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{Ingestor: ingestor, Secret: secret, logger: logger}
}

// Handle (POST /api/webhooks/email-events) ingests one provider event.
// Unknown event names are acknowledged so the provider stops retrying.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_BODY", "could not read body")
		return
	}

	if h.Secret != "" && !validSignature(h.Secret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook rejected: bad signature")
		writeErrorResponse(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid webhook signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Event == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "malformed webhook payload")
		return
	}

	eventType, ok := entity.ParseEventType(payload.Event)
	if !ok {
		h.logger.Warn("unknown webhook event ignored", zap.String("event", payload.Event))
		writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Status: "ignored"})
		return
	}

	ev := entity.Event{
		Type:              eventType,
		ProviderMessageID: payload.Data.EmailProviderID,
		MessageUUID:       payload.Data.MessageUUID,
		Reason:            payload.Data.Reason,
		BounceType:        entity.BounceType(payload.Data.BounceType),
		Fingerprint:       fingerprint(body),
	}
	if payload.Data.Timestamp != nil {
		ev.OccurredAt = payload.Data.Timestamp.UTC()
	}
	if !ev.HasKey() {
		writeErrorResponse(w, http.StatusBadRequest, usecase.CodeValidation, "email_provider_id or message_uuid is required")
		return
	}

	result, err := h.Ingestor.Execute(r.Context(), ev)
	if err != nil {
		writeUseCaseError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Success: true, Status: string(result.Outcome)})
}

func validSignature(secret string, body []byte, got string) bool {
	sig, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
