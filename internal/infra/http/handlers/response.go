package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/usecase"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// positiveQueryInt reads an optional positive integer query parameter,
// returning 0 when it is absent.
func positiveQueryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func statusForCode(code string) int {
	switch code {
	case usecase.CodeValidation, usecase.CodeUnknownEvent:
		return http.StatusBadRequest
	case usecase.CodeNoValidLeads,
		usecase.CodeCampaignNotFound,
		usecase.CodeTemplateNotFound,
		usecase.CodeLeadNotFound,
		usecase.CodeEmailHistoryNotFound,
		usecase.CodeInvalidUnsubscribeToken:
		return http.StatusNotFound
	case usecase.CodeCampaignLocked:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeUseCaseError translates use case errors to the JSON error body.
// Technical details are logged, never returned to the caller.
func writeUseCaseError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var de *usecase.DomainError
	if errors.As(err, &de) {
		writeErrorResponse(w, statusForCode(de.Code), de.Code, de.Message)
		return
	}

	code := "INTERNAL_ERROR"
	message := "internal error"
	var te *usecase.TechnicalError
	if errors.As(err, &te) {
		code, message = te.Code, te.Message
	}
	logger.Error("request failed", zap.String("code", code), zap.Error(err))
	writeErrorResponse(w, http.StatusInternalServerError, code, message)
}
