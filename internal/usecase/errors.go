package usecase

import (
	"errors"
	"fmt"
)

const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeNoValidLeads            = "NO_VALID_LEADS"
	CodeCampaignNotFound        = "CAMPAIGN_NOT_FOUND"
	CodeCampaignLocked          = "CAMPAIGN_LOCKED"
	CodeTemplateNotFound        = "TEMPLATE_NOT_FOUND"
	CodeLeadNotFound            = "LEAD_NOT_FOUND"
	CodeEmailHistoryNotFound    = "EMAIL_HISTORY_NOT_FOUND"
	CodeInvalidUnsubscribeToken = "INVALID_UNSUBSCRIBE_TOKEN"
	CodeUnknownEvent            = "UNKNOWN_EVENT"

	CodeDatabase = "DATABASE_ERROR"
	CodeQueue    = "QUEUE_ERROR"
)

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// DomainCode returns the code of the DomainError wrapped in err, if any.
func DomainCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

type TechnicalError struct {
	Code    string
	Message string
	Err     error
}

func (e *TechnicalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TechnicalError) Unwrap() error {
	return e.Err
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}

func databaseError(msg string, err error) error {
	return &TechnicalError{Code: CodeDatabase, Message: msg, Err: err}
}
