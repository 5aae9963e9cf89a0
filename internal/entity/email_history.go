package entity

import (
	"context"
	"time"
)

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "pending"
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusFailed  EmailStatus = "failed"
	EmailStatusOpened  EmailStatus = "opened"
	EmailStatusClicked EmailStatus = "clicked"
	EmailStatusBounced EmailStatus = "bounced"
)

// EmailHistory is one audited attempt to deliver one email to one lead.
type EmailHistory struct {
	ID               string           `json:"id"`
	CampaignID       string           `json:"campaign_id,omitempty"`
	LeadID           string           `json:"lead_id"`
	TemplateID       string           `json:"template_id,omitempty"`
	Category         TemplateCategory `json:"category"`
	RecipientEmail   string           `json:"recipient_email"`
	RecipientName    string           `json:"recipient_name,omitempty"`
	Subject          string           `json:"subject"`
	Content          string           `json:"-"`
	Status           EmailStatus      `json:"status"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	OpenedAt         *time.Time       `json:"opened_at,omitempty"`
	ClickedAt        *time.Time       `json:"clicked_at,omitempty"`
	BouncedAt        *time.Time       `json:"bounced_at,omitempty"`
	BounceReason     string           `json:"bounce_reason,omitempty"`
	RetryCount       int              `json:"retry_count"`
	MessageUUID      string           `json:"message_uuid"`
	UnsubscribeToken string           `json:"-"`
	EmailProviderID  string           `json:"email_provider_id,omitempty"`
	OpenCount        int              `json:"open_count"`
	ClickCount       int              `json:"click_count"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// RetryOutcome is the result of one retry attempt on a failed send.
type RetryOutcome struct {
	Success    bool
	ProviderID string
	Error      string
	At         time.Time
	GiveUp     bool
}

type EmailHistoryRepositoryInterface interface {
	Create(ctx context.Context, h *EmailHistory) error
	FindByID(ctx context.Context, id string) (*EmailHistory, error)
	FindByProviderID(ctx context.Context, providerID string) (*EmailHistory, error)
	FindByMessageUUID(ctx context.Context, messageUUID string) (*EmailHistory, error)
	FindByUnsubscribeToken(ctx context.Context, token string) (*EmailHistory, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*EmailHistory, error)
	ListByLead(ctx context.Context, leadID string) ([]*EmailHistory, error)
	// PageByCampaign returns one page of a campaign's sends, newest first,
	// with the campaign's total send count.
	PageByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]*EmailHistory, int, error)

	// MarkSent records the provider id and reports whether the row moved
	// from pending/failed to sent (a delivered webhook may have won).
	MarkSent(ctx context.Context, id, providerID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) error
	// The Record*/Mark* engagement writes report whether this call performed
	// the transition, so callers count each transition exactly once.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	RecordOpen(ctx context.Context, id string, at time.Time) (bool, error)
	RecordClick(ctx context.Context, id string, at time.Time) (bool, error)
	MarkBounced(ctx context.Context, id, reason string, at time.Time) (bool, error)

	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*EmailHistory, error)
	// ClaimRetry bumps retry_count if the row is still failed with
	// expectedRetryCount; false means another scheduler got there first.
	ClaimRetry(ctx context.Context, id string, expectedRetryCount int) (bool, error)
	// RecordRetry stores the outcome of a claimed attempt and reports
	// whether the row was still failed.
	RecordRetry(ctx context.Context, id string, outcome RetryOutcome) (bool, error)
	// BounceExhausted bounces failed rows that already used maxRetries
	// attempts and reports how many it moved.
	BounceExhausted(ctx context.Context, maxRetries int, at time.Time) (int, error)
	CampaignStats(ctx context.Context, campaignID string) (*CampaignStats, error)
}
