package entity

import (
	"context"
	"time"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// IsMutable reports whether the API may still edit the campaign.
func (s CampaignStatus) IsMutable() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

// IsRunnable reports whether a run job may (re)enter the send loop.
// A campaign already in sending is resumed after a crash or redelivery.
func (s CampaignStatus) IsRunnable() bool {
	return s.IsMutable() || s == CampaignStatusSending
}

// CanTransitionTo enforces draft/scheduled -> sending -> completed|failed.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft:
		return next == CampaignStatusScheduled || next == CampaignStatusSending || next == CampaignStatusFailed
	case CampaignStatusScheduled:
		return next == CampaignStatusSending || next == CampaignStatusFailed
	case CampaignStatusSending:
		return next == CampaignStatusCompleted || next == CampaignStatusFailed
	}
	return false
}

type Campaign struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Subject          string           `json:"subject"`
	Content          string           `json:"content"`
	Category         TemplateCategory `json:"category"`
	Tone             Tone             `json:"tone"`
	TemplateID       string           `json:"template_id,omitempty"`
	CustomSubject    bool             `json:"custom_subject"`
	CustomContent    bool             `json:"custom_content"`
	Status           CampaignStatus   `json:"status"`
	ScheduledAt      *time.Time       `json:"scheduled_at,omitempty"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	EnqueuedAt       *time.Time       `json:"-"`
	EmailsSent       int              `json:"emails_sent"`
	EmailsFailed     int              `json:"emails_failed"`
	TotalRecipients  int              `json:"total_recipients"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type CampaignStats struct {
	Total   int `json:"total_emails"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
	Bounced int `json:"bounced"`
}

type CampaignRepositoryInterface interface {
	// Create stores the campaign and its ordered target list.
	Create(ctx context.Context, c *Campaign, leadIDs []string) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Campaign, error)
	TargetLeadIDs(ctx context.Context, campaignID string) ([]string, error)
	// Update rewrites the editable fields, failing with ErrCampaignLocked
	// once the campaign left draft/scheduled.
	Update(ctx context.Context, c *Campaign) error
	MarkSending(ctx context.Context, id string, at time.Time) (*Campaign, error)
	Complete(ctx context.Context, id string, sent, failed int, at time.Time) error
	Fail(ctx context.Context, id, reason string, at time.Time) error
	// ClaimDue marks due scheduled campaigns as enqueued and returns their ids.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	ReleaseClaim(ctx context.Context, id string) error
}
