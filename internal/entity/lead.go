package entity

import (
	"context"
	"strings"
	"time"
)

type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "new"
	LeadStatusContacted     LeadStatus = "contacted"
	LeadStatusQualified     LeadStatus = "qualified"
	LeadStatusProposal      LeadStatus = "proposal"
	LeadStatusClosed        LeadStatus = "closed"
	LeadStatusLost          LeadStatus = "lost"
	LeadStatusUnresponsive  LeadStatus = "unresponsive"
	LeadStatusContactFailed LeadStatus = "contact_failed"
	LeadStatusUnsubscribed  LeadStatus = "unsubscribed"
)

// IsTerminal reports whether engagement rules may no longer move the lead.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadStatusClosed, LeadStatusContactFailed, LeadStatusUnsubscribed:
		return true
	}
	return false
}

const (
	MinScore = 0
	MaxScore = 100
)

type Lead struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Company            string     `json:"company,omitempty"`
	Status             LeadStatus `json:"status"`
	Score              int        `json:"score"`
	EmailsSentCount    int        `json:"emails_sent_count"`
	EmailsOpenedCount  int        `json:"emails_opened_count"`
	EmailsClickedCount int        `json:"emails_clicked_count"`
	EmailsFailedCount  int        `json:"emails_failed_count"`
	LastContacted      *time.Time `json:"last_contacted,omitempty"`
	LastEmailAt        *time.Time `json:"last_email_at,omitempty"`
	LastTemplateID     string     `json:"last_template_id,omitempty"`
	Unsubscribed       bool       `json:"unsubscribed"`
	UnsubscribedAt     *time.Time `json:"unsubscribed_at,omitempty"`
	Version            int        `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (l *Lead) FirstName() string {
	parts := strings.Fields(l.Name)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func (l *Lead) LastName() string {
	parts := strings.Fields(l.Name)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}

// Targetable reports whether a campaign may still send to the lead.
func (l *Lead) Targetable() bool {
	return !l.Unsubscribed && l.Status != LeadStatusContactFailed && l.Status != LeadStatusUnsubscribed
}

func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ScoreBucket aggregates lead scores for one status.
type ScoreBucket struct {
	Status       LeadStatus `json:"status"`
	Count        int        `json:"count"`
	AverageScore float64    `json:"avg_score"`
}

type LeadRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*Lead, error)
	// FindTargetable returns the targetable leads among ids, in the order given.
	FindTargetable(ctx context.Context, ids []string) ([]*Lead, error)

	// RecordSendSuccess moves the lead to proposal and stamps the contact
	// times; the sent counter only moves when incrementSent is set.
	RecordSendSuccess(ctx context.Context, id, templateID string, at time.Time, incrementSent bool) error
	RecordSendFailure(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, id string, at time.Time) error
	RecordRetrySuccess(ctx context.Context, id string, at time.Time) error
	RecordEngagement(ctx context.Context, id string, event EventType, scoreDelta int) (*Lead, error)
	RecordBounce(ctx context.Context, id string, hard bool) (*Lead, error)
	// MarkUnreachable moves the lead to contact_failed without touching counters.
	MarkUnreachable(ctx context.Context, id string) error
	// Unsubscribe reports whether this call performed the unsubscribe.
	Unsubscribe(ctx context.Context, id string, at time.Time) (*Lead, bool, error)

	// SaveDerived persists status, score and last_contacted if the version
	// still matches, returning ErrConflict otherwise.
	SaveDerived(ctx context.Context, lead *Lead) error
	ListScorable(ctx context.Context, afterID string, limit int) ([]*Lead, error)
	ListHighValue(ctx context.Context, minScore, limit int) ([]*Lead, error)
	// ScoreDistribution returns one bucket per status present, ordered by status.
	ScoreDistribution(ctx context.Context) ([]ScoreBucket, error)
}
