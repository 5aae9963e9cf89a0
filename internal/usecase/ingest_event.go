package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/metrics"
)

type IngestOutcome string

const (
	OutcomeProcessed IngestOutcome = "processed"
	// OutcomeUnchanged means the event was valid but its transition had
	// already been applied (duplicate delivery).
	OutcomeUnchanged IngestOutcome = "unchanged"
	OutcomeDuplicate IngestOutcome = "duplicate"
)

type IngestResult struct {
	Outcome   IngestOutcome    `json:"outcome"`
	Event     entity.EventType `json:"event"`
	HistoryID string           `json:"email_history_id"`
	LeadID    string           `json:"lead_id"`
}

// IngestEventUseCase applies delivery and engagement events to send records
// and leads. Every write is a first-write-wins conditional update, so the
// same event can be replayed any number of times.
type IngestEventUseCase struct {
	HistoryRepo entity.EmailHistoryRepositoryInterface
	LeadRepo    entity.LeadRepositoryInterface
	Engine      *LeadStatusEngine
	Deduper     Deduper
	Engagement  EngagementConfig
	now         func() time.Time
	logger      *zap.Logger
}

func NewIngestEventUseCase(
	historyRepo entity.EmailHistoryRepositoryInterface,
	leadRepo entity.LeadRepositoryInterface,
	engine *LeadStatusEngine,
	deduper Deduper,
	engagement EngagementConfig,
	logger *zap.Logger,
) *IngestEventUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestEventUseCase{
		HistoryRepo: historyRepo,
		LeadRepo:    leadRepo,
		Engine:      engine,
		Deduper:     deduper,
		Engagement:  engagement,
		now:         utcNow,
		logger:      logger,
	}
}

func (uc *IngestEventUseCase) Execute(ctx context.Context, ev entity.Event) (*IngestResult, error) {
	if !ev.HasKey() {
		return nil, &DomainError{Code: CodeValidation, Message: "event carries no message identifier"}
	}

	h, err := uc.locate(ctx, ev)
	if err != nil {
		if errors.Is(err, entity.ErrEmailHistoryNotFound) {
			metrics.RecordEmailEvent(string(ev.Type), "not_found")
			return nil, &DomainError{Code: CodeEmailHistoryNotFound, Message: "no send record matches the event"}
		}
		return nil, databaseError("locating send record", err)
	}

	result := &IngestResult{Event: ev.Type, HistoryID: h.ID, LeadID: h.LeadID}
	log := uc.logger.With(
		zap.String("event", string(ev.Type)),
		zap.String("email_history_id", h.ID),
		zap.String("lead_id", h.LeadID),
	)

	dedupKey := ""
	if ev.Fingerprint != "" && uc.Deduper != nil {
		dedupKey = "email-event:" + ev.Fingerprint
		if !uc.Deduper.AcquireOnce(ctx, dedupKey) {
			result.Outcome = OutcomeDuplicate
			metrics.RecordEmailEvent(string(ev.Type), string(OutcomeDuplicate))
			log.Debug("duplicate webhook delivery skipped")
			return result, nil
		}
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = uc.now()
	}

	applied, err := uc.apply(ctx, ev, h, at)
	if err != nil {
		if dedupKey != "" {
			uc.Deduper.Release(ctx, dedupKey)
		}
		metrics.RecordEmailEvent(string(ev.Type), "error")
		log.Error("event processing failed", zap.Error(err))
		return nil, err
	}

	result.Outcome = OutcomeUnchanged
	if applied {
		result.Outcome = OutcomeProcessed
	}
	metrics.RecordEmailEvent(string(ev.Type), string(result.Outcome))
	log.Info("email event ingested", zap.String("outcome", string(result.Outcome)))
	return result, nil
}

func (uc *IngestEventUseCase) locate(ctx context.Context, ev entity.Event) (*entity.EmailHistory, error) {
	lookups := []struct {
		key  string
		find func(context.Context, string) (*entity.EmailHistory, error)
	}{
		{ev.ProviderMessageID, uc.HistoryRepo.FindByProviderID},
		{ev.MessageUUID, uc.HistoryRepo.FindByMessageUUID},
		{ev.HistoryID, uc.HistoryRepo.FindByID},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		h, err := l.find(ctx, l.key)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, entity.ErrEmailHistoryNotFound) {
			return nil, err
		}
	}
	return nil, entity.ErrEmailHistoryNotFound
}

// apply reports whether the event caused a state transition.
func (uc *IngestEventUseCase) apply(ctx context.Context, ev entity.Event, h *entity.EmailHistory, at time.Time) (bool, error) {
	switch ev.Type {
	case entity.EventDelivered:
		moved, err := uc.HistoryRepo.MarkDelivered(ctx, h.ID, at)
		if err != nil || !moved {
			return false, wrapDB("marking delivered", err)
		}
		return true, wrapDB("counting delivery", uc.LeadRepo.RecordDelivery(ctx, h.LeadID, at))

	case entity.EventOpened:
		first, err := uc.HistoryRepo.RecordOpen(ctx, h.ID, at)
		if err != nil || !first {
			return false, wrapDB("recording open", err)
		}
		return true, uc.engage(ctx, h, entity.EventOpened, uc.Engagement.OpenDelta)

	case entity.EventClicked:
		first, err := uc.HistoryRepo.RecordClick(ctx, h.ID, at)
		if err != nil || !first {
			return false, wrapDB("recording click", err)
		}
		return true, uc.engage(ctx, h, entity.EventClicked, uc.Engagement.ClickDelta)

	case entity.EventBounced:
		hard := ev.BounceType == entity.BounceHard
		moved, err := uc.HistoryRepo.MarkBounced(ctx, h.ID, ev.Reason, at)
		if err != nil {
			return false, wrapDB("marking bounced", err)
		}
		if moved {
			_, err = uc.LeadRepo.RecordBounce(ctx, h.LeadID, hard)
			return true, wrapDB("recording bounce on lead", err)
		}
		if hard {
			// row already bounced (e.g. retries exhausted); the hard
			// signal still makes the address unreachable
			return false, wrapDB("marking lead unreachable", uc.LeadRepo.MarkUnreachable(ctx, h.LeadID))
		}
		return false, nil

	case entity.EventUnsubscribed:
		_, changed, err := uc.LeadRepo.Unsubscribe(ctx, h.LeadID, at)
		return changed, wrapDB("unsubscribing lead", err)

	default:
		return false, &DomainError{Code: CodeUnknownEvent, Message: fmt.Sprintf("unsupported event type %q", ev.Type)}
	}
}

func (uc *IngestEventUseCase) engage(ctx context.Context, h *entity.EmailHistory, event entity.EventType, delta int) error {
	lead, err := uc.LeadRepo.RecordEngagement(ctx, h.LeadID, event, delta)
	if err != nil {
		return wrapDB("recording engagement", err)
	}
	if _, err := uc.Engine.Apply(ctx, lead, h.Category); err != nil {
		return wrapDB("applying lead rules", err)
	}
	return nil
}

type UnsubscribeResult struct {
	LeadID string `json:"lead_id"`
	Email  string `json:"email"`

	AlreadyUnsubscribed bool `json:"already_unsubscribed"`
}

// Unsubscribe marks the lead behind an unsubscribe token. Repeating the call
// keeps the first unsubscribed_at.
func (uc *IngestEventUseCase) Unsubscribe(ctx context.Context, token string) (*UnsubscribeResult, error) {
	if token == "" {
		return nil, &DomainError{Code: CodeInvalidUnsubscribeToken, Message: "invalid unsubscribe link"}
	}
	h, err := uc.HistoryRepo.FindByUnsubscribeToken(ctx, token)
	if err != nil {
		if errors.Is(err, entity.ErrEmailHistoryNotFound) {
			return nil, &DomainError{Code: CodeInvalidUnsubscribeToken, Message: "invalid unsubscribe link"}
		}
		return nil, databaseError("locating unsubscribe token", err)
	}

	lead, changed, err := uc.LeadRepo.Unsubscribe(ctx, h.LeadID, uc.now())
	if err != nil {
		return nil, databaseError("unsubscribing lead", err)
	}

	outcome := OutcomeUnchanged
	if changed {
		outcome = OutcomeProcessed
		uc.logger.Info("lead unsubscribed", zap.String("lead_id", lead.ID), zap.String("email_history_id", h.ID))
	}
	metrics.RecordEmailEvent("unsubscribe_link", string(outcome))
	return &UnsubscribeResult{LeadID: lead.ID, Email: h.RecipientEmail, AlreadyUnsubscribed: !changed}, nil
}

func wrapDB(msg string, err error) error {
	if err == nil {
		return nil
	}
	return databaseError(msg, err)
}
