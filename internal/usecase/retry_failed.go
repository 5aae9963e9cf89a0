package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/mail"
	"github.com/xavierca1/leadforge/internal/infra/metrics"
)

type RetrySummary struct {
	Candidates int `json:"candidates"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	GaveUp     int `json:"gave_up"`
	Skipped    int `json:"skipped"`
	// Exhausted counts failed rows bounced before the batch because they
	// had already used every attempt.
	Exhausted int `json:"exhausted"`
}

// Backoff returns the delay before the given 1-based attempt, holding the
// last table entry for attempts beyond the table.
func Backoff(table []time.Duration, attempt int) time.Duration {
	if len(table) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(table) {
		i = len(table) - 1
	}
	return table[i]
}

// RetryFailedEmailsUseCase re-sends failed send records with their stored
// content. A row is bounced once it has used MaxRetries attempts.
type RetryFailedEmailsUseCase struct {
	HistoryRepo entity.EmailHistoryRepositoryInterface
	LeadRepo    entity.LeadRepositoryInterface
	Mailer      MailDispatcher
	Config      RetryConfig
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
	logger      *zap.Logger
}

func NewRetryFailedEmailsUseCase(
	historyRepo entity.EmailHistoryRepositoryInterface,
	leadRepo entity.LeadRepositoryInterface,
	mailer MailDispatcher,
	cfg RetryConfig,
	logger *zap.Logger,
) *RetryFailedEmailsUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryFailedEmailsUseCase{
		HistoryRepo: historyRepo,
		LeadRepo:    leadRepo,
		Mailer:      mailer,
		Config:      cfg,
		now:         utcNow,
		sleep:       sleepCtx,
		logger:      logger,
	}
}

// Execute processes one batch. It stops between rows when ctx is cancelled.
func (uc *RetryFailedEmailsUseCase) Execute(ctx context.Context) (*RetrySummary, error) {
	exhausted, err := uc.HistoryRepo.BounceExhausted(ctx, uc.Config.MaxRetries, uc.now())
	if err != nil {
		return nil, databaseError("bouncing exhausted sends", err)
	}
	for i := 0; i < exhausted; i++ {
		metrics.RecordRetry(string(retryGaveUp))
	}
	if exhausted > 0 {
		uc.logger.Warn("bounced sends left failed with no attempts remaining", zap.Int("count", exhausted))
	}

	rows, err := uc.HistoryRepo.ListRetryable(ctx, uc.Config.MaxRetries, uc.Config.BatchSize)
	if err != nil {
		return nil, databaseError("listing retryable sends", err)
	}

	summary := &RetrySummary{Candidates: len(rows), Exhausted: exhausted}
	for i, h := range rows {
		if i > 0 {
			if err := uc.sleep(ctx, uc.Config.Pause); err != nil {
				return summary, err
			}
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome, err := uc.retryOne(ctx, h)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			summary.Failed++
			uc.logger.Error("retry failed", zap.String("email_history_id", h.ID), zap.Error(err))
			continue
		}
		switch outcome {
		case retrySucceeded:
			summary.Succeeded++
		case retryFailed:
			summary.Failed++
		case retryGaveUp:
			summary.GaveUp++
		case retrySkipped:
			summary.Skipped++
		}
		metrics.RecordRetry(string(outcome))
	}

	if summary.Candidates > 0 {
		uc.logger.Info("retry batch finished",
			zap.Int("candidates", summary.Candidates),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("gave_up", summary.GaveUp),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary, nil
}

type retryResult string

const (
	retrySucceeded retryResult = "succeeded"
	retryFailed    retryResult = "failed"
	retryGaveUp    retryResult = "gave_up"
	retrySkipped   retryResult = "skipped"
)

func (uc *RetryFailedEmailsUseCase) retryOne(ctx context.Context, h *entity.EmailHistory) (res retryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry panicked: %v", r)
		}
	}()

	attempt := h.RetryCount + 1
	log := uc.logger.With(zap.String("email_history_id", h.ID), zap.Int("attempt", attempt))

	// a cancelled wait must not spend an attempt, so claim only afterwards
	if err := uc.sleep(ctx, Backoff(uc.Config.Backoff, attempt)); err != nil {
		return "", err
	}

	// claiming bumps retry_count, so a concurrent scheduler that read the
	// same row cannot send this attempt a second time
	claimed, err := uc.HistoryRepo.ClaimRetry(ctx, h.ID, h.RetryCount)
	if err != nil {
		return "", databaseError("claiming retry", err)
	}
	if !claimed {
		log.Debug("retry claimed elsewhere")
		return retrySkipped, nil
	}

	// A claimed attempt always runs to its recorded outcome.
	ctx = context.WithoutCancel(ctx)
	sent := uc.Mailer.Send(ctx, mail.OutboundEmail{
		To:        h.RecipientEmail,
		ToName:    h.RecipientName,
		Subject:   h.Subject,
		HTML:      h.Content,
		Text:      mail.StripHTML(h.Content),
		MessageID: h.MessageUUID,
	})

	now := uc.now()
	outcome := entity.RetryOutcome{
		Success:    sent.Success,
		ProviderID: sent.ProviderMessageID,
		Error:      sent.Error,
		At:         now,
		GiveUp:     !sent.Success && attempt >= uc.Config.MaxRetries,
	}
	recorded, err := uc.HistoryRepo.RecordRetry(ctx, h.ID, outcome)
	if err != nil {
		return "", databaseError("recording retry outcome", err)
	}

	switch {
	case sent.Success:
		if recorded {
			if err := uc.LeadRepo.RecordRetrySuccess(ctx, h.LeadID, now); err != nil {
				log.Error("could not update lead after retry", zap.Error(err))
			}
		}
		log.Info("retry succeeded")
		return retrySucceeded, nil
	case outcome.GiveUp:
		log.Warn("retries exhausted, send bounced", zap.String("error", sent.Error))
		return retryGaveUp, nil
	default:
		log.Info("retry failed, will try again", zap.String("error", sent.Error))
		return retryFailed, nil
	}
}
