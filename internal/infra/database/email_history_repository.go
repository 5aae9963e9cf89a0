package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xavierca1/leadforge/internal/entity"
)

// the engaged category of a row is its template's category when it has one
const historyColumns = `
	h.id, COALESCE(h.campaign_id::text, ''), h.lead_id, COALESCE(h.template_id::text, ''),
	COALESCE(t.category, h.category),
	h.recipient_email, COALESCE(h.recipient_name, ''), h.subject, h.content, h.status,
	h.sent_at, h.opened_at, h.clicked_at, h.bounced_at, COALESCE(h.bounce_reason, ''),
	h.retry_count, h.message_uuid, h.unsubscribe_token, COALESCE(h.email_provider_id, ''),
	h.open_count, h.click_count, COALESCE(h.error_message, ''), h.created_at, h.updated_at`

const historyFrom = `
	FROM email_history h
	LEFT JOIN email_templates t ON t.id = h.template_id`

const uniqueViolation = "23505"

type EmailHistoryRepository struct {
	DB *sql.DB
}

func NewEmailHistoryRepository(db *sql.DB) *EmailHistoryRepository {
	return &EmailHistoryRepository{DB: db}
}

func scanHistory(row rowScanner) (*entity.EmailHistory, error) {
	var (
		h                                   entity.EmailHistory
		sentAt, openedAt, clickedAt, bounce sql.NullTime
	)
	err := row.Scan(
		&h.ID, &h.CampaignID, &h.LeadID, &h.TemplateID,
		&h.Category,
		&h.RecipientEmail, &h.RecipientName, &h.Subject, &h.Content, &h.Status,
		&sentAt, &openedAt, &clickedAt, &bounce, &h.BounceReason,
		&h.RetryCount, &h.MessageUUID, &h.UnsubscribeToken, &h.EmailProviderID,
		&h.OpenCount, &h.ClickCount, &h.ErrorMessage, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrEmailHistoryNotFound
		}
		return nil, err
	}
	h.SentAt = timePtr(sentAt)
	h.OpenedAt = timePtr(openedAt)
	h.ClickedAt = timePtr(clickedAt)
	h.BouncedAt = timePtr(bounce)
	return &h, nil
}

func (r *EmailHistoryRepository) Create(ctx context.Context, h *entity.EmailHistory) error {
	query := `
		INSERT INTO email_history (
			id, campaign_id, lead_id, template_id, category,
			recipient_email, recipient_name, subject, content, status,
			message_uuid, unsubscribe_token, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`

	_, err := r.DB.ExecContext(ctx, query,
		h.ID, nullString(h.CampaignID), h.LeadID, nullString(h.TemplateID), h.Category,
		h.RecipientEmail, nullString(h.RecipientName), h.Subject, h.Content, h.Status,
		h.MessageUUID, h.UnsubscribeToken, h.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation &&
			(strings.Contains(pgErr.ConstraintName, "message_uuid") || strings.Contains(pgErr.ConstraintName, "unsubscribe_token")) {
			return fmt.Errorf("%w: %s", entity.ErrDuplicateToken, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}

func (r *EmailHistoryRepository) findOne(ctx context.Context, where string, arg string) (*entity.EmailHistory, error) {
	query := `SELECT ` + historyColumns + historyFrom + ` WHERE ` + where + ` LIMIT 1`
	return scanHistory(r.DB.QueryRowContext(ctx, query, arg))
}

func (r *EmailHistoryRepository) FindByID(ctx context.Context, id string) (*entity.EmailHistory, error) {
	if !validID(id) {
		return nil, entity.ErrEmailHistoryNotFound
	}
	return r.findOne(ctx, `h.id = $1`, id)
}

func (r *EmailHistoryRepository) FindByProviderID(ctx context.Context, providerID string) (*entity.EmailHistory, error) {
	return r.findOne(ctx, `h.email_provider_id = $1`, providerID)
}

func (r *EmailHistoryRepository) FindByMessageUUID(ctx context.Context, messageUUID string) (*entity.EmailHistory, error) {
	if !validID(messageUUID) {
		return nil, entity.ErrEmailHistoryNotFound
	}
	return r.findOne(ctx, `h.message_uuid = $1`, messageUUID)
}

func (r *EmailHistoryRepository) FindByUnsubscribeToken(ctx context.Context, token string) (*entity.EmailHistory, error) {
	if !validID(token) {
		return nil, entity.ErrEmailHistoryNotFound
	}
	return r.findOne(ctx, `h.unsubscribe_token = $1`, token)
}

func (r *EmailHistoryRepository) list(ctx context.Context, query string, args ...any) ([]*entity.EmailHistory, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.EmailHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *EmailHistoryRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*entity.EmailHistory, error) {
	query := `SELECT ` + historyColumns + historyFrom + ` WHERE h.campaign_id = $1 ORDER BY h.created_at`
	return r.list(ctx, query, campaignID)
}

func (r *EmailHistoryRepository) PageByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]*entity.EmailHistory, int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_history WHERE campaign_id = $1`, campaignID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return nil, total, nil
	}

	query := `SELECT ` + historyColumns + historyFrom + `
		WHERE h.campaign_id = $1
		ORDER BY h.created_at DESC, h.id
		LIMIT $2 OFFSET $3`
	rows, err := r.list(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *EmailHistoryRepository) ListByLead(ctx context.Context, leadID string) ([]*entity.EmailHistory, error) {
	query := `SELECT ` + historyColumns + historyFrom + ` WHERE h.lead_id = $1 ORDER BY h.created_at`
	return r.list(ctx, query, leadID)
}

func (r *EmailHistoryRepository) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *EmailHistoryRepository) MarkSent(ctx context.Context, id, providerID string, at time.Time) (bool, error) {
	query := `
		WITH prev AS (
			SELECT id, status FROM email_history WHERE id = $1 FOR UPDATE
		)
		UPDATE email_history AS h SET
			email_provider_id = $2,
			sent_at = COALESCE(h.sent_at, $3),
			status = CASE WHEN prev.status IN ('pending', 'failed') THEN 'sent' ELSE h.status END,
			error_message = CASE WHEN prev.status IN ('pending', 'failed') THEN NULL ELSE h.error_message END,
			updated_at = NOW()
		FROM prev
		WHERE h.id = prev.id
		RETURNING prev.status IN ('pending', 'failed')`

	var moved bool
	err := r.DB.QueryRowContext(ctx, query, id, nullString(providerID), at).Scan(&moved)
	if errors.Is(err, sql.ErrNoRows) {
		return false, entity.ErrEmailHistoryNotFound
	}
	return moved, err
}

func (r *EmailHistoryRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE email_history SET
			status = 'failed',
			error_message = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	_, err := r.DB.ExecContext(ctx, query, id, nullString(reason))
	return err
}

func (r *EmailHistoryRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE email_history SET
			status = 'sent',
			sent_at = COALESCE(sent_at, $2),
			error_message = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')`
	return r.execOne(ctx, query, id, at)
}

// RecordOpen always counts the open; only the first one stamps opened_at.
func (r *EmailHistoryRepository) RecordOpen(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		WITH prev AS (
			SELECT id, opened_at FROM email_history WHERE id = $1 FOR UPDATE
		)
		UPDATE email_history AS h SET
			open_count = h.open_count + 1,
			opened_at = COALESCE(h.opened_at, $2),
			status = CASE WHEN prev.opened_at IS NULL AND h.status IN ('pending', 'sent', 'failed')
				THEN 'opened' ELSE h.status END,
			updated_at = NOW()
		FROM prev
		WHERE h.id = prev.id
		RETURNING prev.opened_at IS NULL`
	return r.firstWrite(ctx, query, id, at)
}

// RecordClick always counts the click; only the first one stamps clicked_at.
func (r *EmailHistoryRepository) RecordClick(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		WITH prev AS (
			SELECT id, clicked_at FROM email_history WHERE id = $1 FOR UPDATE
		)
		UPDATE email_history AS h SET
			click_count = h.click_count + 1,
			clicked_at = COALESCE(h.clicked_at, $2),
			status = CASE WHEN prev.clicked_at IS NULL AND h.status <> 'bounced'
				THEN 'clicked' ELSE h.status END,
			updated_at = NOW()
		FROM prev
		WHERE h.id = prev.id
		RETURNING prev.clicked_at IS NULL`
	return r.firstWrite(ctx, query, id, at)
}

func (r *EmailHistoryRepository) firstWrite(ctx context.Context, query, id string, at time.Time) (bool, error) {
	var first bool
	err := r.DB.QueryRowContext(ctx, query, id, at).Scan(&first)
	if errors.Is(err, sql.ErrNoRows) {
		return false, entity.ErrEmailHistoryNotFound
	}
	return first, err
}

func (r *EmailHistoryRepository) MarkBounced(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE email_history SET
			status = 'bounced',
			bounced_at = COALESCE(bounced_at, $3),
			bounce_reason = COALESCE($2, bounce_reason),
			updated_at = NOW()
		WHERE id = $1 AND status <> 'bounced'`
	return r.execOne(ctx, query, id, nullString(reason), at)
}

func (r *EmailHistoryRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*entity.EmailHistory, error) {
	query := `SELECT ` + historyColumns + historyFrom + `
		JOIN leads l ON l.id = h.lead_id
		WHERE h.status = 'failed'
		  AND h.retry_count < $1
		  AND l.unsubscribed = FALSE
		  AND l.status NOT IN ` + untargetable + `
		ORDER BY h.retry_count ASC, h.created_at ASC
		LIMIT $2`
	return r.list(ctx, query, maxRetries, limit)
}

func (r *EmailHistoryRepository) ClaimRetry(ctx context.Context, id string, expectedRetryCount int) (bool, error) {
	query := `
		UPDATE email_history SET
			retry_count = retry_count + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'failed' AND retry_count = $2`
	return r.execOne(ctx, query, id, expectedRetryCount)
}

func (r *EmailHistoryRepository) RecordRetry(ctx context.Context, id string, outcome entity.RetryOutcome) (bool, error) {
	if outcome.Success {
		query := `
			UPDATE email_history SET
				status = 'sent',
				sent_at = $2,
				email_provider_id = $3,
				error_message = NULL,
				updated_at = NOW()
			WHERE id = $1 AND status = 'failed'`
		return r.execOne(ctx, query, id, outcome.At, nullString(outcome.ProviderID))
	}

	query := `
		UPDATE email_history SET
			error_message = $2,
			status = CASE WHEN $3 THEN 'bounced' ELSE status END,
			bounced_at = CASE WHEN $3 THEN $4 ELSE bounced_at END,
			bounce_reason = CASE WHEN $3 THEN 'max retries exceeded' ELSE bounce_reason END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`
	return r.execOne(ctx, query, id, nullString(outcome.Error), outcome.GiveUp, outcome.At)
}

func (r *EmailHistoryRepository) BounceExhausted(ctx context.Context, maxRetries int, at time.Time) (int, error) {
	query := `
		UPDATE email_history SET
			status = 'bounced',
			bounced_at = COALESCE(bounced_at, $2),
			bounce_reason = 'max retries exceeded',
			updated_at = NOW()
		WHERE status = 'failed' AND retry_count >= $1`
	res, err := r.DB.ExecContext(ctx, query, maxRetries, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *EmailHistoryRepository) CampaignStats(ctx context.Context, campaignID string) (*entity.CampaignStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status IN ('sent', 'opened', 'clicked')),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE opened_at IS NOT NULL),
			COUNT(*) FILTER (WHERE clicked_at IS NOT NULL),
			COUNT(*) FILTER (WHERE status = 'bounced')
		FROM email_history
		WHERE campaign_id = $1`

	var s entity.CampaignStats
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(
		&s.Total, &s.Pending, &s.Sent, &s.Failed, &s.Opened, &s.Clicked, &s.Bounced,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
