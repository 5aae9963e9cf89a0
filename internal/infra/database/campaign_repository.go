package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/xavierca1/leadforge/internal/entity"
)

const campaignColumns = `
	id, name, subject, content, category, tone, COALESCE(template_id::text, ''),
	custom_subject, custom_content, status,
	scheduled_at, sent_at, completed_at, enqueued_at,
	emails_sent, emails_failed, total_recipients, COALESCE(error_message, ''),
	created_at, updated_at`

type CampaignRepository struct {
	DB *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{DB: db}
}

func scanCampaign(row rowScanner) (*entity.Campaign, error) {
	var (
		c                                         entity.Campaign
		scheduledAt, sentAt, completedAt, enqueued sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.Content, &c.Category, &c.Tone, &c.TemplateID,
		&c.CustomSubject, &c.CustomContent, &c.Status,
		&scheduledAt, &sentAt, &completedAt, &enqueued,
		&c.EmailsSent, &c.EmailsFailed, &c.TotalRecipients, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrCampaignNotFound
		}
		return nil, err
	}
	c.ScheduledAt = timePtr(scheduledAt)
	c.SentAt = timePtr(sentAt)
	c.CompletedAt = timePtr(completedAt)
	c.EnqueuedAt = timePtr(enqueued)
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *entity.Campaign, leadIDs []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO email_campaigns (
			id, name, subject, content, category, tone, template_id,
			custom_subject, custom_content, status, scheduled_at, total_recipients,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`
	_, err = tx.ExecContext(ctx, query,
		c.ID, c.Name, c.Subject, c.Content, c.Category, c.Tone, nullString(c.TemplateID),
		c.CustomSubject, c.CustomContent, c.Status, c.ScheduledAt, len(leadIDs),
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting campaign: %w", err)
	}

	targets := `
		INSERT INTO campaign_leads (campaign_id, lead_id, position)
		SELECT $1, t.lead_id::uuid, t.position
		FROM unnest($2::text[]) WITH ORDINALITY AS t(lead_id, position)`
	if _, err := tx.ExecContext(ctx, targets, c.ID, pq.Array(leadIDs)); err != nil {
		return fmt.Errorf("inserting campaign targets: %w", err)
	}

	return tx.Commit()
}

func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM email_campaigns WHERE id = $1`, id)
	return err
}

func (r *CampaignRepository) FindByID(ctx context.Context, id string) (*entity.Campaign, error) {
	if !validID(id) {
		return nil, entity.ErrCampaignNotFound
	}
	query := `SELECT ` + campaignColumns + ` FROM email_campaigns WHERE id = $1`
	return scanCampaign(r.DB.QueryRowContext(ctx, query, id))
}

func (r *CampaignRepository) TargetLeadIDs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT lead_id::text FROM campaign_leads WHERE campaign_id = $1 ORDER BY position`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// missingOr distinguishes "no such campaign" from "guard not satisfied"
// after a conditional update touched no row.
func (r *CampaignRepository) missingOr(ctx context.Context, id string, guardErr error) error {
	found, err := exists(ctx, r.DB, "email_campaigns", id)
	if err != nil {
		return err
	}
	if !found {
		return entity.ErrCampaignNotFound
	}
	return guardErr
}

func (r *CampaignRepository) Update(ctx context.Context, c *entity.Campaign) error {
	if !validID(c.ID) {
		return entity.ErrCampaignNotFound
	}
	query := `
		UPDATE email_campaigns SET
			name = $2,
			subject = $3,
			content = $4,
			custom_subject = $5,
			custom_content = $6,
			scheduled_at = $7,
			enqueued_at = CASE WHEN scheduled_at IS DISTINCT FROM $7 THEN NULL ELSE enqueued_at END,
			status = $8,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'scheduled')
		RETURNING updated_at`
	err := r.DB.QueryRowContext(ctx, query,
		c.ID, c.Name, c.Subject, c.Content, c.CustomSubject, c.CustomContent, c.ScheduledAt, c.Status,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.missingOr(ctx, c.ID, entity.ErrCampaignLocked)
	}
	return err
}

func (r *CampaignRepository) MarkSending(ctx context.Context, id string, at time.Time) (*entity.Campaign, error) {
	query := `
		UPDATE email_campaigns SET
			status = 'sending',
			sent_at = COALESCE(sent_at, $2),
			error_message = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'scheduled', 'sending')
		RETURNING ` + campaignColumns
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, at))
	if errors.Is(err, entity.ErrCampaignNotFound) {
		return nil, r.missingOr(ctx, id, entity.ErrCampaignNotRunnable)
	}
	return c, err
}

func (r *CampaignRepository) Complete(ctx context.Context, id string, sent, failed int, at time.Time) error {
	query := `
		UPDATE email_campaigns SET
			status = 'completed',
			emails_sent = $2,
			emails_failed = $3,
			completed_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = 'sending'`
	res, err := r.DB.ExecContext(ctx, query, id, sent, failed, at)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil || ok {
		return err
	}
	return r.missingOr(ctx, id, entity.ErrCampaignNotRunnable)
}

func (r *CampaignRepository) Fail(ctx context.Context, id, reason string, at time.Time) error {
	query := `
		UPDATE email_campaigns SET
			status = 'failed',
			error_message = $2,
			completed_at = $3,
			updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`
	res, err := r.DB.ExecContext(ctx, query, id, reason, at)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil || ok {
		return err
	}
	return r.missingOr(ctx, id, nil)
}

func (r *CampaignRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		UPDATE email_campaigns SET
			enqueued_at = $1,
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM email_campaigns
			WHERE status = 'scheduled' AND scheduled_at <= $1 AND enqueued_at IS NULL
			ORDER BY scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND enqueued_at IS NULL
		RETURNING id`
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CampaignRepository) ReleaseClaim(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE email_campaigns SET enqueued_at = NULL, updated_at = NOW() WHERE id = $1 AND status = 'scheduled'`, id)
	return err
}
