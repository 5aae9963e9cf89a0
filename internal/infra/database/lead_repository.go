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

const leadColumns = `
	l.id, l.email, COALESCE(l.name, ''), COALESCE(l.phone, ''), COALESCE(l.company, ''),
	l.status, l.score,
	l.emails_sent_count, l.emails_opened_count, l.emails_clicked_count, l.emails_failed_count,
	l.last_contacted, l.last_email_at, COALESCE(l.last_template_id::text, ''),
	l.unsubscribed, l.unsubscribed_at, l.version, l.created_at, l.updated_at`

// statuses a campaign may no longer target
const untargetable = `('contact_failed', 'unsubscribed')`

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

func scanLead(row rowScanner, extra ...any) (*entity.Lead, error) {
	var (
		l                                         entity.Lead
		lastContacted, lastEmailAt, unsubscribedAt sql.NullTime
	)
	dest := []any{
		&l.ID, &l.Email, &l.Name, &l.Phone, &l.Company,
		&l.Status, &l.Score,
		&l.EmailsSentCount, &l.EmailsOpenedCount, &l.EmailsClickedCount, &l.EmailsFailedCount,
		&lastContacted, &lastEmailAt, &l.LastTemplateID,
		&l.Unsubscribed, &unsubscribedAt, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrLeadNotFound
		}
		return nil, err
	}
	l.LastContacted = timePtr(lastContacted)
	l.LastEmailAt = timePtr(lastEmailAt)
	l.UnsubscribedAt = timePtr(unsubscribedAt)
	return &l, nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	if !validID(id) {
		return nil, entity.ErrLeadNotFound
	}
	query := `SELECT ` + leadColumns + ` FROM leads l WHERE l.id = $1`
	return scanLead(r.DB.QueryRowContext(ctx, query, id))
}

func (r *LeadRepository) FindTargetable(ctx context.Context, ids []string) ([]*entity.Lead, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	query := `SELECT ` + leadColumns + `
		FROM leads l
		WHERE l.id = ANY($1::uuid[])
		  AND l.unsubscribed = FALSE
		  AND l.status NOT IN ` + untargetable
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(valid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*entity.Lead, len(valid))
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		byID[l.ID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	leads := make([]*entity.Lead, 0, len(byID))
	for _, id := range valid {
		if l, ok := byID[id]; ok {
			leads = append(leads, l)
			delete(byID, id)
		}
	}
	return leads, nil
}

func (r *LeadRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return entity.ErrLeadNotFound
	}
	return nil
}

func (r *LeadRepository) RecordSendSuccess(ctx context.Context, id, templateID string, at time.Time, incrementSent bool) error {
	query := `
		UPDATE leads SET
			status = CASE WHEN status IN ('closed', 'contact_failed', 'unsubscribed') THEN status ELSE 'proposal' END,
			last_contacted = $2,
			last_email_at = $2,
			last_template_id = COALESCE($3::uuid, last_template_id),
			emails_sent_count = emails_sent_count + CASE WHEN $4 THEN 1 ELSE 0 END,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, query, id, at, nullString(templateID), incrementSent)
}

func (r *LeadRepository) RecordSendFailure(ctx context.Context, id string) error {
	query := `
		UPDATE leads SET
			emails_failed_count = emails_failed_count + 1,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *LeadRepository) RecordDelivery(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE leads SET
			emails_sent_count = emails_sent_count + 1,
			last_email_at = GREATEST(COALESCE(last_email_at, $2), $2),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, query, id, at)
}

func (r *LeadRepository) RecordRetrySuccess(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE leads SET
			emails_sent_count = emails_sent_count + 1,
			emails_failed_count = GREATEST(emails_failed_count - 1, 0),
			last_contacted = $2,
			last_email_at = $2,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, query, id, at)
}

func (r *LeadRepository) RecordEngagement(ctx context.Context, id string, event entity.EventType, scoreDelta int) (*entity.Lead, error) {
	var opened, clicked int
	switch event {
	case entity.EventOpened:
		opened = 1
	case entity.EventClicked:
		clicked = 1
	default:
		return nil, fmt.Errorf("event %q carries no engagement", event)
	}

	query := `
		UPDATE leads AS l SET
			emails_opened_count = l.emails_opened_count + $2,
			emails_clicked_count = l.emails_clicked_count + $3,
			score = LEAST(100, GREATEST(0, l.score + $4)),
			version = l.version + 1,
			updated_at = NOW()
		WHERE l.id = $1
		RETURNING ` + leadColumns
	return scanLead(r.DB.QueryRowContext(ctx, query, id, opened, clicked, scoreDelta))
}

func (r *LeadRepository) RecordBounce(ctx context.Context, id string, hard bool) (*entity.Lead, error) {
	query := `
		UPDATE leads AS l SET
			emails_failed_count = l.emails_failed_count + 1,
			status = CASE WHEN $2 AND NOT l.unsubscribed AND l.status <> 'unsubscribed'
				THEN 'contact_failed' ELSE l.status END,
			version = l.version + 1,
			updated_at = NOW()
		WHERE l.id = $1
		RETURNING ` + leadColumns
	return scanLead(r.DB.QueryRowContext(ctx, query, id, hard))
}

func (r *LeadRepository) MarkUnreachable(ctx context.Context, id string) error {
	query := `
		UPDATE leads SET
			status = 'contact_failed',
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
		  AND unsubscribed = FALSE
		  AND status NOT IN ` + untargetable
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func (r *LeadRepository) Unsubscribe(ctx context.Context, id string, at time.Time) (*entity.Lead, bool, error) {
	query := `
		WITH prev AS (
			SELECT id, unsubscribed FROM leads WHERE id = $1 FOR UPDATE
		)
		UPDATE leads AS l SET
			unsubscribed = TRUE,
			unsubscribed_at = COALESCE(l.unsubscribed_at, $2),
			status = 'unsubscribed',
			version = l.version + CASE WHEN prev.unsubscribed THEN 0 ELSE 1 END,
			updated_at = NOW()
		FROM prev
		WHERE l.id = prev.id
		RETURNING ` + leadColumns + `, NOT prev.unsubscribed`

	var changed bool
	lead, err := scanLead(r.DB.QueryRowContext(ctx, query, id, at), &changed)
	if err != nil {
		return nil, false, err
	}
	return lead, changed, nil
}

func (r *LeadRepository) SaveDerived(ctx context.Context, lead *entity.Lead) error {
	query := `
		UPDATE leads SET
			status = $2,
			score = $3,
			last_contacted = $4,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $5
		RETURNING version, updated_at`

	err := r.DB.QueryRowContext(ctx, query,
		lead.ID, lead.Status, entity.ClampScore(lead.Score), lead.LastContacted, lead.Version,
	).Scan(&lead.Version, &lead.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		found, ferr := exists(ctx, r.DB, "leads", lead.ID)
		if ferr != nil {
			return ferr
		}
		if !found {
			return entity.ErrLeadNotFound
		}
		return entity.ErrConflict
	}
	return err
}

func (r *LeadRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*entity.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (r *LeadRepository) ListScorable(ctx context.Context, afterID string, limit int) ([]*entity.Lead, error) {
	base := `SELECT ` + leadColumns + `
		FROM leads l
		WHERE l.unsubscribed = FALSE
		  AND l.status NOT IN ('closed', 'contact_failed', 'unsubscribed')`
	if afterID == "" {
		return r.list(ctx, base+` ORDER BY l.id LIMIT $1`, limit)
	}
	return r.list(ctx, base+` AND l.id > $1 ORDER BY l.id LIMIT $2`, afterID, limit)
}

func (r *LeadRepository) ListHighValue(ctx context.Context, minScore, limit int) ([]*entity.Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads l
		WHERE l.score >= $1
		  AND l.unsubscribed = FALSE
		  AND l.status NOT IN ('closed', 'contact_failed', 'unsubscribed')
		ORDER BY l.score DESC, l.last_email_at DESC NULLS LAST
		LIMIT $2`
	return r.list(ctx, query, minScore, limit)
}

func (r *LeadRepository) ScoreDistribution(ctx context.Context) ([]entity.ScoreBucket, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(AVG(score), 0)::float8
		FROM leads
		GROUP BY status
		ORDER BY status`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ScoreBucket
	for rows.Next() {
		var b entity.ScoreBucket
		if err := rows.Scan(&b.Status, &b.Count, &b.AverageScore); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
