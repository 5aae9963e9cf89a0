package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/xavierca1/leadforge/internal/entity"
)

type EmailTemplateRepository struct {
	DB *sql.DB
}

func NewEmailTemplateRepository(db *sql.DB) *EmailTemplateRepository {
	return &EmailTemplateRepository{DB: db}
}

func (r *EmailTemplateRepository) FindByID(ctx context.Context, id string) (*entity.EmailTemplate, error) {
	if !validID(id) {
		return nil, entity.ErrTemplateNotFound
	}
	query := `
		SELECT id, name, subject, content, category, tone, usage_count, last_used_at, created_at
		FROM email_templates
		WHERE id = $1`

	var (
		t        entity.EmailTemplate
		lastUsed sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Subject, &t.Content, &t.Category, &t.Tone, &t.UsageCount, &lastUsed, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrTemplateNotFound
		}
		return nil, err
	}
	t.LastUsedAt = timePtr(lastUsed)

	// stored rows may predate the alias normalization
	if c, ok := entity.ParseCategory(string(t.Category)); ok {
		t.Category = c
	}
	return &t, nil
}

func (r *EmailTemplateRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE email_templates SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`, id, at)
	return err
}
