package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/queue"
)

type CreateCampaignInput struct {
	Name        string     `json:"name"`
	LeadIDs     []string   `json:"lead_ids"`
	Category    string     `json:"category"`
	Tone        string     `json:"tone"`
	Subject     string     `json:"subject"`
	Content     string     `json:"content"`
	TemplateID  string     `json:"template_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// CreateCampaignUseCase stores a campaign with its ordered target list and,
// unless it is scheduled, hands a run job to the queue. It returns without
// waiting for any email to be sent.
type CreateCampaignUseCase struct {
	CampaignRepo entity.CampaignRepositoryInterface
	LeadRepo     entity.LeadRepositoryInterface
	TemplateRepo entity.EmailTemplateRepositoryInterface
	Generator    *Generator
	Queue        CampaignQueue
	now          func() time.Time
	logger       *zap.Logger
}

func NewCreateCampaignUseCase(
	campaignRepo entity.CampaignRepositoryInterface,
	leadRepo entity.LeadRepositoryInterface,
	templateRepo entity.EmailTemplateRepositoryInterface,
	generator *Generator,
	q CampaignQueue,
	logger *zap.Logger,
) *CreateCampaignUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreateCampaignUseCase{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		TemplateRepo: templateRepo,
		Generator:    generator,
		Queue:        q,
		now:          utcNow,
		logger:       logger,
	}
}

func (uc *CreateCampaignUseCase) Execute(ctx context.Context, input CreateCampaignInput) (*entity.Campaign, error) {
	if errs := ValidateCreateCampaignInput(&input); len(errs) > 0 {
		return nil, validationFailure(errs)
	}

	leads, err := uc.LeadRepo.FindTargetable(ctx, input.LeadIDs)
	if err != nil {
		return nil, databaseError("loading leads", err)
	}
	if len(leads) == 0 {
		return nil, &DomainError{Code: CodeNoValidLeads, Message: "no valid leads found for the campaign"}
	}

	now := uc.now()
	c := &entity.Campaign{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Category:        entity.TemplateCategory(input.Category),
		Tone:            entity.Tone(input.Tone),
		Status:          entity.CampaignStatusDraft,
		TotalRecipients: len(leads),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var tpl *entity.EmailTemplate
	if input.TemplateID != "" {
		tpl, err = uc.TemplateRepo.FindByID(ctx, input.TemplateID)
		if err != nil {
			if errors.Is(err, entity.ErrTemplateNotFound) {
				return nil, &DomainError{Code: CodeTemplateNotFound, Message: "email template not found"}
			}
			return nil, databaseError("loading template", err)
		}
		c.TemplateID = tpl.ID
		c.Category = tpl.Category
		c.Tone = tpl.Tone
		if input.Subject == "" {
			input.Subject = tpl.Subject
		}
		if input.Content == "" {
			input.Content = tpl.Content
		}
	}

	// the stored subject/content double as a preview rendered for the
	// first lead unless the caller supplied their own copy
	preview := uc.Generator.Generate(c.Category, c.Tone, leads[0])
	c.Subject, c.Content = preview.Subject, preview.Body
	if strings.TrimSpace(input.Subject) != "" {
		c.Subject, c.CustomSubject = input.Subject, true
	}
	if strings.TrimSpace(input.Content) != "" {
		c.Content, c.CustomContent = input.Content, true
	}

	if input.ScheduledAt != nil {
		at := input.ScheduledAt.UTC()
		c.ScheduledAt = &at
		c.Status = entity.CampaignStatusScheduled
	}

	leadIDs := make([]string, len(leads))
	for i, l := range leads {
		leadIDs[i] = l.ID
	}

	saga := NewSaga("create_campaign", uc.logger).Step("store_campaign",
		func(ctx context.Context) error {
			if err := uc.CampaignRepo.Create(ctx, c, leadIDs); err != nil {
				return databaseError("creating campaign", err)
			}
			return nil
		},
		func(ctx context.Context) error { return uc.CampaignRepo.Delete(ctx, c.ID) },
	)
	if c.Status == entity.CampaignStatusDraft {
		saga.Step("enqueue_run", func(ctx context.Context) error {
			err := uc.Queue.PublishCampaignRun(ctx, queue.CampaignRunPayload{
				CampaignID:  c.ID,
				Origin:      queue.OriginAPI,
				RequestedAt: now,
			})
			if err != nil {
				return &TechnicalError{Code: CodeQueue, Message: "could not enqueue campaign run", Err: err}
			}
			return nil
		}, nil)
	}

	if err := saga.Run(ctx); err != nil {
		uc.logger.Error("campaign creation rolled back", zap.String("campaign_id", c.ID), zap.Error(err))
		return nil, err
	}

	if tpl != nil {
		if err := uc.TemplateRepo.IncrementUsage(ctx, tpl.ID, now); err != nil {
			uc.logger.Warn("could not bump template usage", zap.String("template_id", tpl.ID), zap.Error(err))
		}
	}

	uc.logger.Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("status", string(c.Status)),
		zap.Int("leads", len(leadIDs)),
		zap.Int("skipped_leads", len(input.LeadIDs)-len(leadIDs)),
	)
	return c, nil
}
