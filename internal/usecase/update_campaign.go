package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
)

type UpdateCampaignInput struct {
	Name        *string    `json:"name"`
	Subject     *string    `json:"subject"`
	Content     *string    `json:"content"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// UpdateCampaignUseCase edits a campaign that has not started sending.
type UpdateCampaignUseCase struct {
	CampaignRepo entity.CampaignRepositoryInterface
	logger       *zap.Logger
}

func NewUpdateCampaignUseCase(campaignRepo entity.CampaignRepositoryInterface, logger *zap.Logger) *UpdateCampaignUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateCampaignUseCase{CampaignRepo: campaignRepo, logger: logger}
}

func (uc *UpdateCampaignUseCase) Execute(ctx context.Context, id string, input UpdateCampaignInput) (*entity.Campaign, error) {
	if errs := ValidateUpdateCampaignInput(&input); len(errs) > 0 {
		return nil, validationFailure(errs)
	}

	c, err := uc.CampaignRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrCampaignNotFound) {
			return nil, &DomainError{Code: CodeCampaignNotFound, Message: "campaign not found"}
		}
		return nil, databaseError("loading campaign", err)
	}
	if !c.Status.IsMutable() {
		return nil, &DomainError{Code: CodeCampaignLocked, Message: "campaign can only be edited while draft or scheduled"}
	}

	if input.Name != nil {
		c.Name = *input.Name
	}
	if input.Subject != nil {
		c.Subject, c.CustomSubject = *input.Subject, *input.Subject != ""
	}
	if input.Content != nil {
		c.Content, c.CustomContent = *input.Content, *input.Content != ""
	}
	if input.ScheduledAt != nil {
		// drafts are queued for immediate sending at creation
		if c.Status != entity.CampaignStatusScheduled {
			return nil, &DomainError{Code: CodeCampaignLocked, Message: "only scheduled campaigns can be rescheduled"}
		}
		at := input.ScheduledAt.UTC()
		c.ScheduledAt = &at
	}

	if err := uc.CampaignRepo.Update(ctx, c); err != nil {
		if errors.Is(err, entity.ErrCampaignLocked) {
			return nil, &DomainError{Code: CodeCampaignLocked, Message: "campaign can only be edited while draft or scheduled"}
		}
		if errors.Is(err, entity.ErrCampaignNotFound) {
			return nil, &DomainError{Code: CodeCampaignNotFound, Message: "campaign not found"}
		}
		return nil, databaseError("updating campaign", err)
	}

	uc.logger.Info("campaign updated", zap.String("campaign_id", c.ID), zap.String("status", string(c.Status)))
	return c, nil
}
