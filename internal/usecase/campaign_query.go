package usecase

import (
	"context"
	"errors"

	"github.com/xavierca1/leadforge/internal/entity"
)

type CampaignWithStats struct {
	Campaign *entity.Campaign     `json:"campaign"`
	Stats    entity.CampaignStats `json:"stats"`
}

type CampaignQueryUseCase struct {
	CampaignRepo entity.CampaignRepositoryInterface
	HistoryRepo  entity.EmailHistoryRepositoryInterface
}

func NewCampaignQueryUseCase(campaignRepo entity.CampaignRepositoryInterface, historyRepo entity.EmailHistoryRepositoryInterface) *CampaignQueryUseCase {
	return &CampaignQueryUseCase{CampaignRepo: campaignRepo, HistoryRepo: historyRepo}
}

func (uc *CampaignQueryUseCase) Get(ctx context.Context, id string) (*entity.Campaign, error) {
	c, err := uc.CampaignRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrCampaignNotFound) {
			return nil, &DomainError{Code: CodeCampaignNotFound, Message: "campaign not found"}
		}
		return nil, databaseError("loading campaign", err)
	}
	return c, nil
}

func (uc *CampaignQueryUseCase) Stats(ctx context.Context, id string) (*CampaignWithStats, error) {
	c, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := uc.HistoryRepo.CampaignStats(ctx, id)
	if err != nil {
		return nil, databaseError("computing campaign stats", err)
	}
	return &CampaignWithStats{Campaign: c, Stats: *stats}, nil
}

const (
	defaultHistoryPageSize = 50
	maxHistoryPageSize     = 200
)

type Pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

type CampaignHistoryPage struct {
	History    []*entity.EmailHistory `json:"history"`
	Pagination Pagination             `json:"pagination"`
}

// History pages through a campaign's send records, newest first. page is
// 1-based; out of range sizes fall back to the default.
func (uc *CampaignQueryUseCase) History(ctx context.Context, id string, page, limit int) (*CampaignHistoryPage, error) {
	if _, err := uc.Get(ctx, id); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > maxHistoryPageSize {
		limit = defaultHistoryPageSize
	}

	rows, total, err := uc.HistoryRepo.PageByCampaign(ctx, id, limit, (page-1)*limit)
	if err != nil {
		return nil, databaseError("listing campaign history", err)
	}
	if rows == nil {
		rows = []*entity.EmailHistory{}
	}
	return &CampaignHistoryPage{
		History: rows,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   (total + limit - 1) / limit,
			TotalItems:   total,
			ItemsPerPage: limit,
		},
	}, nil
}
