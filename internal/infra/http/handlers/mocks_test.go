package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/usecase"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Execute(ctx context.Context, ev entity.Event) (*usecase.IngestResult, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.IngestResult), args.Error(1)
}

func (m *MockIngestor) Unsubscribe(ctx context.Context, token string) (*usecase.UnsubscribeResult, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.UnsubscribeResult), args.Error(1)
}

type MockCampaignCreator struct {
	mock.Mock
}

func (m *MockCampaignCreator) Execute(ctx context.Context, input usecase.CreateCampaignInput) (*entity.Campaign, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Campaign), args.Error(1)
}

type MockCampaignUpdater struct {
	mock.Mock
}

func (m *MockCampaignUpdater) Execute(ctx context.Context, id string, input usecase.UpdateCampaignInput) (*entity.Campaign, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Campaign), args.Error(1)
}

type MockCampaignReader struct {
	mock.Mock
}

func (m *MockCampaignReader) Get(ctx context.Context, id string) (*entity.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Campaign), args.Error(1)
}

func (m *MockCampaignReader) Stats(ctx context.Context, id string) (*usecase.CampaignWithStats, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CampaignWithStats), args.Error(1)
}

func (m *MockCampaignReader) History(ctx context.Context, id string, page, limit int) (*usecase.CampaignHistoryPage, error) {
	args := m.Called(ctx, id, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CampaignHistoryPage), args.Error(1)
}

type MockLeadScorer struct {
	mock.Mock
}

func (m *MockLeadScorer) ExecuteLead(ctx context.Context, id string) (*entity.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadScorer) HighValueLeads(ctx context.Context, limit int) ([]*entity.Lead, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Lead), args.Error(1)
}

func (m *MockLeadScorer) Distribution(ctx context.Context) ([]entity.ScoreBucket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ScoreBucket), args.Error(1)
}
