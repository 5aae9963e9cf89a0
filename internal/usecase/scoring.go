package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
)

type ScoreCalculator struct {
	Config ScoringConfig
}

func NewScoreCalculator(cfg ScoringConfig) *ScoreCalculator {
	return &ScoreCalculator{Config: cfg}
}

// Calculate scores a lead from its send history. Each engaged row earns
// open/click points plus a quick-response bonus, scaled by its template
// category and decayed by age; repeat opens and clicks across rows add flat
// bonuses. The result is rounded and clamped to [0, 100].
func (c *ScoreCalculator) Calculate(history []*entity.EmailHistory, now time.Time) int {
	cfg := c.Config
	total := 0.0
	opened, clicked := 0, 0

	for _, h := range history {
		points := 0.0
		if h.OpenedAt != nil {
			points += cfg.OpenPoints
			opened++
			if h.SentAt != nil {
				lag := h.OpenedAt.Sub(*h.SentAt)
				if lag >= 0 && lag <= cfg.QuickResponseWindow {
					points += cfg.QuickResponseBonus
				}
			}
		}
		if h.ClickedAt != nil {
			points += cfg.ClickPoints
			clicked++
		}
		if points == 0 {
			continue
		}

		if m, ok := cfg.CategoryMultipliers[h.Category]; ok {
			points *= m
		}
		total += points * c.decay(h.CreatedAt, now)
	}

	if opened > 1 {
		total += float64(opened-1) * cfg.MultipleOpensBonus
	}
	if clicked > 1 {
		total += float64(clicked-1) * cfg.MultipleClicksBonus
	}

	return entity.ClampScore(int(math.Round(total)))
}

func (c *ScoreCalculator) decay(createdAt, now time.Time) float64 {
	if c.Config.DecayPeriod <= 0 || c.Config.Decay <= 0 {
		return 1
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(c.Config.Decay, float64(age)/float64(c.Config.DecayPeriod))
}

type RefreshSummary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

const scorePageSize = 100

// RecalculateScoresUseCase recomputes lead scores from full history and
// re-runs the status rules on the result.
type RecalculateScoresUseCase struct {
	LeadRepo    entity.LeadRepositoryInterface
	HistoryRepo entity.EmailHistoryRepositoryInterface
	Calculator  *ScoreCalculator
	Engine      *LeadStatusEngine
	now         func() time.Time
	logger      *zap.Logger
}

func NewRecalculateScoresUseCase(
	leadRepo entity.LeadRepositoryInterface,
	historyRepo entity.EmailHistoryRepositoryInterface,
	calculator *ScoreCalculator,
	engine *LeadStatusEngine,
	logger *zap.Logger,
) *RecalculateScoresUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecalculateScoresUseCase{
		LeadRepo:    leadRepo,
		HistoryRepo: historyRepo,
		Calculator:  calculator,
		Engine:      engine,
		now:         utcNow,
		logger:      logger,
	}
}

func (uc *RecalculateScoresUseCase) ExecuteLead(ctx context.Context, leadID string) (*entity.Lead, error) {
	lead, err := uc.LeadRepo.FindByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, entity.ErrLeadNotFound) {
			return nil, &DomainError{Code: CodeLeadNotFound, Message: "lead not found"}
		}
		return nil, databaseError("loading lead", err)
	}
	updated, _, err := uc.refresh(ctx, lead)
	return updated, err
}

func (uc *RecalculateScoresUseCase) refresh(ctx context.Context, lead *entity.Lead) (*entity.Lead, bool, error) {
	history, err := uc.HistoryRepo.ListByLead(ctx, lead.ID)
	if err != nil {
		return nil, false, databaseError("loading lead history", err)
	}
	score := uc.Calculator.Calculate(history, uc.now())

	updated, err := uc.Engine.ApplyScore(ctx, lead, score)
	if err != nil {
		return nil, false, databaseError("saving lead score", err)
	}
	changed := updated.Score != lead.Score || updated.Status != lead.Status
	return updated, changed, nil
}

// ExecuteAll walks every scorable lead in id order. Per-lead failures are
// logged and counted; the walk stops only when ctx is cancelled or a page
// cannot be loaded.
func (uc *RecalculateScoresUseCase) ExecuteAll(ctx context.Context) (*RefreshSummary, error) {
	summary := &RefreshSummary{}
	afterID := ""

	for {
		leads, err := uc.LeadRepo.ListScorable(ctx, afterID, scorePageSize)
		if err != nil {
			return summary, databaseError("listing scorable leads", err)
		}
		for _, lead := range leads {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			summary.Processed++
			_, changed, err := uc.refresh(ctx, lead)
			if err != nil {
				summary.Failed++
				uc.logger.Warn("lead score refresh failed", zap.String("lead_id", lead.ID), zap.Error(err))
				continue
			}
			if changed {
				summary.Updated++
			}
		}
		if len(leads) < scorePageSize {
			return summary, nil
		}
		afterID = leads[len(leads)-1].ID
	}
}

func (uc *RecalculateScoresUseCase) HighValueLeads(ctx context.Context, limit int) ([]*entity.Lead, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	leads, err := uc.LeadRepo.ListHighValue(ctx, uc.Calculator.Config.HighValueThreshold, limit)
	if err != nil {
		return nil, databaseError("listing high value leads", err)
	}
	return leads, nil
}

// Distribution reports lead count and average score per status, with the
// average rounded to two decimals.
func (uc *RecalculateScoresUseCase) Distribution(ctx context.Context) ([]entity.ScoreBucket, error) {
	buckets, err := uc.LeadRepo.ScoreDistribution(ctx)
	if err != nil {
		return nil, databaseError("computing score distribution", err)
	}
	for i := range buckets {
		buckets[i].AverageScore = math.Round(buckets[i].AverageScore*100) / 100
	}
	if buckets == nil {
		buckets = []entity.ScoreBucket{}
	}
	return buckets, nil
}
