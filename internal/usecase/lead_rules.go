package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/metrics"
)

// EvaluateLeadRules derives the next status and score of a lead. The rules
// run top to bottom and a later rule may override an earlier one:
//
//  1. engaged email was a proposal          -> proposal, last_contacted = now
//  2. score >= QualifiedScore, not qualified -> qualified
//  3. sent >= UnresponsiveAfterSent, 0 opens -> unresponsive
//  4. clicks >= QualifyingClicks, not qualified -> qualified, score >= ClickQualifiedFloor
//
// Terminal leads (closed, contact_failed, unsubscribed) are returned as is.
func EvaluateLeadRules(lead entity.Lead, engaged entity.TemplateCategory, cfg LeadRulesConfig, now time.Time) (entity.Lead, bool) {
	if lead.Status.IsTerminal() || lead.Unsubscribed {
		return lead, false
	}
	before := lead

	if engaged == entity.CategoryProposal {
		lead.Status = entity.LeadStatusProposal
		at := now
		lead.LastContacted = &at
	}

	if lead.Score >= cfg.QualifiedScore && lead.Status != entity.LeadStatusQualified {
		lead.Status = entity.LeadStatusQualified
	}

	if lead.EmailsSentCount >= cfg.UnresponsiveAfterSent && lead.EmailsOpenedCount == 0 {
		lead.Status = entity.LeadStatusUnresponsive
	}

	if lead.EmailsClickedCount >= cfg.QualifyingClicks && lead.Status != entity.LeadStatusQualified {
		lead.Status = entity.LeadStatusQualified
		if lead.Score < cfg.ClickQualifiedFloor {
			lead.Score = cfg.ClickQualifiedFloor
		}
	}

	lead.Score = entity.ClampScore(lead.Score)
	changed := lead.Status != before.Status ||
		lead.Score != before.Score ||
		!sameTime(lead.LastContacted, before.LastContacted)
	return lead, changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

const maxRuleAttempts = 3

// LeadStatusEngine persists rule results with an optimistic version check,
// reloading and re-evaluating the lead when a concurrent write wins.
type LeadStatusEngine struct {
	LeadRepo entity.LeadRepositoryInterface
	Config   LeadRulesConfig
	now      func() time.Time
	logger   *zap.Logger
}

func NewLeadStatusEngine(leadRepo entity.LeadRepositoryInterface, cfg LeadRulesConfig, logger *zap.Logger) *LeadStatusEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadStatusEngine{LeadRepo: leadRepo, Config: cfg, now: utcNow, logger: logger}
}

// Apply runs the rules after an engagement on an email of category engaged.
func (e *LeadStatusEngine) Apply(ctx context.Context, lead *entity.Lead, engaged entity.TemplateCategory) (*entity.Lead, error) {
	return e.update(ctx, lead, engaged, nil)
}

// ApplyScore stores a recomputed score and runs the rules on the result.
func (e *LeadStatusEngine) ApplyScore(ctx context.Context, lead *entity.Lead, score int) (*entity.Lead, error) {
	return e.update(ctx, lead, "", func(l *entity.Lead) { l.Score = entity.ClampScore(score) })
}

func (e *LeadStatusEngine) update(ctx context.Context, lead *entity.Lead, engaged entity.TemplateCategory, mutate func(*entity.Lead)) (*entity.Lead, error) {
	current := lead
	for attempt := 1; attempt <= maxRuleAttempts; attempt++ {
		next := *current
		if mutate != nil {
			mutate(&next)
		}
		mutated := next.Score != current.Score

		next, changed := EvaluateLeadRules(next, engaged, e.Config, e.now())
		if !changed && !mutated {
			return current, nil
		}

		err := e.LeadRepo.SaveDerived(ctx, &next)
		if err == nil {
			if next.Status != current.Status {
				metrics.RecordLeadTransition(string(next.Status))
				e.logger.Info("lead status changed",
					zap.String("lead_id", next.ID),
					zap.String("from", string(current.Status)),
					zap.String("to", string(next.Status)),
					zap.Int("score", next.Score),
				)
			}
			return &next, nil
		}
		if !errors.Is(err, entity.ErrConflict) {
			return nil, fmt.Errorf("saving lead %s: %w", lead.ID, err)
		}

		e.logger.Debug("lead version conflict, reloading", zap.String("lead_id", lead.ID), zap.Int("attempt", attempt))
		current, err = e.LeadRepo.FindByID(ctx, lead.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading lead %s: %w", lead.ID, err)
		}
	}
	return nil, fmt.Errorf("lead %s: %w", lead.ID, entity.ErrConflict)
}
