package usecase

import (
	"time"

	"github.com/xavierca1/leadforge/internal/entity"
)

// ScoringConfig holds the weights of the engagement score model.
type ScoringConfig struct {
	OpenPoints          float64
	ClickPoints         float64
	MultipleOpensBonus  float64
	MultipleClicksBonus float64
	QuickResponseBonus  float64
	QuickResponseWindow time.Duration
	Decay               float64
	DecayPeriod         time.Duration
	CategoryMultipliers map[entity.TemplateCategory]float64
	HighValueThreshold  int
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		OpenPoints:          10,
		ClickPoints:         25,
		MultipleOpensBonus:  5,
		MultipleClicksBonus: 15,
		QuickResponseBonus:  20,
		QuickResponseWindow: time.Hour,
		Decay:               0.9,
		DecayPeriod:         30 * 24 * time.Hour,
		CategoryMultipliers: map[entity.TemplateCategory]float64{
			entity.CategoryProposal: 1.5,
			entity.CategoryFollowup: 1.2,
		},
		HighValueThreshold: 70,
	}
}

// EngagementConfig holds the flat score deltas awarded on the first open
// and first click of a send record.
type EngagementConfig struct {
	OpenDelta  int
	ClickDelta int
}

func DefaultEngagementConfig() EngagementConfig {
	return EngagementConfig{OpenDelta: 10, ClickDelta: 25}
}

// LeadRulesConfig holds the thresholds of the lead status rules.
type LeadRulesConfig struct {
	QualifiedScore        int
	UnresponsiveAfterSent int
	QualifyingClicks      int
	ClickQualifiedFloor   int
}

func DefaultLeadRulesConfig() LeadRulesConfig {
	return LeadRulesConfig{
		QualifiedScore:        70,
		UnresponsiveAfterSent: 5,
		QualifyingClicks:      2,
		ClickQualifiedFloor:   80,
	}
}

type SenderIdentity struct {
	Name    string
	Title   string
	Email   string
	Phone   string
	Company string
	Website string
}

// DeliveryConfig controls how the campaign runner renders and paces sends.
type DeliveryConfig struct {
	BaseURL      string
	SendThrottle time.Duration
	TrackClicks  bool
	Sender       SenderIdentity
}

// RetryConfig controls the failed-send retry scheduler.
type RetryConfig struct {
	MaxRetries int
	Backoff    []time.Duration
	BatchSize  int
	Pause      time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Backoff:    []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		BatchSize:  50,
		Pause:      500 * time.Millisecond,
	}
}
