package entity

import (
	"context"
	"strings"
	"time"
)

type TemplateCategory string

const (
	CategoryIntroduction TemplateCategory = "introduction"
	CategoryFollowup     TemplateCategory = "followup"
	CategoryProposal     TemplateCategory = "proposal"
	CategoryMeeting      TemplateCategory = "meeting"
	CategoryThankYou     TemplateCategory = "thankyou"
	CategoryReminder     TemplateCategory = "reminder"
	CategoryCustom       TemplateCategory = "custom"
)

// ParseCategory accepts the canonical names plus the snake_case aliases
// (follow_up, thank_you) still sent by older clients.
func ParseCategory(s string) (TemplateCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "introduction":
		return CategoryIntroduction, true
	case "followup", "follow_up", "follow-up":
		return CategoryFollowup, true
	case "proposal":
		return CategoryProposal, true
	case "meeting":
		return CategoryMeeting, true
	case "thankyou", "thank_you", "thank-you":
		return CategoryThankYou, true
	case "reminder":
		return CategoryReminder, true
	case "custom":
		return CategoryCustom, true
	}
	return "", false
}

type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneCasual       Tone = "casual"
	ToneFormal       Tone = "formal"
	TonePersuasive   Tone = "persuasive"
)

func ParseTone(s string) (Tone, bool) {
	switch t := Tone(strings.ToLower(strings.TrimSpace(s))); t {
	case ToneProfessional, ToneFriendly, ToneCasual, ToneFormal, TonePersuasive:
		return t, true
	}
	return "", false
}

type EmailTemplate struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Subject    string           `json:"subject"`
	Content    string           `json:"content"`
	Category   TemplateCategory `json:"category"`
	Tone       Tone             `json:"tone"`
	UsageCount int              `json:"usage_count"`
	LastUsedAt *time.Time       `json:"last_used_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

type EmailTemplateRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*EmailTemplate, error)
	IncrementUsage(ctx context.Context, id string, at time.Time) error
}
