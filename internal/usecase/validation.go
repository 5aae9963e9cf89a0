package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xavierca1/leadforge/internal/entity"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationFailure(errs []ValidationError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return &DomainError{Code: CodeValidation, Message: strings.Join(msgs, "; ")}
}

const (
	minNameLen    = 2
	maxNameLen    = 100
	maxSubjectLen = 200
	maxLeadIDs    = 10000
)

// ValidateCreateCampaignInput checks the input and normalizes it in place:
// defaults for category and tone, trimmed strings, blank lead ids dropped
// and duplicates removed keeping the first occurrence.
func ValidateCreateCampaignInput(input *CreateCampaignInput) []ValidationError {
	var errors []ValidationError

	input.Name = strings.TrimSpace(input.Name)
	errors = append(errors, validateName(input.Name)...)

	input.Subject = strings.TrimSpace(input.Subject)
	if utf8.RuneCountInString(input.Subject) > maxSubjectLen {
		errors = append(errors, ValidationError{"subject", fmt.Sprintf("must not exceed %d characters", maxSubjectLen)})
	}

	if strings.TrimSpace(input.Category) == "" {
		input.Category = string(entity.CategoryIntroduction)
	} else if c, ok := entity.ParseCategory(input.Category); ok {
		input.Category = string(c)
	} else {
		errors = append(errors, ValidationError{"category", "must be one of introduction, followup, proposal, meeting, thankyou, reminder, custom"})
	}

	if strings.TrimSpace(input.Tone) == "" {
		input.Tone = string(entity.ToneProfessional)
	} else if t, ok := entity.ParseTone(input.Tone); ok {
		input.Tone = string(t)
	} else {
		errors = append(errors, ValidationError{"tone", "must be one of professional, friendly, casual, formal, persuasive"})
	}

	seen := make(map[string]struct{}, len(input.LeadIDs))
	ids := make([]string, 0, len(input.LeadIDs))
	for _, id := range input.LeadIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	input.LeadIDs = ids
	if len(ids) == 0 {
		errors = append(errors, ValidationError{"lead_ids", "at least one lead is required"})
	} else if len(ids) > maxLeadIDs {
		errors = append(errors, ValidationError{"lead_ids", fmt.Sprintf("must not exceed %d leads", maxLeadIDs)})
	}

	input.TemplateID = strings.TrimSpace(input.TemplateID)
	return errors
}

func validateName(name string) []ValidationError {
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return []ValidationError{{"name", "is required"}}
	case n < minNameLen:
		return []ValidationError{{"name", fmt.Sprintf("must have at least %d characters", minNameLen)}}
	case n > maxNameLen:
		return []ValidationError{{"name", fmt.Sprintf("must not exceed %d characters", maxNameLen)}}
	}
	return nil
}

func ValidateUpdateCampaignInput(input *UpdateCampaignInput) []ValidationError {
	var errors []ValidationError
	if input.Name != nil {
		*input.Name = strings.TrimSpace(*input.Name)
		errors = append(errors, validateName(*input.Name)...)
	}
	if input.Subject != nil {
		*input.Subject = strings.TrimSpace(*input.Subject)
		if utf8.RuneCountInString(*input.Subject) > maxSubjectLen {
			errors = append(errors, ValidationError{"subject", fmt.Sprintf("must not exceed %d characters", maxSubjectLen)})
		}
	}
	if input.Name == nil && input.Subject == nil && input.Content == nil && input.ScheduledAt == nil {
		errors = append(errors, ValidationError{"body", "nothing to update"})
	}
	return errors
}
