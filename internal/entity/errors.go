package entity

import "errors"

var (
	ErrLeadNotFound         = errors.New("lead not found")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrEmailHistoryNotFound = errors.New("email history not found")
	ErrTemplateNotFound     = errors.New("email template not found")
	ErrCampaignNotRunnable  = errors.New("campaign is not runnable")
	ErrCampaignLocked       = errors.New("campaign can no longer be modified")
	ErrConflict             = errors.New("concurrent update conflict")
	ErrDuplicateToken       = errors.New("duplicate tracking token")
)
