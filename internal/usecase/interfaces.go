package usecase

import (
	"context"

	"github.com/xavierca1/leadforge/internal/infra/mail"
	"github.com/xavierca1/leadforge/internal/infra/queue"
)

type MailDispatcher interface {
	Send(ctx context.Context, email mail.OutboundEmail) mail.Result
}

type EmailRenderer interface {
	Render(data mail.LayoutData) (string, error)
}

type CampaignQueue interface {
	PublishCampaignRun(ctx context.Context, payload queue.CampaignRunPayload) error
}

// Deduper reports whether key is seen for the first time. Release forgets
// a key whose processing failed so a later replay is not swallowed.
type Deduper interface {
	AcquireOnce(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}
