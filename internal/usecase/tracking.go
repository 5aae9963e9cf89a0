package usecase

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// TrackingURLs builds the public endpoints embedded in outgoing mail.
type TrackingURLs struct {
	BaseURL string
}

func (t TrackingURLs) base() string {
	return strings.TrimRight(t.BaseURL, "/")
}

func (t TrackingURLs) Pixel(historyID string) string {
	return t.base() + "/api/email-campaigns/track/open/" + url.PathEscape(historyID)
}

func (t TrackingURLs) Click(historyID, target string) string {
	return t.base() + "/api/email-campaigns/track/click/" + url.PathEscape(historyID) + "?url=" + url.QueryEscape(target)
}

func (t TrackingURLs) Unsubscribe(token string) string {
	return t.base() + "/api/webhooks/unsubscribe/" + url.PathEscape(token)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
