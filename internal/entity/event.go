package entity

import (
	"strings"
	"time"
)

type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventUnsubscribed EventType = "unsubscribed"
)

func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(strings.ToLower(strings.TrimSpace(s))); t {
	case EventDelivered, EventOpened, EventClicked, EventBounced, EventUnsubscribed:
		return t, true
	case "unsubscribe":
		return EventUnsubscribed, true
	}
	return "", false
}

type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// Event is a normalized delivery or engagement notification. At least one
// of ProviderMessageID, MessageUUID or HistoryID identifies the send record.
type Event struct {
	Type              EventType
	ProviderMessageID string
	MessageUUID       string
	HistoryID         string
	Reason            string
	BounceType        BounceType
	OccurredAt        time.Time
	// Fingerprint identifies an exact webhook delivery for replay detection.
	Fingerprint string
}

func (e Event) HasKey() bool {
	return e.ProviderMessageID != "" || e.MessageUUID != "" || e.HistoryID != ""
}
