package usecase

import (
	"fmt"

	"github.com/google/uuid"
)

// TrackingTokens correlate a send with provider webhooks and authorize
// the unauthenticated unsubscribe action.
type TrackingTokens struct {
	MessageID        string
	UnsubscribeToken string
}

type TokenIssuer interface {
	Issue() (TrackingTokens, error)
}

// UUIDIssuer issues random (v4) UUIDs: 122 bits from crypto/rand.
type UUIDIssuer struct{}

func NewUUIDIssuer() *UUIDIssuer {
	return &UUIDIssuer{}
}

func (UUIDIssuer) Issue() (TrackingTokens, error) {
	msg, err := uuid.NewRandom()
	if err != nil {
		return TrackingTokens{}, fmt.Errorf("generating message id: %w", err)
	}
	unsub, err := uuid.NewRandom()
	if err != nil {
		return TrackingTokens{}, fmt.Errorf("generating unsubscribe token: %w", err)
	}
	return TrackingTokens{MessageID: msg.String(), UnsubscribeToken: unsub.String()}, nil
}
