package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session TTLs. Post-verification sessions are intentionally short because
// the account is not fully onboarded yet.
const (
	SessionDuration         = 7 * 24 * time.Hour
	ProvisionalSessionTTL   = 30 * time.Minute
	SSOCompletionAssertTTL  = time.Minute
	GatewayMarkerTTL        = 60 * time.Second
)

// SessionStore persists server-side sessions.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	GetByID(ctx context.Context, id string) (Session, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateByTicket(ctx context.Context, ticket string, userID uuid.UUID) error
}

// Session is a server-side session record. Usable only while Valid is true
// AND the expiry has not passed; the two conditions fail independently so an
// expired session can be reported as expired, not invalid.
type Session struct {
	ID            string
	UserID        uuid.UUID
	Valid         bool
	SessionTicket *string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Usable checks validity and expiry, returning the distinguishing error.
func (s Session) Usable(now time.Time) error {
	if !s.Valid {
		return ErrSessionInvalid
	}
	if !now.Before(s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}
