package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EmailVerificationTTL  = 24 * time.Hour
	ResetPasswordTokenTTL = time.Hour
)

// EmailVerificationStore persists pending email proofs. Creating a new
// verification for a user/email pair replaces any prior one.
type EmailVerificationStore interface {
	Replace(ctx context.Context, v EmailVerification) error
	GetByEmailAndCode(ctx context.Context, email, code string) (EmailVerification, error)
	GetByToken(ctx context.Context, token string) (EmailVerification, error)
	Delete(ctx context.Context, userID uuid.UUID, email string) error
}

// EmailVerification proves ownership of an address, for both registration
// and email-change flows.
type EmailVerification struct {
	UserID    uuid.UUID
	Email     string
	Code      string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the verification window has closed.
func (v EmailVerification) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// ResetPasswordTokenStore persists one-time password recovery tokens.
type ResetPasswordTokenStore interface {
	Create(ctx context.Context, t ResetPasswordToken) error
	GetByToken(ctx context.Context, token string) (ResetPasswordToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

// ResetPasswordToken is a one-time credential. ExpiresAt is unix seconds.
type ResetPasswordToken struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt int64
}

// Expired reports whether the token TTL has elapsed.
func (t ResetPasswordToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}
