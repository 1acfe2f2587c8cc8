package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VerifyStatus tracks instructor identity verification.
type VerifyStatus string

const (
	VerifyNotAttempted VerifyStatus = "not_attempted"
	VerifyPending      VerifyStatus = "pending"
	VerifyNeedsReview  VerifyStatus = "needs_review"
	VerifyDenied       VerifyStatus = "denied"
	VerifyVerified     VerifyStatus = "verified"
)

// UserType distinguishes account categories.
type UserType string

const (
	UserTypeStudent    UserType = "student"
	UserTypeInstructor UserType = "instructor"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByExternalSubject(ctx context.Context, subjectID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
	TouchLastAccess(ctx context.Context, id uuid.UUID) error
}

// User is the identity record. Exactly one of Password or ExternalSubjectID
// determines the login path; a user missing both cannot authenticate locally.
type User struct {
	UUID                 uuid.UUID
	Email                string
	Password             *string
	FirstName            string
	LastName             string
	ExternalIDP          *string
	ExternalSubjectID    *string
	RegistrationComplete bool
	Disabled             bool
	DisabledReason       *string
	DisabledDate         *time.Time
	VerifyStatus         VerifyStatus
	UserType             UserType
	AvatarKey            *string
	LastAccess           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time
}

// CanAuthenticateLocally reports whether the user has a password login path.
func (u User) CanAuthenticateLocally() bool {
	return u.Password != nil && *u.Password != ""
}

// IsVerifiedInstructor reports whether the user bypasses per-app licensing.
func (u User) IsVerifiedInstructor() bool {
	return u.UserType == UserTypeInstructor && u.VerifyStatus == VerifyVerified
}
