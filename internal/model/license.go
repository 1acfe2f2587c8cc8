package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LicenseState is the derived 4-state status of a user's access to a
// licensed application. Priority when multiple grants exist:
// revoked > expired > active.
type LicenseState string

const (
	LicenseActive  LicenseState = "active"
	LicenseExpired LicenseState = "expired"
	LicenseRevoked LicenseState = "revoked"
	LicenseNone    LicenseState = "none"
)

// LicenseStatus is the result of a license check. WasTrial is carried as an
// explicit field rather than re-derived by consumers.
type LicenseStatus struct {
	State    LicenseState
	WasTrial bool
}

// LicenseStore defines persistence for the licensing subsystem.
type LicenseStore interface {
	ListUserLicenses(ctx context.Context, userID uuid.UUID, applicationID int64) ([]LicenseGrant, error)
	ListOrgEntitlements(ctx context.Context, userID uuid.UUID, applicationID int64) ([]LicenseGrant, error)
}

// ApplicationLicense describes a purchasable license. A nil DurationDays
// means perpetual.
type ApplicationLicense struct {
	ID           uuid.UUID
	Name         string
	DurationDays *int
	Trial        bool
	// Entitlements are the application ids this license grants.
	Entitlements []int64
}

// LicenseGrant binds a license to a user or organization.
type LicenseGrant struct {
	LicenseID uuid.UUID
	Trial     bool
	ExpiresAt *time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// Status derives the state of a single grant at the given instant.
func (g LicenseGrant) Status(now time.Time) LicenseState {
	if g.Revoked {
		return LicenseRevoked
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return LicenseExpired
	}
	return LicenseActive
}

// AccessCode redeems a bookstore-issued license code.
type AccessCode struct {
	Code      string
	LicenseID uuid.UUID
	Redeemed  bool
}
