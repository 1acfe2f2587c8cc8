package model

import (
	"context"

	"github.com/google/uuid"
)

// AppType distinguishes standalone services from embedded library apps.
type AppType string

const (
	AppTypeStandalone AppType = "standalone"
	AppTypeLibrary    AppType = "library"
)

// DefaultAccess controls who gets an application without an explicit grant.
type DefaultAccess string

const (
	DefaultAccessAll         DefaultAccess = "all"
	DefaultAccessInstructors DefaultAccess = "instructors"
	DefaultAccessNone        DefaultAccess = "none"
)

// ApplicationStore defines persistence operations for applications.
type ApplicationStore interface {
	GetByID(ctx context.Context, id int64) (Application, error)
	GetByCASServiceURL(ctx context.Context, serviceURL string) (Application, error)
	ListDefaultAccessAll(ctx context.Context) ([]Application, error)
	ListLibraries(ctx context.Context) ([]Application, error)
}

// UserApplicationStore persists explicit per-user application grants.
type UserApplicationStore interface {
	Grant(ctx context.Context, userID uuid.UUID, applicationID int64) error
	HasGrant(ctx context.Context, userID uuid.UUID, applicationID int64) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]int64, error)
}

// Application is a protected downstream service or library.
type Application struct {
	ID               int64
	Name             string
	AppType          AppType
	MainURL          string
	CASServiceURL    string
	DefaultAccess    DefaultAccess
	RequiresLicense  bool
	HideFromApps     bool
	HideFromUserApps bool
}
