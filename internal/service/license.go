package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

// LicenseService derives a user's license status for an application from
// user-held licenses and organization entitlements.
type LicenseService struct {
	store  model.LicenseStore
	logger *logger.Logger
}

func NewLicenseService(store model.LicenseStore, logger *logger.Logger) *LicenseService {
	return &LicenseService{store: store, logger: logger}
}

// CheckAccess classifies the combined grant set with priority
// revoked > expired > active; no grants at all is none. WasTrial is set
// from the grant that determined an expired state, never inferred later.
func (s *LicenseService) CheckAccess(ctx context.Context, userID uuid.UUID, applicationID int64) (model.LicenseStatus, error) {
	userGrants, err := s.store.ListUserLicenses(ctx, userID, applicationID)
	if err != nil {
		return model.LicenseStatus{}, fmt.Errorf("failed to list user licenses: %w", err)
	}

	orgGrants, err := s.store.ListOrgEntitlements(ctx, userID, applicationID)
	if err != nil {
		return model.LicenseStatus{}, fmt.Errorf("failed to list org entitlements: %w", err)
	}

	grants := append(userGrants, orgGrants...)
	if len(grants) == 0 {
		return model.LicenseStatus{State: model.LicenseNone}, nil
	}

	now := time.Now()
	status := model.LicenseStatus{State: model.LicenseActive}
	for _, g := range grants {
		switch g.Status(now) {
		case model.LicenseRevoked:
			return model.LicenseStatus{State: model.LicenseRevoked, WasTrial: g.Trial}, nil
		case model.LicenseExpired:
			status = model.LicenseStatus{State: model.LicenseExpired, WasTrial: g.Trial}
		}
	}

	return status, nil
}
