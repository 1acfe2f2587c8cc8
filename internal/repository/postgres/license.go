package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.LicenseStore = (*LicenseRepository)(nil)

type LicenseRepository struct {
	db *Connection
}

func NewLicenseRepository(db *Connection) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) ListUserLicenses(ctx context.Context, userID uuid.UUID, applicationID int64) ([]model.LicenseGrant, error) {
	const query = `
        SELECT ul.license_id, al.trial, ul.expires_at, ul.revoked, ul.revoked_at
        FROM user_licenses ul
        JOIN application_licenses al ON al.id = ul.license_id
        JOIN license_entitlements le ON le.license_id = ul.license_id
        WHERE ul.user_id = $1 AND le.application_id = $2
    `
	return r.listGrants(ctx, query, userID, applicationID)
}

func (r *LicenseRepository) ListOrgEntitlements(ctx context.Context, userID uuid.UUID, applicationID int64) ([]model.LicenseGrant, error) {
	const query = `
        SELECT ole.license_id, al.trial, ole.expires_at, ole.revoked, ole.revoked_at
        FROM organization_license_entitlements ole
        JOIN application_licenses al ON al.id = ole.license_id
        JOIN license_entitlements le ON le.license_id = ole.license_id
        JOIN organization_members om ON om.org_id = ole.org_id
        WHERE om.user_id = $1 AND le.application_id = $2
    `
	return r.listGrants(ctx, query, userID, applicationID)
}

func (r *LicenseRepository) listGrants(ctx context.Context, query string, userID uuid.UUID, applicationID int64) ([]model.LicenseGrant, error) {
	rows, err := r.db.Query(ctx, query, userID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list license grants: %w", err)
	}
	defer rows.Close()

	var grants []model.LicenseGrant
	for rows.Next() {
		var g model.LicenseGrant
		if err := rows.Scan(&g.LicenseID, &g.Trial, &g.ExpiresAt, &g.Revoked, &g.RevokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan license grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate license grants: %w", err)
	}
	return grants, nil
}
