package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libreone/libreone-server/internal/model"
)

var (
	_ model.ApplicationStore     = (*ApplicationRepository)(nil)
	_ model.UserApplicationStore = (*UserApplicationRepository)(nil)
)

type ApplicationRepository struct {
	db *Connection
}

func NewApplicationRepository(db *Connection) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, name, app_type, main_url, cas_service_url, default_access,
		  requires_license, hide_from_apps, hide_from_user_apps`

func scanApplication(row pgx.Row) (model.Application, error) {
	var app model.Application
	err := row.Scan(
		&app.ID, &app.Name, &app.AppType, &app.MainURL, &app.CASServiceURL,
		&app.DefaultAccess, &app.RequiresLicense, &app.HideFromApps, &app.HideFromUserApps,
	)
	return app, err
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Application{}, model.ErrNotFound
		}
		return model.Application{}, fmt.Errorf("failed to get application by id: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) GetByCASServiceURL(ctx context.Context, serviceURL string) (model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE cas_service_url = $1`

	app, err := scanApplication(r.db.QueryRow(ctx, query, serviceURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Application{}, model.ErrNotFound
		}
		return model.Application{}, fmt.Errorf("failed to get application by service url: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) ListDefaultAccessAll(ctx context.Context) ([]model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE default_access = 'all'`

	return r.list(ctx, query)
}

func (r *ApplicationRepository) ListLibraries(ctx context.Context) ([]model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE app_type = 'library'`

	return r.list(ctx, query)
}

func (r *ApplicationRepository) list(ctx context.Context, query string) ([]model.Application, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

type UserApplicationRepository struct {
	db *Connection
}

func NewUserApplicationRepository(db *Connection) *UserApplicationRepository {
	return &UserApplicationRepository{db: db}
}

func (r *UserApplicationRepository) Grant(ctx context.Context, userID uuid.UUID, applicationID int64) error {
	const query = `
        INSERT INTO user_applications (user_id, application_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `
	if _, err := r.db.Exec(ctx, query, userID, applicationID); err != nil {
		return fmt.Errorf("failed to grant application: %w", err)
	}
	return nil
}

func (r *UserApplicationRepository) HasGrant(ctx context.Context, userID uuid.UUID, applicationID int64) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM user_applications WHERE user_id = $1 AND application_id = $2
        )
    `
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, applicationID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check application grant: %w", err)
	}
	return exists, nil
}

func (r *UserApplicationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]int64, error) {
	const query = `SELECT application_id FROM user_applications WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user applications: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan application id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user applications: %w", err)
	}
	return ids, nil
}
