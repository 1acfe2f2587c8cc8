package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `uuid, email, password, first_name, last_name, external_idp, external_subject_id,
			  registration_complete, disabled, disabled_reason, disabled_date, verify_status, user_type,
			  avatar_key, last_access, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.UUID, &user.Email, &user.Password, &user.FirstName, &user.LastName,
		&user.ExternalIDP, &user.ExternalSubjectID, &user.RegistrationComplete,
		&user.Disabled, &user.DisabledReason, &user.DisabledDate, &user.VerifyStatus,
		&user.UserType, &user.AvatarKey, &user.LastAccess,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	return user, err
}

func (r *UserRepository) GetByUUID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE uuid = $1 AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by uuid: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetByExternalSubject(ctx context.Context, subjectID string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_subject_id = $1 AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRow(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by external subject: %w", err)
	}

	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (uuid, email, password, first_name, last_name, external_idp, external_subject_id,
			  registration_complete, disabled, verify_status, user_type, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  RETURNING ` + userColumns

	savedUser, err := scanUser(r.db.QueryRow(ctx, query,
		user.UUID, user.Email, user.Password, user.FirstName, user.LastName,
		user.ExternalIDP, user.ExternalSubjectID, user.RegistrationComplete,
		user.Disabled, user.VerifyStatus, user.UserType, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return savedUser, nil
}

func (r *UserRepository) Update(ctx context.Context, user model.User) (model.User, error) {
	query := `UPDATE users SET email = $2, password = $3, first_name = $4, last_name = $5,
			  external_idp = $6, external_subject_id = $7, registration_complete = $8,
			  disabled = $9, disabled_reason = $10, disabled_date = $11, verify_status = $12,
			  user_type = $13, avatar_key = $14, updated_at = NOW()
			  WHERE uuid = $1 AND deleted_at IS NULL
			  RETURNING ` + userColumns

	savedUser, err := scanUser(r.db.QueryRow(ctx, query,
		user.UUID, user.Email, user.Password, user.FirstName, user.LastName,
		user.ExternalIDP, user.ExternalSubjectID, user.RegistrationComplete,
		user.Disabled, user.DisabledReason, user.DisabledDate, user.VerifyStatus,
		user.UserType, user.AvatarKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	return savedUser, nil
}

func (r *UserRepository) TouchLastAccess(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET last_access = NOW() WHERE uuid = $1 AND deleted_at IS NULL`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to touch last access: %w", err)
	}
	return nil
}
