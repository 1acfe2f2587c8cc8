package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.ResetPasswordTokenStore = (*ResetTokenRepository)(nil)

type ResetTokenRepository struct {
	db *Connection
}

func NewResetTokenRepository(db *Connection) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, t model.ResetPasswordToken) error {
	const query = `
        INSERT INTO reset_password_tokens (token, uuid, expires_at)
        VALUES ($1, $2, $3)
    `
	if _, err := r.db.Exec(ctx, query, t.Token, t.UserID, t.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

func (r *ResetTokenRepository) GetByToken(ctx context.Context, tokenValue string) (model.ResetPasswordToken, error) {
	const query = `SELECT token, uuid, expires_at FROM reset_password_tokens WHERE token = $1`

	var t model.ResetPasswordToken
	err := r.db.QueryRow(ctx, query, tokenValue).Scan(&t.Token, &t.UserID, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ResetPasswordToken{}, model.ErrNotFound
		}
		return model.ResetPasswordToken{}, fmt.Errorf("failed to get reset token: %w", err)
	}
	return t, nil
}

func (r *ResetTokenRepository) Delete(ctx context.Context, tokenValue string) error {
	const query = `DELETE FROM reset_password_tokens WHERE token = $1`

	if _, err := r.db.Exec(ctx, query, tokenValue); err != nil {
		return fmt.Errorf("failed to delete reset token: %w", err)
	}
	return nil
}

func (r *ResetTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	const query = `DELETE FROM reset_password_tokens WHERE uuid = $1`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete reset tokens by user: %w", err)
	}
	return nil
}
