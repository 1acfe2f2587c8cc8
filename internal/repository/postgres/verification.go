package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.EmailVerificationStore = (*EmailVerificationRepository)(nil)

type EmailVerificationRepository struct {
	db *Connection
}

func NewEmailVerificationRepository(db *Connection) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: db}
}

// Replace deletes any prior verification for the user/email pair before
// inserting, so at most one is active at a time.
func (r *EmailVerificationRepository) Replace(ctx context.Context, v model.EmailVerification) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM email_verifications WHERE user_id = $1 AND email = $2`
	if _, err := tx.Exec(ctx, del, v.UserID, v.Email); err != nil {
		return fmt.Errorf("failed to delete prior verification: %w", err)
	}

	const ins = `
        INSERT INTO email_verifications (user_id, email, code, token, expires_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := tx.Exec(ctx, ins, v.UserID, v.Email, v.Code, v.Token, v.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create verification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit verification: %w", err)
	}
	return nil
}

func (r *EmailVerificationRepository) GetByEmailAndCode(ctx context.Context, email, code string) (model.EmailVerification, error) {
	const query = `
        SELECT user_id, email, code, token, expires_at
        FROM email_verifications WHERE email = $1 AND code = $2
    `
	var v model.EmailVerification
	err := r.db.QueryRow(ctx, query, email, code).Scan(
		&v.UserID, &v.Email, &v.Code, &v.Token, &v.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EmailVerification{}, model.ErrNotFound
		}
		return model.EmailVerification{}, fmt.Errorf("failed to get verification: %w", err)
	}
	return v, nil
}

func (r *EmailVerificationRepository) GetByToken(ctx context.Context, tokenValue string) (model.EmailVerification, error) {
	const query = `
        SELECT user_id, email, code, token, expires_at
        FROM email_verifications WHERE token = $1
    `
	var v model.EmailVerification
	err := r.db.QueryRow(ctx, query, tokenValue).Scan(
		&v.UserID, &v.Email, &v.Code, &v.Token, &v.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EmailVerification{}, model.ErrNotFound
		}
		return model.EmailVerification{}, fmt.Errorf("failed to get verification by token: %w", err)
	}
	return v, nil
}

func (r *EmailVerificationRepository) Delete(ctx context.Context, userID uuid.UUID, email string) error {
	const query = `DELETE FROM email_verifications WHERE user_id = $1 AND email = $2`

	if _, err := r.db.Exec(ctx, query, userID, email); err != nil {
		return fmt.Errorf("failed to delete verification: %w", err)
	}
	return nil
}
