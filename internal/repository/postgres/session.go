package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) error {
	const query = `
        INSERT INTO sessions (session_id, user_id, valid, session_ticket, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err := r.db.Exec(ctx, query,
		session.ID, session.UserID, session.Valid, session.SessionTicket,
		session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (model.Session, error) {
	const query = `
        SELECT session_id, user_id, valid, session_ticket, created_at, expires_at
        FROM sessions WHERE session_id = $1
    `
	var s model.Session
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Valid, &s.SessionTicket, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session by id: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Invalidate(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET valid = FALSE WHERE session_id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

func (r *SessionRepository) InvalidateByTicket(ctx context.Context, ticket string, userID uuid.UUID) error {
	const query = `
        UPDATE sessions SET valid = FALSE
        WHERE session_ticket = $1 AND user_id = $2
    `
	if _, err := r.db.Exec(ctx, query, ticket, userID); err != nil {
		return fmt.Errorf("failed to invalidate session by ticket: %w", err)
	}
	return nil
}
