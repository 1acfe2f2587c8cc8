package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// LoginEventRepository appends login telemetry rows.
type LoginEventRepository struct {
	db *Connection
}

func NewLoginEventRepository(db *Connection) *LoginEventRepository {
	return &LoginEventRepository{db: db}
}

func (r *LoginEventRepository) RecordLogin(ctx context.Context, userID uuid.UUID) error {
	const query = `
        INSERT INTO login_events (user_id)
        VALUES ($1)
    `

	_, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to record login event: %w", err)
	}

	return nil
}
