package postgres

import (
	"context"
	"fmt"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.EventSubscriberStore = (*SubscriberRepository)(nil)

type SubscriberRepository struct {
	db *Connection
}

func NewSubscriberRepository(db *Connection) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) ListForEvent(ctx context.Context, event model.EventName) ([]model.EventSubscriber, error) {
	var flag string
	switch event {
	case model.EventUserCreated:
		flag = "user_created"
	case model.EventUserUpdated:
		flag = "user_updated"
	case model.EventUserDeleted:
		flag = "user_deleted"
	default:
		return nil, fmt.Errorf("unknown event %q", event)
	}

	query := fmt.Sprintf(`
        SELECT id, url, signing_key, user_created, user_updated, user_deleted
        FROM event_subscribers WHERE %s = TRUE
    `, flag)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []model.EventSubscriber
	for rows.Next() {
		var s model.EventSubscriber
		if err := rows.Scan(&s.ID, &s.URL, &s.SigningKey, &s.UserCreated, &s.UserUpdated, &s.UserDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return subs, nil
}
