package model

import "context"

// EventName identifies webhook event types.
type EventName string

const (
	EventUserCreated EventName = "user:created"
	EventUserUpdated EventName = "user:updated"
	EventUserDeleted EventName = "user:deleted"
)

// EventSubscriberStore lists webhook registrations opted in to an event.
type EventSubscriberStore interface {
	ListForEvent(ctx context.Context, event EventName) ([]EventSubscriber, error)
}

// EventSubscriber is a downstream webhook registration with per-event
// opt-in flags.
type EventSubscriber struct {
	ID          int64
	URL         string
	SigningKey  string
	UserCreated bool
	UserUpdated bool
	UserDeleted bool
}

// WantsEvent reports whether the subscriber opted in to the event.
func (s EventSubscriber) WantsEvent(event EventName) bool {
	switch event {
	case EventUserCreated:
		return s.UserCreated
	case EventUserUpdated:
		return s.UserUpdated
	case EventUserDeleted:
		return s.UserDeleted
	}
	return false
}
