package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
)

// SessionService owns server-side session records. Sessions are created on
// successful CAS ticket validation or post-verification auto-login and
// invalidated on logout or back-channel SLO.
type SessionService struct {
	sessions model.SessionStore
	users    model.UserStore
	logger   *logger.Logger
}

func NewSessionService(sessions model.SessionStore, users model.UserStore, logger *logger.Logger) *SessionService {
	return &SessionService{sessions: sessions, users: users, logger: logger}
}

// Create opens a session for the identified user. When userRef is not a
// well-formed UUID it is resolved as an external-subject-id lookup before
// failing.
func (s *SessionService) Create(ctx context.Context, userRef string, ticket *string, ttl time.Duration) (model.Session, error) {
	userID, err := uuid.Parse(userRef)
	if err != nil {
		user, lookupErr := s.users.GetByExternalSubject(ctx, userRef)
		if lookupErr != nil {
			return model.Session{}, fmt.Errorf("failed to resolve session user %q: %w", userRef, lookupErr)
		}
		userID = user.UUID
	}

	if ttl <= 0 {
		ttl = model.SessionDuration
	}

	now := time.Now()
	session := model.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Valid:         true,
		SessionTicket: ticket,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return model.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session service: session created",
		"session_id", session.ID,
		"user_id", userID)

	return session, nil
}

// FindValid returns the session only if it is both valid and unexpired.
// The two conditions fail with distinguishable errors so callers can choose
// re-login over hard logout.
func (s *SessionService) FindValid(ctx context.Context, id string) (model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, model.ErrSessionInvalid
		}
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	if err := session.Usable(time.Now()); err != nil {
		return model.Session{}, err
	}

	return session, nil
}

// Invalidate revokes a session independent of its expiry.
func (s *SessionService) Invalidate(ctx context.Context, id string) error {
	if err := s.sessions.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateByTicket revokes the single session correlated with a CAS
// ticket, used by back-channel SLO.
func (s *SessionService) InvalidateByTicket(ctx context.Context, ticket string, userID uuid.UUID) error {
	if err := s.sessions.InvalidateByTicket(ctx, ticket, userID); err != nil {
		return fmt.Errorf("failed to invalidate session by ticket: %w", err)
	}
	return nil
}
