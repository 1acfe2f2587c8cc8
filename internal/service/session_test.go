package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/mock"

	"github.com/libreone/libreone-server/internal/mocks"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/testutil"
)

func TestSessionService_Create(t *testing.T) {
	sessions := &mocks.MockSessionStore{}
	users := &mocks.MockUserStore{}
	svc := NewSessionService(sessions, users, testutil.MakeNoopLogger())

	userID := uuid.New()
	ticket := "ST-123"
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s model.Session) bool {
		return s.UserID == userID &&
			s.Valid &&
			s.SessionTicket != nil && *s.SessionTicket == ticket &&
			s.ID != ""
	})).Return(nil)

	session, err := svc.Create(context.Background(), userID.String(), &ticket, model.SessionDuration)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)
	assert.WithinDuration(t, time.Now().Add(model.SessionDuration), session.ExpiresAt, time.Minute)
	users.AssertNotCalled(t, "GetByExternalSubject", mock.Anything, mock.Anything)
}

func TestSessionService_Create_ExternalSubjectFallback(t *testing.T) {
	sessions := &mocks.MockSessionStore{}
	users := &mocks.MockUserStore{}
	svc := NewSessionService(sessions, users, testutil.MakeNoopLogger())

	userID := uuid.New()
	users.On("GetByExternalSubject", mock.Anything, "idp|someone").
		Return(model.User{UUID: userID}, nil)
	sessions.On("Create", mock.Anything, mock.MatchedBy(func(s model.Session) bool {
		return s.UserID == userID
	})).Return(nil)

	session, err := svc.Create(context.Background(), "idp|someone", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, userID, session.UserID)
	// Zero ttl falls back to the standard session duration.
	assert.WithinDuration(t, time.Now().Add(model.SessionDuration), session.ExpiresAt, time.Minute)
}

func TestSessionService_Create_UnknownExternalSubject(t *testing.T) {
	sessions := &mocks.MockSessionStore{}
	users := &mocks.MockUserStore{}
	svc := NewSessionService(sessions, users, testutil.MakeNoopLogger())

	users.On("GetByExternalSubject", mock.Anything, "idp|ghost").
		Return(model.User{}, model.ErrNotFound)

	_, err := svc.Create(context.Background(), "idp|ghost", nil, model.SessionDuration)
	assert.ErrorIs(t, err, model.ErrNotFound)
	sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSessionService_FindValid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		session model.Session
		wantErr error
	}{
		{
			name:    "valid and unexpired",
			session: model.Session{ID: "s1", Valid: true, ExpiresAt: now.Add(time.Hour)},
			wantErr: nil,
		},
		{
			name:    "invalidated",
			session: model.Session{ID: "s2", Valid: false, ExpiresAt: now.Add(time.Hour)},
			wantErr: model.ErrSessionInvalid,
		},
		{
			name:    "expired",
			session: model.Session{ID: "s3", Valid: true, ExpiresAt: now.Add(-time.Hour)},
			wantErr: model.ErrSessionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &mocks.MockSessionStore{}
			svc := NewSessionService(sessions, &mocks.MockUserStore{}, testutil.MakeNoopLogger())
			sessions.On("GetByID", mock.Anything, tt.session.ID).Return(tt.session, nil)

			got, err := svc.FindValid(context.Background(), tt.session.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.session.ID, got.ID)
		})
	}
}

func TestSessionService_FindValid_UnknownIsInvalid(t *testing.T) {
	sessions := &mocks.MockSessionStore{}
	svc := NewSessionService(sessions, &mocks.MockUserStore{}, testutil.MakeNoopLogger())

	sessions.On("GetByID", mock.Anything, "missing").Return(model.Session{}, model.ErrNotFound)

	_, err := svc.FindValid(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrSessionInvalid)
}
