package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/libreone/libreone-server/internal/events"
	"github.com/libreone/libreone-server/internal/mocks"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/testutil"
	"github.com/libreone/libreone-server/internal/token"
)

type authFixture struct {
	users         *mocks.MockUserStore
	verifications *mocks.MockEmailVerificationStore
	resetTokens   *mocks.MockResetPasswordTokenStore
	apps          *mocks.MockApplicationStore
	grants        *mocks.MockUserApplicationStore
	sessions      *mocks.MockSessionStore
	mailer        *mocks.MockMailer
	auth          *Auth
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		users:         &mocks.MockUserStore{},
		verifications: &mocks.MockEmailVerificationStore{},
		resetTokens:   &mocks.MockResetPasswordTokenStore{},
		apps:          &mocks.MockApplicationStore{},
		grants:        &mocks.MockUserApplicationStore{},
		sessions:      &mocks.MockSessionStore{},
		mailer:        &mocks.MockMailer{},
	}

	logger := testutil.MakeNoopLogger()
	subscribers := &mocks.MockEventSubscriberStore{}
	subscribers.On("ListForEvent", mock.Anything, mock.Anything).Return([]model.EventSubscriber(nil), nil)

	sessionTokens := token.NewSessionManager("secret", "https://one.example.org")
	cipher := token.NewStateCipher("statesecret")
	minter := token.NewSSOAssertionMinter("secret", "https://one.example.org", cipher)

	f.auth = NewAuth(
		f.users, f.verifications, f.resetTokens, f.apps, f.grants,
		NewSessionService(f.sessions, f.users, logger),
		sessionTokens, minter,
		events.NewEmitter(subscribers, "https://one.example.org", logger),
		nil, f.mailer,
		AuthConfig{
			CanonicalURL:            "https://one.example.org",
			RegistrationCompleteURL: "https://one.example.org/registration-complete",
			ResetPasswordURL:        "https://one.example.org/password-recovery/complete",
			VerifyEmailURL:          "https://one.example.org/verify-email",
		},
		logger,
	)
	return f
}

func TestAuth_Register(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.users.On("GetByEmail", mock.Anything, "a@x.org").Return(model.User{}, model.ErrNotFound)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		return u.Email == "a@x.org" && u.Disabled && u.Password != nil
	})).Return(model.User{UUID: userID, Email: "a@x.org", Disabled: true}, nil)
	f.verifications.On("Replace", mock.Anything, mock.MatchedBy(func(v model.EmailVerification) bool {
		return v.UserID == userID && v.Email == "a@x.org" && len(v.Code) == 6 && v.Token != ""
	})).Return(nil)
	f.mailer.On("SendVerificationCode", mock.Anything, "a@x.org", mock.Anything, mock.MatchedBy(func(link string) bool {
		return strings.HasPrefix(link, "https://one.example.org/verify-email?token=")
	})).Return(nil)

	id, err := f.auth.Register(context.Background(), "a@x.org", "StrongPass1!")
	require.NoError(t, err)
	assert.Equal(t, userID, id)
	f.verifications.AssertExpectations(t)
}

func TestAuth_Register_Conflict(t *testing.T) {
	f := newAuthFixture(t)

	f.users.On("GetByEmail", mock.Anything, "a@x.org").Return(model.User{UUID: uuid.New(), Email: "a@x.org"}, nil)

	_, err := f.auth.Register(context.Background(), "a@x.org", "StrongPass1!")
	assert.ErrorIs(t, err, model.ErrEmailTaken)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuth_Register_MailFailureIsNotFatal(t *testing.T) {
	f := newAuthFixture(t)

	f.users.On("GetByEmail", mock.Anything, "a@x.org").Return(model.User{}, model.ErrNotFound)
	f.users.On("Create", mock.Anything, mock.Anything).Return(model.User{UUID: uuid.New(), Email: "a@x.org"}, nil)
	f.verifications.On("Replace", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendVerificationCode", mock.Anything, "a@x.org", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := f.auth.Register(context.Background(), "a@x.org", "StrongPass1!")
	assert.NoError(t, err)
}

func TestAuth_VerifyRegistrationEmail(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()
	stored := model.User{UUID: userID, Email: "a@x.org", Disabled: true}

	f.verifications.On("GetByEmailAndCode", mock.Anything, "a@x.org", "123456").Return(model.EmailVerification{
		UserID:    userID,
		Email:     "a@x.org",
		Code:      "123456",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	f.users.On("GetByUUID", mock.Anything, userID).Return(stored, nil)
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		return u.UUID == userID && !u.Disabled
	})).Return(model.User{UUID: userID, Email: "a@x.org"}, nil)
	f.verifications.On("Delete", mock.Anything, userID, "a@x.org").Return(nil)
	f.sessions.On("Create", mock.Anything, mock.MatchedBy(func(s model.Session) bool {
		// Provisional sessions are intentionally short.
		return s.UserID == userID && s.Valid &&
			time.Until(s.ExpiresAt) <= model.ProvisionalSessionTTL+time.Minute
	})).Return(nil)

	user, session, sessionToken, err := f.auth.VerifyRegistrationEmail(context.Background(), "a@x.org", "123456")
	require.NoError(t, err)
	assert.False(t, user.Disabled)
	assert.Equal(t, userID, session.UserID)
	assert.NotEmpty(t, sessionToken)
}

func TestAuth_VerifyRegistrationEmail_WrongCode(t *testing.T) {
	f := newAuthFixture(t)

	f.verifications.On("GetByEmailAndCode", mock.Anything, "a@x.org", "000000").
		Return(model.EmailVerification{}, model.ErrNotFound)

	_, _, _, err := f.auth.VerifyRegistrationEmail(context.Background(), "a@x.org", "000000")
	assert.ErrorIs(t, err, model.ErrWrongCredentials)
}

func TestAuth_VerifyRegistrationEmail_Expired(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.verifications.On("GetByEmailAndCode", mock.Anything, "a@x.org", "123456").Return(model.EmailVerification{
		UserID:    userID,
		Email:     "a@x.org",
		ExpiresAt: time.Now().Add(-time.Hour),
	}, nil)
	f.verifications.On("Delete", mock.Anything, userID, "a@x.org").Return(nil)

	_, _, _, err := f.auth.VerifyRegistrationEmail(context.Background(), "a@x.org", "123456")
	assert.ErrorIs(t, err, model.ErrTokenExpired)
	f.verifications.AssertCalled(t, "Delete", mock.Anything, userID, "a@x.org")
}

func TestAuth_VerifyRegistrationByToken(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()
	stored := model.User{UUID: userID, Email: "a@x.org", Disabled: true}

	f.verifications.On("GetByToken", mock.Anything, "link-token").Return(model.EmailVerification{
		UserID:    userID,
		Email:     "a@x.org",
		Code:      "123456",
		Token:     "link-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	f.users.On("GetByUUID", mock.Anything, userID).Return(stored, nil)
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		return u.UUID == userID && !u.Disabled
	})).Return(model.User{UUID: userID, Email: "a@x.org"}, nil)
	f.verifications.On("Delete", mock.Anything, userID, "a@x.org").Return(nil)
	f.sessions.On("Create", mock.Anything, mock.MatchedBy(func(s model.Session) bool {
		return s.UserID == userID && s.Valid
	})).Return(nil)

	user, session, sessionToken, err := f.auth.VerifyRegistrationByToken(context.Background(), "link-token")
	require.NoError(t, err)
	assert.False(t, user.Disabled)
	assert.Equal(t, userID, session.UserID)
	assert.NotEmpty(t, sessionToken)
}

func TestAuth_VerifyRegistrationByToken_Unknown(t *testing.T) {
	f := newAuthFixture(t)

	f.verifications.On("GetByToken", mock.Anything, "nope").
		Return(model.EmailVerification{}, model.ErrNotFound)

	_, _, _, err := f.auth.VerifyRegistrationByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestAuth_VerifyRegistrationByToken_Expired(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.verifications.On("GetByToken", mock.Anything, "stale").Return(model.EmailVerification{
		UserID:    userID,
		Email:     "a@x.org",
		Token:     "stale",
		ExpiresAt: time.Now().Add(-time.Hour),
	}, nil)
	f.verifications.On("Delete", mock.Anything, userID, "a@x.org").Return(nil)

	_, _, _, err := f.auth.VerifyRegistrationByToken(context.Background(), "stale")
	assert.ErrorIs(t, err, model.ErrTokenExpired)
	f.verifications.AssertCalled(t, "Delete", mock.Anything, userID, "a@x.org")
}

func TestAuth_InitPasswordRecovery_UnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t)

	f.users.On("GetByEmail", mock.Anything, "ghost@x.org").Return(model.User{}, model.ErrNotFound)

	err := f.auth.InitPasswordRecovery(context.Background(), "ghost@x.org")
	assert.NoError(t, err)
	f.resetTokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuth_InitPasswordRecovery(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.users.On("GetByEmail", mock.Anything, "a@x.org").Return(model.User{UUID: userID, Email: "a@x.org"}, nil)
	f.resetTokens.On("DeleteByUser", mock.Anything, userID).Return(nil)
	f.resetTokens.On("Create", mock.Anything, mock.MatchedBy(func(rt model.ResetPasswordToken) bool {
		return rt.UserID == userID && len(rt.Token) == 64 && rt.ExpiresAt > time.Now().Unix()
	})).Return(nil)
	f.mailer.On("SendPasswordReset", mock.Anything, "a@x.org", mock.MatchedBy(func(link string) bool {
		return len(link) > 0
	})).Return(nil)

	err := f.auth.InitPasswordRecovery(context.Background(), "a@x.org")
	require.NoError(t, err)
	f.resetTokens.AssertExpectations(t)
}

func TestAuth_CompletePasswordRecovery(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()
	old := "old-hash"
	stored := model.User{UUID: userID, Email: "a@x.org", Password: &old}

	f.resetTokens.On("GetByToken", mock.Anything, "tok").Return(model.ResetPasswordToken{
		Token:     "tok",
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, nil)
	f.users.On("GetByUUID", mock.Anything, userID).Return(stored, nil)
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		if u.Password == nil {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(*u.Password), []byte("NewPass1!")) == nil
	})).Return(stored, nil)
	f.resetTokens.On("Delete", mock.Anything, "tok").Return(nil)

	err := f.auth.CompletePasswordRecovery(context.Background(), "tok", "NewPass1!")
	require.NoError(t, err)
	f.resetTokens.AssertCalled(t, "Delete", mock.Anything, "tok")
}

func TestAuth_CompletePasswordRecovery_Expired(t *testing.T) {
	f := newAuthFixture(t)

	f.resetTokens.On("GetByToken", mock.Anything, "tok").Return(model.ResetPasswordToken{
		Token:     "tok",
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}, nil)
	f.resetTokens.On("Delete", mock.Anything, "tok").Return(nil)

	err := f.auth.CompletePasswordRecovery(context.Background(), "tok", "NewPass1!")
	assert.ErrorIs(t, err, model.ErrTokenExpired)
	f.resetTokens.AssertCalled(t, "Delete", mock.Anything, "tok")
}

func TestAuth_CompletePasswordRecovery_UnknownToken(t *testing.T) {
	f := newAuthFixture(t)

	f.resetTokens.On("GetByToken", mock.Anything, "tok").Return(model.ResetPasswordToken{}, model.ErrNotFound)

	err := f.auth.CompletePasswordRecovery(context.Background(), "tok", "NewPass1!")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestAuth_HandleBackChannelSLO(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.users.On("GetByEmail", mock.Anything, "a@x.org").Return(model.User{UUID: userID, Email: "a@x.org"}, nil)
	f.sessions.On("InvalidateByTicket", mock.Anything, "ST-123", userID).Return(nil)

	payload := `<LogoutRequest><NameID>a@x.org</NameID><SessionIndex>ST-123</SessionIndex></LogoutRequest>`
	err := f.auth.HandleBackChannelSLO(context.Background(), payload)
	require.NoError(t, err)
	f.sessions.AssertCalled(t, "InvalidateByTicket", mock.Anything, "ST-123", userID)
}

func TestAuth_HandleBackChannelSLO_NoMatchIsNoOp(t *testing.T) {
	f := newAuthFixture(t)

	f.users.On("GetByEmail", mock.Anything, "ghost@x.org").Return(model.User{}, model.ErrNotFound)

	payload := `<LogoutRequest><NameID>ghost@x.org</NameID><SessionIndex>ST-404</SessionIndex></LogoutRequest>`
	err := f.auth.HandleBackChannelSLO(context.Background(), payload)
	assert.NoError(t, err)
	f.sessions.AssertNotCalled(t, "InvalidateByTicket", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuth_CompleteRegistration(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()
	stored := model.User{UUID: userID, Email: "a@x.org"}

	f.users.On("GetByUUID", mock.Anything, userID).Return(stored, nil)
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		return u.RegistrationComplete
	})).Return(model.User{UUID: userID, Email: "a@x.org", RegistrationComplete: true}, nil)
	f.apps.On("ListDefaultAccessAll", mock.Anything).Return([]model.Application{{ID: 1}, {ID: 2}}, nil)
	f.grants.On("Grant", mock.Anything, userID, int64(1)).Return(nil)
	f.grants.On("Grant", mock.Anything, userID, int64(2)).Return(nil)

	result, err := f.auth.CompleteRegistration(context.Background(), CompleteRegistrationInput{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, "https://one.example.org/registration-complete", result.RedirectURI)
	assert.Empty(t, result.SSOAssertion)
	f.grants.AssertNumberOfCalls(t, "Grant", 2)
}

func TestAuth_CompleteRegistration_StashedServiceWins(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{UUID: userID}, nil)
	f.users.On("Update", mock.Anything, mock.Anything).Return(model.User{UUID: userID, RegistrationComplete: true}, nil)
	f.apps.On("ListDefaultAccessAll", mock.Anything).Return([]model.Application(nil), nil)

	result, err := f.auth.CompleteRegistration(context.Background(), CompleteRegistrationInput{
		UserID:               userID,
		StashedCASService:    "https://lib.example.org/cas",
		PostRegisterRedirect: "https://other.example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://lib.example.org/cas", result.RedirectURI)
	// No new SSO session: the CAS round-trip will establish it.
	assert.Empty(t, result.SSOAssertion)
}

func TestAuth_CompleteRegistration_PostRegisterForcesSSO(t *testing.T) {
	f := newAuthFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{UUID: userID}, nil)
	f.users.On("Update", mock.Anything, mock.Anything).Return(model.User{UUID: userID, RegistrationComplete: true}, nil)
	f.apps.On("ListDefaultAccessAll", mock.Anything).Return([]model.Application(nil), nil)

	result, err := f.auth.CompleteRegistration(context.Background(), CompleteRegistrationInput{
		UserID:               userID,
		PostRegisterRedirect: "https://app.example.org/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.org/return", result.RedirectURI)
	assert.NotEmpty(t, result.SSOAssertion)
}
