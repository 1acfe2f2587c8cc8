// Package mocks provides testify mocks for the model store interfaces
// shared across test packages.
package mocks

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/libreone/libreone-server/internal/model"
)

// MockUserStore mocks the UserStore interface
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByUUID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) GetByExternalSubject(ctx context.Context, subjectID string) (model.User, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) Update(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) TouchLastAccess(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSessionStore mocks the SessionStore interface
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context, session model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionStore) GetByID(ctx context.Context, id string) (model.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *MockSessionStore) Invalidate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionStore) InvalidateByTicket(ctx context.Context, ticket string, userID uuid.UUID) error {
	args := m.Called(ctx, ticket, userID)
	return args.Error(0)
}

// MockEmailVerificationStore mocks the EmailVerificationStore interface
type MockEmailVerificationStore struct {
	mock.Mock
}

func (m *MockEmailVerificationStore) Replace(ctx context.Context, verification model.EmailVerification) error {
	args := m.Called(ctx, verification)
	return args.Error(0)
}

func (m *MockEmailVerificationStore) GetByEmailAndCode(ctx context.Context, email, code string) (model.EmailVerification, error) {
	args := m.Called(ctx, email, code)
	return args.Get(0).(model.EmailVerification), args.Error(1)
}

func (m *MockEmailVerificationStore) GetByToken(ctx context.Context, token string) (model.EmailVerification, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(model.EmailVerification), args.Error(1)
}

func (m *MockEmailVerificationStore) Delete(ctx context.Context, userID uuid.UUID, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

// MockResetPasswordTokenStore mocks the ResetPasswordTokenStore interface
type MockResetPasswordTokenStore struct {
	mock.Mock
}

func (m *MockResetPasswordTokenStore) Create(ctx context.Context, token model.ResetPasswordToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockResetPasswordTokenStore) GetByToken(ctx context.Context, token string) (model.ResetPasswordToken, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(model.ResetPasswordToken), args.Error(1)
}

func (m *MockResetPasswordTokenStore) Delete(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockResetPasswordTokenStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockApplicationStore mocks the ApplicationStore interface
type MockApplicationStore struct {
	mock.Mock
}

func (m *MockApplicationStore) GetByID(ctx context.Context, id int64) (model.Application, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Application), args.Error(1)
}

func (m *MockApplicationStore) GetByCASServiceURL(ctx context.Context, serviceURL string) (model.Application, error) {
	args := m.Called(ctx, serviceURL)
	return args.Get(0).(model.Application), args.Error(1)
}

func (m *MockApplicationStore) ListDefaultAccessAll(ctx context.Context) ([]model.Application, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Application), args.Error(1)
}

func (m *MockApplicationStore) ListLibraries(ctx context.Context) ([]model.Application, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Application), args.Error(1)
}

// MockUserApplicationStore mocks the UserApplicationStore interface
type MockUserApplicationStore struct {
	mock.Mock
}

func (m *MockUserApplicationStore) Grant(ctx context.Context, userID uuid.UUID, applicationID int64) error {
	args := m.Called(ctx, userID, applicationID)
	return args.Error(0)
}

func (m *MockUserApplicationStore) HasGrant(ctx context.Context, userID uuid.UUID, applicationID int64) (bool, error) {
	args := m.Called(ctx, userID, applicationID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserApplicationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]int64), args.Error(1)
}

// MockLicenseStore mocks the LicenseStore interface
type MockLicenseStore struct {
	mock.Mock
}

func (m *MockLicenseStore) ListUserLicenses(ctx context.Context, userID uuid.UUID, applicationID int64) ([]model.LicenseGrant, error) {
	args := m.Called(ctx, userID, applicationID)
	return args.Get(0).([]model.LicenseGrant), args.Error(1)
}

func (m *MockLicenseStore) ListOrgEntitlements(ctx context.Context, userID uuid.UUID, applicationID int64) ([]model.LicenseGrant, error) {
	args := m.Called(ctx, userID, applicationID)
	return args.Get(0).([]model.LicenseGrant), args.Error(1)
}

// MockEventSubscriberStore mocks the EventSubscriberStore interface
type MockEventSubscriberStore struct {
	mock.Mock
}

func (m *MockEventSubscriberStore) ListForEvent(ctx context.Context, event model.EventName) ([]model.EventSubscriber, error) {
	args := m.Called(ctx, event)
	return args.Get(0).([]model.EventSubscriber), args.Error(1)
}

// MockStorage mocks the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	args := m.Called(ctx, key, reader)
	return args.Error(0)
}

func (m *MockStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockMailer mocks the Mailer interface
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationCode(ctx context.Context, email, code, verifyLink string) error {
	args := m.Called(ctx, email, code, verifyLink)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, email, resetLink string) error {
	args := m.Called(ctx, email, resetLink)
	return args.Error(0)
}
