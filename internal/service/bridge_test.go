package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/libreone/libreone-server/internal/keys"
	"github.com/libreone/libreone-server/internal/mocks"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/testutil"
)

func testKeyMaterial(t *testing.T) (keys.Material, *rsa.PublicKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return keys.Material{
		PrivateKeyPEM: string(privPEM),
		KeyID:         "kid-test",
	}, &key.PublicKey
}

type bridgeFixture struct {
	users  *mocks.MockUserStore
	apps   *mocks.MockApplicationStore
	grants *mocks.MockUserApplicationStore
	pub    *rsa.PublicKey
	bridge *Bridge
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	material, pub := testKeyMaterial(t)
	f := &bridgeFixture{
		users:  &mocks.MockUserStore{},
		apps:   &mocks.MockApplicationStore{},
		grants: &mocks.MockUserApplicationStore{},
		pub:    pub,
	}
	f.bridge = NewBridge(f.users, f.apps, f.grants, keys.Static{M: material},
		"https://one.example.org", testutil.MakeNoopLogger())
	return f
}

func TestBridge_IssueToken(t *testing.T) {
	f := newBridgeFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{
		UUID:         userID,
		Email:        "a@x.org",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		UserType:     model.UserTypeInstructor,
		VerifyStatus: model.VerifyVerified,
	}, nil)
	f.apps.On("GetByID", mock.Anything, int64(7)).Return(model.Application{
		ID:            7,
		AppType:       model.AppTypeLibrary,
		DefaultAccess: model.DefaultAccessNone,
	}, nil)
	f.grants.On("HasGrant", mock.Anything, userID, int64(7)).Return(true, nil)

	result, err := f.bridge.IssueToken(context.Background(), userID.String(), 7)
	require.NoError(t, err)
	assert.Equal(t, "kid-test", result.KeyID)
	assert.True(t, result.Authorized)
	assert.False(t, result.Unverified)

	var claims BridgeClaims
	tok, err := jwt.ParseWithClaims(result.Token, &claims, func(tok *jwt.Token) (any, error) {
		assert.Equal(t, "kid-test", tok.Header["kid"])
		return f.pub, nil
	})
	require.NoError(t, err)
	assert.True(t, tok.Valid)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "a@x.org", claims.Email)
	assert.True(t, claims.Verified)
}

func TestBridge_IssueToken_DefaultAccessAllSkipsGrantCheck(t *testing.T) {
	f := newBridgeFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{UUID: userID}, nil)
	f.apps.On("GetByID", mock.Anything, int64(7)).Return(model.Application{
		ID:            7,
		AppType:       model.AppTypeLibrary,
		DefaultAccess: model.DefaultAccessAll,
	}, nil)

	result, err := f.bridge.IssueToken(context.Background(), userID.String(), 7)
	require.NoError(t, err)
	assert.True(t, result.Authorized)
	f.grants.AssertNotCalled(t, "HasGrant", mock.Anything, mock.Anything, mock.Anything)
}

func TestBridge_IssueToken_UnverifiedInstructor(t *testing.T) {
	f := newBridgeFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{
		UUID:         userID,
		UserType:     model.UserTypeInstructor,
		VerifyStatus: model.VerifyPending,
	}, nil)
	f.apps.On("GetByID", mock.Anything, int64(7)).Return(model.Application{
		ID:            7,
		AppType:       model.AppTypeLibrary,
		DefaultAccess: model.DefaultAccessAll,
	}, nil)

	result, err := f.bridge.IssueToken(context.Background(), userID.String(), 7)
	require.NoError(t, err)
	assert.True(t, result.Unverified)
}

func TestBridge_IssueToken_NotALibrary(t *testing.T) {
	f := newBridgeFixture(t)
	userID := uuid.New()

	f.users.On("GetByUUID", mock.Anything, userID).Return(model.User{UUID: userID}, nil)
	f.apps.On("GetByID", mock.Anything, int64(9)).Return(model.Application{
		ID:      9,
		AppType: model.AppTypeStandalone,
	}, nil)

	_, err := f.bridge.IssueToken(context.Background(), userID.String(), 9)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestBridge_IssueToken_ExternalSubjectFallback(t *testing.T) {
	f := newBridgeFixture(t)
	userID := uuid.New()

	f.users.On("GetByExternalSubject", mock.Anything, "idp|someone").
		Return(model.User{UUID: userID}, nil)
	f.apps.On("GetByID", mock.Anything, int64(7)).Return(model.Application{
		ID:            7,
		AppType:       model.AppTypeLibrary,
		DefaultAccess: model.DefaultAccessAll,
	}, nil)

	result, err := f.bridge.IssueToken(context.Background(), "idp|someone", 7)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	f.users.AssertNotCalled(t, "GetByUUID", mock.Anything, mock.Anything)
}
