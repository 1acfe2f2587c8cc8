package token

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreone/libreone-server/internal/model"
)

func TestStateCipher_RoundTrip(t *testing.T) {
	c := NewStateCipher("statesecret")

	encrypted, err := c.EncryptState([]byte(`{"kind":"has_cas_session"}`))
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "has_cas_session")

	payload, err := c.DecryptState(encrypted)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"has_cas_session"}`, string(payload))
}

func TestStateCipher_WrongKey(t *testing.T) {
	c := NewStateCipher("statesecret")
	other := NewStateCipher("different")

	encrypted, err := c.EncryptState([]byte("payload"))
	require.NoError(t, err)

	_, err = other.DecryptState(encrypted)
	assert.Error(t, err)
}

func TestSSOAssertionMinter_RoundTrip(t *testing.T) {
	cipher := NewStateCipher("statesecret")
	m := NewSSOAssertionMinter("secret", testIssuer, cipher)
	userID := uuid.New()

	assertion, err := m.Mint(userID)
	require.NoError(t, err)

	got, err := m.Verify(assertion)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestSSOAssertionMinter_Verify_Tampered(t *testing.T) {
	cipher := NewStateCipher("statesecret")
	m := NewSSOAssertionMinter("secret", testIssuer, cipher)

	_, err := m.Verify("not-a-jwe")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestSSOAssertionMinter_Verify_WrongSigningSecret(t *testing.T) {
	cipher := NewStateCipher("statesecret")
	minter := NewSSOAssertionMinter("secret", testIssuer, cipher)
	verifier := NewSSOAssertionMinter("different", testIssuer, cipher)

	assertion, err := minter.Mint(uuid.New())
	require.NoError(t, err)

	_, err = verifier.Verify(assertion)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestSignWebhook(t *testing.T) {
	body := []byte(`{"event":"user:created","payload":{"uuid":"u-1"}}`)

	bearer, err := SignWebhook("hooksecret", testIssuer, "user:created", body, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, bearer)

	var claims WebhookClaims
	_, err = jwt.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) {
		return []byte("hooksecret"), nil
	})
	require.NoError(t, err)

	assert.Equal(t, "user:created", claims.Event)
	assert.Equal(t, testIssuer, claims.Issuer)
	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), claims.PayloadHash)
}

func TestSignWebhook_NoPayloadOmitsDigest(t *testing.T) {
	bearer, err := SignWebhook("hooksecret", testIssuer, "user:created", nil, time.Minute)
	require.NoError(t, err)

	var claims WebhookClaims
	_, err = jwt.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) {
		return []byte("hooksecret"), nil
	})
	require.NoError(t, err)
	assert.Empty(t, claims.PayloadHash)
}
