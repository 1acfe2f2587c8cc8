package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/model"
)

// ssoAssertionClaims back the short-lived signed-then-encrypted assertion
// minted during registration completion and handed to CAS as an opaque
// `token` query parameter.
type ssoAssertionClaims struct {
	jwt.RegisteredClaims
	UUID string `json:"uuid"`
}

// SSOAssertionMinter mints one-minute SSO completion assertions. The JWT is
// signed with the session secret, then encrypted with the state cipher so
// CAS only ever sees an opaque blob.
type SSOAssertionMinter struct {
	secret []byte
	issuer string
	cipher *StateCipher
}

// NewSSOAssertionMinter creates an assertion minter.
func NewSSOAssertionMinter(secret, issuer string, cipher *StateCipher) *SSOAssertionMinter {
	return &SSOAssertionMinter{secret: []byte(secret), issuer: issuer, cipher: cipher}
}

// Mint signs and encrypts an assertion for the user.
func (m *SSOAssertionMinter) Mint(userID uuid.UUID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ssoAssertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(model.SSOCompletionAssertTTL)),
		},
		UUID: userID.String(),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign sso assertion: %w", err)
	}

	return m.cipher.EncryptState([]byte(signed))
}

// Verify decrypts and verifies an assertion, returning the asserted user.
func (m *SSOAssertionMinter) Verify(compact string) (uuid.UUID, error) {
	signed, err := m.cipher.DecryptState(compact)
	if err != nil {
		return uuid.Nil, model.ErrTokenInvalid
	}

	claims := &ssoAssertionClaims{}
	token, err := jwt.ParseWithClaims(string(signed), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, model.ErrTokenExpired
		}
		return uuid.Nil, model.ErrTokenInvalid
	}
	if !token.Valid {
		return uuid.Nil, model.ErrTokenInvalid
	}

	return uuid.Parse(claims.UUID)
}
