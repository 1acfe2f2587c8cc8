package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/libreone/libreone-server/internal/model"
)

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UUID      string `json:"uuid"`
	SessionID string `json:"session_id"`
}

// SessionManager issues and verifies HMAC-signed session tokens. The issuer
// and audience are both the service's own canonical URL.
type SessionManager struct {
	secret []byte
	issuer string
}

// NewSessionManager creates a session token manager.
func NewSessionManager(secret, issuer string) *SessionManager {
	return &SessionManager{secret: []byte(secret), issuer: issuer}
}

// CreateSessionToken builds a signed token with subject and uuid claim set
// to the user id and a 7-day expiry.
func (m *SessionManager) CreateSessionToken(userID uuid.UUID, sessionID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(model.SessionDuration)),
		},
		UUID:      userID.String(),
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// VerifySessionToken checks signature, issuer and audience. An expired token
// is reported as model.ErrSessionExpired, any other failure as
// model.ErrSessionInvalid, so callers can choose re-login over hard logout.
func (m *SessionManager) VerifySessionToken(tokenString string) (userID uuid.UUID, sessionID string, err error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", model.ErrSessionExpired
		}
		return uuid.Nil, "", model.ErrSessionInvalid
	}
	if !token.Valid {
		return uuid.Nil, "", model.ErrSessionInvalid
	}

	userID, err = uuid.Parse(claims.UUID)
	if err != nil {
		return uuid.Nil, "", model.ErrSessionInvalid
	}

	return userID, claims.SessionID, nil
}

// SplitSessionToken splits a token at the second dot. The header+payload
// half goes into a client-readable cookie, the signature half into an
// httpOnly cookie.
func SplitSessionToken(tokenString string) (accessPart, signedPart string, err error) {
	idx := strings.LastIndex(tokenString, ".")
	if idx <= 0 || strings.Count(tokenString, ".") != 2 {
		return "", "", model.ErrTokenInvalid
	}
	return tokenString[:idx], tokenString[idx+1:], nil
}

// JoinSessionToken reassembles the two cookie halves into a verifiable token.
func JoinSessionToken(accessPart, signedPart string) string {
	return accessPart + "." + signedPart
}
