package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WebhookClaims wrap an event name and a digest of the delivered body for
// delivery as a bearer token. The digest ties the signature to the exact
// payload bytes; a receiver that checks it rejects a tampered body.
type WebhookClaims struct {
	jwt.RegisteredClaims
	Event       string `json:"event"`
	PayloadHash string `json:"payload_sha256,omitempty"`
}

// SignWebhook produces a short-lived HMAC-signed bearer token for an
// outbound webhook or partner notification call. payload is the exact body
// being delivered; nil leaves the digest claim out.
func SignWebhook(secret, issuer, event string, payload []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := WebhookClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Event: event,
	}
	if payload != nil {
		sum := sha256.Sum256(payload)
		claims.PayloadHash = hex.EncodeToString(sum[:])
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign webhook token: %w", err)
	}
	return signed, nil
}
