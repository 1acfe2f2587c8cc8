package token

import (
	"crypto/sha256"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
)

// StateCipher encrypts small state payloads as compact JWEs. It is used for
// the CAS-bridge cross-domain token and the sensitive variant of the flow
// state cookie. The content-encryption key is independent from the session
// signing secret.
type StateCipher struct {
	key []byte
}

// NewStateCipher derives a fixed-length content-encryption key from the
// configured secret.
func NewStateCipher(secret string) *StateCipher {
	sum := sha256.Sum256([]byte(secret))
	return &StateCipher{key: sum[:]}
}

// EncryptState produces a compact JWE of the payload.
func (c *StateCipher) EncryptState(payload []byte) (string, error) {
	encrypted, err := jwe.Encrypt(payload,
		jwe.WithKey(jwa.DIRECT, c.key),
		jwe.WithContentEncryption(jwa.A256GCM),
	)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt state: %w", err)
	}
	return string(encrypted), nil
}

// DecryptState reverses EncryptState.
func (c *StateCipher) DecryptState(compact string) ([]byte, error) {
	payload, err := jwe.Decrypt([]byte(compact), jwe.WithKey(jwa.DIRECT, c.key))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}
	return payload, nil
}
