// Package flow models the login flow state carried in the cas_state cookie
// as a tagged value with a strict decode-or-reject policy. The cookie value
// is always sealed; a blob the sealer does not accept never becomes state.
package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sealer authenticates and encrypts the serialized state. *token.StateCipher
// satisfies it.
type Sealer interface {
	EncryptState(payload []byte) (string, error)
	DecryptState(compact string) ([]byte, error)
}

// Kind tags the login flow state.
type Kind string

const (
	// KindAnonymous is the zero state: no login attempt in progress.
	KindAnonymous Kind = "anonymous"
	// KindPendingCASSession records an in-flight CAS login and where to
	// land afterwards.
	KindPendingCASSession Kind = "pending_cas_session"
	// KindPendingCASService records a CAS service redirect stashed across
	// registration so it can be resumed after completion.
	KindPendingCASService Kind = "pending_cas_service"
	// KindHasCASSession marks an established CAS session.
	KindHasCASSession Kind = "has_cas_session"
)

// ErrBadState is returned for cookies that do not decode to a known state.
var ErrBadState = errors.New("malformed flow state")

// State is the tagged login flow state.
type State struct {
	Kind Kind `json:"kind"`
	// RedirectURI is the post-login target (pending_cas_session only).
	RedirectURI string `json:"redirect_uri,omitempty"`
	// ServiceURI is the originally requested CAS service
	// (pending_cas_service only).
	ServiceURI string `json:"service_uri,omitempty"`
	// TryGateway records that gateway mode was requested.
	TryGateway bool `json:"try_gateway,omitempty"`
}

// Anonymous returns the zero state.
func Anonymous() State {
	return State{Kind: KindAnonymous}
}

// PendingCASSession returns an in-flight-login state.
func PendingCASSession(redirectURI string, tryGateway bool) State {
	return State{Kind: KindPendingCASSession, RedirectURI: redirectURI, TryGateway: tryGateway}
}

// PendingCASService returns a stashed-service state.
func PendingCASService(serviceURI string) State {
	return State{Kind: KindPendingCASService, ServiceURI: serviceURI}
}

// HasCASSession returns the established-session state.
func HasCASSession() State {
	return State{Kind: KindHasCASSession}
}

// Encode seals the state for cookie storage.
func (s State) Encode(sealer Sealer) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode flow state: %w", err)
	}
	sealed, err := sealer.EncryptState(raw)
	if err != nil {
		return "", fmt.Errorf("failed to seal flow state: %w", err)
	}
	return sealed, nil
}

// Decode unseals and parses a cookie value. Anything the sealer rejects, or
// that is not a known tagged state, is rejected rather than silently
// treated as anonymous.
func Decode(sealer Sealer, value string) (State, error) {
	raw, err := sealer.DecryptState(value)
	if err != nil {
		return State{}, ErrBadState
	}

	var s State
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return State{}, ErrBadState
	}

	switch s.Kind {
	case KindAnonymous, KindPendingCASSession, KindPendingCASService, KindHasCASSession:
		return s, nil
	}
	return State{}, ErrBadState
}
