package model

import "errors"

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrSessionExpired marks a session past its expiry. Callers redirect to
	// re-login rather than hard logout.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionInvalid marks a revoked or tampered session. Callers hard
	// logout.
	ErrSessionInvalid = errors.New("session invalid")

	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrNoCredentials    = errors.New("no credentials presented")
	ErrWrongCredentials = errors.New("wrong credentials")
	ErrUserDisabled     = errors.New("user disabled")
	ErrForbidden        = errors.New("not entitled")
)
