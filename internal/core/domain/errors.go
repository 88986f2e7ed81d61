package domain

import "errors"

// Authentication outcomes. Callers compare with errors.Is; only the HTTP layer
// turns them into status codes.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers absent, expired, malformed and tampered tokens alike.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAlreadyConsumed is returned when a magic link was redeemed before.
	ErrAlreadyConsumed = errors.New("token already consumed")
	// ErrStoreUnavailable wraps any downstream I/O failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrForbidden    = errors.New("access forbidden")
	ErrInvalidInput = errors.New("invalid input")
)
