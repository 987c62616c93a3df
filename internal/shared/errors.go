package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession occurs when the request carries no session cookie.
	ErrNoSession = errors.New("session missing")
	// ErrInvalidClaim occurs when the session cookie cannot be decoded.
	ErrInvalidClaim = errors.New("invalid session claim")
)
