package auth

import (
	"errors"
	"time"
)

// DefaultRole is assigned to accounts registered without one.
const DefaultRole = "editor"

// bcryptCost is the work factor for stored password hashes.
const bcryptCost = 10

const totpIssuer = "storedash"

var (
	// ErrTwoFactorRequired indicates a valid password for a 2FA account with no code supplied.
	ErrTwoFactorRequired = errors.New("2FA code required")
	// ErrInvalidTwoFactor indicates a one-time code that does not verify.
	ErrInvalidTwoFactor = errors.New("invalid 2FA code")
)

// User represents a staff account.
type User struct {
	ID               string
	Email            string
	Username         string
	PasswordHash     string
	Role             string
	TwoFactorEnabled bool
	TwoFactorSecret  string
	CreatedAt        time.Time

	// ProvisioningURL is set only on the value returned by a registration
	// that enrolled two factor authentication. It is never stored.
	ProvisioningURL string
}

// Credentials is a login attempt.
type Credentials struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required"`
	TwoFactorToken string `json:"twoFactorToken"`
}

// Registration describes a new account.
type Registration struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Username  string `json:"username" validate:"omitempty,alphanum"`
	Role      string `json:"role"`
	TwoFactor bool   `json:"twoFactor"`
}
