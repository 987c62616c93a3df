package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate validates credentials and, for accounts with 2FA enabled, the
// time based one-time code.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	creds.Email = normaliseEmail(creds.Email)
	if err := httpx.Validator.Struct(creds); err != nil {
		return nil, httpx.ValidationError(err)
	}
	user, err := s.repo.FindByEmail(ctx, creds.Email)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user: %w", httpx.ErrUpstream, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if user.TwoFactorEnabled {
		code := strings.TrimSpace(creds.TwoFactorToken)
		if code == "" {
			return nil, ErrTwoFactorRequired
		}
		ok, err := totp.ValidateCustom(code, user.TwoFactorSecret, s.now().UTC(), totp.ValidateOpts{
			Period: 30,
			Skew:   1,
			Digits: 6,
		})
		if err != nil || !ok {
			return nil, ErrInvalidTwoFactor
		}
	}
	return user, nil
}

// Register creates an account. The role defaults to editor and must be one of
// the known roles. With TwoFactor set a TOTP secret is generated and the
// returned user carries its provisioning URL.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	reg.Email = normaliseEmail(reg.Email)
	if err := httpx.Validator.Struct(reg); err != nil {
		return nil, httpx.ValidationError(err)
	}
	role := strings.TrimSpace(reg.Role)
	if role == "" {
		role = DefaultRole
	}
	if !rbac.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	candidate := User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		Username:     strings.ToLower(strings.TrimSpace(reg.Username)),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if reg.TwoFactor {
		if err := enrollTwoFactor(&candidate); err != nil {
			return nil, err
		}
	}
	user, err := s.repo.Create(ctx, candidate)
	if errors.Is(err, httpx.ErrDuplicate) {
		return nil, fmt.Errorf("%w: user already exists", httpx.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create user: %w", httpx.ErrUpstream, err)
	}
	user.ProvisioningURL = candidate.ProvisioningURL
	return user, nil
}

func enrollTwoFactor(user *User) error {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: totpIssuer, AccountName: user.Email})
	if err != nil {
		return fmt.Errorf("generate totp secret: %w", err)
	}
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = key.Secret()
	user.ProvisioningURL = key.URL()
	return nil
}

// Claim builds the session claim for user.
func Claim(user *User) shared.Claim {
	return shared.Claim{UserID: user.ID, Role: user.Role}
}

func normaliseEmail(email string) string {
	return strings.TrimSpace(email)
}
