package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/shared"
)

func TestRegisterDefaultsAndHashes(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	user, err := svc.Register(context.Background(), Registration{Email: " ed@example.com ", Password: "password1"})
	require.NoError(t, err)

	assert.Equal(t, DefaultRole, user.Role)
	assert.Equal(t, "ed@example.com", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.TwoFactorEnabled)
	assert.Empty(t, user.ProvisioningURL)
	cost, err := bcrypt.Cost([]byte(user.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcryptCost, cost)
}

func TestRegisterRejects(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{Email: "a@example.com", Password: "password1", Role: "owner"})
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = svc.Register(ctx, Registration{Email: "not-an-email", Password: "password1"})
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = svc.Register(ctx, Registration{Email: "a@example.com", Password: "short"})
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = svc.Register(ctx, Registration{Email: "a@example.com", Password: "password1", Username: "sam"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Registration{Email: "b@example.com", Password: "password1", Username: "SAM"})
	assert.True(t, errors.Is(err, httpx.ErrDuplicate))
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	registered, err := svc.Register(ctx, Registration{Email: "m@example.com", Password: "password1", Role: "manager"})
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, Credentials{Email: "m@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, shared.Claim{UserID: registered.ID, Role: "manager"}, Claim(user))

	_, err = svc.Authenticate(ctx, Credentials{Email: "m@example.com", Password: "password2"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, Credentials{Email: "m@example.com"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}
