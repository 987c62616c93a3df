package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/storedash/storedash/internal/auth"
	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/rbac"
)

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, reg auth.Registration) (*auth.User, error)
}

// EnsureAdmin registers the configured bootstrap admin. It is a no-op when no
// bootstrap account is configured or the account already exists.
func EnsureAdmin(ctx context.Context, cfg *Config, registrar Registrar, logger *slog.Logger) error {
	if cfg == nil || cfg.BootstrapAdminEmail == "" {
		return nil
	}
	user, err := registrar.Register(ctx, auth.Registration{
		Email:    cfg.BootstrapAdminEmail,
		Password: cfg.BootstrapAdminPassword,
		Role:     string(rbac.RoleAdmin),
	})
	if errors.Is(err, httpx.ErrDuplicate) {
		logger.Debug("bootstrap admin exists", slog.String("email", cfg.BootstrapAdminEmail))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return nil
}
