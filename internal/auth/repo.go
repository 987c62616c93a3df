package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storedash/storedash/internal/platform/httpx"
	"github.com/storedash/storedash/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, COALESCE(username, ''), password_hash, role, two_factor_enabled, two_factor_secret, created_at`

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.TwoFactorEnabled, &u.TwoFactorSecret, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user. A taken email or username yields httpx.ErrDuplicate.
func (r *PGRepository) Create(ctx context.Context, user User) (*User, error) {
	var username *string
	if user.Username != "" {
		username = &user.Username
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, username, password_hash, role, two_factor_enabled, two_factor_secret)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		user.ID, user.Email, username, user.PasswordHash, user.Role, user.TwoFactorEnabled, user.TwoFactorSecret,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, httpx.ErrDuplicate
		}
		return nil, err
	}
	return &user, nil
}

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]User)}
}

// FindByEmail fetches a user by email.
func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

// Create inserts a user.
func (r *MemoryRepository) Create(ctx context.Context, user User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return nil, httpx.ErrDuplicate
	}
	if user.Username != "" {
		for _, u := range r.users {
			if strings.EqualFold(u.Username, user.Username) {
				return nil, httpx.ErrDuplicate
			}
		}
	}
	r.users[user.Email] = user
	return &user, nil
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
