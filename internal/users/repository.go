package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the user directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("users: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetByID fetches a user by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, full_name, role, COALESCE(email, ''), COALESCE(phone, ''), wallet_balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u User
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.FullName,
		&u.Role,
		&u.Email,
		&u.Phone,
		&u.WalletBalance,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("users: select failed: %w", err)
	}
	return &u, nil
}

// WalletBalance returns the denormalized balance for a user.
func (r *Repository) WalletBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	var balance int64
	if err := r.pool.QueryRow(ctx, `SELECT wallet_balance FROM users WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("users: balance select failed: %w", err)
	}
	return balance, nil
}
