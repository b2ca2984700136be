package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so wallet mutations can
// join a ledger transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository mutates wallet balances and records wallet transactions.
type Repository struct {
	db DBTX
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("wallet: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// Credit applies a signed delta to the balance as a single atomic increment
// and appends the matching transaction row. The balance is never
// read-modify-written.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int64, kind Kind, paymentID *uuid.UUID, note string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE users
		SET wallet_balance = wallet_balance + $1, updated_at = now()
		WHERE id = $2
	`, amount, userID)
	if err != nil {
		return fmt.Errorf("wallet: balance update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUnknownUser
	}
	return r.insertTransaction(ctx, userID, amount, kind, paymentID, note)
}

// Debit subtracts amount (positive) only when the balance covers it.
func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, amount int64, kind Kind, paymentID *uuid.UUID, note string) error {
	if amount <= 0 {
		return fmt.Errorf("wallet: debit amount must be positive, got %d", amount)
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE users
		SET wallet_balance = wallet_balance - $1, updated_at = now()
		WHERE id = $2 AND wallet_balance >= $1
	`, amount, userID)
	if err != nil {
		return fmt.Errorf("wallet: balance debit: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return r.insertTransaction(ctx, userID, -amount, kind, paymentID, note)
}

func (r *Repository) insertTransaction(ctx context.Context, userID uuid.UUID, amount int64, kind Kind, paymentID *uuid.UUID, note string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO wallet_transactions (id, user_id, amount, kind, payment_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, amount, kind, paymentID, note)
	if err != nil {
		return fmt.Errorf("wallet: insert transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent ledger rows for a user.
func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int32) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, kind, payment_id, COALESCE(note, ''), created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("wallet: list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Kind, &tx.PaymentID, &tx.Note, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("wallet: scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
