package vouchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists vouchers.
type Repository struct {
	db DBTX
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("vouchers: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db DBTX) *Repository {
	return &Repository{db: db}
}

// Insert writes a new voucher row.
func (r *Repository) Insert(ctx context.Context, v *Voucher) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO vouchers (id, code, patient_id, type, value, reason, expires_at, is_used, related_appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
	`, v.ID, v.Code, v.PatientID, v.Type, v.Value, v.Reason, v.ExpiresAt, v.RelatedAppointmentID)
	if err != nil {
		return fmt.Errorf("vouchers: insert failed: %w", err)
	}
	return nil
}

// GetByCode fetches a voucher by its unique code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	query := `
		SELECT id, code, patient_id, type, value, COALESCE(reason, ''), expires_at, is_used, related_appointment_id, created_at
		FROM vouchers
		WHERE code = $1
	`
	var v Voucher
	if err := r.db.QueryRow(ctx, query, code).Scan(
		&v.ID,
		&v.Code,
		&v.PatientID,
		&v.Type,
		&v.Value,
		&v.Reason,
		&v.ExpiresAt,
		&v.IsUsed,
		&v.RelatedAppointmentID,
		&v.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVoucherNotFound
		}
		return nil, fmt.Errorf("vouchers: select failed: %w", err)
	}
	return &v, nil
}

// MarkUsed consumes a voucher; returns false if it was already consumed.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE vouchers
		SET is_used = true, updated_at = now()
		WHERE id = $1 AND is_used = false
	`, id)
	if err != nil {
		return false, fmt.Errorf("vouchers: mark used: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
