package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so ledger operations can
// run their paired writes inside one transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payment and revenue rows.
type Repository struct {
	db DBTX
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("billing: pgx pool required")
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

const paymentColumns = `id, ref_id, patient_id, amount, status, bill_type, related_payment_id, order_id, trans_id, created_at, updated_at`

// InsertPayment writes one payment row.
func (r *Repository) InsertPayment(ctx context.Context, p *Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, ref_id, patient_id, amount, status, bill_type, related_payment_id, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.RefID, p.PatientID, p.Amount, p.Status, p.BillType, p.RelatedPaymentID, p.OrderID)
	if err != nil {
		return fmt.Errorf("billing: insert payment: %w", err)
	}
	return nil
}

// InsertRevenue writes one revenue row.
func (r *Repository) InsertRevenue(ctx context.Context, rev *Revenue) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO revenues (id, doctor_id, payment_id, ref_id, amount, platform_fee, net_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rev.ID, rev.DoctorID, rev.PaymentID, rev.RefID, rev.Amount, rev.PlatformFee, rev.NetAmount, rev.Status)
	if err != nil {
		return fmt.Errorf("billing: insert revenue: %w", err)
	}
	return nil
}

// GetPaymentByID fetches a payment by id.
func (r *Repository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetPaymentByOrderID fetches a gateway payment by its order identifier.
func (r *Repository) GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	return scanPayment(row)
}

// GetCompletedConsultationPayment returns the completed consultation-fee
// payment for an appointment, if one exists.
func (r *Repository) GetCompletedConsultationPayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ref_id = $1 AND bill_type = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID, BillConsultationFee, PaymentCompleted)
	return scanPayment(row)
}

// GetPendingConsultationPayment returns the pending consultation-fee payment
// for an appointment, if one exists.
func (r *Repository) GetPendingConsultationPayment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ref_id = $1 AND bill_type = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID, BillConsultationFee, PaymentPending)
	return scanPayment(row)
}

// SetPaymentOrderID attaches the gateway order identifier to a pending
// payment before the redirect is handed to the client.
func (r *Repository) SetPaymentOrderID(ctx context.Context, id uuid.UUID, orderID string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE payments
		SET order_id = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, orderID, id, PaymentPending)
	if err != nil {
		return false, fmt.Errorf("billing: set order id: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// GetRevenueByPaymentID fetches the revenue row produced by a payment.
func (r *Repository) GetRevenueByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Revenue, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, payment_id, ref_id, amount, platform_fee, net_amount, status, created_at, updated_at
		FROM revenues
		WHERE payment_id = $1
	`, paymentID)
	var rev Revenue
	if err := row.Scan(
		&rev.ID,
		&rev.DoctorID,
		&rev.PaymentID,
		&rev.RefID,
		&rev.Amount,
		&rev.PlatformFee,
		&rev.NetAmount,
		&rev.Status,
		&rev.CreatedAt,
		&rev.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRevenueNotFound
		}
		return nil, fmt.Errorf("billing: select revenue: %w", err)
	}
	return &rev, nil
}

// MarkPaymentCompleted flips a pending payment to completed. The conditional
// update makes racing webhook and poll writers safe: the loser observes a
// no-op and must not re-apply side effects.
func (r *Repository) MarkPaymentCompleted(ctx context.Context, id uuid.UUID, transID string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $1, trans_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, PaymentCompleted, transID, id, PaymentPending)
	if err != nil {
		return false, fmt.Errorf("billing: mark payment completed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkPaymentFailed flips a pending payment to failed.
func (r *Repository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, PaymentFailed, id, PaymentPending)
	if err != nil {
		return false, fmt.Errorf("billing: mark payment failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkPaymentRefunded flips a completed payment to refunded.
func (r *Repository) MarkPaymentRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, PaymentRefunded, id, PaymentCompleted)
	if err != nil {
		return false, fmt.Errorf("billing: mark payment refunded: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// DeletePendingBills removes every pending payment and revenue row for an
// appointment. Nothing was transferred for pending rows, so deleting twice is
// a harmless no-op.
func (r *Repository) DeletePendingBills(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM revenues
		WHERE ref_id = $1 AND status = $2
	`, appointmentID, RevenuePending); err != nil {
		return fmt.Errorf("billing: delete pending revenues: %w", err)
	}
	if _, err := r.db.Exec(ctx, `
		DELETE FROM payments
		WHERE ref_id = $1 AND status = $2
	`, appointmentID, PaymentPending); err != nil {
		return fmt.Errorf("billing: delete pending payments: %w", err)
	}
	return nil
}

// DeletePendingConsultationBills removes only the pending consultation-fee
// rows for an appointment, leaving cancellation-charge rows untouched.
// Both deletes key on the payment status: a completed consultation payment
// and its pending revenue must survive the cleanup of a superseded bill.
func (r *Repository) DeletePendingConsultationBills(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM revenues r
		USING payments p
		WHERE r.payment_id = p.id
		  AND p.ref_id = $1
		  AND p.bill_type = $2
		  AND p.status = $3
		  AND r.status = $4
	`, appointmentID, BillConsultationFee, PaymentPending, RevenuePending); err != nil {
		return fmt.Errorf("billing: delete pending consultation revenues: %w", err)
	}
	if _, err := r.db.Exec(ctx, `
		DELETE FROM payments
		WHERE ref_id = $1 AND bill_type = $2 AND status = $3
	`, appointmentID, BillConsultationFee, PaymentPending); err != nil {
		return fmt.Errorf("billing: delete pending consultation payments: %w", err)
	}
	return nil
}

// SettlePendingRevenues marks the pending revenue rows of an appointment
// completed, once the appointment itself completes.
func (r *Repository) SettlePendingRevenues(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE revenues
		SET status = $1, updated_at = now()
		WHERE ref_id = $2 AND status = $3
	`, RevenueCompleted, appointmentID, RevenuePending)
	if err != nil {
		return 0, fmt.Errorf("billing: settle revenues: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListExpiredGatewayPayments returns pending gateway payments initiated
// before the cutoff; the timeout scanner reconciles them.
func (r *Repository) ListExpiredGatewayPayments(ctx context.Context, cutoff time.Time, limit int32) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1 AND order_id IS NOT NULL AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, PaymentPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("billing: list expired payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// ListPaymentsForPatient returns recent payments for the pull-resync API.
func (r *Repository) ListPaymentsForPatient(ctx context.Context, patientID uuid.UUID, limit int32) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("billing: list patient payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// ListRevenuesForDoctor returns recent revenues for the pull-resync API.
func (r *Repository) ListRevenuesForDoctor(ctx context.Context, doctorID uuid.UUID, limit int32) ([]Revenue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, payment_id, ref_id, amount, platform_fee, net_amount, status, created_at, updated_at
		FROM revenues
		WHERE doctor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("billing: list doctor revenues: %w", err)
	}
	defer rows.Close()

	var out []Revenue
	for rows.Next() {
		var rev Revenue
		if err := rows.Scan(
			&rev.ID,
			&rev.DoctorID,
			&rev.PaymentID,
			&rev.RefID,
			&rev.Amount,
			&rev.PlatformFee,
			&rev.NetAmount,
			&rev.Status,
			&rev.CreatedAt,
			&rev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("billing: scan revenue: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(
		&p.ID,
		&p.RefID,
		&p.PatientID,
		&p.Amount,
		&p.Status,
		&p.BillType,
		&p.RelatedPaymentID,
		&p.OrderID,
		&p.TransID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("billing: scan payment: %w", err)
	}
	return &p, nil
}

func scanPayments(rows pgx.Rows) ([]Payment, error) {
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID,
			&p.RefID,
			&p.PatientID,
			&p.Amount,
			&p.Status,
			&p.BillType,
			&p.RelatedPaymentID,
			&p.OrderID,
			&p.TransID,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("billing: scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
