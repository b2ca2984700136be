package appointments

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

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments.
type Repository struct {
	db DBTX
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db DBTX) *Repository {
	return &Repository{db: db}
}

const appointmentColumns = `id, doctor_id, patient_id, appointment_date, start_time, end_time,
	duration_minutes, appointment_type, consultation_fee, status, payment_status,
	cancelled_by, cancellation_reason, cancelled_at, cancellation_fee_charged,
	is_follow_up, follow_up_parent_id, applied_voucher_id, reminder_sent_at,
	created_at, updated_at`

// Insert writes a new appointment. A violation of the partial unique slot
// index is mapped to ErrSlotConflict; the index is the authoritative guard
// against concurrent double booking, the overlap pre-check only exists for a
// friendlier error message.
func (r *Repository) Insert(ctx context.Context, a *Appointment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, appointment_date, start_time, end_time,
			duration_minutes, appointment_type, consultation_fee, status, payment_status,
			is_follow_up, follow_up_parent_id, applied_voucher_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.DoctorID, a.PatientID, a.AppointmentDate, a.StartTime, a.EndTime,
		a.DurationMinutes, a.AppointmentType, a.ConsultationFee, a.Status, a.PaymentStatus,
		a.IsFollowUp, a.FollowUpParentID, a.AppliedVoucherID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "appointments_slot_guard" {
			return ErrSlotConflict
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// GetByID fetches one appointment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// CountOverlapping counts non-cancelled appointments of the doctor whose time
// range intersects [start, end). Ranges that only touch do not overlap.
func (r *Repository) CountOverlapping(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status <> $3
		  AND start_time < $5
		  AND end_time > $4
	`, doctorID, date, StatusCancelled, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("appointments: count overlapping: %w", err)
	}
	return count, nil
}

// UpdateStatus moves the appointment to the given status only when its
// current status is one of from. Returns false when the row was in another
// state, which callers treat as ErrInvalidTransition or as a lost race.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, from ...Status) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, to, id, states)
	if err != nil {
		return false, fmt.Errorf("appointments: update status: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Cancel moves a non-terminal appointment to cancelled and records who did it
// and why. Returns false when the appointment was already terminal.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, by CancelActor, reason string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1, cancelled_by = $2, cancellation_reason = $3, cancelled_at = now(), updated_at = now()
		WHERE id = $4 AND status NOT IN ($5, $6)
	`, StatusCancelled, by, reason, id, StatusCompleted, StatusCancelled)
	if err != nil {
		return false, fmt.Errorf("appointments: cancel: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// SetPaymentStatus updates the denormalized payment state on the appointment.
func (r *Repository) SetPaymentStatus(ctx context.Context, id uuid.UUID, state PaymentState) error {
	_, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $1, updated_at = now()
		WHERE id = $2
	`, state, id)
	if err != nil {
		return fmt.Errorf("appointments: set payment status: %w", err)
	}
	return nil
}

// MarkCancellationFeeCharged flags that the cancellation fee was billed, so a
// retried cancellation never double-charges.
func (r *Repository) MarkCancellationFeeCharged(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET cancellation_fee_charged = true, updated_at = now()
		WHERE id = $1 AND cancellation_fee_charged = false
	`, id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark fee charged: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ListConfirmedStartingBetween returns confirmed appointments starting inside
// [from, to) that have not been reminded yet.
func (r *Repository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time, limit int32) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND reminder_sent_at IS NULL
		ORDER BY start_time
		LIMIT $4
	`, StatusConfirmed, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for reminder: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkReminderSent records that the reminder went out. The conditional update
// is the authoritative dedup: with at-least-once scanning, only the first
// writer wins and only the winner may send.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = now(), updated_at = now()
		WHERE id = $1 AND reminder_sent_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark reminder sent: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ListPendingStartingBefore returns still-pending appointments whose start is
// at or before the cutoff, including ones already in the past.
func (r *Repository) ListPendingStartingBefore(ctx context.Context, cutoff time.Time, limit int32) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1 AND start_time <= $2
		ORDER BY start_time
		LIMIT $3
	`, StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list pending before cutoff: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListForUser returns recent appointments where the user is either side, for
// the pull-resync API.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int32) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 OR patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for user: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := scanInto(row, &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := scanInto(rows, &a); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanInto(row pgx.Row, a *Appointment) error {
	return row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.AppointmentDate,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMinutes,
		&a.AppointmentType,
		&a.ConsultationFee,
		&a.Status,
		&a.PaymentStatus,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.CancelledAt,
		&a.CancellationFeeCharged,
		&a.IsFollowUp,
		&a.FollowUpParentID,
		&a.AppliedVoucherID,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}
