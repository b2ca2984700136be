package followups

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

// Repository persists follow-up suggestions.
type Repository struct {
	db DBTX
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("followups: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db DBTX) *Repository {
	return &Repository{db: db}
}

const suggestionColumns = `id, doctor_id, patient_id, parent_appointment_id, COALESCE(notes, ''), status, scheduled_appointment_id, created_at, updated_at`

// Insert writes one suggestion.
func (r *Repository) Insert(ctx context.Context, s *Suggestion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO follow_up_suggestions (id, doctor_id, patient_id, parent_appointment_id, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.DoctorID, s.PatientID, s.ParentAppointmentID, s.Notes, s.Status)
	if err != nil {
		return fmt.Errorf("followups: insert: %w", err)
	}
	return nil
}

// GetByID fetches one suggestion.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	row := r.db.QueryRow(ctx, `SELECT `+suggestionColumns+` FROM follow_up_suggestions WHERE id = $1`, id)
	return scanSuggestion(row)
}

// MarkScheduled settles a pending suggestion with the booked appointment.
// Returns false when the suggestion was no longer pending.
func (r *Repository) MarkScheduled(ctx context.Context, id, appointmentID uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE follow_up_suggestions
		SET status = $1, scheduled_appointment_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, StatusScheduled, appointmentID, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("followups: mark scheduled: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkRejected settles a pending suggestion as rejected.
func (r *Repository) MarkRejected(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE follow_up_suggestions
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, StatusRejected, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("followups: mark rejected: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ListForPatient returns a patient's suggestions, newest first.
func (r *Repository) ListForPatient(ctx context.Context, patientID uuid.UUID, limit int32) ([]Suggestion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+suggestionColumns+`
		FROM follow_up_suggestions
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("followups: list for patient: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.PatientID, &s.ParentAppointmentID, &s.Notes,
			&s.Status, &s.ScheduledAppointmentID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("followups: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var s Suggestion
	if err := row.Scan(&s.ID, &s.DoctorID, &s.PatientID, &s.ParentAppointmentID, &s.Notes,
		&s.Status, &s.ScheduledAppointmentID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("followups: scan: %w", err)
	}
	return &s, nil
}
