package followups

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a follow-up suggestion.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRejected  Status = "rejected"
)

// Suggestion is a doctor-authored recommendation to book a follow-up visit
// after a completed appointment.
type Suggestion struct {
	ID                     uuid.UUID
	DoctorID               uuid.UUID
	PatientID              uuid.UUID
	ParentAppointmentID    uuid.UUID
	Notes                  string
	Status                 Status
	ScheduledAppointmentID *uuid.UUID
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
