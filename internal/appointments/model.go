package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// PaymentState tracks whether the consultation fee has been settled.
type PaymentState string

const (
	PaymentUnpaid   PaymentState = "unpaid"
	PaymentPaid     PaymentState = "paid"
	PaymentRefunded PaymentState = "refunded"
)

// CancelActor records who triggered a cancellation. The billing consequences
// differ per actor: only late patient cancellations carry a fee.
type CancelActor string

const (
	CancelledByPatient CancelActor = "patient"
	CancelledByDoctor  CancelActor = "doctor"
	CancelledBySystem  CancelActor = "system"
)

// Type classifies the visit.
type Type string

const (
	TypeConsultation Type = "consultation"
	TypeTreatment    Type = "treatment"
	TypeFollowUp     Type = "follow_up"
)

// Appointment is one booked slot with a doctor. ConsultationFee is the
// discounted amount actually billed, in VND.
type Appointment struct {
	ID                     uuid.UUID
	DoctorID               uuid.UUID
	PatientID              uuid.UUID
	AppointmentDate        time.Time
	StartTime              time.Time
	EndTime                time.Time
	DurationMinutes        int
	AppointmentType        Type
	ConsultationFee        int64
	Status                 Status
	PaymentStatus          PaymentState
	CancelledBy            *CancelActor
	CancellationReason     *string
	CancelledAt            *time.Time
	CancellationFeeCharged bool
	IsFollowUp             bool
	FollowUpParentID       *uuid.UUID
	AppliedVoucherID       *uuid.UUID
	ReminderSentAt         *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
