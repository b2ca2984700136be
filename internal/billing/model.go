package billing

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle of a patient-facing monetary event.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// BillType classifies what a payment row bills.
type BillType string

const (
	BillConsultationFee    BillType = "consultation_fee"
	BillReservationFee     BillType = "reservation_fee"
	BillCancellationCharge BillType = "cancellation_charge"
	BillRefund             BillType = "refund"
	BillWalletTopup        BillType = "wallet_topup"
)

// RevenueStatus is the lifecycle of a doctor-facing ledger row.
type RevenueStatus string

const (
	RevenuePending   RevenueStatus = "pending"
	RevenueCompleted RevenueStatus = "completed"
	RevenueWithdrawn RevenueStatus = "withdrawn"
	RevenueCancelled RevenueStatus = "cancelled"
)

// Payment is one patient-facing ledger row. Amount is sign-carrying:
// positive means the patient receives money, negative means the patient is
// charged. Completed rows are immutable except for the refunded transition.
type Payment struct {
	ID               uuid.UUID
	RefID            *uuid.UUID
	PatientID        uuid.UUID
	Amount           int64
	Status           PaymentStatus
	BillType         BillType
	RelatedPaymentID *uuid.UUID
	OrderID          *string
	TransID          *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Revenue is the doctor-side mirror of a Payment. PlatformFee is stored
// negative so NetAmount = Amount + PlatformFee is what the doctor keeps.
type Revenue struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PaymentID   *uuid.UUID
	RefID       *uuid.UUID
	Amount      int64
	PlatformFee int64
	NetAmount   int64
	Status      RevenueStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
