package vouchers

import (
	"time"

	"github.com/google/uuid"
)

// Type selects how a voucher discounts an amount.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// Voucher is a single-use discount. It is consumed only once the appointment
// it discounts reaches a paid or confirmed state, never at computation time.
type Voucher struct {
	ID                   uuid.UUID
	Code                 string
	PatientID            uuid.UUID
	Type                 Type
	Value                int64
	Reason               string
	ExpiresAt            *time.Time
	IsUsed               bool
	RelatedAppointmentID *uuid.UUID
	CreatedAt            time.Time
}

// ApplyResult is the outcome of computing a discount.
type ApplyResult struct {
	VoucherID        uuid.UUID
	DiscountAmount   int64
	DiscountedAmount int64
}
