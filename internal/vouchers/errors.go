package vouchers

import "errors"

var (
	// ErrVoucherNotFound is returned when no voucher matches the code.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrVoucherUsed is returned for vouchers that were already consumed.
	ErrVoucherUsed = errors.New("voucher already used")

	// ErrVoucherExpired is returned for vouchers past their expiry.
	ErrVoucherExpired = errors.New("voucher expired")

	// ErrVoucherNotOwned is returned when the voucher belongs to another patient.
	ErrVoucherNotOwned = errors.New("voucher belongs to a different patient")
)
