package billing

import "errors"

var (
	// ErrPaymentNotFound is returned when a payment lookup misses.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrRevenueNotFound is returned when a revenue lookup misses.
	ErrRevenueNotFound = errors.New("revenue not found")
)
