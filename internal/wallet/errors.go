package wallet

import "errors"

var (
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrUnknownUser is returned when the wallet owner does not exist.
	ErrUnknownUser = errors.New("wallet owner not found")
)
