package wallet

import (
	"time"

	"github.com/google/uuid"
)

// Kind labels a balance-affecting event.
type Kind string

const (
	KindTopup      Kind = "topup"
	KindWithdrawal Kind = "withdrawal"
	KindPayment    Kind = "payment"
	KindRefund     Kind = "refund"
)

// Transaction is one append-only ledger row. The wallet balance on the user
// record is a running total mutated only alongside a Transaction insert.
type Transaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Amount    int64
	Kind      Kind
	PaymentID *uuid.UUID
	Note      string
	CreatedAt time.Time
}
