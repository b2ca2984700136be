package users

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies a directory entry.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
)

// User is a directory record. The wallet balance is a denormalized running
// total; it is only ever mutated through the wallet ledger.
type User struct {
	ID            uuid.UUID
	FullName      string
	Role          Role
	Email         string
	Phone         string
	WalletBalance int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
