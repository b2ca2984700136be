package events

// Event types pushed to connected clients. Delivery is best-effort; clients
// resynchronize through the pull APIs when a push is missed.
const (
	TypeAppointmentNew       = "appointment:new"
	TypeAppointmentConfirmed = "appointment:confirmed"
	TypeAppointmentCancelled = "appointment:cancelled"
	TypeAppointmentCompleted = "appointment:completed"
	TypePaymentNew           = "payment:new"
	TypePaymentDelete        = "payment:delete"
	TypeRevenueNew           = "revenue:new"
	TypeRevenueDelete        = "revenue:delete"
	TypeWalletCredited       = "wallet:credited"
)
