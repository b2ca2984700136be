package gateway

import "errors"

var (
	// ErrGatewayUnavailable is returned when the gateway could not be
	// reached after bounded retries. Callers may try again later.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrGatewayRejected is returned when the gateway gave a definitive
	// error answer. Retrying will not help.
	ErrGatewayRejected = errors.New("gateway rejected request")

	// ErrInvalidSignature is returned when an inbound callback fails HMAC
	// verification. No state may be mutated on this error.
	ErrInvalidSignature = errors.New("invalid gateway signature")
)
