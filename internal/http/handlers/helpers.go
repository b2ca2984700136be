package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/followups"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/gateway"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/users"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointments.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot already booked")
	case errors.Is(err, appointments.ErrInvalidTransition),
		errors.Is(err, followups.ErrSuggestionSettled),
		errors.Is(err, followups.ErrParentNotCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appointments.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid slot")
	case errors.Is(err, appointments.ErrAppointmentNotFound),
		errors.Is(err, billing.ErrPaymentNotFound),
		errors.Is(err, followups.ErrSuggestionNotFound),
		errors.Is(err, vouchers.ErrVoucherNotFound),
		errors.Is(err, users.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vouchers.ErrVoucherUsed),
		errors.Is(err, vouchers.ErrVoucherExpired),
		errors.Is(err, vouchers.ErrVoucherNotOwned):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient wallet balance")
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
	case errors.Is(err, gateway.ErrGatewayRejected):
		writeError(w, http.StatusUnprocessableEntity, "payment gateway rejected the request")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
