package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/gateway"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/observability/metrics"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type paymentReconciler interface {
	InitiateConsultationPayment(ctx context.Context, appointmentID uuid.UUID) (*gateway.CheckoutSession, error)
	HandleIPN(ctx context.Context, ipn gateway.IPN) error
	Poll(ctx context.Context, orderID string) error
}

// GatewayHandler serves checkout creation, the payment provider webhook,
// and the client-driven status poll.
type GatewayHandler struct {
	reconciler paymentReconciler
	metrics    *metrics.SchedulingMetrics
	logger     *logging.Logger
}

// NewGatewayHandler creates the handler.
func NewGatewayHandler(reconciler paymentReconciler, m *metrics.SchedulingMetrics, logger *logging.Logger) *GatewayHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &GatewayHandler{reconciler: reconciler, metrics: m, logger: logger}
}

type checkoutRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// Checkout creates a hosted-payment session for a pending consultation bill.
// POST /api/payments/checkout
func (h *GatewayHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointmentId")
		return
	}

	session, err := h.reconciler.InitiateConsultationPayment(r.Context(), appointmentID)
	if err != nil {
		h.metrics.ObserveGateway("checkout", "error")
		writeServiceError(w, err)
		return
	}
	h.metrics.ObserveGateway("checkout", "ok")
	writeJSON(w, http.StatusCreated, session)
}

// IPN receives the payment provider's server-to-server notification.
// The provider retries on any non-2xx status, so transient failures
// return 500 and bad signatures return 403 without touching state.
// POST /webhooks/momo
func (h *GatewayHandler) IPN(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ipn gateway.IPN
	if !decodeJSON(w, r, &ipn) {
		h.metrics.ObserveWebhookLatency("bad_request", time.Since(start).Seconds())
		return
	}

	err := h.reconciler.HandleIPN(r.Context(), ipn)
	switch {
	case err == nil:
		h.metrics.ObserveWebhookLatency("ok", time.Since(start).Seconds())
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, gateway.ErrInvalidSignature):
		h.logger.Warn("rejected webhook with invalid signature", "order_id", ipn.OrderID)
		h.metrics.ObserveWebhookLatency("invalid_signature", time.Since(start).Seconds())
		writeError(w, http.StatusForbidden, "invalid signature")
	default:
		h.logger.Error("webhook processing failed", "order_id", ipn.OrderID, "error", err)
		h.metrics.ObserveWebhookLatency("error", time.Since(start).Seconds())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type pollRequest struct {
	OrderID string `json:"orderId"`
}

// Poll asks the provider for the current transaction state and applies
// it. Clients call this from the return URL when the webhook may not
// have landed yet.
// POST /api/payments/poll
func (h *GatewayHandler) Poll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	if err := h.reconciler.Poll(r.Context(), req.OrderID); err != nil {
		h.metrics.ObserveGateway("poll", "error")
		writeServiceError(w, err)
		return
	}
	h.metrics.ObserveGateway("poll", "ok")
	w.WriteHeader(http.StatusNoContent)
}
