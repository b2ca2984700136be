package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type ledgerReader interface {
	ListPaymentsForPatient(ctx context.Context, patientID uuid.UUID, limit int32) ([]billing.Payment, error)
	ListRevenuesForDoctor(ctx context.Context, doctorID uuid.UUID, limit int32) ([]billing.Revenue, error)
}

// BillingHandler serves ledger reads for patients and doctors.
type BillingHandler struct {
	ledger ledgerReader
	logger *logging.Logger
}

// NewBillingHandler creates the handler.
func NewBillingHandler(ledger ledgerReader, logger *logging.Logger) *BillingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BillingHandler{ledger: ledger, logger: logger}
}

// PaymentResponse is the API shape of a patient ledger row.
type PaymentResponse struct {
	ID        string `json:"id"`
	RefID     string `json:"refId,omitempty"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	BillType  string `json:"billType"`
	OrderID   string `json:"orderId,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// RevenueResponse is the API shape of a doctor ledger row.
type RevenueResponse struct {
	ID          string `json:"id"`
	RefID       string `json:"refId,omitempty"`
	Amount      int64  `json:"amount"`
	PlatformFee int64  `json:"platformFee"`
	NetAmount   int64  `json:"netAmount"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

// Payments returns a patient's recent ledger rows, newest first.
// GET /api/billing/payments?patient=<uuid>&limit=<n>
func (h *BillingHandler) Payments(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(r.URL.Query().Get("patient"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient parameter")
		return
	}
	limit := listLimit(r)

	payments, err := h.ledger.ListPaymentsForPatient(r.Context(), patientID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp := PaymentResponse{
			ID:        p.ID.String(),
			Amount:    p.Amount,
			Status:    string(p.Status),
			BillType:  string(p.BillType),
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		}
		if p.RefID != nil {
			resp.RefID = p.RefID.String()
		}
		if p.OrderID != nil {
			resp.OrderID = *p.OrderID
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

// Revenues returns a doctor's recent ledger rows, newest first.
// GET /api/billing/revenues?doctor=<uuid>&limit=<n>
func (h *BillingHandler) Revenues(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(r.URL.Query().Get("doctor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid doctor parameter")
		return
	}
	limit := listLimit(r)

	revenues, err := h.ledger.ListRevenuesForDoctor(r.Context(), doctorID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]RevenueResponse, 0, len(revenues))
	for _, rev := range revenues {
		resp := RevenueResponse{
			ID:          rev.ID.String(),
			Amount:      rev.Amount,
			PlatformFee: rev.PlatformFee,
			NetAmount:   rev.NetAmount,
			Status:      string(rev.Status),
			CreatedAt:   rev.CreatedAt.Format(time.RFC3339),
		}
		if rev.RefID != nil {
			resp.RefID = rev.RefID.String()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"revenues": out})
}

func listLimit(r *http.Request) int32 {
	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 32); err == nil && parsed > 0 && parsed <= 200 {
			limit = int32(parsed)
		}
	}
	return limit
}
