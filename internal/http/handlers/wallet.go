package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/gateway"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type topUpInitiator interface {
	InitiateTopUp(ctx context.Context, userID uuid.UUID, amount int64) (*gateway.CheckoutSession, error)
}

type walletPayer interface {
	PayFromWallet(ctx context.Context, appointmentID uuid.UUID) (*billing.Payment, error)
}

type balanceReader interface {
	WalletBalance(ctx context.Context, id uuid.UUID) (int64, error)
}

type transactionLister interface {
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int32) ([]wallet.Transaction, error)
}

// WalletHandler serves top-ups, wallet payments and statement reads.
type WalletHandler struct {
	topups       topUpInitiator
	payer        walletPayer
	balances     balanceReader
	transactions transactionLister
	logger       *logging.Logger
}

// NewWalletHandler creates the handler.
func NewWalletHandler(topups topUpInitiator, payer walletPayer, balances balanceReader, transactions transactionLister, logger *logging.Logger) *WalletHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WalletHandler{
		topups:       topups,
		payer:        payer,
		balances:     balances,
		transactions: transactions,
		logger:       logger,
	}
}

type topUpRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

// TopUp opens a gateway checkout that credits the wallet on success.
// POST /api/wallet/topup
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	session, err := h.topups.InitiateTopUp(r.Context(), userID, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type walletPayRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// Pay settles a consultation fee from the wallet balance.
// POST /api/wallet/pay
func (h *WalletHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req walletPayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointmentId")
		return
	}

	payment, err := h.payer.PayFromWallet(r.Context(), appointmentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paymentId": payment.ID.String(),
		"amount":    payment.Amount,
		"status":    string(payment.Status),
	})
}

// Balance returns the current wallet balance.
// GET /api/wallet/balance?user=<uuid>
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user parameter")
		return
	}

	balance, err := h.balances.WalletBalance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID.String(), "balance": balance})
}

// TransactionResponse is the API shape of a wallet movement.
type TransactionResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	PaymentID string `json:"paymentId,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Transactions returns recent wallet movements, newest first.
// GET /api/wallet/transactions?user=<uuid>&limit=<n>
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user parameter")
		return
	}
	txs, err := h.transactions.ListTransactions(r.Context(), userID, listLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp := TransactionResponse{
			ID:        tx.ID.String(),
			Amount:    tx.Amount,
			Kind:      string(tx.Kind),
			Note:      tx.Note,
			CreatedAt: tx.CreatedAt.Format(time.RFC3339),
		}
		if tx.PaymentID != nil {
			resp.PaymentID = tx.PaymentID.String()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}
