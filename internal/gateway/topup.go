package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
)

// InitiateTopUp registers a wallet top-up at the gateway. The wallet is only
// credited once the gateway confirms the payment through webhook or poll; the
// pending payment row keeps the attempt visible until then.
func (r *Reconciler) InitiateTopUp(ctx context.Context, userID uuid.UUID, amount int64) (*CheckoutSession, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("gateway: top-up amount must be positive, got %d", amount)
	}

	orderID := newOrderID()
	payment := &billing.Payment{
		ID:        uuid.New(),
		PatientID: userID,
		Amount:    amount,
		Status:    billing.PaymentPending,
		BillType:  billing.BillWalletTopup,
		OrderID:   &orderID,
	}
	if err := r.payments.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}

	resp, err := r.client.CreatePayment(ctx, orderID, uuid.New().String(), amount, "Wallet top-up", "")
	if err != nil {
		if _, failErr := r.payments.MarkPaymentFailed(ctx, payment.ID); failErr != nil {
			r.logger.Error("orphaned top-up cleanup failed", "error", failErr, "payment_id", payment.ID)
		}
		return nil, err
	}

	r.logger.Info("wallet top-up initiated", "user_id", userID, "payment_id", payment.ID, "amount", amount)
	return &CheckoutSession{
		PaymentID: payment.ID,
		OrderID:   orderID,
		Amount:    amount,
		PayURL:    resp.PayURL,
		Deeplink:  resp.Deeplink,
	}, nil
}
