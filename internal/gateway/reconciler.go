package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

var tracer = otel.Tracer("dental.internal.gateway")

type momoClient interface {
	CreatePayment(ctx context.Context, orderID, requestID string, amount int64, orderInfo, extraData string) (*CreateResponse, error)
	QueryTransaction(ctx context.Context, orderID, requestID string) (*QueryResponse, error)
	VerifyIPN(ipn IPN) error
}

type paymentStore interface {
	InsertPayment(ctx context.Context, p *billing.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*billing.Payment, error)
	GetPendingConsultationPayment(ctx context.Context, appointmentID uuid.UUID) (*billing.Payment, error)
	SetPaymentOrderID(ctx context.Context, id uuid.UUID, orderID string) (bool, error)
	MarkPaymentCompleted(ctx context.Context, id uuid.UUID, transID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) (bool, error)
	ListExpiredGatewayPayments(ctx context.Context, cutoff time.Time, limit int32) ([]billing.Payment, error)
}

type consultationLedger interface {
	CompleteConsultationPayment(ctx context.Context, paymentID, doctorID uuid.UUID, transID string) (bool, error)
}

type appointmentService interface {
	Confirm(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, by appointments.CancelActor, reason string) (*appointments.Appointment, error)
}

type appointmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointments.Status, from ...appointments.Status) (bool, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, state appointments.PaymentState) error
}

type walletLedger interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int64, kind wallet.Kind, paymentID *uuid.UUID, note string) error
}

type realtimeEmitter interface {
	Emit(ctx context.Context, userID uuid.UUID, eventType string, payload any)
}

// CheckoutSession is handed to the client after a payment attempt is
// registered at the gateway.
type CheckoutSession struct {
	PaymentID uuid.UUID `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Amount    int64     `json:"amount"`
	PayURL    string    `json:"payUrl"`
	Deeplink  string    `json:"deeplink"`
}

// Reconciler brings local payment state in line with the gateway's
// authoritative state. Webhook, polling and the timeout scanner all converge
// on the same conditional completion, so any two of them may race safely.
type Reconciler struct {
	client    momoClient
	payments  paymentStore
	ledger    consultationLedger
	scheduler appointmentService
	appts     appointmentStore
	wallets   walletLedger
	notifier  notify.Dispatcher
	emitter   realtimeEmitter
	logger    *logging.Logger
	now       func() time.Time
}

// NewReconciler constructs the gateway reconciler.
func NewReconciler(
	client momoClient,
	payments paymentStore,
	ledger consultationLedger,
	scheduler appointmentService,
	appts appointmentStore,
	wallets walletLedger,
	notifier notify.Dispatcher,
	emitter realtimeEmitter,
	logger *logging.Logger,
) *Reconciler {
	if client == nil {
		panic("gateway: client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		client:    client,
		payments:  payments,
		ledger:    ledger,
		scheduler: scheduler,
		appts:     appts,
		wallets:   wallets,
		notifier:  notifier,
		emitter:   emitter,
		logger:    logger,
		now:       time.Now,
	}
}

// InitiateConsultationPayment registers the appointment's pending
// consultation bill at the gateway and moves the appointment into
// pending_payment. Every attempt gets a fresh order id, since the gateway
// rejects a create call that reuses one; only the latest checkout settles.
func (r *Reconciler) InitiateConsultationPayment(ctx context.Context, appointmentID uuid.UUID) (*CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "gateway.initiate_consultation_payment")
	defer span.End()
	span.SetAttributes(attribute.String("dental.appointment_id", appointmentID.String()))

	appt, err := r.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointments.StatusPending && appt.Status != appointments.StatusPendingPayment {
		return nil, fmt.Errorf("gateway: initiate payment for %s appointment: %w", appt.Status, appointments.ErrInvalidTransition)
	}

	payment, err := r.payments.GetPendingConsultationPayment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	orderID := newOrderID()
	ok, err := r.payments.SetPaymentOrderID(ctx, payment.ID, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("gateway: payment %s no longer pending: %w", payment.ID, appointments.ErrInvalidTransition)
	}

	amount := -payment.Amount
	resp, err := r.client.CreatePayment(ctx, orderID, uuid.New().String(), amount, "Consultation fee", "")
	if err != nil {
		return nil, err
	}

	if _, err := r.appts.UpdateStatus(ctx, appointmentID, appointments.StatusPendingPayment, appointments.StatusPending); err != nil {
		r.logger.Error("pending_payment transition failed", "error", err, "appointment_id", appointmentID)
	}

	r.logger.Info("gateway payment initiated",
		"appointment_id", appointmentID, "payment_id", payment.ID, "order_id", orderID, "amount", amount)
	return &CheckoutSession{
		PaymentID: payment.ID,
		OrderID:   orderID,
		Amount:    amount,
		PayURL:    resp.PayURL,
		Deeplink:  resp.Deeplink,
	}, nil
}

// HandleIPN processes an inbound gateway callback. A bad signature mutates
// nothing; a re-delivered callback finds the payment no longer pending and is
// a no-op, which is what makes the handler idempotent.
func (r *Reconciler) HandleIPN(ctx context.Context, ipn IPN) error {
	ctx, span := tracer.Start(ctx, "gateway.handle_ipn")
	defer span.End()
	span.SetAttributes(attribute.String("dental.order_id", ipn.OrderID))

	if err := r.client.VerifyIPN(ipn); err != nil {
		r.logger.Warn("gateway callback rejected", "order_id", ipn.OrderID, "error", err)
		return err
	}

	payment, err := r.payments.GetPaymentByOrderID(ctx, ipn.OrderID)
	if err != nil {
		return err
	}
	if payment.Status != billing.PaymentPending {
		r.logger.Debug("gateway callback for settled payment ignored",
			"order_id", ipn.OrderID, "status", payment.Status)
		return nil
	}

	transID := strconv.FormatInt(ipn.TransID, 10)
	if ipn.ResultCode == 0 {
		return r.completePayment(ctx, payment, transID)
	}
	return r.failPayment(ctx, payment, fmt.Sprintf("gateway result %d: %s", ipn.ResultCode, ipn.Message))
}

// Poll is the fallback for delayed or lost webhooks: it queries the gateway
// and applies the same completion logic as the webhook path.
func (r *Reconciler) Poll(ctx context.Context, orderID string) error {
	payment, err := r.payments.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Status != billing.PaymentPending {
		return nil
	}

	resp, err := r.client.QueryTransaction(ctx, orderID, uuid.New().String())
	if err != nil {
		return err
	}
	switch resp.ResultCode {
	case 0:
		return r.completePayment(ctx, payment, strconv.FormatInt(resp.TransID, 10))
	case 1000, 9000:
		// Still processing at the gateway.
		return nil
	default:
		return r.failPayment(ctx, payment, fmt.Sprintf("gateway result %d: %s", resp.ResultCode, resp.Message))
	}
}

func (r *Reconciler) completePayment(ctx context.Context, payment *billing.Payment, transID string) error {
	if payment.BillType == billing.BillWalletTopup {
		return r.completeTopUp(ctx, payment, transID)
	}

	if payment.RefID == nil {
		_, err := r.payments.MarkPaymentCompleted(ctx, payment.ID, transID)
		return err
	}
	appt, err := r.appts.GetByID(ctx, *payment.RefID)
	if err != nil {
		return err
	}

	completed, err := r.ledger.CompleteConsultationPayment(ctx, payment.ID, appt.DoctorID, transID)
	if err != nil {
		return err
	}
	if !completed {
		// Lost the race against another delivery path.
		return nil
	}

	if err := r.appts.SetPaymentStatus(ctx, appt.ID, appointments.PaymentPaid); err != nil {
		r.logger.Error("payment status update failed", "error", err, "appointment_id", appt.ID)
	}
	if _, err := r.scheduler.Confirm(ctx, appt.ID); err != nil {
		if errors.Is(err, appointments.ErrInvalidTransition) {
			r.logger.Debug("appointment already past confirmation", "appointment_id", appt.ID)
		} else {
			r.logger.Error("auto-confirm failed, manual reconciliation required",
				"error", err, "appointment_id", appt.ID)
		}
	}
	r.logger.Info("gateway payment completed",
		"payment_id", payment.ID, "appointment_id", appt.ID, "trans_id", transID)
	return nil
}

func (r *Reconciler) failPayment(ctx context.Context, payment *billing.Payment, reason string) error {
	ok, err := r.payments.MarkPaymentFailed(ctx, payment.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	r.logger.Info("gateway payment failed", "payment_id", payment.ID, "reason", reason)

	if payment.BillType == billing.BillConsultationFee && payment.RefID != nil {
		appt, err := r.appts.GetByID(ctx, *payment.RefID)
		if err != nil {
			return err
		}
		if appt.Status == appointments.StatusPendingPayment {
			if _, err := r.scheduler.Cancel(ctx, appt.ID, appointments.CancelledBySystem, reason); err != nil &&
				!errors.Is(err, appointments.ErrInvalidTransition) {
				return err
			}
		}
	}
	if r.notifier != nil {
		r.notifier.Notify(ctx, notify.Notification{
			UserID:  payment.PatientID,
			Title:   "Payment failed",
			Message: "Your payment could not be completed. Please try again.",
			Type:    "payment",
		})
	}
	return nil
}

func (r *Reconciler) completeTopUp(ctx context.Context, payment *billing.Payment, transID string) error {
	ok, err := r.payments.MarkPaymentCompleted(ctx, payment.ID, transID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := r.wallets.Credit(ctx, payment.PatientID, payment.Amount, wallet.KindTopup, &payment.ID, "wallet top-up"); err != nil {
		r.logger.Error("wallet credit after top-up failed, manual reconciliation required",
			"error", err, "payment_id", payment.ID, "user_id", payment.PatientID)
		return err
	}
	if r.emitter != nil {
		r.emitter.Emit(ctx, payment.PatientID, events.TypeWalletCredited, map[string]any{
			"paymentId": payment.ID.String(),
			"amount":    payment.Amount,
		})
	}
	if r.notifier != nil {
		r.notifier.Notify(ctx, notify.Notification{
			UserID:  payment.PatientID,
			Title:   "Wallet topped up",
			Message: fmt.Sprintf("%d VND was added to your wallet.", payment.Amount),
			Type:    "wallet",
		})
	}
	r.logger.Info("wallet top-up completed", "payment_id", payment.ID, "user_id", payment.PatientID, "amount", payment.Amount)
	return nil
}

func newOrderID() string {
	return "DENTAL-" + uuid.New().String()
}
