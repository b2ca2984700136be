package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

var billingTracer = otel.Tracer("dental.internal.billing")

// TxBeginner is satisfied by *pgxpool.Pool (and by pgxmock pools in tests).
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type realtimeEmitter interface {
	Emit(ctx context.Context, userID uuid.UUID, eventType string, payload any)
}

// PaymentEvent is the realtime payload for patient ledger changes.
type PaymentEvent struct {
	PaymentID     string `json:"paymentId"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	BillType      string `json:"billType"`
}

// RevenueEvent is the realtime payload for doctor ledger changes.
type RevenueEvent struct {
	RevenueID     string `json:"revenueId"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Amount        int64  `json:"amount"`
	PlatformFee   int64  `json:"platformFee"`
	NetAmount     int64  `json:"netAmount"`
	Status        string `json:"status"`
}

// LedgerConfig carries the business constants of the billing ledger. There is
// exactly one authoritative value per fee; callers must not hardcode others.
type LedgerConfig struct {
	PlatformFeePercent int
	ReservationFee     int64
	CancellationFee    int64
}

// Ledger creates, refunds and deletes paired Payment/Revenue entries. Every
// operation keeps its paired writes inside one transaction so the two ledgers
// cannot diverge; realtime emission happens after commit and is best-effort.
type Ledger struct {
	db      TxBeginner
	repo    *Repository
	wallets *wallet.Repository
	emitter realtimeEmitter
	cfg     LedgerConfig
	logger  *logging.Logger
}

// NewLedger constructs the billing ledger.
func NewLedger(db TxBeginner, wallets *wallet.Repository, emitter realtimeEmitter, cfg LedgerConfig, logger *logging.Logger) *Ledger {
	if db == nil {
		panic("billing: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.PlatformFeePercent <= 0 {
		cfg.PlatformFeePercent = 5
	}
	return &Ledger{
		db:      db,
		repo:    NewRepositoryWithDB(db),
		wallets: wallets,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Repo exposes the pool-bound repository for read paths.
func (l *Ledger) Repo() *Repository {
	return l.repo
}

// platformFee returns the (negative) platform cut for a gross amount.
func (l *Ledger) platformFee(amount int64) int64 {
	return -(amount * int64(l.cfg.PlatformFeePercent) / 100)
}

// CreatePendingConsultationBill opens the pending Payment/Revenue pair for a
// freshly booked appointment whose fee will be settled later.
func (l *Ledger) CreatePendingConsultationBill(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID, fee int64) (*Payment, error) {
	payment := &Payment{
		ID:        uuid.New(),
		RefID:     &appointmentID,
		PatientID: patientID,
		Amount:    -fee,
		Status:    PaymentPending,
		BillType:  BillConsultationFee,
	}
	platformFee := l.platformFee(fee)
	revenue := &Revenue{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PaymentID:   &payment.ID,
		RefID:       &appointmentID,
		Amount:      fee,
		PlatformFee: platformFee,
		NetAmount:   fee + platformFee,
		Status:      RevenuePending,
	}

	err := l.inTx(ctx, func(repo *Repository, _ *wallet.Repository) error {
		if err := repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return repo.InsertRevenue(ctx, revenue)
	})
	if err != nil {
		return nil, err
	}

	l.emitPayment(ctx, patientID, payment)
	l.emitRevenue(ctx, doctorID, revenue)
	return payment, nil
}

// PayConsultationFromWallet charges the fee from the patient wallet and
// records the completed Payment with its pending Revenue in the same
// transaction. Returns wallet.ErrInsufficientBalance when funds are short.
func (l *Ledger) PayConsultationFromWallet(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID, fee int64) (*Payment, error) {
	ctx, span := billingTracer.Start(ctx, "billing.pay_from_wallet")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.appointment_id", appointmentID.String()),
		attribute.Int64("dental.amount", fee),
	)

	payment := &Payment{
		ID:        uuid.New(),
		RefID:     &appointmentID,
		PatientID: patientID,
		Amount:    -fee,
		Status:    PaymentCompleted,
		BillType:  BillConsultationFee,
	}
	platformFee := l.platformFee(fee)
	revenue := &Revenue{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PaymentID:   &payment.ID,
		RefID:       &appointmentID,
		Amount:      fee,
		PlatformFee: platformFee,
		NetAmount:   fee + platformFee,
		Status:      RevenuePending,
	}

	err := l.inTx(ctx, func(repo *Repository, wallets *wallet.Repository) error {
		if err := wallets.Debit(ctx, patientID, fee, wallet.KindPayment, &payment.ID, "consultation fee"); err != nil {
			return err
		}
		if err := repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return repo.InsertRevenue(ctx, revenue)
	})
	if err != nil {
		return nil, err
	}

	l.emitPayment(ctx, patientID, payment)
	l.emitRevenue(ctx, doctorID, revenue)
	return payment, nil
}

// CompleteConsultationPayment settles a pending gateway payment and opens the
// doctor's pending revenue. The conditional status flip makes the operation
// idempotent: re-delivered webhooks and racing pollers observe false and must
// not re-apply side effects.
func (l *Ledger) CompleteConsultationPayment(ctx context.Context, paymentID, doctorID uuid.UUID, transID string) (bool, error) {
	ctx, span := billingTracer.Start(ctx, "billing.complete_consultation_payment")
	defer span.End()
	span.SetAttributes(attribute.String("dental.payment_id", paymentID.String()))

	var payment *Payment
	var revenue *Revenue
	completed := false

	err := l.inTx(ctx, func(repo *Repository, _ *wallet.Repository) error {
		ok, err := repo.MarkPaymentCompleted(ctx, paymentID, transID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		completed = true

		payment, err = repo.GetPaymentByID(ctx, paymentID)
		if err != nil {
			return err
		}
		amount := -payment.Amount
		platformFee := l.platformFee(amount)
		revenue = &Revenue{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			PaymentID:   &paymentID,
			RefID:       payment.RefID,
			Amount:      amount,
			PlatformFee: platformFee,
			NetAmount:   amount + platformFee,
			Status:      RevenuePending,
		}
		return repo.InsertRevenue(ctx, revenue)
	})
	if err != nil {
		return false, err
	}
	if !completed {
		return false, nil
	}

	l.emitPayment(ctx, payment.PatientID, payment)
	l.emitRevenue(ctx, doctorID, revenue)
	return true, nil
}

// ChargeReservationFeeForDoctor credits the doctor a flat reservation fee,
// net of the platform cut, as a completed revenue entry.
func (l *Ledger) ChargeReservationFeeForDoctor(ctx context.Context, doctorID, appointmentID uuid.UUID) (*Revenue, error) {
	amount := l.cfg.ReservationFee
	platformFee := l.platformFee(amount)
	revenue := &Revenue{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		RefID:       &appointmentID,
		Amount:      amount,
		PlatformFee: platformFee,
		NetAmount:   amount + platformFee,
		Status:      RevenueCompleted,
	}
	if err := l.repo.InsertRevenue(ctx, revenue); err != nil {
		return nil, err
	}
	l.emitRevenue(ctx, doctorID, revenue)
	return revenue, nil
}

// ChargeCancellationFeeFromPatient bills the cancelling patient the flat
// cancellation fee and pairs it with a pending revenue entry for the doctor.
func (l *Ledger) ChargeCancellationFeeFromPatient(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID) (*Payment, error) {
	ctx, span := billingTracer.Start(ctx, "billing.charge_cancellation_fee")
	defer span.End()
	span.SetAttributes(attribute.String("dental.appointment_id", appointmentID.String()))

	fee := l.cfg.CancellationFee
	payment := &Payment{
		ID:        uuid.New(),
		RefID:     &appointmentID,
		PatientID: patientID,
		Amount:    -fee,
		Status:    PaymentCompleted,
		BillType:  BillCancellationCharge,
	}
	platformFee := l.platformFee(fee)
	revenue := &Revenue{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PaymentID:   &payment.ID,
		RefID:       &appointmentID,
		Amount:      fee,
		PlatformFee: platformFee,
		NetAmount:   fee + platformFee,
		Status:      RevenuePending,
	}

	err := l.inTx(ctx, func(repo *Repository, _ *wallet.Repository) error {
		if err := repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return repo.InsertRevenue(ctx, revenue)
	})
	if err != nil {
		return nil, err
	}

	l.emitPayment(ctx, patientID, payment)
	l.emitRevenue(ctx, doctorID, revenue)
	return payment, nil
}

// RefundConsultationFee refunds the patient the full original amount while
// debiting the doctor only the net amount they actually kept; the platform
// fee stays with the platform. The asymmetry is deliberate: the refund
// revenue row carries a zero platform fee so the fee is never recomputed.
func (l *Ledger) RefundConsultationFee(ctx context.Context, originalPaymentID uuid.UUID, originalAmount int64, patientID, doctorID, appointmentID uuid.UUID) (*Payment, error) {
	ctx, span := billingTracer.Start(ctx, "billing.refund_consultation_fee")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.payment_id", originalPaymentID.String()),
		attribute.Int64("dental.amount", originalAmount),
	)

	refund := &Payment{
		ID:               uuid.New(),
		RefID:            &appointmentID,
		PatientID:        patientID,
		Amount:           originalAmount,
		Status:           PaymentCompleted,
		BillType:         BillRefund,
		RelatedPaymentID: &originalPaymentID,
	}
	var reversal *Revenue

	err := l.inTx(ctx, func(repo *Repository, wallets *wallet.Repository) error {
		origRevenue, err := repo.GetRevenueByPaymentID(ctx, originalPaymentID)
		if err != nil {
			return err
		}
		netAmount := origRevenue.NetAmount

		if err := repo.InsertPayment(ctx, refund); err != nil {
			return err
		}
		if _, err := repo.MarkPaymentRefunded(ctx, originalPaymentID); err != nil {
			return err
		}
		if err := wallets.Credit(ctx, patientID, originalAmount, wallet.KindRefund, &refund.ID, "consultation fee refund"); err != nil {
			return err
		}
		if err := wallets.Credit(ctx, doctorID, -netAmount, wallet.KindRefund, &refund.ID, "consultation fee refund reversal"); err != nil {
			return err
		}
		reversal = &Revenue{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			PaymentID:   &refund.ID,
			RefID:       &appointmentID,
			Amount:      -netAmount,
			PlatformFee: 0,
			NetAmount:   -netAmount,
			Status:      RevenueCompleted,
		}
		return repo.InsertRevenue(ctx, reversal)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("consultation fee refunded",
		"payment_id", originalPaymentID,
		"refund_id", refund.ID,
		"patient_credit", originalAmount,
		"doctor_debit", reversal.NetAmount,
	)
	l.emitPayment(ctx, patientID, refund)
	l.emitRevenue(ctx, doctorID, reversal)
	return refund, nil
}

// DeletePendingBillsForAppointment drops every pending bill of an
// appointment. Safe to call repeatedly.
func (l *Ledger) DeletePendingBillsForAppointment(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) error {
	err := l.inTx(ctx, func(repo *Repository, _ *wallet.Repository) error {
		return repo.DeletePendingBills(ctx, appointmentID)
	})
	if err != nil {
		return err
	}
	l.emitBillsDeleted(ctx, appointmentID, patientID, doctorID)
	return nil
}

// DeletePendingConsultationFeeBills drops only the pending consultation-fee
// bills, leaving a just-created cancellation charge in place.
func (l *Ledger) DeletePendingConsultationFeeBills(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) error {
	err := l.inTx(ctx, func(repo *Repository, _ *wallet.Repository) error {
		return repo.DeletePendingConsultationBills(ctx, appointmentID)
	})
	if err != nil {
		return err
	}
	l.emitBillsDeleted(ctx, appointmentID, patientID, doctorID)
	return nil
}

// SettleRevenueForAppointment completes the doctor's pending revenue once the
// appointment completes.
func (l *Ledger) SettleRevenueForAppointment(ctx context.Context, appointmentID, doctorID uuid.UUID) error {
	settled, err := l.repo.SettlePendingRevenues(ctx, appointmentID)
	if err != nil {
		return err
	}
	if settled > 0 {
		l.emit(ctx, doctorID, events.TypeRevenueNew, RevenueEvent{
			AppointmentID: appointmentID.String(),
			Status:        string(RevenueCompleted),
		})
	}
	return nil
}

func (l *Ledger) inTx(ctx context.Context, fn func(repo *Repository, wallets *wallet.Repository) error) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("billing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(l.repo.WithTx(tx), l.wallets.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("billing: commit tx: %w", err)
	}
	return nil
}

func (l *Ledger) emit(ctx context.Context, userID uuid.UUID, eventType string, payload any) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(ctx, userID, eventType, payload)
}

func (l *Ledger) emitPayment(ctx context.Context, patientID uuid.UUID, p *Payment) {
	evt := PaymentEvent{
		PaymentID: p.ID.String(),
		Amount:    p.Amount,
		Status:    string(p.Status),
		BillType:  string(p.BillType),
	}
	if p.RefID != nil {
		evt.AppointmentID = p.RefID.String()
	}
	l.emit(ctx, patientID, events.TypePaymentNew, evt)
}

func (l *Ledger) emitRevenue(ctx context.Context, doctorID uuid.UUID, rev *Revenue) {
	evt := RevenueEvent{
		RevenueID:   rev.ID.String(),
		Amount:      rev.Amount,
		PlatformFee: rev.PlatformFee,
		NetAmount:   rev.NetAmount,
		Status:      string(rev.Status),
	}
	if rev.RefID != nil {
		evt.AppointmentID = rev.RefID.String()
	}
	l.emit(ctx, doctorID, events.TypeRevenueNew, evt)
}

func (l *Ledger) emitBillsDeleted(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) {
	payload := map[string]string{"appointmentId": appointmentID.String()}
	l.emit(ctx, patientID, events.TypePaymentDelete, payload)
	l.emit(ctx, doctorID, events.TypeRevenueDelete, payload)
}
