package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
)

// PayFromWallet settles the consultation fee from the patient's wallet
// instead of the payment gateway. The wallet debit, completed payment
// and pending revenue are written atomically by the ledger; the pending
// gateway bill opened at booking time is superseded and dropped.
func (s *Scheduler) PayFromWallet(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	ctx, span := tracer.Start(ctx, "appointments.pay_from_wallet")
	defer span.End()

	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("appointments: pay for %s appointment: %w", appt.Status, ErrInvalidTransition)
	}
	if appt.PaymentStatus != PaymentUnpaid {
		return nil, fmt.Errorf("appointments: appointment %s already %s: %w", id, appt.PaymentStatus, ErrInvalidTransition)
	}

	payment, err := s.ledger.PayConsultationFromWallet(ctx, appt.DoctorID, appt.PatientID, id, appt.ConsultationFee)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.DeletePendingConsultationFeeBills(ctx, id, appt.PatientID, appt.DoctorID); err != nil {
		s.logger.Error("pending gateway bill cleanup failed, manual reconciliation required",
			"error", err, "appointment_id", id)
	}
	if err := s.store.SetPaymentStatus(ctx, id, PaymentPaid); err != nil {
		s.logger.Error("payment status update failed, manual reconciliation required",
			"error", err, "appointment_id", id)
	}

	// A paid appointment confirms automatically, same as a successful
	// gateway payment. The doctor may already have confirmed.
	if _, err := s.Confirm(ctx, id); err != nil && !errors.Is(err, ErrInvalidTransition) {
		s.logger.Error("confirm after wallet payment failed", "error", err, "appointment_id", id)
	}

	s.logger.Info("consultation paid from wallet",
		"appointment_id", id,
		"patient_id", appt.PatientID,
		"amount", appt.ConsultationFee,
	)
	appt.PaymentStatus = PaymentPaid
	s.emitEvent(ctx, appt, events.TypePaymentNew, appt.PatientID, appt.DoctorID)
	return payment, nil
}
