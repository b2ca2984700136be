package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
)

// Confirm moves a pending appointment to confirmed and consumes the applied
// voucher. Doctors confirm manually; the gateway reconciler confirms
// automatically on a successful payment.
func (s *Scheduler) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.UpdateStatus(ctx, id, StatusConfirmed, StatusPending, StatusPendingPayment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("appointments: confirm %s from %s: %w", id, appt.Status, ErrInvalidTransition)
	}
	appt.Status = StatusConfirmed

	if appt.AppliedVoucherID != nil && s.vouchers != nil {
		if err := s.vouchers.MarkUsed(ctx, *appt.AppliedVoucherID); err != nil {
			s.logger.Error("voucher consumption failed", "error", err, "voucher_id", *appt.AppliedVoucherID, "appointment_id", id)
		}
	}

	s.logger.Info("appointment confirmed", "appointment_id", id, "doctor_id", appt.DoctorID)
	s.emitEvent(ctx, appt, events.TypeAppointmentConfirmed, appt.PatientID, appt.DoctorID)
	s.sendNotification(ctx, appt.PatientID, "Appointment confirmed",
		fmt.Sprintf("Your appointment on %s was confirmed.", appt.StartTime.Format("Mon 02 Jan 15:04")), id)
	return appt, nil
}

// Start moves a confirmed appointment to in_progress.
func (s *Scheduler) Start(ctx context.Context, id uuid.UUID) error {
	ok, err := s.store.UpdateStatus(ctx, id, StatusInProgress, StatusConfirmed)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Complete finishes the visit and settles the doctor's pending revenue.
func (s *Scheduler) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.UpdateStatus(ctx, id, StatusCompleted, StatusInProgress, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("appointments: complete %s from %s: %w", id, appt.Status, ErrInvalidTransition)
	}
	appt.Status = StatusCompleted

	if s.ledger != nil {
		if err := s.ledger.SettleRevenueForAppointment(ctx, id, appt.DoctorID); err != nil {
			s.logger.Error("revenue settlement failed, manual reconciliation required",
				"error", err, "appointment_id", id, "doctor_id", appt.DoctorID)
		}
	}

	s.emitEvent(ctx, appt, events.TypeAppointmentCompleted, appt.PatientID, appt.DoctorID)
	s.sendNotification(ctx, appt.PatientID, "Visit completed",
		"Thank you for your visit. Your doctor may suggest a follow-up.", id)
	return appt, nil
}

// Cancel moves any non-terminal appointment to cancelled and applies the
// billing consequences. Money movements happen after the status write; a
// failed movement is logged for manual reconciliation, never rolled back,
// because the cancellation itself must stick.
//
// Billing branches:
//   - a completed consultation payment exists: refund the patient gross,
//     debit the doctor net.
//   - no completed payment: drop the pending bills.
//   - additionally, a patient cancelling inside the cancellation window is
//     charged the flat cancellation fee and the doctor receives the
//     reservation fee as compensation for the held slot.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID, by CancelActor, reason string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.cancel")
	defer span.End()

	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.Cancel(ctx, id, by, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("appointments: cancel %s from %s: %w", id, appt.Status, ErrInvalidTransition)
	}
	actor := by
	appt.Status = StatusCancelled
	appt.CancelledBy = &actor

	lateCancel := by == CancelledByPatient &&
		appt.StartTime.Sub(s.now()) < s.cancellationWindow &&
		!appt.CancellationFeeCharged

	s.applyCancellationBilling(ctx, appt, lateCancel)

	s.logger.Info("appointment cancelled",
		"appointment_id", id,
		"cancelled_by", by,
		"reason", reason,
		"fee_charged", lateCancel,
	)
	s.emitEvent(ctx, appt, events.TypeAppointmentCancelled, appt.PatientID, appt.DoctorID)
	s.notifyCancellation(ctx, appt, by, reason)
	return appt, nil
}

func (s *Scheduler) applyCancellationBilling(ctx context.Context, appt *Appointment, lateCancel bool) {
	if s.ledger == nil || s.payments == nil {
		return
	}

	payment, err := s.payments.GetCompletedConsultationPayment(ctx, appt.ID)
	switch {
	case err == nil:
		amount := -payment.Amount
		if _, err := s.ledger.RefundConsultationFee(ctx, payment.ID, amount, appt.PatientID, appt.DoctorID, appt.ID); err != nil {
			s.logger.Error("refund failed, manual reconciliation required",
				"error", err, "appointment_id", appt.ID, "payment_id", payment.ID)
			return
		}
		if err := s.store.SetPaymentStatus(ctx, appt.ID, PaymentRefunded); err != nil {
			s.logger.Error("payment status update failed", "error", err, "appointment_id", appt.ID)
		}
		if lateCancel {
			s.chargeLateCancellation(ctx, appt)
		}
	case errors.Is(err, billing.ErrPaymentNotFound):
		if lateCancel {
			s.chargeLateCancellation(ctx, appt)
			// Drop only the consultation-fee bills so the cancellation
			// charge just written survives.
			if err := s.ledger.DeletePendingConsultationFeeBills(ctx, appt.ID, appt.PatientID, appt.DoctorID); err != nil {
				s.logger.Error("pending consultation bill cleanup failed", "error", err, "appointment_id", appt.ID)
			}
			return
		}
		if err := s.ledger.DeletePendingBillsForAppointment(ctx, appt.ID, appt.PatientID, appt.DoctorID); err != nil {
			s.logger.Error("pending bill cleanup failed", "error", err, "appointment_id", appt.ID)
		}
	default:
		s.logger.Error("completed payment lookup failed, billing skipped, manual reconciliation required",
			"error", err, "appointment_id", appt.ID)
	}
}

func (s *Scheduler) chargeLateCancellation(ctx context.Context, appt *Appointment) {
	charged, err := s.store.MarkCancellationFeeCharged(ctx, appt.ID)
	if err != nil {
		s.logger.Error("cancellation fee marker failed", "error", err, "appointment_id", appt.ID)
		return
	}
	if !charged {
		return
	}
	if _, err := s.ledger.ChargeCancellationFeeFromPatient(ctx, appt.DoctorID, appt.PatientID, appt.ID); err != nil {
		s.logger.Error("cancellation fee charge failed, manual reconciliation required",
			"error", err, "appointment_id", appt.ID)
	}
	if _, err := s.ledger.ChargeReservationFeeForDoctor(ctx, appt.DoctorID, appt.ID); err != nil {
		s.logger.Error("reservation fee credit failed, manual reconciliation required",
			"error", err, "appointment_id", appt.ID)
	}
	appt.CancellationFeeCharged = true
}

func (s *Scheduler) notifyCancellation(ctx context.Context, appt *Appointment, by CancelActor, reason string) {
	when := appt.StartTime.Format("Mon 02 Jan 15:04")
	switch by {
	case CancelledByPatient:
		s.sendNotification(ctx, appt.DoctorID, "Appointment cancelled",
			fmt.Sprintf("The patient cancelled the appointment on %s.", when), appt.ID)
	case CancelledByDoctor:
		s.sendNotification(ctx, appt.PatientID, "Appointment cancelled",
			fmt.Sprintf("Your doctor cancelled the appointment on %s. Your payment, if any, was refunded.", when), appt.ID)
	case CancelledBySystem:
		s.sendNotification(ctx, appt.PatientID, "Appointment cancelled",
			fmt.Sprintf("Your appointment on %s was cancelled: %s.", when, reason), appt.ID)
		s.sendNotification(ctx, appt.DoctorID, "Appointment cancelled",
			fmt.Sprintf("The appointment on %s was cancelled: %s.", when, reason), appt.ID)
	}
}
