package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/events"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

var tracer = otel.Tracer("dental.internal.appointments")

type appointmentStore interface {
	Insert(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CountOverlapping(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, from ...Status) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, by CancelActor, reason string) (bool, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, state PaymentState) error
	MarkCancellationFeeCharged(ctx context.Context, id uuid.UUID) (bool, error)
}

type billingLedger interface {
	CreatePendingConsultationBill(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID, fee int64) (*billing.Payment, error)
	PayConsultationFromWallet(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID, fee int64) (*billing.Payment, error)
	RefundConsultationFee(ctx context.Context, originalPaymentID uuid.UUID, originalAmount int64, patientID, doctorID, appointmentID uuid.UUID) (*billing.Payment, error)
	ChargeCancellationFeeFromPatient(ctx context.Context, doctorID, patientID, appointmentID uuid.UUID) (*billing.Payment, error)
	ChargeReservationFeeForDoctor(ctx context.Context, doctorID, appointmentID uuid.UUID) (*billing.Revenue, error)
	DeletePendingBillsForAppointment(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) error
	DeletePendingConsultationFeeBills(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID) error
	SettleRevenueForAppointment(ctx context.Context, appointmentID, doctorID uuid.UUID) error
}

type paymentReader interface {
	GetCompletedConsultationPayment(ctx context.Context, appointmentID uuid.UUID) (*billing.Payment, error)
}

type voucherService interface {
	Apply(ctx context.Context, code string, patientID uuid.UUID, amount int64) (*vouchers.ApplyResult, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

type realtimeEmitter interface {
	Emit(ctx context.Context, userID uuid.UUID, eventType string, payload any)
}

// Event is the realtime payload for appointment lifecycle changes.
type Event struct {
	AppointmentID string `json:"appointmentId"`
	DoctorID      string `json:"doctorId"`
	PatientID     string `json:"patientId"`
	Status        string `json:"status"`
	StartTime     string `json:"startTime"`
}

// Scheduler books appointments and drives their lifecycle. Billing side
// effects that fail after the status write are logged for manual
// reconciliation rather than rolled back; the status write is the anchor.
type Scheduler struct {
	store              appointmentStore
	ledger             billingLedger
	payments           paymentReader
	vouchers           voucherService
	notifier           notify.Dispatcher
	emitter            realtimeEmitter
	logger             *logging.Logger
	cancellationWindow time.Duration
	now                func() time.Time
}

// NewScheduler constructs the appointment scheduler.
func NewScheduler(
	store appointmentStore,
	ledger billingLedger,
	payments paymentReader,
	vouchers voucherService,
	notifier notify.Dispatcher,
	emitter realtimeEmitter,
	cancellationWindow time.Duration,
	logger *logging.Logger,
) *Scheduler {
	if store == nil {
		panic("appointments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:              store,
		ledger:             ledger,
		payments:           payments,
		vouchers:           vouchers,
		notifier:           notifier,
		emitter:            emitter,
		logger:             logger,
		cancellationWindow: cancellationWindow,
		now:                time.Now,
	}
}

// BookRequest carries everything needed to reserve a slot.
type BookRequest struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	StartTime        time.Time
	EndTime          time.Time
	AppointmentType  Type
	ConsultationFee  int64
	VoucherCode      string
	IsFollowUp       bool
	FollowUpParentID *uuid.UUID
}

// Book reserves a slot with the doctor and opens the pending consultation
// bill. The voucher, if any, is only applied here; it is consumed later when
// the doctor confirms, so a booking that never confirms does not burn it.
func (s *Scheduler) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.doctor_id", req.DoctorID.String()),
		attribute.String("dental.patient_id", req.PatientID.String()),
	)

	now := s.now()
	if !req.EndTime.After(req.StartTime) || req.StartTime.Before(now) {
		return nil, ErrInvalidSlot
	}
	if req.ConsultationFee < 0 {
		return nil, fmt.Errorf("appointments: negative consultation fee: %w", ErrInvalidSlot)
	}

	fee := req.ConsultationFee
	var appliedVoucherID *uuid.UUID
	if req.VoucherCode != "" {
		result, err := s.vouchers.Apply(ctx, req.VoucherCode, req.PatientID, fee)
		if err != nil {
			return nil, err
		}
		fee = result.DiscountedAmount
		appliedVoucherID = &result.VoucherID
	}

	date := dateOf(req.StartTime)
	overlapping, err := s.store.CountOverlapping(ctx, req.DoctorID, date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if overlapping > 0 {
		return nil, ErrSlotConflict
	}

	appointmentType := req.AppointmentType
	if appointmentType == "" {
		appointmentType = TypeConsultation
	}
	if req.IsFollowUp {
		appointmentType = TypeFollowUp
	}

	appt := &Appointment{
		ID:               uuid.New(),
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		AppointmentDate:  date,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		DurationMinutes:  int(req.EndTime.Sub(req.StartTime) / time.Minute),
		AppointmentType:  appointmentType,
		ConsultationFee:  fee,
		Status:           StatusPending,
		PaymentStatus:    PaymentUnpaid,
		IsFollowUp:       req.IsFollowUp,
		FollowUpParentID: req.FollowUpParentID,
		AppliedVoucherID: appliedVoucherID,
	}
	if err := s.store.Insert(ctx, appt); err != nil {
		return nil, err
	}

	if fee > 0 && s.ledger != nil {
		if _, err := s.ledger.CreatePendingConsultationBill(ctx, req.DoctorID, req.PatientID, appt.ID, fee); err != nil {
			// Release the slot rather than leave an unbillable booking.
			if _, cancelErr := s.store.Cancel(ctx, appt.ID, CancelledBySystem, "billing unavailable"); cancelErr != nil {
				s.logger.Error("slot release after billing failure failed, manual reconciliation required",
					"error", cancelErr, "appointment_id", appt.ID)
			}
			return nil, err
		}
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", req.DoctorID,
		"patient_id", req.PatientID,
		"start_time", req.StartTime,
		"fee", fee,
	)
	s.emitEvent(ctx, appt, events.TypeAppointmentNew, appt.DoctorID, appt.PatientID)
	s.sendNotification(ctx, appt.DoctorID, "New appointment request",
		fmt.Sprintf("A patient requested %s on %s.", appointmentType, req.StartTime.Format("Mon 02 Jan 15:04")), appt.ID)
	return appt, nil
}

func (s *Scheduler) emitEvent(ctx context.Context, a *Appointment, eventType string, userIDs ...uuid.UUID) {
	if s.emitter == nil {
		return
	}
	evt := Event{
		AppointmentID: a.ID.String(),
		DoctorID:      a.DoctorID.String(),
		PatientID:     a.PatientID.String(),
		Status:        string(a.Status),
		StartTime:     a.StartTime.Format(time.RFC3339),
	}
	for _, userID := range userIDs {
		s.emitter.Emit(ctx, userID, eventType, evt)
	}
}

func (s *Scheduler) sendNotification(ctx context.Context, userID uuid.UUID, title, message string, appointmentID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    "appointment",
		Data:    map[string]any{"appointmentId": appointmentID.String()},
		LinkTo:  "/appointments/" + appointmentID.String(),
	})
}

// dateOf strips the clock component for the appointment_date column.
func dateOf(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
