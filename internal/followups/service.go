package followups

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type suggestionStore interface {
	Insert(ctx context.Context, s *Suggestion) error
	GetByID(ctx context.Context, id uuid.UUID) (*Suggestion, error)
	MarkScheduled(ctx context.Context, id, appointmentID uuid.UUID) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID) (bool, error)
}

type appointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

type booker interface {
	Book(ctx context.Context, req appointments.BookRequest) (*appointments.Appointment, error)
}

type voucherIssuer interface {
	Issue(ctx context.Context, patientID uuid.UUID, vtype vouchers.Type, value int64, reason string, validFor time.Duration, relatedAppointmentID *uuid.UUID) (*vouchers.Voucher, error)
}

// Service drives the follow-up suggestion lifecycle. Suggesting issues the
// patient a discount voucher up front so it can be applied when the follow-up
// is booked.
type Service struct {
	store           suggestionStore
	appts           appointmentReader
	booker          booker
	vouchers        voucherIssuer
	notifier        notify.Dispatcher
	logger          *logging.Logger
	discountPercent int64
	voucherValidity time.Duration
}

// NewService constructs the follow-up service.
func NewService(store suggestionStore, appts appointmentReader, booker booker, issuer voucherIssuer, notifier notify.Dispatcher, logger *logging.Logger) *Service {
	if store == nil {
		panic("followups: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:           store,
		appts:           appts,
		booker:          booker,
		vouchers:        issuer,
		notifier:        notifier,
		logger:          logger,
		discountPercent: 10,
		voucherValidity: 90 * 24 * time.Hour,
	}
}

// Suggest records a doctor's follow-up recommendation for a completed visit.
func (s *Service) Suggest(ctx context.Context, doctorID, patientID, parentAppointmentID uuid.UUID, notes string) (*Suggestion, error) {
	parent, err := s.appts.GetByID(ctx, parentAppointmentID)
	if err != nil {
		return nil, err
	}
	if parent.Status != appointments.StatusCompleted {
		return nil, fmt.Errorf("followups: parent appointment is %s: %w", parent.Status, ErrParentNotCompleted)
	}

	suggestion := &Suggestion{
		ID:                  uuid.New(),
		DoctorID:            doctorID,
		PatientID:           patientID,
		ParentAppointmentID: parentAppointmentID,
		Notes:               notes,
		Status:              StatusPending,
	}
	if err := s.store.Insert(ctx, suggestion); err != nil {
		return nil, err
	}

	var voucherCode string
	if s.vouchers != nil {
		v, err := s.vouchers.Issue(ctx, patientID, vouchers.TypePercentage, s.discountPercent,
			"follow-up visit discount", s.voucherValidity, &parentAppointmentID)
		if err != nil {
			s.logger.Error("follow-up voucher failed", "error", err, "suggestion_id", suggestion.ID)
		} else {
			voucherCode = v.Code
		}
	}

	if s.notifier != nil {
		message := "Your doctor suggested a follow-up visit."
		if voucherCode != "" {
			message = fmt.Sprintf("Your doctor suggested a follow-up visit. Use voucher %s for a discount.", voucherCode)
		}
		s.notifier.Notify(ctx, notify.Notification{
			UserID:  patientID,
			Title:   "Follow-up suggested",
			Message: message,
			Type:    "followup",
			Data:    map[string]any{"suggestionId": suggestion.ID.String()},
		})
	}
	s.logger.Info("follow-up suggested", "suggestion_id", suggestion.ID, "parent_appointment_id", parentAppointmentID)
	return suggestion, nil
}

// ScheduleRequest carries the patient's chosen slot for a suggested
// follow-up.
type ScheduleRequest struct {
	SuggestionID    uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	ConsultationFee int64
	VoucherCode     string
}

// Schedule books the follow-up appointment for a pending suggestion.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*appointments.Appointment, error) {
	suggestion, err := s.store.GetByID(ctx, req.SuggestionID)
	if err != nil {
		return nil, err
	}
	if suggestion.Status != StatusPending {
		return nil, fmt.Errorf("followups: suggestion is %s: %w", suggestion.Status, ErrSuggestionSettled)
	}

	appt, err := s.booker.Book(ctx, appointments.BookRequest{
		DoctorID:         suggestion.DoctorID,
		PatientID:        suggestion.PatientID,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		ConsultationFee:  req.ConsultationFee,
		VoucherCode:      req.VoucherCode,
		IsFollowUp:       true,
		FollowUpParentID: &suggestion.ParentAppointmentID,
	})
	if err != nil {
		return nil, err
	}

	settled, err := s.store.MarkScheduled(ctx, suggestion.ID, appt.ID)
	if err != nil {
		return nil, err
	}
	if !settled {
		s.logger.Warn("suggestion settled concurrently, booked appointment stands",
			"suggestion_id", suggestion.ID, "appointment_id", appt.ID)
	}
	return appt, nil
}

// Reject settles a pending suggestion as declined by the patient.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) error {
	settled, err := s.store.MarkRejected(ctx, id)
	if err != nil {
		return err
	}
	if !settled {
		return ErrSuggestionSettled
	}
	return nil
}
