package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/observability/metrics"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type pendingLister interface {
	ListPendingStartingBefore(ctx context.Context, cutoff time.Time, limit int32) ([]appointments.Appointment, error)
}

type canceller interface {
	Cancel(ctx context.Context, id uuid.UUID, by appointments.CancelActor, reason string) (*appointments.Appointment, error)
}

type voucherIssuer interface {
	Issue(ctx context.Context, patientID uuid.UUID, vtype vouchers.Type, value int64, reason string, validFor time.Duration, relatedAppointmentID *uuid.UUID) (*vouchers.Voucher, error)
}

const autoRejectReason = "doctor did not confirm in time"

// AutoRejectScanner cancels pending appointments whose start is too close for
// the doctor to still confirm, including ones already in the past, and issues
// the patient a compensation voucher. Cancellation goes through the regular
// lifecycle so the billing branches apply unchanged.
type AutoRejectScanner struct {
	store           pendingLister
	scheduler       canceller
	vouchers        voucherIssuer
	lock            *ScanLock
	margin          time.Duration
	voucherPercent  int64
	voucherValidity time.Duration
	interval        time.Duration
	batchSize       int32
	metrics         *metrics.SchedulingMetrics
	logger          *logging.Logger
	now             func() time.Time
}

// NewAutoRejectScanner constructs the scanner.
func NewAutoRejectScanner(store pendingLister, scheduler canceller, issuer voucherIssuer, lock *ScanLock, margin time.Duration, voucherPercent int, logger *logging.Logger) *AutoRejectScanner {
	if store == nil {
		panic("jobs: pending lister required")
	}
	if scheduler == nil {
		panic("jobs: scheduler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AutoRejectScanner{
		store:           store,
		scheduler:       scheduler,
		vouchers:        issuer,
		lock:            lock,
		margin:          margin,
		voucherPercent:  int64(voucherPercent),
		voucherValidity: 30 * 24 * time.Hour,
		interval:        time.Minute,
		batchSize:       200,
		logger:          logger,
		now:             time.Now,
	}
}

// WithInterval overrides the tick interval.
func (s *AutoRejectScanner) WithInterval(interval time.Duration) *AutoRejectScanner {
	s.interval = interval
	return s
}

// WithMetrics attaches scheduling metrics.
func (s *AutoRejectScanner) WithMetrics(m *metrics.SchedulingMetrics) *AutoRejectScanner {
	s.metrics = m
	return s
}

// Start blocks, scanning on every tick until the context is cancelled.
func (s *AutoRejectScanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("auto-reject scanner started", "margin", s.margin)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto-reject scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan cancels one batch of unconfirmed appointments. Per-item failures are
// logged and do not stop the batch.
func (s *AutoRejectScanner) Scan(ctx context.Context) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			// Conditional cancellation makes concurrent scans safe, so a
			// lost lock is not a reason to skip the batch.
			s.logger.Warn("auto-reject lock unavailable, scanning anyway", "error", err)
		} else if !ok {
			return
		} else {
			defer s.lock.Release(ctx)
		}
	}

	cutoff := s.now().Add(s.margin)
	stale, err := s.store.ListPendingStartingBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("auto-reject listing failed", "error", err)
		return
	}

	for i := range stale {
		s.reject(ctx, &stale[i])
	}
}

func (s *AutoRejectScanner) reject(ctx context.Context, appt *appointments.Appointment) {
	if _, err := s.scheduler.Cancel(ctx, appt.ID, appointments.CancelledBySystem, autoRejectReason); err != nil {
		if errors.Is(err, appointments.ErrInvalidTransition) {
			// Confirmed or cancelled between listing and now.
			return
		}
		s.logger.Error("auto-reject cancel failed", "error", err, "appointment_id", appt.ID)
		return
	}
	s.metrics.ObserveAutoReject()
	s.logger.Info("appointment auto-rejected", "appointment_id", appt.ID, "start_time", appt.StartTime)

	if s.vouchers == nil || s.voucherPercent <= 0 {
		return
	}
	if _, err := s.vouchers.Issue(ctx, appt.PatientID, vouchers.TypePercentage, s.voucherPercent,
		"compensation for an unconfirmed appointment", s.voucherValidity, &appt.ID); err != nil {
		s.logger.Error("compensation voucher failed", "error", err, "appointment_id", appt.ID)
	}
}
