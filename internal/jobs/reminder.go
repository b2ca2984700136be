package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/observability/metrics"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/users"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type reminderStore interface {
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time, limit int32) ([]appointments.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
}

type nameReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// ReminderScanner sends one reminder per appointment shortly before it
// starts. The conditional reminder_sent_at write is the dedup: ticks run
// at-least-once and only the winning writer may send.
type ReminderScanner struct {
	store       reminderStore
	users       nameReader
	notifier    notify.Dispatcher
	lock        *ScanLock
	windowStart time.Duration
	windowEnd   time.Duration
	interval    time.Duration
	batchSize   int32
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewReminderScanner constructs the scanner. The window is the look-ahead
// range, e.g. 30 to 35 minutes out.
func NewReminderScanner(store reminderStore, users nameReader, notifier notify.Dispatcher, lock *ScanLock, windowStart, windowEnd time.Duration, logger *logging.Logger) *ReminderScanner {
	if store == nil {
		panic("jobs: reminder store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderScanner{
		store:       store,
		users:       users,
		notifier:    notifier,
		lock:        lock,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		interval:    time.Minute,
		batchSize:   200,
		logger:      logger,
		now:         time.Now,
	}
}

// WithInterval overrides the tick interval.
func (s *ReminderScanner) WithInterval(interval time.Duration) *ReminderScanner {
	s.interval = interval
	return s
}

// WithMetrics attaches scheduling metrics.
func (s *ReminderScanner) WithMetrics(m *metrics.SchedulingMetrics) *ReminderScanner {
	s.metrics = m
	return s
}

// Start blocks, scanning on every tick until the context is cancelled.
func (s *ReminderScanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reminder scanner started", "window_start", s.windowStart, "window_end", s.windowEnd)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan handles one reminder window.
func (s *ReminderScanner) Scan(ctx context.Context) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			// The lock only spares duplicate work; the reminder marker is
			// the real dedup, so scan anyway.
			s.logger.Warn("reminder lock unavailable, scanning anyway", "error", err)
		} else if !ok {
			return
		} else {
			defer s.lock.Release(ctx)
		}
	}

	now := s.now()
	upcoming, err := s.store.ListConfirmedStartingBetween(ctx, now.Add(s.windowStart), now.Add(s.windowEnd), s.batchSize)
	if err != nil {
		s.logger.Error("reminder listing failed", "error", err)
		return
	}

	for i := range upcoming {
		appt := &upcoming[i]
		won, err := s.store.MarkReminderSent(ctx, appt.ID)
		if err != nil {
			s.logger.Error("reminder marker failed", "error", err, "appointment_id", appt.ID)
			continue
		}
		if !won {
			continue
		}
		s.send(ctx, appt)
	}
}

func (s *ReminderScanner) send(ctx context.Context, appt *appointments.Appointment) {
	if s.notifier == nil {
		return
	}
	patientName := s.lookupName(ctx, appt.PatientID, "your patient")
	doctorName := s.lookupName(ctx, appt.DoctorID, "your doctor")
	when := appt.StartTime.Format("15:04")

	s.notifier.Notify(ctx, notify.Notification{
		UserID:  appt.PatientID,
		Title:   "Upcoming appointment",
		Message: fmt.Sprintf("Your appointment with %s starts at %s.", doctorName, when),
		Type:    "reminder",
		Data:    map[string]any{"appointmentId": appt.ID.String()},
	})
	s.notifier.Notify(ctx, notify.Notification{
		UserID:  appt.DoctorID,
		Title:   "Upcoming appointment",
		Message: fmt.Sprintf("Your appointment with %s starts at %s.", patientName, when),
		Type:    "reminder",
		Data:    map[string]any{"appointmentId": appt.ID.String()},
	})
	s.metrics.ObserveReminder()
	s.logger.Info("reminder sent", "appointment_id", appt.ID, "start_time", appt.StartTime)
}

// lookupName joins the display name at notification time; the appointment row
// itself never embeds it.
func (s *ReminderScanner) lookupName(ctx context.Context, id uuid.UUID, fallback string) string {
	if s.users == nil {
		return fallback
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil || u.FullName == "" {
		return fallback
	}
	return u.FullName
}
