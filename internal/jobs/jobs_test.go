package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/users"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

type recordingNotifier struct {
	sent []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) {
	n.sent = append(n.sent, msg)
}

type reminderStoreStub struct {
	appts map[uuid.UUID]*appointments.Appointment
}

func (s *reminderStoreStub) ListConfirmedStartingBetween(_ context.Context, from, to time.Time, _ int32) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range s.appts {
		if a.Status == appointments.StatusConfirmed &&
			a.ReminderSentAt == nil &&
			!a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *reminderStoreStub) MarkReminderSent(_ context.Context, id uuid.UUID) (bool, error) {
	a, ok := s.appts[id]
	if !ok || a.ReminderSentAt != nil {
		return false, nil
	}
	now := time.Now()
	a.ReminderSentAt = &now
	return true, nil
}

type directoryStub struct{}

func (directoryStub) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	return &users.User{ID: id, FullName: "Dr. Chi Nguyen"}, nil
}

func TestReminderScannerSendsOncePerAppointment(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	inWindow := &appointments.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Status:    appointments.StatusConfirmed,
		StartTime: now.Add(32 * time.Minute),
	}
	farOut := &appointments.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Status:    appointments.StatusConfirmed,
		StartTime: now.Add(2 * time.Hour),
	}
	store := &reminderStoreStub{appts: map[uuid.UUID]*appointments.Appointment{
		inWindow.ID: inWindow,
		farOut.ID:   farOut,
	}}
	notifier := &recordingNotifier{}

	scanner := NewReminderScanner(store, directoryStub{}, notifier, nil, 30*time.Minute, 35*time.Minute, nil)
	scanner.now = func() time.Time { return now }

	scanner.Scan(context.Background())
	require.Len(t, notifier.sent, 2, "one reminder to patient, one to doctor")
	assert.Equal(t, inWindow.PatientID, notifier.sent[0].UserID)
	assert.Equal(t, inWindow.DoctorID, notifier.sent[1].UserID)
	assert.Contains(t, notifier.sent[0].Message, "Dr. Chi Nguyen")

	// A later tick covering the same appointment must not resend.
	scanner.Scan(context.Background())
	assert.Len(t, notifier.sent, 2)
}

func TestReminderScannerSkipsWhenLockHeld(t *testing.T) {
	client := testRedis(t)
	lock := NewScanLock(client, "jobs:reminder", time.Minute)

	held, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, held)

	appt := &appointments.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Status:    appointments.StatusConfirmed,
		StartTime: time.Now().Add(32 * time.Minute),
	}
	store := &reminderStoreStub{appts: map[uuid.UUID]*appointments.Appointment{appt.ID: appt}}
	notifier := &recordingNotifier{}

	scanner := NewReminderScanner(store, directoryStub{}, notifier, NewScanLock(client, "jobs:reminder", time.Minute), 30*time.Minute, 35*time.Minute, nil)
	scanner.Scan(context.Background())

	assert.Empty(t, notifier.sent)
	assert.Nil(t, appt.ReminderSentAt)
}

func TestScanLockReleasedAfterScan(t *testing.T) {
	client := testRedis(t)
	lock := NewScanLock(client, "jobs:autoreject", time.Minute)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	lock.Release(context.Background())
	ok, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "acquire must succeed after release")
}

type pendingListerStub struct {
	appts []*appointments.Appointment
}

func (s *pendingListerStub) ListPendingStartingBefore(_ context.Context, cutoff time.Time, _ int32) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range s.appts {
		if a.Status == appointments.StatusPending && !a.StartTime.After(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type cancellerStub struct {
	cancelled []uuid.UUID
	reasons   []string
}

func (c *cancellerStub) Cancel(_ context.Context, id uuid.UUID, _ appointments.CancelActor, reason string) (*appointments.Appointment, error) {
	c.cancelled = append(c.cancelled, id)
	c.reasons = append(c.reasons, reason)
	return &appointments.Appointment{ID: id, Status: appointments.StatusCancelled}, nil
}

type issuerStub struct {
	issued []uuid.UUID
}

func (i *issuerStub) Issue(_ context.Context, patientID uuid.UUID, _ vouchers.Type, _ int64, _ string, _ time.Duration, _ *uuid.UUID) (*vouchers.Voucher, error) {
	i.issued = append(i.issued, patientID)
	return &vouchers.Voucher{ID: uuid.New(), PatientID: patientID}, nil
}

func TestAutoRejectBoundary(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	soon := &appointments.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Status:    appointments.StatusPending,
		StartTime: now.Add(25 * time.Minute),
	}
	later := &appointments.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Status:    appointments.StatusPending,
		StartTime: now.Add(45 * time.Minute),
	}
	overdue := &appointments.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Status:    appointments.StatusPending,
		StartTime: now.Add(-time.Hour),
	}
	store := &pendingListerStub{appts: []*appointments.Appointment{soon, later, overdue}}
	scheduler := &cancellerStub{}
	issuer := &issuerStub{}

	scanner := NewAutoRejectScanner(store, scheduler, issuer, nil, 30*time.Minute, 10, nil)
	scanner.now = func() time.Time { return now }
	scanner.Scan(context.Background())

	assert.ElementsMatch(t, []uuid.UUID{soon.ID, overdue.ID}, scheduler.cancelled)
	assert.NotContains(t, scheduler.cancelled, later.ID, "45 minutes out is beyond the margin")
	assert.ElementsMatch(t, []uuid.UUID{soon.PatientID, overdue.PatientID}, issuer.issued)
	for _, reason := range scheduler.reasons {
		assert.Equal(t, autoRejectReason, reason)
	}
}
