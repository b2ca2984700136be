package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/vouchers"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
)

type stubStore struct {
	appts map[uuid.UUID]*Appointment
}

func newStubStore() *stubStore {
	return &stubStore{appts: make(map[uuid.UUID]*Appointment)}
}

func (s *stubStore) Insert(_ context.Context, a *Appointment) error {
	for _, existing := range s.appts {
		if existing.DoctorID == a.DoctorID &&
			existing.AppointmentDate.Equal(a.AppointmentDate) &&
			existing.StartTime.Equal(a.StartTime) &&
			existing.Status != StatusCancelled {
			return ErrSlotConflict
		}
	}
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *stubStore) CountOverlapping(_ context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time) (int64, error) {
	var count int64
	for _, a := range s.appts {
		if a.DoctorID == doctorID &&
			a.AppointmentDate.Equal(date) &&
			a.Status != StatusCancelled &&
			a.StartTime.Before(end) &&
			a.EndTime.After(start) {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) UpdateStatus(_ context.Context, id uuid.UUID, to Status, from ...Status) (bool, error) {
	a, ok := s.appts[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) Cancel(_ context.Context, id uuid.UUID, by CancelActor, reason string) (bool, error) {
	a, ok := s.appts[id]
	if !ok || a.Status.Terminal() {
		return false, nil
	}
	a.Status = StatusCancelled
	a.CancelledBy = &by
	a.CancellationReason = &reason
	return true, nil
}

func (s *stubStore) SetPaymentStatus(_ context.Context, id uuid.UUID, state PaymentState) error {
	if a, ok := s.appts[id]; ok {
		a.PaymentStatus = state
	}
	return nil
}

func (s *stubStore) MarkCancellationFeeCharged(_ context.Context, id uuid.UUID) (bool, error) {
	a, ok := s.appts[id]
	if !ok || a.CancellationFeeCharged {
		return false, nil
	}
	a.CancellationFeeCharged = true
	return true, nil
}

type stubLedger struct {
	pendingBills     int
	lastPendingFee   int64
	refunds          int
	lastRefundAmount int64
	cancellationFees int
	reservationFees  int
	deleteAll        int
	deleteConsult    int
	settles          int
	walletPays       int
	walletErr        error
}

func (l *stubLedger) CreatePendingConsultationBill(_ context.Context, _, _, _ uuid.UUID, fee int64) (*billing.Payment, error) {
	l.pendingBills++
	l.lastPendingFee = fee
	return &billing.Payment{ID: uuid.New(), Amount: -fee}, nil
}

func (l *stubLedger) PayConsultationFromWallet(_ context.Context, _, _, _ uuid.UUID, fee int64) (*billing.Payment, error) {
	if l.walletErr != nil {
		return nil, l.walletErr
	}
	l.walletPays++
	return &billing.Payment{ID: uuid.New(), Amount: -fee, Status: billing.PaymentCompleted}, nil
}

func (l *stubLedger) RefundConsultationFee(_ context.Context, originalPaymentID uuid.UUID, originalAmount int64, _, _, _ uuid.UUID) (*billing.Payment, error) {
	l.refunds++
	l.lastRefundAmount = originalAmount
	return &billing.Payment{ID: uuid.New(), Amount: originalAmount, RelatedPaymentID: &originalPaymentID}, nil
}

func (l *stubLedger) ChargeCancellationFeeFromPatient(_ context.Context, _, _, _ uuid.UUID) (*billing.Payment, error) {
	l.cancellationFees++
	return &billing.Payment{ID: uuid.New()}, nil
}

func (l *stubLedger) ChargeReservationFeeForDoctor(_ context.Context, _, _ uuid.UUID) (*billing.Revenue, error) {
	l.reservationFees++
	return &billing.Revenue{ID: uuid.New()}, nil
}

func (l *stubLedger) DeletePendingBillsForAppointment(_ context.Context, _, _, _ uuid.UUID) error {
	l.deleteAll++
	return nil
}

func (l *stubLedger) DeletePendingConsultationFeeBills(_ context.Context, _, _, _ uuid.UUID) error {
	l.deleteConsult++
	return nil
}

func (l *stubLedger) SettleRevenueForAppointment(_ context.Context, _, _ uuid.UUID) error {
	l.settles++
	return nil
}

type stubPayments struct {
	payment *billing.Payment
}

func (p *stubPayments) GetCompletedConsultationPayment(_ context.Context, _ uuid.UUID) (*billing.Payment, error) {
	if p.payment == nil {
		return nil, billing.ErrPaymentNotFound
	}
	return p.payment, nil
}

type stubVouchers struct {
	result *vouchers.ApplyResult
	err    error
	used   []uuid.UUID
}

func (v *stubVouchers) Apply(_ context.Context, _ string, _ uuid.UUID, _ int64) (*vouchers.ApplyResult, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

func (v *stubVouchers) MarkUsed(_ context.Context, id uuid.UUID) error {
	v.used = append(v.used, id)
	return nil
}

type fixture struct {
	scheduler *Scheduler
	store     *stubStore
	ledger    *stubLedger
	payments  *stubPayments
	vouchers  *stubVouchers
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newStubStore(),
		ledger:   &stubLedger{},
		payments: &stubPayments{},
		vouchers: &stubVouchers{},
		now:      time.Date(2025, 1, 9, 8, 0, 0, 0, time.UTC),
	}
	f.scheduler = NewScheduler(f.store, f.ledger, f.payments, f.vouchers, nil, nil, 24*time.Hour, nil)
	f.scheduler.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) book(t *testing.T, start, end time.Time) *Appointment {
	t.Helper()
	appt, err := f.scheduler.Book(context.Background(), BookRequest{
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		StartTime:       start,
		EndTime:         end,
		ConsultationFee: 300_000,
	})
	require.NoError(t, err)
	return appt
}

func TestBookRejectsOverlappingSlot(t *testing.T) {
	f := newFixture(t)
	doctorID := uuid.New()
	patientID := uuid.New()
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	at := func(h, m int) time.Time {
		return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	book := func(start, end time.Time) (*Appointment, error) {
		return f.scheduler.Book(context.Background(), BookRequest{
			DoctorID:        doctorID,
			PatientID:       patientID,
			StartTime:       start,
			EndTime:         end,
			ConsultationFee: 300_000,
		})
	}

	_, err := book(at(10, 0), at(10, 30))
	require.NoError(t, err)

	_, err = book(at(10, 15), at(10, 45))
	assert.ErrorIs(t, err, ErrSlotConflict)

	// Adjacent ranges do not overlap.
	_, err = book(at(10, 30), at(11, 0))
	assert.NoError(t, err)
}

func TestBookRejectsPastOrInvertedSlot(t *testing.T) {
	f := newFixture(t)

	_, err := f.scheduler.Book(context.Background(), BookRequest{
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		StartTime:       f.now.Add(-time.Hour),
		EndTime:         f.now.Add(-30 * time.Minute),
		ConsultationFee: 300_000,
	})
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = f.scheduler.Book(context.Background(), BookRequest{
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		StartTime:       f.now.Add(2 * time.Hour),
		EndTime:         f.now.Add(time.Hour),
		ConsultationFee: 300_000,
	})
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestBookAppliesVoucherWithoutConsumingIt(t *testing.T) {
	f := newFixture(t)
	voucherID := uuid.New()
	f.vouchers.result = &vouchers.ApplyResult{
		VoucherID:        voucherID,
		DiscountAmount:   30_000,
		DiscountedAmount: 270_000,
	}

	appt, err := f.scheduler.Book(context.Background(), BookRequest{
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		StartTime:       f.now.Add(48 * time.Hour),
		EndTime:         f.now.Add(48*time.Hour + 30*time.Minute),
		ConsultationFee: 300_000,
		VoucherCode:     "DENTAL-ABCD2345",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(270_000), appt.ConsultationFee)
	require.NotNil(t, appt.AppliedVoucherID)
	assert.Equal(t, voucherID, *appt.AppliedVoucherID)
	assert.Equal(t, int64(270_000), f.ledger.lastPendingFee)
	assert.Empty(t, f.vouchers.used, "voucher must not be consumed at booking time")
}

func TestConfirmConsumesVoucher(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.now.Add(48*time.Hour), f.now.Add(48*time.Hour+30*time.Minute))
	voucherID := uuid.New()
	f.store.appts[appt.ID].AppliedVoucherID = &voucherID

	confirmed, err := f.scheduler.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Equal(t, []uuid.UUID{voucherID}, f.vouchers.used)

	// A second confirm is an invalid transition, not a repeat.
	_, err = f.scheduler.Confirm(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteSettlesRevenue(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.now.Add(48*time.Hour), f.now.Add(48*time.Hour+30*time.Minute))
	f.store.appts[appt.ID].Status = StatusInProgress

	completed, err := f.scheduler.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, 1, f.ledger.settles)
}

func TestCancelEarlyWithCompletedPaymentRefundsGross(t *testing.T) {
	f := newFixture(t)
	// Starts in 48h, window is 24h: an early cancellation, no fee.
	appt := f.book(t, f.now.Add(48*time.Hour), f.now.Add(48*time.Hour+30*time.Minute))
	f.store.appts[appt.ID].Status = StatusConfirmed
	f.payments.payment = &billing.Payment{ID: uuid.New(), Amount: -300_000, Status: billing.PaymentCompleted}

	cancelled, err := f.scheduler.Cancel(context.Background(), appt.ID, CancelledByPatient, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	assert.Equal(t, 1, f.ledger.refunds)
	assert.Equal(t, int64(300_000), f.ledger.lastRefundAmount)
	assert.Zero(t, f.ledger.cancellationFees)
	assert.Zero(t, f.ledger.reservationFees)
	assert.Equal(t, PaymentRefunded, f.store.appts[appt.ID].PaymentStatus)
}

func TestCancelLateByPatientChargesFee(t *testing.T) {
	f := newFixture(t)
	// Starts in 2h, inside the 24h window, nothing paid yet.
	appt := f.book(t, f.now.Add(2*time.Hour), f.now.Add(2*time.Hour+30*time.Minute))

	_, err := f.scheduler.Cancel(context.Background(), appt.ID, CancelledByPatient, "can't make it")
	require.NoError(t, err)

	assert.Equal(t, 1, f.ledger.cancellationFees)
	assert.Equal(t, 1, f.ledger.reservationFees)
	assert.Equal(t, 1, f.ledger.deleteConsult, "only consultation-fee bills are dropped")
	assert.Zero(t, f.ledger.deleteAll)
	assert.Zero(t, f.ledger.refunds)
	assert.True(t, f.store.appts[appt.ID].CancellationFeeCharged)
}

func TestCancelLateByDoctorCarriesNoFee(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.now.Add(2*time.Hour), f.now.Add(2*time.Hour+30*time.Minute))

	_, err := f.scheduler.Cancel(context.Background(), appt.ID, CancelledByDoctor, "emergency")
	require.NoError(t, err)

	assert.Zero(t, f.ledger.cancellationFees)
	assert.Zero(t, f.ledger.reservationFees)
	assert.Equal(t, 1, f.ledger.deleteAll)
}

func TestPayFromWalletConfirmsAndDropsGatewayBill(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.now.Add(48*time.Hour), f.now.Add(48*time.Hour+30*time.Minute))

	payment, err := f.scheduler.PayFromWallet(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-300_000), payment.Amount)
	assert.Equal(t, 1, f.ledger.walletPays)
	assert.Equal(t, 1, f.ledger.deleteConsult)
	assert.Equal(t, PaymentPaid, f.store.appts[appt.ID].PaymentStatus)
	assert.Equal(t, StatusConfirmed, f.store.appts[appt.ID].Status)
}

func TestPayFromWalletRejectsRepeatAndShortFunds(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.now.Add(48*time.Hour), f.now.Add(48*time.Hour+30*time.Minute))
	f.store.appts[appt.ID].PaymentStatus = PaymentPaid

	_, err := f.scheduler.PayFromWallet(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	other := f.book(t, f.now.Add(72*time.Hour), f.now.Add(72*time.Hour+30*time.Minute))
	f.ledger.walletErr = wallet.ErrInsufficientBalance

	_, err = f.scheduler.PayFromWallet(context.Background(), other.ID)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Equal(t, PaymentUnpaid, f.store.appts[other.ID].PaymentStatus)
}

func TestCancelTerminalAppointmentFails(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.now.Add(48*time.Hour), f.now.Add(48*time.Hour+30*time.Minute))
	f.store.appts[appt.ID].Status = StatusCompleted

	_, err := f.scheduler.Cancel(context.Background(), appt.ID, CancelledByPatient, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, f.ledger.refunds)
	assert.Zero(t, f.ledger.deleteAll)
}
