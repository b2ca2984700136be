package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/followups"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/gateway"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/wallet"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type schedulerStub struct {
	bookErr   error
	cancelErr error
	booked    *appointments.BookRequest
	cancelBy  appointments.CancelActor
}

func (s *schedulerStub) Book(_ context.Context, req appointments.BookRequest) (*appointments.Appointment, error) {
	if s.bookErr != nil {
		return nil, s.bookErr
	}
	s.booked = &req
	return &appointments.Appointment{
		ID:              uuid.New(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		AppointmentType: appointments.TypeConsultation,
		ConsultationFee: req.ConsultationFee,
		Status:          appointments.StatusPending,
		PaymentStatus:   appointments.PaymentUnpaid,
	}, nil
}

func (s *schedulerStub) Confirm(_ context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return &appointments.Appointment{ID: id, Status: appointments.StatusConfirmed}, nil
}

func (s *schedulerStub) Start(context.Context, uuid.UUID) error { return nil }

func (s *schedulerStub) Complete(_ context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return &appointments.Appointment{ID: id, Status: appointments.StatusCompleted}, nil
}

func (s *schedulerStub) Cancel(_ context.Context, id uuid.UUID, by appointments.CancelActor, _ string) (*appointments.Appointment, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	s.cancelBy = by
	actor := by
	return &appointments.Appointment{ID: id, Status: appointments.StatusCancelled, CancelledBy: &actor}, nil
}

type listerStub struct {
	appts []appointments.Appointment
	limit int32
}

func (l *listerStub) ListForUser(_ context.Context, _ uuid.UUID, limit int32) ([]appointments.Appointment, error) {
	l.limit = limit
	return l.appts, nil
}

func newAppointmentsRouter(h *AppointmentsHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/appointments", h.Book)
	r.Post("/appointments/{id}/cancel", h.Cancel)
	r.Get("/appointments", h.List)
	return r
}

func TestBookHandlerCreatesAppointment(t *testing.T) {
	stub := &schedulerStub{}
	h := NewAppointmentsHandler(stub, &listerStub{}, nil, logging.Default())
	router := newAppointmentsRouter(h)

	body := `{
		"doctorId": "` + uuid.NewString() + `",
		"patientId": "` + uuid.NewString() + `",
		"startTime": "2025-06-01T10:00:00Z",
		"endTime": "2025-06-01T10:30:00Z",
		"consultationFee": 300000
	}`
	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, stub.booked)
	assert.Equal(t, int64(300_000), stub.booked.ConsultationFee)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "2025-06-01T10:00:00Z", resp.StartTime)
}

func TestBookHandlerMapsSlotConflictTo409(t *testing.T) {
	stub := &schedulerStub{bookErr: appointments.ErrSlotConflict}
	h := NewAppointmentsHandler(stub, &listerStub{}, nil, logging.Default())
	router := newAppointmentsRouter(h)

	body := `{
		"doctorId": "` + uuid.NewString() + `",
		"patientId": "` + uuid.NewString() + `",
		"startTime": "2025-06-01T10:00:00Z",
		"endTime": "2025-06-01T10:30:00Z",
		"consultationFee": 300000
	}`
	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookHandlerRejectsMalformedBody(t *testing.T) {
	h := NewAppointmentsHandler(&schedulerStub{}, &listerStub{}, nil, logging.Default())
	router := newAppointmentsRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelHandlerRejectsSystemActor(t *testing.T) {
	stub := &schedulerStub{}
	h := NewAppointmentsHandler(stub, &listerStub{}, nil, logging.Default())
	router := newAppointmentsRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel",
		strings.NewReader(`{"cancelledBy": "system", "reason": "nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.cancelBy)
}

func TestListHandlerCapsLimit(t *testing.T) {
	lister := &listerStub{}
	h := NewAppointmentsHandler(&schedulerStub{}, lister, nil, logging.Default())
	router := newAppointmentsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/appointments?user="+uuid.NewString()+"&limit=9999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(50), lister.limit, "out-of-range limit falls back to the default")
}

type reconcilerStub struct {
	ipnErr     error
	ipnCalls   int
	pollErr    error
	pollOrders []string
	session    *gateway.CheckoutSession
	initErr    error
}

func (r *reconcilerStub) InitiateConsultationPayment(context.Context, uuid.UUID) (*gateway.CheckoutSession, error) {
	if r.initErr != nil {
		return nil, r.initErr
	}
	return r.session, nil
}

func (r *reconcilerStub) HandleIPN(context.Context, gateway.IPN) error {
	r.ipnCalls++
	return r.ipnErr
}

func (r *reconcilerStub) Poll(_ context.Context, orderID string) error {
	r.pollOrders = append(r.pollOrders, orderID)
	return r.pollErr
}

func TestIPNHandlerRejectsBadSignature(t *testing.T) {
	stub := &reconcilerStub{ipnErr: gateway.ErrInvalidSignature}
	h := NewGatewayHandler(stub, nil, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/momo",
		strings.NewReader(`{"orderId": "DENTAL-x", "resultCode": 0}`))
	rec := httptest.NewRecorder()
	h.IPN(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIPNHandlerAcknowledgesSuccess(t *testing.T) {
	stub := &reconcilerStub{}
	h := NewGatewayHandler(stub, nil, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/momo",
		strings.NewReader(`{"orderId": "DENTAL-x", "resultCode": 0}`))
	rec := httptest.NewRecorder()
	h.IPN(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, stub.ipnCalls)
}

func TestIPNHandlerReturns500ForTransientFailure(t *testing.T) {
	stub := &reconcilerStub{ipnErr: assert.AnError}
	h := NewGatewayHandler(stub, nil, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/momo",
		strings.NewReader(`{"orderId": "DENTAL-x", "resultCode": 0}`))
	rec := httptest.NewRecorder()
	h.IPN(rec, req)

	// The provider retries on 5xx, so transient failures must not 2xx.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckoutHandlerReturnsSession(t *testing.T) {
	stub := &reconcilerStub{session: &gateway.CheckoutSession{
		PaymentID: uuid.New(),
		OrderID:   "DENTAL-abc",
		Amount:    300_000,
		PayURL:    "https://pay.example/abc",
	}}
	h := NewGatewayHandler(stub, nil, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/payments/checkout",
		strings.NewReader(`{"appointmentId": "`+uuid.NewString()+`"}`))
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var session gateway.CheckoutSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "DENTAL-abc", session.OrderID)
	assert.Equal(t, "https://pay.example/abc", session.PayURL)
}

func TestPollHandlerRequiresOrderID(t *testing.T) {
	stub := &reconcilerStub{}
	h := NewGatewayHandler(stub, nil, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/payments/poll", strings.NewReader(`{"orderId": ""}`))
	rec := httptest.NewRecorder()
	h.Poll(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.pollOrders)
}

type walletStub struct {
	payErr  error
	balance int64
	txs     []wallet.Transaction
}

func (w *walletStub) InitiateTopUp(_ context.Context, _ uuid.UUID, amount int64) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{PaymentID: uuid.New(), OrderID: "DENTAL-topup", Amount: amount}, nil
}

func (w *walletStub) PayFromWallet(context.Context, uuid.UUID) (*billing.Payment, error) {
	if w.payErr != nil {
		return nil, w.payErr
	}
	return &billing.Payment{ID: uuid.New(), Amount: -300_000, Status: billing.PaymentCompleted}, nil
}

func (w *walletStub) WalletBalance(context.Context, uuid.UUID) (int64, error) {
	return w.balance, nil
}

func (w *walletStub) ListTransactions(context.Context, uuid.UUID, int32) ([]wallet.Transaction, error) {
	return w.txs, nil
}

func TestWalletPayMapsShortFundsTo402(t *testing.T) {
	stub := &walletStub{payErr: wallet.ErrInsufficientBalance}
	h := NewWalletHandler(stub, stub, stub, stub, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/wallet/pay",
		strings.NewReader(`{"appointmentId": "`+uuid.NewString()+`"}`))
	rec := httptest.NewRecorder()
	h.Pay(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestWalletTopUpRejectsNonPositiveAmount(t *testing.T) {
	stub := &walletStub{}
	h := NewWalletHandler(stub, stub, stub, stub, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/wallet/topup",
		strings.NewReader(`{"userId": "`+uuid.NewString()+`", "amount": 0}`))
	rec := httptest.NewRecorder()
	h.TopUp(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletTransactionsSerializesKinds(t *testing.T) {
	paymentID := uuid.New()
	stub := &walletStub{txs: []wallet.Transaction{
		{ID: uuid.New(), Amount: 500_000, Kind: wallet.KindTopup, CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{ID: uuid.New(), Amount: -300_000, Kind: wallet.KindPayment, PaymentID: &paymentID, CreatedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)},
	}}
	h := NewWalletHandler(stub, stub, stub, stub, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/wallet/transactions?user="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	h.Transactions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Transactions []TransactionResponse `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, "topup", resp.Transactions[0].Kind)
	assert.Equal(t, paymentID.String(), resp.Transactions[1].PaymentID)
}

type followUpStub struct {
	rejectErr error
}

func (f *followUpStub) Suggest(_ context.Context, doctorID, patientID, parentID uuid.UUID, notes string) (*followups.Suggestion, error) {
	return &followups.Suggestion{
		ID:                  uuid.New(),
		DoctorID:            doctorID,
		PatientID:           patientID,
		ParentAppointmentID: parentID,
		Notes:               notes,
		Status:              followups.StatusPending,
	}, nil
}

func (f *followUpStub) Schedule(_ context.Context, req followups.ScheduleRequest) (*appointments.Appointment, error) {
	return &appointments.Appointment{
		ID:         uuid.New(),
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Status:     appointments.StatusPending,
		IsFollowUp: true,
	}, nil
}

func (f *followUpStub) Reject(context.Context, uuid.UUID) error { return f.rejectErr }

func TestFollowUpRejectMapsSettledTo409(t *testing.T) {
	h := NewFollowUpsHandler(&followUpStub{rejectErr: followups.ErrSuggestionSettled}, nil, logging.Default())
	router := chi.NewRouter()
	router.Post("/followups/{id}/reject", h.Reject)

	req := httptest.NewRequest(http.MethodPost, "/followups/"+uuid.NewString()+"/reject", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFollowUpSuggestReturnsSuggestion(t *testing.T) {
	h := NewFollowUpsHandler(&followUpStub{}, nil, logging.Default())

	body := `{
		"doctorId": "` + uuid.NewString() + `",
		"patientId": "` + uuid.NewString() + `",
		"parentAppointmentId": "` + uuid.NewString() + `",
		"notes": "check the crown in two weeks"
	}`
	req := httptest.NewRequest(http.MethodPost, "/followups", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Suggest(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp SuggestionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "check the crown in two weeks", resp.Notes)
}

type inboxStub struct {
	items []notify.Notification
	limit int32
}

func (s *inboxStub) ListForUser(_ context.Context, _ uuid.UUID, limit int32) ([]notify.Notification, error) {
	s.limit = limit
	return s.items, nil
}

func TestNotificationsListReturnsInbox(t *testing.T) {
	stub := &inboxStub{items: []notify.Notification{
		{Title: "Payment received", Message: "Your consultation fee was paid", Type: "payment_new", LinkTo: "/appointments"},
	}}
	h := NewNotificationsHandler(stub, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/notifications?user="+uuid.NewString()+"&limit=10", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(10), stub.limit)
	var resp struct {
		Notifications []NotificationResponse `json:"notifications"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "payment_new", resp.Notifications[0].Type)
	assert.Equal(t, "/appointments", resp.Notifications[0].LinkTo)
}

func TestNotificationsListRequiresUser(t *testing.T) {
	h := NewNotificationsHandler(&inboxStub{}, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
