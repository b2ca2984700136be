package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/observability/metrics"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type appointmentScheduler interface {
	Book(ctx context.Context, req appointments.BookRequest) (*appointments.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Start(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, by appointments.CancelActor, reason string) (*appointments.Appointment, error)
}

type appointmentLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit int32) ([]appointments.Appointment, error)
}

// AppointmentsHandler exposes the booking and lifecycle API.
type AppointmentsHandler struct {
	scheduler appointmentScheduler
	lister    appointmentLister
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

// NewAppointmentsHandler creates the handler.
func NewAppointmentsHandler(scheduler appointmentScheduler, lister appointmentLister, m *metrics.SchedulingMetrics, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{scheduler: scheduler, lister: lister, metrics: m, logger: logger}
}

// AppointmentResponse is the API shape of an appointment.
type AppointmentResponse struct {
	ID              string `json:"id"`
	DoctorID        string `json:"doctorId"`
	PatientID       string `json:"patientId"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	AppointmentType string `json:"appointmentType"`
	ConsultationFee int64  `json:"consultationFee"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"paymentStatus"`
	IsFollowUp      bool   `json:"isFollowUp"`
	CancelledBy     string `json:"cancelledBy,omitempty"`
	CancelReason    string `json:"cancellationReason,omitempty"`
}

func toAppointmentResponse(a *appointments.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID.String(),
		DoctorID:        a.DoctorID.String(),
		PatientID:       a.PatientID.String(),
		StartTime:       a.StartTime.Format(time.RFC3339),
		EndTime:         a.EndTime.Format(time.RFC3339),
		AppointmentType: string(a.AppointmentType),
		ConsultationFee: a.ConsultationFee,
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		IsFollowUp:      a.IsFollowUp,
	}
	if a.CancelledBy != nil {
		resp.CancelledBy = string(*a.CancelledBy)
	}
	if a.CancellationReason != nil {
		resp.CancelReason = *a.CancellationReason
	}
	return resp
}

type bookRequest struct {
	DoctorID        string `json:"doctorId"`
	PatientID       string `json:"patientId"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	AppointmentType string `json:"appointmentType"`
	ConsultationFee int64  `json:"consultationFee"`
	VoucherCode     string `json:"voucherCode"`
}

// Book reserves a slot.
// POST /api/appointments
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid doctorId")
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patientId")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startTime")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endTime")
		return
	}

	appt, err := h.scheduler.Book(r.Context(), appointments.BookRequest{
		DoctorID:        doctorID,
		PatientID:       patientID,
		StartTime:       start,
		EndTime:         end,
		AppointmentType: appointments.Type(req.AppointmentType),
		ConsultationFee: req.ConsultationFee,
		VoucherCode:     req.VoucherCode,
	})
	if err != nil {
		h.metrics.ObserveBooking("rejected")
		writeServiceError(w, err)
		return
	}
	h.metrics.ObserveBooking("created")
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// Confirm is the doctor's acceptance.
// POST /api/appointments/{id}/confirm
func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	appt, err := h.scheduler.Confirm(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Start moves a confirmed appointment into the visit.
// POST /staff/appointments/{id}/start
func (h *AppointmentsHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	if err := h.scheduler.Start(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete finishes the visit.
// POST /staff/appointments/{id}/complete
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	appt, err := h.scheduler.Complete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	CancelledBy string `json:"cancelledBy"`
	Reason      string `json:"reason"`
}

// Cancel cancels on behalf of the patient or the doctor.
// POST /api/appointments/{id}/cancel
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := appointments.CancelActor(req.CancelledBy)
	if actor != appointments.CancelledByPatient && actor != appointments.CancelledByDoctor {
		writeError(w, http.StatusBadRequest, "cancelledBy must be patient or doctor")
		return
	}

	appt, err := h.scheduler.Cancel(r.Context(), id, actor, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.ObserveCancellation(string(actor), appt.CancellationFeeCharged)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// List is the pull-resync API: clients that missed realtime events fetch
// current state here.
// GET /api/appointments?user=<uuid>&limit=<n>
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user parameter")
		return
	}
	appts, err := h.lister.ListForUser(r.Context(), userID, listLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return uuid.Nil, false
	}
	return id, true
}
