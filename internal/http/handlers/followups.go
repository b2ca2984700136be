package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/appointments"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/followups"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type followUpService interface {
	Suggest(ctx context.Context, doctorID, patientID, parentAppointmentID uuid.UUID, notes string) (*followups.Suggestion, error)
	Schedule(ctx context.Context, req followups.ScheduleRequest) (*appointments.Appointment, error)
	Reject(ctx context.Context, id uuid.UUID) error
}

type suggestionLister interface {
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit int32) ([]followups.Suggestion, error)
}

// FollowUpsHandler serves the follow-up suggestion lifecycle.
type FollowUpsHandler struct {
	service followUpService
	lister  suggestionLister
	logger  *logging.Logger
}

// NewFollowUpsHandler creates the handler.
func NewFollowUpsHandler(service followUpService, lister suggestionLister, logger *logging.Logger) *FollowUpsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FollowUpsHandler{service: service, lister: lister, logger: logger}
}

// SuggestionResponse is the API shape of a follow-up suggestion.
type SuggestionResponse struct {
	ID                     string `json:"id"`
	DoctorID               string `json:"doctorId"`
	PatientID              string `json:"patientId"`
	ParentAppointmentID    string `json:"parentAppointmentId"`
	Notes                  string `json:"notes,omitempty"`
	Status                 string `json:"status"`
	ScheduledAppointmentID string `json:"scheduledAppointmentId,omitempty"`
	CreatedAt              string `json:"createdAt"`
}

func toSuggestionResponse(s *followups.Suggestion) SuggestionResponse {
	resp := SuggestionResponse{
		ID:                  s.ID.String(),
		DoctorID:            s.DoctorID.String(),
		PatientID:           s.PatientID.String(),
		ParentAppointmentID: s.ParentAppointmentID.String(),
		Notes:               s.Notes,
		Status:              string(s.Status),
		CreatedAt:           s.CreatedAt.Format(time.RFC3339),
	}
	if s.ScheduledAppointmentID != nil {
		resp.ScheduledAppointmentID = s.ScheduledAppointmentID.String()
	}
	return resp
}

type suggestRequest struct {
	DoctorID            string `json:"doctorId"`
	PatientID           string `json:"patientId"`
	ParentAppointmentID string `json:"parentAppointmentId"`
	Notes               string `json:"notes"`
}

// Suggest records a doctor's follow-up recommendation.
// POST /staff/followups
func (h *FollowUpsHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
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
	parentID, err := uuid.Parse(req.ParentAppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid parentAppointmentId")
		return
	}

	suggestion, err := h.service.Suggest(r.Context(), doctorID, patientID, parentID, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSuggestionResponse(suggestion))
}

type scheduleRequest struct {
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	ConsultationFee int64  `json:"consultationFee"`
	VoucherCode     string `json:"voucherCode"`
}

// Schedule books the follow-up appointment for a pending suggestion.
// POST /api/followups/{id}/schedule
func (h *FollowUpsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suggestion id")
		return
	}
	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
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

	appt, err := h.service.Schedule(r.Context(), followups.ScheduleRequest{
		SuggestionID:    id,
		StartTime:       start,
		EndTime:         end,
		ConsultationFee: req.ConsultationFee,
		VoucherCode:     req.VoucherCode,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// Reject settles a pending suggestion as declined.
// POST /api/followups/{id}/reject
func (h *FollowUpsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suggestion id")
		return
	}
	if err := h.service.Reject(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns a patient's suggestions, newest first.
// GET /api/followups?patient=<uuid>&limit=<n>
func (h *FollowUpsHandler) List(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(r.URL.Query().Get("patient"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient parameter")
		return
	}
	suggestions, err := h.lister.ListForPatient(r.Context(), patientID, listLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]SuggestionResponse, 0, len(suggestions))
	for i := range suggestions {
		out = append(out, toSuggestionResponse(&suggestions[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": out})
}
