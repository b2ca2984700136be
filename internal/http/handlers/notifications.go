package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/notify"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

type inboxReader interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit int32) ([]notify.Notification, error)
}

// NotificationsHandler serves the pull side of the notification inbox for
// clients that were offline when the push went out.
type NotificationsHandler struct {
	inbox  inboxReader
	logger *logging.Logger
}

// NewNotificationsHandler creates the handler.
func NewNotificationsHandler(inbox inboxReader, logger *logging.Logger) *NotificationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &NotificationsHandler{inbox: inbox, logger: logger}
}

// NotificationResponse is the API shape of an inbox entry.
type NotificationResponse struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data,omitempty"`
	LinkTo  string         `json:"linkTo,omitempty"`
}

// List returns a user's most recent notifications.
// GET /api/notifications?user=<uuid>&limit=<n>
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user parameter")
		return
	}

	items, err := h.inbox.ListForUser(r.Context(), userID, listLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, NotificationResponse{
			Title:   n.Title,
			Message: n.Message,
			Type:    n.Type,
			Data:    n.Data,
			LinkTo:  n.LinkTo,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}
