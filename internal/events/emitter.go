package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

// Emitter queues realtime events best-effort. Ledger and lifecycle writes are
// the source of truth; a failed emit is logged and dropped, never propagated.
type Emitter struct {
	store  *OutboxStore
	logger *logging.Logger
}

func NewEmitter(store *OutboxStore, logger *logging.Logger) *Emitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Emitter{store: store, logger: logger}
}

// Emit enqueues one event for the given user.
func (e *Emitter) Emit(ctx context.Context, userID uuid.UUID, eventType string, payload any) {
	if e == nil || e.store == nil {
		return
	}
	if _, err := e.store.Insert(context.WithoutCancel(ctx), userID, eventType, payload); err != nil {
		e.logger.Error("event emit failed", "error", err, "user_id", userID, "type", eventType)
	}
}
