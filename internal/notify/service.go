package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

// Notification is a message delivered to a single user's inbox.
type Notification struct {
	UserID  uuid.UUID
	Title   string
	Message string
	Type    string
	Data    map[string]any
	LinkTo  string
}

// Dispatcher delivers notifications. Delivery is fire-and-forget: a failed
// send must never block or roll back the operation that triggered it.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification)
}

// Store persists notifications so clients can pull missed ones.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore initializes a notification store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &Store{pool: pool}
}

// Insert writes one notification row.
func (s *Store) Insert(ctx context.Context, n Notification) error {
	var data []byte
	if n.Data != nil {
		encoded, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("notify: marshal data: %w", err)
		}
		data = encoded
	}
	query := `
		INSERT INTO notifications (id, user_id, title, message, type, data, link_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.pool.Exec(ctx, query, uuid.New(), n.UserID, n.Title, n.Message, n.Type, data, n.LinkTo); err != nil {
		return fmt.Errorf("notify: insert failed: %w", err)
	}
	return nil
}

// ListForUser returns the most recent notifications for a user.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID, limit int32) ([]Notification, error) {
	query := `
		SELECT user_id, title, message, type, COALESCE(data, 'null'::jsonb), COALESCE(link_to, '')
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list failed: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var data []byte
		if err := rows.Scan(&n.UserID, &n.Title, &n.Message, &n.Type, &data, &n.LinkTo); err != nil {
			return nil, fmt.Errorf("notify: scan failed: %w", err)
		}
		if len(data) > 0 && string(data) != "null" {
			_ = json.Unmarshal(data, &n.Data)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Service writes notifications to the inbox store and swallows failures,
// logging them instead of propagating.
type Service struct {
	store   *Store
	logger  *logging.Logger
	timeout time.Duration
}

// NewService creates a notification dispatcher.
func NewService(store *Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, timeout: 5 * time.Second}
}

// Notify persists the notification; errors are logged only.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.store.Insert(ctx, n); err != nil {
		s.logger.Error("notification insert failed", "error", err, "user_id", n.UserID, "type", n.Type)
	}
}
