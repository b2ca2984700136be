package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/billing"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

// TimeoutScanner reconciles gateway payments that neither webhook nor poll
// settled within the payment timeout. Instead of per-payment timers it scans
// on a fixed tick, polls the gateway once per expired payment and then fails
// it, so a stale timer can never cancel an already-successful appointment and
// running several instances is safe.
type TimeoutScanner struct {
	reconciler *Reconciler
	timeout    time.Duration
	interval   time.Duration
	batchSize  int32
	logger     *logging.Logger
	now        func() time.Time
}

// NewTimeoutScanner constructs the scanner.
func NewTimeoutScanner(reconciler *Reconciler, timeout time.Duration, logger *logging.Logger) *TimeoutScanner {
	if reconciler == nil {
		panic("gateway: reconciler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TimeoutScanner{
		reconciler: reconciler,
		timeout:    timeout,
		interval:   time.Minute,
		batchSize:  100,
		logger:     logger,
		now:        time.Now,
	}
}

// WithInterval overrides the tick interval.
func (s *TimeoutScanner) WithInterval(interval time.Duration) *TimeoutScanner {
	s.interval = interval
	return s
}

// WithBatchSize overrides how many expired payments one tick handles.
func (s *TimeoutScanner) WithBatchSize(size int32) *TimeoutScanner {
	s.batchSize = size
	return s
}

// Start blocks, scanning on every tick until the context is cancelled.
func (s *TimeoutScanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("payment timeout scanner started", "timeout", s.timeout, "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("payment timeout scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan handles one batch of expired payments. Per-payment errors are logged
// and do not stop the batch.
func (s *TimeoutScanner) Scan(ctx context.Context) {
	cutoff := s.now().Add(-s.timeout)
	expired, err := s.reconciler.payments.ListExpiredGatewayPayments(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("expired payment listing failed", "error", err)
		return
	}
	for i := range expired {
		if err := s.resolve(ctx, &expired[i]); err != nil {
			s.logger.Error("payment timeout resolution failed", "error", err, "payment_id", expired[i].ID)
		}
	}
}

// resolve gives the payment one last chance via a gateway query, then fails
// it and cancels the held slot.
func (s *TimeoutScanner) resolve(ctx context.Context, payment *billing.Payment) error {
	r := s.reconciler
	if payment.OrderID != nil {
		resp, err := r.client.QueryTransaction(ctx, *payment.OrderID, payment.ID.String())
		if err == nil && resp.ResultCode == 0 {
			s.logger.Info("late gateway success caught by timeout scan", "payment_id", payment.ID)
			return r.completePayment(ctx, payment, queryTransID(resp))
		}
		if err != nil {
			s.logger.Warn("gateway query during timeout scan failed", "error", err, "payment_id", payment.ID)
		}
	}

	// Same settlement as a gateway failure callback: the appointment is
	// only cancelled while it still awaits this payment, so a doctor's
	// manual confirmation is never undone by a stale checkout.
	return r.failPayment(ctx, payment, "payment timeout")
}

func queryTransID(resp *QueryResponse) string {
	if resp.TransID == 0 {
		return ""
	}
	return strconv.FormatInt(resp.TransID, 10)
}
