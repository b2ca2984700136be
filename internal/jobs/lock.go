package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanLock is a best-effort distributed lock around one scan window. The
// persisted markers on the rows being scanned remain the authoritative dedup;
// the lock only keeps concurrent scheduler instances from doing the same work
// twice.
type ScanLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewScanLock creates a lock under the given key.
func NewScanLock(client *redis.Client, key string, ttl time.Duration) *ScanLock {
	return &ScanLock{client: client, key: key, ttl: ttl}
}

// Acquire tries to take the lock. A false return means another instance holds
// it and this tick should be skipped.
func (l *ScanLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("jobs: acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release drops the lock early. The TTL covers a crashed holder.
func (l *ScanLock) Release(ctx context.Context) {
	l.client.Del(ctx, l.key)
}
