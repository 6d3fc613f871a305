package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PeriodLockKey builds redis keys for the period-close critical section.
func PeriodLockKey(companyID int64, year, month int) string {
	return fmt.Sprintf("ledger:period:%d:%04d-%02d:lock", companyID, year, month)
}

// Locker provides best-effort mutual exclusion on top of redis SET NX.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire attempts to take the named lock for ttl. It returns false when the
// lock is already held by someone else.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("shared: locker not initialised")
	}
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the named lock. Releasing a lock that expired is not an error.
func (l *Locker) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return errors.New("shared: locker not initialised")
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("shared: release lock %s: %w", key, err)
	}
	return nil
}
