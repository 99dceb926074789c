package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "htmlpdf:lock:"

// releaseIfOwner deletes the lock only while it still carries our token, so a
// lease that expired and was taken over is never released by the old holder.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var (
	ErrLockUnavailable = errors.New("lock client not configured")
	ErrInvalidLease    = errors.New("lock name and ttl are required")
)

// Locker hands out short redis leases. The reconcile worker uses one so a
// single replica replays the outbox at a time.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock returns the lease token and whether it was acquired.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnavailable
	}
	if name == "" || ttl <= 0 {
		return "", false, ErrInvalidLease
	}

	token := uuid.NewString()
	err := l.client.SetArgs(ctx, lockKeyPrefix+name, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (l *Locker) Release(ctx context.Context, name, token string) error {
	if l == nil || l.client == nil || name == "" || token == "" {
		return nil
	}
	return releaseIfOwner.Run(ctx, l.client, []string{lockKeyPrefix + name}, token).Err()
}
