package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
	// ErrLockUnavailable wraps transport failures talking to Redis; fn was not run.
	ErrLockUnavailable = errors.New("slot lock unavailable")
)

// Locker guards the check-and-create critical section of one doctor slot.
type Locker interface {
	WithSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker that uses a per (doctor, instant) Redis key
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

// SlotKey is the lock key of a doctor's slot. The instant is normalised to UTC
// so equal instants in different zones share a key.
func SlotKey(doctorID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("lock:slot:%s:%d", doctorID.String(), at.UTC().Unix())
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	key := SlotKey(doctorID, at)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
