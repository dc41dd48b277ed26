package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-appointment-assistant/internal/observability/metrics"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// SlotKey identifies one bookable slot of one dentist.
type SlotKey struct {
	DentistID int64
	Date      string
	Time      string
}

func (k SlotKey) String() string {
	return fmt.Sprintf("lock:slot:%d:%s:%s", k.DentistID, k.Date, k.Time)
}

// Locker is used by the appointment service to guard critical sections per slot
type Locker interface {
	WithSlotLock(ctx context.Context, slot SlotKey, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics
}

// NewRedisSlotLocker creates a locker that uses a per slot Redis key
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger, m *metrics.SchedulingMetrics) Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &redisSlotLocker{
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slot SlotKey, fn func(ctx context.Context) error) error {
	key := slot.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("acquire slot lock: %w", ctxErr)
		}
		// Redis down: the database constraints still hold the slot.
		l.logger.Warn("slot lock unavailable, continuing without it", "key", key, "error", err)
		l.metrics.ObserveLockBypass()
		return fn(ctx)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	// Released with a fresh context so a cancelled request still frees the key.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.release(releaseCtx, key, token); err != nil {
			l.logger.Warn("slot lock release failed", "key", key, "error", err)
		}
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

// NoopLocker runs fn directly. Used when Redis is not configured; the database
// constraints still hold without it.
type NoopLocker struct{}

func (NoopLocker) WithSlotLock(ctx context.Context, _ SlotKey, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
