package redis

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const (
	defaultLockTTL       = 10 * time.Second
	defaultLockWait      = 3 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never releases someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serialises read-evaluate-write sequences on one order across processes.
type Redis struct {
	Client        *redis.Client
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
	Logger        *logger.Logger
}

func NewRedis(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Redis{
		Client:        client,
		TTL:           ttl,
		Wait:          wait,
		RetryInterval: defaultRetryInterval,
		Logger:        log,
	}
}

func lockKey(orderID string) string {
	return "order_lock:" + orderID
}

// TryLockOrder makes a single attempt and reports whether the lease was taken.
func (r *Redis) TryLockOrder(ctx context.Context, orderID, token string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, lockKey(orderID), token, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: lock order %s: %v", models.ErrDependencyUnavailable, orderID, err)
	}
	return ok, nil
}

// UnlockOrder releases the lease if token still owns it.
func (r *Redis) UnlockOrder(ctx context.Context, orderID, token string) error {
	_, err := releaseScript.Run(ctx, r.Client, []string{lockKey(orderID)}, token).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: unlock order %s: %v", models.ErrDependencyUnavailable, orderID, err)
	}
	return nil
}

// LockOrder blocks until the order lease is acquired, r.Wait elapses or ctx ends.
// Giving up on a held lease yields ErrConflict so callers can retry later.
func (r *Redis) LockOrder(ctx context.Context, orderID string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.Wait)
	interval := r.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	for {
		ok, err := r.TryLockOrder(ctx, orderID, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { r.release(orderID, token) }, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: order %s is locked by another request", models.ErrConflict, orderID)
		}

		jitter := time.Duration(rand.Int63n(int64(interval)))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock order %s: %w", orderID, ctx.Err())
		case <-time.After(interval + jitter):
		}
	}
}

func (r *Redis) release(orderID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.UnlockOrder(ctx, orderID, token); err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release lock for order %s: %v", orderID, err))
	}
}
