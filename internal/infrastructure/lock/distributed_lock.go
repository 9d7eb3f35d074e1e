package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis locks
// ============================================================================
//
// Two overlapping webhook invocations may try to delete or edit the same transaction_id.
// Both would read the same live row and both would append a tombstone. The per-transaction
// lock serializes those ledger-mutating steps for one transaction_id.
//
// Lock:    SET key owner NX EX ttl
// Unlock:  Lua script, delete only when the stored owner matches
//
// ============================================================================

var (
	ErrLockFailed = errors.New("failed to acquire lock")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock is a single SET NX lock.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes one non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock until it succeeds, ctx ends or maxRetries is spent.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if this holder still owns it. A lock that expired and was taken
// by someone else is left alone.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// NewTransactionLock locks one transaction_id.
func NewTransactionLock(client *redis.Client, transactionID, owner string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("ledger:lock:txn:%s", transactionID)
	return NewDistributedLock(client, key, owner, ttl)
}

// ============================================================================
// Locker
// ============================================================================

// RedisLocker hands out transaction locks to the coordinator.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    30,
	}
}

// Acquire blocks until the transaction lock is held and returns its release func.
func (r *RedisLocker) Acquire(ctx context.Context, transactionID string) (func(), error) {
	l := NewTransactionLock(r.client, transactionID, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("lock transaction %s: %w", transactionID, err)
	}
	return func() {
		// release even if the caller's ctx is already done
		_ = l.Unlock(context.Background())
	}, nil
}

// ============================================================================
// Update dedupe
// ============================================================================

// UpdateGuard remembers processed webhook update ids so redelivered updates are dropped.
type UpdateGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUpdateGuard(client *redis.Client, ttl time.Duration) *UpdateGuard {
	return &UpdateGuard{client: client, ttl: ttl}
}

// MarkProcessed records updateID and reports whether it was seen for the first time.
func (g *UpdateGuard) MarkProcessed(ctx context.Context, updateID int) (bool, error) {
	key := fmt.Sprintf("bot:update:%d", updateID)
	return g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}
