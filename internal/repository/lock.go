package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Locker serializes read-modify-write cycles on one user's documents.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker serializes writers inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates a new LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// Lock waits for key to be free or ctx to end.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DistributedLock is the subset of the Redis client used for cross-process
// locking.
type DistributedLock interface {
	Lock(ctx context.Context, key, token string, ttl time.Duration) error
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker serializes writers across processes sharing one data root.
type RedisLocker struct {
	client DistributedLock
	ttl    time.Duration
	retry  time.Duration
	isHeld func(error) bool
	logger zerolog.Logger
}

// NewRedisLocker creates a locker on top of a DistributedLock. isHeld
// recognizes the client's "already locked" error.
func NewRedisLocker(client DistributedLock, isHeld func(error) bool, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    10 * time.Second,
		retry:  50 * time.Millisecond,
		isHeld: isHeld,
		logger: logger,
	}
}

// Lock polls until the lock is taken or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "phonoecho:lock:" + key
	token := uuid.NewString()

	for {
		err := l.client.Lock(ctx, lockKey, token, l.ttl)
		if err == nil {
			break
		}
		if !l.isHeld(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Unlock(ctx, lockKey, token); err != nil {
			l.logger.Warn().Err(err).Str("key", lockKey).Msg("Failed to release lock")
		}
	}, nil
}
