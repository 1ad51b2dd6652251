// Package distlock guards jobs that must run on exactly one host at a time,
// such as the daily sequence run.
package distlock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a distributed lock using the best available backend.
// If redisClient is non-nil, uses Redis (cross-host). Otherwise falls back to
// a process-local lock, which only protects a single instance.
func NewLock(redisClient *redis.Client, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewLocalLock(key, ttl)
}

// localHeld tracks process-local locks by key.
var (
	localMu   sync.Mutex
	localHeld = make(map[string]localEntry)
)

type localEntry struct {
	owner     *LocalLock
	expiresAt time.Time
}

// LocalLock implements DistLock within one process. Held locks expire after
// ttl so a crashed holder cannot wedge the key.
type LocalLock struct {
	key string
	ttl time.Duration
	now func() time.Time
}

// NewLocalLock creates a process-local lock.
func NewLocalLock(key string, ttl time.Duration) *LocalLock {
	return &LocalLock{key: key, ttl: ttl, now: time.Now}
}

// Acquire takes the lock unless another owner holds an unexpired entry.
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	localMu.Lock()
	defer localMu.Unlock()

	now := l.now()
	if e, ok := localHeld[l.key]; ok && e.owner != l && now.Before(e.expiresAt) {
		return false, nil
	}
	localHeld[l.key] = localEntry{owner: l, expiresAt: now.Add(l.ttl)}
	return true, nil
}

// Release drops the lock if this instance owns it.
func (l *LocalLock) Release(_ context.Context) error {
	localMu.Lock()
	defer localMu.Unlock()

	if e, ok := localHeld[l.key]; ok && e.owner == l {
		delete(localHeld, l.key)
	}
	return nil
}
