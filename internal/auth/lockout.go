package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/databender/leadengine/internal/pkg/logger"
)

// attemptWindow is how long failed attempts are remembered without a lockout.
const attemptWindow = time.Hour

// LockStatus describes one identifier's lockout state.
type LockStatus struct {
	Locked    bool
	Attempts  int
	Remaining time.Duration
}

// Lockout counts failed logins per identifier (the client IP) and locks the
// identifier out once maxAttempts is reached. Counters live in Redis when a
// client is configured; a Redis error falls back to process memory so a
// Redis outage never locks the admin out.
type Lockout struct {
	redis       *redis.Client
	maxAttempts int
	duration    time.Duration
	now         func() time.Time

	mu     sync.Mutex
	memory map[string]*lockRecord
}

type lockRecord struct {
	attempts    int
	lastAttempt time.Time
	lockedUntil time.Time
}

// NewLockout creates a lockout tracker. A nil client keeps state in memory.
func NewLockout(client *redis.Client, maxAttempts int, duration time.Duration, clock func() time.Time) *Lockout {
	if clock == nil {
		clock = time.Now
	}
	return &Lockout{
		redis:       client,
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         clock,
		memory:      make(map[string]*lockRecord),
	}
}

func attemptsKey(id string) string { return "auth:lockout:attempts:" + id }
func lockedKey(id string) string   { return "auth:lockout:locked:" + id }

// Status reports whether id is locked out.
func (l *Lockout) Status(ctx context.Context, id string) LockStatus {
	if l.redis != nil {
		st, err := l.statusRedis(ctx, id)
		if err == nil {
			return st
		}
		logger.Warn("lockout redis read failed, using memory", "error", err.Error())
	}
	return l.statusMemory(id)
}

// RecordFailure counts a failed attempt and returns the resulting status.
func (l *Lockout) RecordFailure(ctx context.Context, id string) LockStatus {
	if l.redis != nil {
		st, err := l.failRedis(ctx, id)
		if err == nil {
			return st
		}
		logger.Warn("lockout redis write failed, using memory", "error", err.Error())
	}
	return l.failMemory(id)
}

// Clear forgets id's failed attempts after a successful login.
func (l *Lockout) Clear(ctx context.Context, id string) {
	if l.redis != nil {
		if err := l.redis.Del(ctx, attemptsKey(id), lockedKey(id)).Err(); err != nil {
			logger.Warn("lockout redis clear failed", "error", err.Error())
		}
	}
	l.mu.Lock()
	delete(l.memory, id)
	l.mu.Unlock()
}

func (l *Lockout) statusRedis(ctx context.Context, id string) (LockStatus, error) {
	pipe := l.redis.Pipeline()
	ttl := pipe.PTTL(ctx, lockedKey(id))
	attempts := pipe.Get(ctx, attemptsKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return LockStatus{}, fmt.Errorf("read lockout: %w", err)
	}
	st := LockStatus{}
	if n, err := attempts.Int(); err == nil {
		st.Attempts = n
	}
	if d := ttl.Val(); d > 0 {
		st.Locked = true
		st.Remaining = d
	}
	return st, nil
}

func (l *Lockout) failRedis(ctx context.Context, id string) (LockStatus, error) {
	n, err := l.redis.Incr(ctx, attemptsKey(id)).Result()
	if err != nil {
		return LockStatus{}, fmt.Errorf("incr attempts: %w", err)
	}
	if n == 1 {
		if err := l.redis.Expire(ctx, attemptsKey(id), attemptWindow).Err(); err != nil {
			return LockStatus{}, fmt.Errorf("expire attempts: %w", err)
		}
	}
	st := LockStatus{Attempts: int(n)}
	if int(n) >= l.maxAttempts {
		pipe := l.redis.TxPipeline()
		pipe.Set(ctx, lockedKey(id), "1", l.duration)
		pipe.Del(ctx, attemptsKey(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return LockStatus{}, fmt.Errorf("set lock: %w", err)
		}
		st.Locked = true
		st.Remaining = l.duration
	}
	return st, nil
}

func (l *Lockout) statusMemory(id string) LockStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.record(id)
	if rec == nil {
		return LockStatus{}
	}
	st := LockStatus{Attempts: rec.attempts}
	if now := l.now(); rec.lockedUntil.After(now) {
		st.Locked = true
		st.Remaining = rec.lockedUntil.Sub(now)
	}
	return st
}

func (l *Lockout) failMemory(id string) LockStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	rec := l.record(id)
	if rec == nil {
		rec = &lockRecord{}
		l.memory[id] = rec
	}
	rec.attempts++
	rec.lastAttempt = now

	st := LockStatus{Attempts: rec.attempts}
	if rec.attempts >= l.maxAttempts {
		rec.lockedUntil = now.Add(l.duration)
		st.Locked = true
		st.Remaining = l.duration
	}
	return st
}

// record returns id's entry, dropping it once its lock has expired or, when
// never locked, once the attempt window has passed. Callers hold l.mu.
func (l *Lockout) record(id string) *lockRecord {
	rec, ok := l.memory[id]
	if !ok {
		return nil
	}
	now := l.now()
	expiredLock := !rec.lockedUntil.IsZero() && !rec.lockedUntil.After(now)
	stale := rec.lockedUntil.IsZero() && now.Sub(rec.lastAttempt) >= attemptWindow
	if expiredLock || stale {
		delete(l.memory, id)
		return nil
	}
	return rec
}
