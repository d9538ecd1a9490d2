// Package distlock provides mutual exclusion across worker processes. The
// sweeper takes one lock per campaign per sweep so two workers never plan
// the same campaign at once.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Extend when the lock expired or was taken over.
var ErrNotHeld = errors.New("distlock: lock not held")

// DistLock is the interface for distributed locking. A lock value belongs
// to one holder; take a new one per critical section.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
	// Extend renews the hold for ttl, or returns ErrNotHeld.
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker hands out locks on one backend. Redis is preferred when
// configured; otherwise locks are PostgreSQL advisory locks.
type Locker struct {
	redis  *redis.Client
	db     *sql.DB
	prefix string
}

// NewLocker creates a lock factory. Keys are namespaced with prefix.
func NewLocker(redisClient *redis.Client, db *sql.DB, prefix string) *Locker {
	return &Locker{redis: redisClient, db: db, prefix: prefix}
}

// For returns a fresh lock for key.
func (l *Locker) For(key string, ttl time.Duration) DistLock {
	return NewLock(l.redis, l.db, l.prefix+key, ttl)
}

// NewLock creates a distributed lock using the best available backend.
// With neither Redis nor a database the lock is process-local.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	}
	return newLocalLock(key)
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks are session-scoped, so the lock pins one pooled connection from
// Acquire until Release; a dropped connection releases the lock.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a lock ID derived from
// key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Extend only checks the hold; advisory locks have no TTL and last as long
// as the pinned connection.
func (l *PGAdvisoryLock) Extend(ctx context.Context, _ time.Duration) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	if err := l.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotHeld, err)
	}
	return nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

var localLocks sync.Map

// localLock backs single-process dev mode.
type localLock struct {
	key  string
	held bool
}

func newLocalLock(key string) *localLock { return &localLock{key: key} }

func (l *localLock) Acquire(context.Context) (bool, error) {
	_, taken := localLocks.LoadOrStore(l.key, struct{}{})
	l.held = !taken
	return l.held, nil
}

func (l *localLock) Extend(context.Context, time.Duration) error {
	if !l.held {
		return ErrNotHeld
	}
	return nil
}

func (l *localLock) Release(context.Context) error {
	if l.held {
		localLocks.Delete(l.key)
		l.held = false
	}
	return nil
}
