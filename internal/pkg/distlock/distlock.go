// Package distlock provides per-key distributed leases so that only one
// worker at a time processes a given message. Redis is the preferred
// backend; PostgreSQL advisory locks serve as a fallback when no Redis
// client is configured.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single-use distributed lease. An instance is bound to
// one key and one owner; share keys, not instances, across goroutines.
type DistLock interface {
	// Acquire tries to take the lease. Returns false if another owner holds it.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lease if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the best available backend for the given key.
// With a Redis client the lease expires after ttl even if the holder
// crashes. The advisory-lock fallback is session-scoped instead: the
// lock drops when the holder's DB connection does.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements DistLock over pg_try_advisory_lock /
// pg_advisory_unlock. Lock IDs are derived from the key by FNV-1a, so
// every process maps the same message ID to the same advisory lock.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock creates an advisory lock for the given key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire attempts the lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release unlocks the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
