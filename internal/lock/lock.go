// Package lock provides mutual exclusion between migration runs using
// PostgreSQL advisory locks, so two operators cannot race a destructive
// rename. The lock is session-scoped: callers must hand in a
// single-connection querier and keep it open until release.
package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrLockHeld means another run currently holds the migration lock.
var ErrLockHeld = errors.New("another migration run holds the lock")

// Querier is the query surface the lock needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AdvisoryLock keys pg_try_advisory_lock by a stable hash of a name.
type AdvisoryLock struct {
	db Querier
}

// New creates an AdvisoryLock over the given connection.
func New(db Querier) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

// Acquire attempts to take the named lock without blocking. It returns a
// release function, or ErrLockHeld when another session has it.
func (l *AdvisoryLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashKey(key)

	var acquired bool
	if err := l.db.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		return nil, fmt.Errorf("pg_try_advisory_lock(%d): %w", lockID, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w (key %q)", ErrLockHeld, key)
	}

	release := func() {
		var unlocked bool
		_ = l.db.QueryRow(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID).Scan(&unlocked)
	}
	return release, nil
}

// hashKey produces a stable int64 from a lock name for pg_try_advisory_lock.
// Uses FNV-1a.
func hashKey(key string) int64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211 // FNV prime
	}
	return int64(h & 0x7FFFFFFFFFFFFFFF)
}
