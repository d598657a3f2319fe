// Package guard is the safety gate in front of every mutating run. Its
// checks are read-only and must pass before anything writes, including the
// backup, so a doomed run costs no I/O.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWrongDatabase means the connection reports a database name other
	// than the one the migration was written for.
	ErrWrongDatabase = errors.New("connected to the wrong database")

	// ErrTargetExists means at least one planned target table name is
	// already present.
	ErrTargetExists = errors.New("migration target already exists")
)

// Inspector is the read-only view the guard needs. *inspect.Inspector
// satisfies it; tests use a fake.
type Inspector interface {
	CurrentDatabase(ctx context.Context) (string, error)
	TableExists(ctx context.Context, name string) (bool, error)
}

// Guard fails fast on unsafe runs. It has no side effects.
type Guard struct {
	inspector Inspector
}

// New creates a Guard over the given inspector.
func New(inspector Inspector) *Guard {
	return &Guard{inspector: inspector}
}

// Check verifies the connected database matches the expected identifier and
// that none of the planned target tables already exist. The live name comes
// from the connection itself, never from config, so the two cannot drift.
func (g *Guard) Check(ctx context.Context, expectedDB string, targets []string) error {
	current, err := g.inspector.CurrentDatabase(ctx)
	if err != nil {
		return fmt.Errorf("reading live database name: %w", err)
	}
	if current != expectedDB {
		return fmt.Errorf("%w: connected to %q, migration expects %q", ErrWrongDatabase, current, expectedDB)
	}

	var conflicts []string
	for _, target := range targets {
		exists, err := g.inspector.TableExists(ctx, target)
		if err != nil {
			return fmt.Errorf("checking target %s: %w", target, err)
		}
		if exists {
			conflicts = append(conflicts, target)
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", ErrTargetExists, strings.Join(conflicts, ", "))
	}

	return nil
}
