// Package store is the contract between the battle core and durable
// storage: versioned reads and conditional writes of whole sessions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrVersionConflict = errors.New("version conflict")
	// ErrStaleSession is what callers see once a write has lost to a
	// concurrent one: reload and try again.
	ErrStaleSession = errors.New("stale session")
)

const DefaultRetries = 3

// Sessions stores battles. Session.Version is the optimistic lock: a write
// only lands when the stored version still equals expected.
type Sessions interface {
	Create(ctx context.Context, s engine.Session) error
	Get(ctx context.Context, id string) (engine.Session, error)
	PutIfVersion(ctx context.Context, s engine.Session, expected int64) error
	// ListExpired returns non-terminal sessions whose vote or turn deadline
	// falls at or before the given time.
	ListExpired(ctx context.Context, before time.Time) ([]string, error)
}

// MutateFunc computes the next session from the current one. No events
// means nothing to write.
type MutateFunc func(current engine.Session) ([]engine.Event, engine.Session, error)

// Mutate is the read, compute, conditional-write loop every writer goes
// through. A version conflict reloads and recomputes, up to retries extra
// attempts, then fails with ErrStaleSession. Errors from fn are returned
// as-is with the session fn was given.
func Mutate(ctx context.Context, sessions Sessions, id string, retries int, fn MutateFunc) (engine.Session, []engine.Event, error) {
	for attempt := 0; ; attempt++ {
		current, err := sessions.Get(ctx, id)
		if err != nil {
			return engine.Session{}, nil, err
		}

		events, next, err := fn(current)
		if err != nil {
			return current, nil, err
		}
		if len(events) == 0 {
			return current, nil, nil
		}

		err = sessions.PutIfVersion(ctx, next, current.Version)
		if err == nil {
			return next, events, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return current, nil, err
		}
		if attempt >= retries {
			return current, nil, fmt.Errorf("%w: %s lost %d writes", ErrStaleSession, id, attempt+1)
		}
		if err := ctx.Err(); err != nil {
			return current, nil, err
		}
	}
}
