package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestSessions_CreateGetPut(t *testing.T) {
	ctx := context.Background()
	m := NewSessions()
	s := engine.NewSession("b1", "A", "B", "A", engine.DefaultRules(), t0)

	require.NoError(t, m.Create(ctx, s))
	require.ErrorIs(t, m.Create(ctx, s), store.ErrAlreadyExists)

	got, err := m.Get(ctx, "b1")
	require.NoError(t, err)
	got.Letters["B"] = append(got.Letters["B"], "S")
	again, _ := m.Get(ctx, "b1")
	assert.Empty(t, again.Letters["B"], "reads are copies")

	got.Version = 2
	require.NoError(t, m.PutIfVersion(ctx, got, 1))
	require.ErrorIs(t, m.PutIfVersion(ctx, got, 1), store.ErrVersionConflict)

	_, err = m.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	missing := got
	missing.ID = "missing"
	require.ErrorIs(t, m.PutIfVersion(ctx, missing, 1), store.ErrNotFound)
}

func TestSessions_ListExpired(t *testing.T) {
	ctx := context.Background()
	m := NewSessions()

	idle := engine.NewSession("idle", "A", "B", "A", engine.DefaultRules(), t0)
	fresh := engine.NewSession("fresh", "C", "D", "C", engine.DefaultRules(), t0.Add(time.Hour))
	judging := engine.NewSession("judging", "E", "F", "E", engine.DefaultRules(), t0.Add(time.Hour))
	deadline := t0.Add(time.Minute)
	judging.VoteDeadline = &deadline
	done := engine.NewSession("done", "G", "H", "G", engine.DefaultRules(), t0)
	done.Status = engine.StatusCompleted

	for _, s := range []engine.Session{idle, fresh, judging, done} {
		require.NoError(t, m.Create(ctx, s))
	}

	ids, err := m.ListExpired(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "judging"}, ids)
}
