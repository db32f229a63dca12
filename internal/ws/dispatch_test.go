package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
	"github.com/DoyleJ11/skate-battle-backend/internal/ratelimit"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
	"github.com/DoyleJ11/skate-battle-backend/internal/types"
)

type call struct {
	op          string
	participant string
	clip        engine.Clip
	vote        judgment.Vote
	base        int64
}

type fakeBattles struct {
	calls   []call
	version int64
	err     error
}

func (f *fakeBattles) record(c call) (engine.Session, error) {
	f.calls = append(f.calls, c)
	if f.err != nil {
		return engine.Session{}, f.err
	}
	f.version++
	return engine.Session{Version: f.version}, nil
}

func (f *fakeBattles) Get(context.Context, string) (engine.Session, error) {
	return engine.Session{Version: f.version}, f.err
}

func (f *fakeBattles) SubmitSet(_ context.Context, _, p string, clip engine.Clip, base int64) (engine.Session, error) {
	return f.record(call{op: "set", participant: p, clip: clip, base: base})
}

func (f *fakeBattles) SubmitMatch(_ context.Context, _, p string, clip engine.Clip, base int64) (engine.Session, error) {
	return f.record(call{op: "match", participant: p, clip: clip, base: base})
}

func (f *fakeBattles) CastVote(_ context.Context, _, p string, vote judgment.Vote, base int64) (engine.Session, error) {
	return f.record(call{op: "vote", participant: p, vote: vote, base: base})
}

func (f *fakeBattles) Concede(_ context.Context, _, p string, base int64) (engine.Session, error) {
	return f.record(call{op: "concede", participant: p, base: base})
}

type frozen struct{ now time.Time }

func (c frozen) Now() time.Time { return c.now }

func TestDispatch_RoutesMessages(t *testing.T) {
	ctx := context.Background()
	battles := &fakeBattles{version: 1}
	limiter := ratelimit.New(nil, nil)

	v, err := Dispatch(ctx, battles, limiter, "b1", "A", types.ClientMessage{
		Type: types.MsgSubmitSet, Clip: &types.Clip{URL: "set.mp4", DurationSeconds: 4.2}, BaseVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = Dispatch(ctx, battles, limiter, "b1", "B", types.ClientMessage{Type: types.MsgSubmitMatch, Clip: &types.Clip{URL: "m.mp4"}})
	require.NoError(t, err)
	_, err = Dispatch(ctx, battles, limiter, "b1", "B", types.ClientMessage{Type: types.MsgCastVote, Vote: "bailed"})
	require.NoError(t, err)
	_, err = Dispatch(ctx, battles, limiter, "b1", "A", types.ClientMessage{Type: types.MsgConcede})
	require.NoError(t, err)

	require.Len(t, battles.calls, 4)
	assert.Equal(t, call{op: "set", participant: "A", clip: engine.Clip{URL: "set.mp4", DurationSeconds: 4.2}, base: 1}, battles.calls[0])
	assert.Equal(t, "match", battles.calls[1].op)
	assert.Equal(t, judgment.VoteBailed, battles.calls[2].vote)
	assert.Equal(t, "concede", battles.calls[3].op)
}

func TestDispatch_RejectsMalformed(t *testing.T) {
	ctx := context.Background()
	battles := &fakeBattles{}
	limiter := ratelimit.New(nil, nil)

	for _, m := range []types.ClientMessage{
		{Type: "Teleport"},
		{Type: types.MsgSubmitSet},
		{Type: types.MsgSubmitMatch, Clip: &types.Clip{}},
		{Type: types.MsgCastVote, Vote: "maybe"},
	} {
		_, err := Dispatch(ctx, battles, limiter, "b1", "A", m)
		require.ErrorIs(t, err, ErrBadRequest, "message %+v", m)
	}
	assert.Empty(t, battles.calls)
}

func TestDispatch_RateLimitBeforeService(t *testing.T) {
	ctx := context.Background()
	battles := &fakeBattles{}
	limiter := ratelimit.New(ratelimit.Config{
		ratelimit.CategoryVote: {PerSecond: 1, Burst: 1},
	}, frozen{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})

	vote := types.ClientMessage{Type: types.MsgCastVote, Vote: "landed"}
	_, err := Dispatch(ctx, battles, limiter, "b1", "A", vote)
	require.NoError(t, err)
	_, err = Dispatch(ctx, battles, limiter, "b1", "A", vote)
	require.ErrorIs(t, err, ratelimit.ErrRateLimited)
	assert.Len(t, battles.calls, 1)

	// Other categories have their own buckets.
	_, err = Dispatch(ctx, battles, limiter, "b1", "A", types.ClientMessage{Type: types.MsgConcede})
	require.NoError(t, err)
}

func TestErrorCode(t *testing.T) {
	cases := map[string]error{
		"illegal_move":  fmt.Errorf("wrap: %w", engine.ErrIllegalMove),
		"stale_session": store.ErrStaleSession,
		"rate_limited":  ratelimit.ErrRateLimited,
		"not_found":     store.ErrNotFound,
		"bad_request":   ErrBadRequest,
		"internal":      fmt.Errorf("disk on fire"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorCode(err))
	}
}
