package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
	"github.com/DoyleJ11/skate-battle-backend/internal/ratelimit"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
	"github.com/DoyleJ11/skate-battle-backend/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// Battles is the slice of the battle service a connection drives.
type Battles interface {
	Get(ctx context.Context, id string) (engine.Session, error)
	SubmitSet(ctx context.Context, id, participant string, clip engine.Clip, baseVersion int64) (engine.Session, error)
	SubmitMatch(ctx context.Context, id, participant string, clip engine.Clip, baseVersion int64) (engine.Session, error)
	CastVote(ctx context.Context, id, participant string, vote judgment.Vote, baseVersion int64) (engine.Session, error)
	Concede(ctx context.Context, id, participant string, baseVersion int64) (engine.Session, error)
}

func category(msgType string) ratelimit.Category {
	switch msgType {
	case types.MsgSubmitSet, types.MsgSubmitMatch:
		return ratelimit.CategoryMove
	case types.MsgCastVote:
		return ratelimit.CategoryVote
	default:
		return ratelimit.CategoryControl
	}
}

// Dispatch runs one client message on behalf of participant. The rate limit
// is checked before anything else, so a throttled message never reaches the
// store. It returns the session version after the command.
func Dispatch(ctx context.Context, battles Battles, limiter *ratelimit.Limiter, sessionID, participant string, m types.ClientMessage) (int64, error) {
	if err := limiter.Allow(category(m.Type)); err != nil {
		return 0, err
	}

	var (
		s   engine.Session
		err error
	)
	switch m.Type {
	case types.MsgSubmitSet, types.MsgSubmitMatch:
		if m.Clip == nil || m.Clip.URL == "" {
			return 0, fmt.Errorf("%w: %s needs a clip", ErrBadRequest, m.Type)
		}
		clip := engine.Clip{URL: m.Clip.URL, DurationSeconds: m.Clip.DurationSeconds}
		if m.Type == types.MsgSubmitSet {
			s, err = battles.SubmitSet(ctx, sessionID, participant, clip, m.BaseVersion)
		} else {
			s, err = battles.SubmitMatch(ctx, sessionID, participant, clip, m.BaseVersion)
		}

	case types.MsgCastVote:
		vote, ok := judgment.ParseVote(m.Vote)
		if !ok {
			return 0, fmt.Errorf("%w: vote must be landed or bailed, got %q", ErrBadRequest, m.Vote)
		}
		s, err = battles.CastVote(ctx, sessionID, participant, vote, m.BaseVersion)

	case types.MsgConcede:
		s, err = battles.Concede(ctx, sessionID, participant, m.BaseVersion)

	default:
		return 0, fmt.Errorf("%w: unknown message type %q", ErrBadRequest, m.Type)
	}
	if err != nil {
		return 0, err
	}
	return s.Version, nil
}

// ErrorCode maps an error to the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, store.ErrStaleSession):
		return "stale_session"
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "internal"
	}
}
