// Package battle runs S.K.A.T.E. battles against the session store: every
// live action and every deadline sweep goes through the same engine
// transition under the same optimistic-version write.
package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
	"github.com/DoyleJ11/skate-battle-backend/internal/notify"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

var ErrInvalidBattle = errors.New("invalid battle")

// Publisher receives every persisted change, in order, for broadcast.
type Publisher interface {
	Publish(d engine.Delta)
}

type Options struct {
	Rules   engine.Rules
	Retries int
	Clock   func() time.Time
}

type Service struct {
	sessions store.Sessions
	pub      Publisher
	notifier notify.Notifier
	log      *zap.Logger
	rules    engine.Rules
	retries  int
	now      func() time.Time
}

func NewService(sessions store.Sessions, pub Publisher, notifier notify.Notifier, log *zap.Logger, opts Options) *Service {
	if opts.Retries <= 0 {
		opts.Retries = store.DefaultRetries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		sessions: sessions,
		pub:      pub,
		notifier: notifier,
		log:      log.Named("battle"),
		rules:    opts.Rules,
		retries:  opts.Retries,
		now:      opts.Clock,
	}
}

// Create starts a battle between two matched participants. firstAttacker
// may be empty, in which case playerA sets first.
func (s *Service) Create(ctx context.Context, playerA, playerB, firstAttacker string) (engine.Session, error) {
	if playerA == "" || playerB == "" || playerA == playerB {
		return engine.Session{}, fmt.Errorf("%w: need two distinct participants", ErrInvalidBattle)
	}
	if firstAttacker != "" && firstAttacker != playerA && firstAttacker != playerB {
		return engine.Session{}, fmt.Errorf("%w: first attacker %q is not in the battle", ErrInvalidBattle, firstAttacker)
	}

	session := engine.NewSession(uuid.NewString(), playerA, playerB, firstAttacker, s.rules, s.now().UTC())
	if err := s.sessions.Create(ctx, session); err != nil {
		return engine.Session{}, err
	}

	s.log.Info("battle created",
		zap.String("session", session.ID),
		zap.String("player_a", playerA),
		zap.String("player_b", playerB))
	s.pub.Publish(engine.Delta{
		SessionID: session.ID,
		Version:   session.Version,
		Event: engine.Event{
			Type:     engine.EvtCreated,
			Attacker: session.CurrentAttacker,
			Round:    session.RoundNumber,
			Phase:    session.TurnPhase,
			Status:   session.Status,
		},
	})
	return session, nil
}

func (s *Service) Get(ctx context.Context, id string) (engine.Session, error) {
	return s.sessions.Get(ctx, id)
}

// The live operations take the version the caller last saw. Zero skips the
// check; anything else must match the stored version or the call fails
// with store.ErrStaleSession, which is how a late submission loses to a
// deadline that already moved the battle on.

func (s *Service) SubmitSet(ctx context.Context, id, participant string, clip engine.Clip, baseVersion int64) (engine.Session, error) {
	return s.live(ctx, id, baseVersion, engine.Command{Type: engine.CmdSubmitSet, Participant: participant, Clip: clip})
}

func (s *Service) SubmitMatch(ctx context.Context, id, participant string, clip engine.Clip, baseVersion int64) (engine.Session, error) {
	return s.live(ctx, id, baseVersion, engine.Command{Type: engine.CmdSubmitMatch, Participant: participant, Clip: clip})
}

// CastVote records a participant's verdict on the pending match. Voting
// twice is not an error; the tally simply stays as it was.
func (s *Service) CastVote(ctx context.Context, id, participant string, vote judgment.Vote, baseVersion int64) (engine.Session, error) {
	return s.live(ctx, id, baseVersion, engine.Command{Type: engine.CmdCastVote, Participant: participant, Vote: vote})
}

func (s *Service) Concede(ctx context.Context, id, participant string, baseVersion int64) (engine.Session, error) {
	return s.live(ctx, id, baseVersion, engine.Command{Type: engine.CmdConcede, Participant: participant})
}

// SetPresence records a participant connecting or dropping. It is driven
// by the room layer, never by clients.
func (s *Service) SetPresence(ctx context.Context, id, participant string, online bool) error {
	_, err := s.live(ctx, id, 0, engine.Command{Type: engine.CmdPresence, Participant: participant, Online: online})
	return err
}

func (s *Service) live(ctx context.Context, id string, baseVersion int64, cmd engine.Command) (engine.Session, error) {
	reloaded := false
	next, events, err := store.Mutate(ctx, s.sessions, id, s.retries, func(current engine.Session) ([]engine.Event, engine.Session, error) {
		if baseVersion != 0 && current.Version != baseVersion {
			return nil, current, fmt.Errorf("%w: %s is at version %d, not %d", store.ErrStaleSession, id, current.Version, baseVersion)
		}
		// A battle that ended between our read and our write was lost to a
		// rival, not misplayed.
		if reloaded && current.Status.Terminal() {
			return nil, current, fmt.Errorf("%w: %s became %s", store.ErrStaleSession, id, current.Status)
		}
		reloaded = true
		cmd.At = s.now().UTC()
		return engine.Apply(current, cmd)
	})
	if err != nil {
		s.log.Debug("command rejected",
			zap.String("session", id),
			zap.String("command", string(cmd.Type)),
			zap.String("participant", cmd.Participant),
			zap.Error(err))
		return next, err
	}
	s.emit(ctx, next, events)
	return next, nil
}

// Sweep runs whichever deadline action is due for one battle: vote timeout,
// then vote reminder, then abandonment. It reports whether anything was
// applied. Losing a race to another writer, or finding nothing due, is not
// an error.
func (s *Service) Sweep(ctx context.Context, id string, now time.Time) (bool, error) {
	for _, kind := range []engine.CommandType{engine.CmdVoteTimeout, engine.CmdVoteReminder, engine.CmdAbandon} {
		cmd := engine.Command{Type: kind, At: now.UTC()}
		next, events, err := store.Mutate(ctx, s.sessions, id, s.retries, func(current engine.Session) ([]engine.Event, engine.Session, error) {
			return engine.Apply(current, cmd)
		})
		switch {
		case errors.Is(err, engine.ErrNotDue):
			continue
		case errors.Is(err, store.ErrStaleSession):
			s.log.Debug("sweep lost race", zap.String("session", id), zap.String("command", string(kind)))
			return false, nil
		case err != nil:
			return false, fmt.Errorf("sweep %s: %w", id, err)
		}
		if len(events) == 0 {
			continue
		}

		s.log.Info("deadline applied",
			zap.String("session", id),
			zap.String("command", string(kind)),
			zap.Int64("version", next.Version))
		s.emit(ctx, next, events)
		return true, nil
	}
	return false, nil
}

func (s *Service) emit(ctx context.Context, session engine.Session, events []engine.Event) {
	for _, ev := range events {
		s.pub.Publish(engine.Delta{SessionID: session.ID, Version: session.Version, Event: ev})

		var kind notify.Kind
		switch ev.Type {
		case engine.EvtVoteReminder:
			kind = notify.KindVoteReminder
		case engine.EvtRoundResolved:
			kind = notify.KindRoundResolved
		case engine.EvtCompleted:
			kind = notify.KindBattleCompleted
		case engine.EvtAbandoned:
			kind = notify.KindBattleAbandoned
		default:
			continue
		}
		s.notifyBoth(ctx, session, kind, ev)
	}
}

func (s *Service) notifyBoth(ctx context.Context, session engine.Session, kind notify.Kind, ev engine.Event) {
	payload := map[string]any{
		"session_id": session.ID,
		"version":    session.Version,
		"event":      ev,
	}
	for _, p := range []string{session.PlayerA, session.PlayerB} {
		if err := s.notifier.Notify(ctx, p, kind, payload); err != nil {
			s.log.Warn("notification failed",
				zap.String("session", session.ID),
				zap.String("participant", p),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
}
