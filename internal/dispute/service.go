package dispute

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

type Publisher interface {
	Publish(d engine.Delta)
}

type Service struct {
	sessions store.Sessions
	repo     Repository
	pub      Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewService(sessions store.Sessions, repo Repository, pub Publisher, log *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		repo:     repo,
		pub:      pub,
		log:      log.Named("dispute"),
		now:      time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) File(ctx context.Context, sessionID, participant string, moveIDs []string, reason string) (Dispute, error) {
	battle, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Dispute{}, err
	}
	if !battle.Status.Terminal() {
		return Dispute{}, fmt.Errorf("%w: %s is %s", ErrNotTerminal, sessionID, battle.Status)
	}
	if !battle.IsParticipant(participant) {
		return Dispute{}, fmt.Errorf("%w: %s", ErrNotParticipant, participant)
	}
	if len(moveIDs) == 0 {
		return Dispute{}, fmt.Errorf("%w: no moves referenced", ErrUnknownMove)
	}
	for _, id := range moveIDs {
		if _, ok := battle.FindMove(id); !ok {
			return Dispute{}, fmt.Errorf("%w: %s", ErrUnknownMove, id)
		}
	}

	d := Dispute{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		FiledBy:   participant,
		MoveIDs:   slices.Clone(moveIDs),
		Reason:    reason,
		FiledAt:   s.now().UTC(),
	}
	if err := s.repo.File(ctx, d); err != nil {
		return Dispute{}, err
	}

	s.log.Info("dispute filed",
		zap.String("dispute", d.ID),
		zap.String("session", sessionID),
		zap.String("participant", participant),
		zap.Strings("moves", moveIDs))
	s.pub.Publish(engine.Delta{
		SessionID: sessionID,
		Version:   battle.Version,
		Event: engine.Event{
			Type:        engine.EvtDisputeFiled,
			Participant: participant,
			DisputeID:   d.ID,
		},
	})
	return d, nil
}

func (s *Service) ListPending(ctx context.Context) ([]Dispute, error) {
	return s.repo.ListPending(ctx)
}

// Status reports where a dispute stands along with its action, if any.
func (s *Service) Status(ctx context.Context, disputeID string) (Dispute, Status, *Action, error) {
	d, err := s.repo.Get(ctx, disputeID)
	if err != nil {
		return Dispute{}, "", nil, err
	}
	a, err := s.repo.ActionFor(ctx, disputeID)
	switch {
	case err == nil && a.Active():
		return d, StatusResolved, &a, nil
	case err == nil:
		return d, StatusReverted, &a, nil
	case isNotFound(err):
		return d, StatusPending, nil, nil
	default:
		return Dispute{}, "", nil, err
	}
}

type ActionRequest struct {
	Kind        ActionKind
	Participant string
	WinnerID    string
	Note        string
}

// Resolve records the corrective action for a dispute. Calling it again while
// that action is active returns it. After a revert it records a new one.
func (s *Service) Resolve(ctx context.Context, disputeID string, req ActionRequest) (Action, error) {
	d, err := s.repo.Get(ctx, disputeID)
	if err != nil {
		return Action{}, err
	}
	if existing, err := s.repo.ActionFor(ctx, disputeID); err == nil {
		if existing.Active() {
			return existing, nil
		}
	} else if !isNotFound(err) {
		return Action{}, err
	}

	battle, err := s.sessions.Get(ctx, d.SessionID)
	if err != nil {
		return Action{}, err
	}
	if err := validate(battle, req); err != nil {
		return Action{}, err
	}

	a, err := s.repo.PutAction(ctx, Action{
		ID:          uuid.NewString(),
		DisputeID:   d.ID,
		SessionID:   d.SessionID,
		Kind:        req.Kind,
		Participant: req.Participant,
		WinnerID:    req.WinnerID,
		Note:        req.Note,
		AppliedAt:   s.now().UTC(),
	})
	if err != nil {
		return Action{}, err
	}
	s.log.Info("corrective action applied",
		zap.String("dispute", d.ID),
		zap.String("session", d.SessionID),
		zap.String("kind", string(a.Kind)))
	return a, nil
}

func (s *Service) Revert(ctx context.Context, disputeID string) (Action, error) {
	a, err := s.repo.MarkReverted(ctx, disputeID, s.now().UTC())
	if err != nil {
		if isNotFound(err) {
			return Action{}, fmt.Errorf("%w: %s", ErrNoAction, disputeID)
		}
		return Action{}, err
	}
	s.log.Info("corrective action reverted",
		zap.String("dispute", disputeID),
		zap.String("session", a.SessionID))
	return a, nil
}

// Standing is what standings and leaderboards read instead of the raw battle.
func (s *Service) Standing(ctx context.Context, sessionID string) (Standing, error) {
	battle, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Standing{}, err
	}
	actions, err := s.repo.Actions(ctx, sessionID)
	if err != nil {
		return Standing{}, err
	}
	return Effective(battle, actions), nil
}

func validate(battle engine.Session, req ActionRequest) error {
	switch req.Kind {
	case ActionLetterReversal:
		if !battle.IsParticipant(req.Participant) {
			return fmt.Errorf("%w: %q is not in the battle", ErrInvalidAction, req.Participant)
		}
		if len(battle.Letters[req.Participant]) == 0 {
			return fmt.Errorf("%w: %s has no letters", ErrInvalidAction, req.Participant)
		}
	case ActionOutcomeOverride:
		if req.WinnerID != "" && !battle.IsParticipant(req.WinnerID) {
			return fmt.Errorf("%w: %q is not in the battle", ErrInvalidAction, req.WinnerID)
		}
	case ActionNone:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, req.Kind)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
