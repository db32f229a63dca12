package engine

import (
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
)

// Replay rebuilds a battle from its move history, closing every judged
// match through the same round resolution the live path uses. A concession
// is not a move; pass the Session's ConcededBy so it is applied after the
// last move. Abandonment is not replayed.
func Replay(id, playerA, playerB, firstAttacker string, moves []Move, concededBy string) (Session, error) {
	var start time.Time
	if len(moves) > 0 {
		start = moves[0].CreatedAt
	}
	s := NewSession(id, playerA, playerB, firstAttacker, DefaultRules(), start)

	for _, m := range moves {
		if s.Status.Terminal() {
			return s, illegal("move %s after the battle ended", m.ID)
		}

		switch m.Type {
		case MoveSet:
			if m.PlayerID != s.CurrentAttacker || s.TurnPhase != PhaseAttackerRecording {
				return s, illegal("set %s out of turn", m.ID)
			}
			s.Moves = append(s.Moves, m)
			s.CurrentSetMove = m.ID
			s.TurnPhase = PhaseDefenderRecording
			s.Status = StatusActive

		case MoveMatch:
			if m.PlayerID != s.Defender() || s.TurnPhase != PhaseDefenderRecording {
				return s, illegal("match %s out of turn", m.ID)
			}
			pending := m
			pending.Result = ResultPending
			s.Moves = append(s.Moves, pending)
			deadline := judgment.Deadline(m.CreatedAt, s.Rules.VoteWindow)
			s.VoteDeadline = &deadline
			s.TurnPhase = PhaseJudging

			switch m.Result {
			case ResultLanded:
				resolveRound(&s, judgment.VerdictLanded, m.TimedOut)
			case ResultMissed:
				resolveRound(&s, judgment.VerdictMissed, m.TimedOut)
			case ResultVoid:
				if concededBy == "" {
					return s, illegal("match %s voided without a concession", m.ID)
				}
				s.voidPendingMatch()
			}
			s.Moves[len(s.Moves)-1] = m

		default:
			return s, ErrUnsupportedCommand
		}
		s.UpdatedAt = m.CreatedAt
	}

	if concededBy != "" {
		if _, err := concede(&s, Command{Type: CmdConcede, Participant: concededBy, At: s.UpdatedAt}); err != nil {
			return s, err
		}
	}
	return s, nil
}
