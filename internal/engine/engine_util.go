package engine

import (
	"maps"
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
)

// NewSession returns a battle waiting for its first set, at version 1.
func NewSession(id, playerA, playerB, firstAttacker string, rules Rules, now time.Time) Session {
	if firstAttacker != playerB {
		firstAttacker = playerA
	}
	if rules.TurnTimeout <= 0 {
		rules.TurnTimeout = DefaultRules().TurnTimeout
	}
	if rules.VoteWindow <= 0 {
		rules.VoteWindow = judgment.DefaultVoteWindow
	}
	if rules.ReminderLead <= 0 {
		rules.ReminderLead = judgment.DefaultReminderLead
	}
	return Session{
		ID:              id,
		PlayerA:         playerA,
		PlayerB:         playerB,
		Letters:         map[string][]Letter{playerA: {}, playerB: {}},
		CurrentAttacker: firstAttacker,
		TurnPhase:       PhaseAttackerRecording,
		RoundNumber:     1,
		Status:          StatusWaiting,
		Moves:           []Move{},
		Connected:       map[string]bool{},
		TurnDeadline:    now.Add(rules.TurnTimeout),
		Rules:           rules,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy; mutating it never reaches s.
func (s Session) Clone() Session {
	c := s
	c.Letters = make(map[string][]Letter, len(s.Letters))
	for p, l := range s.Letters {
		c.Letters[p] = append([]Letter{}, l...)
	}
	c.Connected = maps.Clone(s.Connected)
	if c.Connected == nil {
		c.Connected = map[string]bool{}
	}
	c.Moves = make([]Move, len(s.Moves))
	for i, m := range s.Moves {
		if m.Votes != nil {
			v := *m.Votes
			m.Votes = &v
		}
		c.Moves[i] = m
	}
	if s.VoteDeadline != nil {
		d := *s.VoteDeadline
		c.VoteDeadline = &d
	}
	return c
}

func (s Session) IsParticipant(id string) bool {
	return id != "" && (id == s.PlayerA || id == s.PlayerB)
}

func (s Session) Opponent(id string) string {
	if id == s.PlayerA {
		return s.PlayerB
	}
	return s.PlayerA
}

func (s Session) Defender() string {
	return s.Opponent(s.CurrentAttacker)
}

// FindMove returns the move with the given id.
func (s Session) FindMove(id string) (Move, bool) {
	for _, m := range s.Moves {
		if m.ID == id {
			return m, true
		}
	}
	return Move{}, false
}

func (s Session) roleOf(id string) (judgment.Role, bool) {
	switch {
	case !s.IsParticipant(id):
		return "", false
	case id == s.CurrentAttacker:
		return judgment.RoleAttacker, true
	default:
		return judgment.RoleDefender, true
	}
}

// pendingMatch is the last move when it is a match still awaiting judgment.
func (s *Session) pendingMatch() *Move {
	if len(s.Moves) == 0 {
		return nil
	}
	last := &s.Moves[len(s.Moves)-1]
	if last.Type != MoveMatch || last.Result != ResultPending {
		return nil
	}
	if last.Votes == nil {
		last.Votes = &judgment.Votes{}
	}
	return last
}

// voidPendingMatch closes the round without a verdict. The phase leaves
// judging together with the vote deadline.
func (s *Session) voidPendingMatch() {
	if m := s.pendingMatch(); m != nil {
		m.Result = ResultVoid
	}
	s.VoteDeadline = nil
	s.CurrentSetMove = ""
	s.TurnPhase = PhaseRoundComplete
}

func (s Session) bothConnected() bool {
	return s.Connected[s.PlayerA] && s.Connected[s.PlayerB]
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
