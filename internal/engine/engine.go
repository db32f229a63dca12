package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
)

var ErrIllegalMove = errors.New("illegal move")
var ErrUnsupportedCommand = errors.New("unsupported command")

// ErrNotDue is returned by the deadline commands when there is nothing to do
// yet, or nothing left to do. Sweepers treat it as a no-op.
var ErrNotDue = errors.New("nothing due")

func illegal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalMove, fmt.Sprintf(format, args...))
}

type CommandType string

const (
	CmdSubmitSet    CommandType = "SubmitSet"
	CmdSubmitMatch  CommandType = "SubmitMatch"
	CmdCastVote     CommandType = "CastVote"
	CmdConcede      CommandType = "Concede"
	CmdPresence     CommandType = "Presence"
	CmdVoteReminder CommandType = "VoteReminder"
	CmdVoteTimeout  CommandType = "VoteTimeout"
	CmdAbandon      CommandType = "Abandon"
)

/*
	CmdSubmitSet    -> EvtMoveSubmitted
	CmdSubmitMatch  -> EvtMoveSubmitted (judging opens)
	CmdCastVote     -> EvtVoteCast [-> EvtRoundResolved [-> EvtCompleted]]
	CmdVoteTimeout  -> EvtRoundResolved(timed out, missed) [-> EvtCompleted]
	CmdVoteReminder -> EvtVoteReminder
	CmdConcede      -> EvtCompleted
	CmdAbandon      -> EvtAbandoned
	CmdPresence     -> EvtPresenceChanged
*/

type Command struct {
	Type        CommandType
	Participant string
	Clip        Clip
	Vote        judgment.Vote
	Online      bool
	// MoveID is optional; one is generated when empty.
	MoveID string
	At     time.Time
}

type EventType string

const (
	EvtCreated         EventType = "battle.created"
	EvtMoveSubmitted   EventType = "battle.moveSubmitted"
	EvtVoteCast        EventType = "battle.voteCast"
	EvtVoteReminder    EventType = "battle.voteReminder"
	EvtRoundResolved   EventType = "battle.roundResolved"
	EvtCompleted       EventType = "battle.completed"
	EvtAbandoned       EventType = "battle.abandoned"
	EvtPresenceChanged EventType = "battle.presenceChanged"
	EvtDisputeFiled    EventType = "battle.disputeFiled"
)

type Event struct {
	Type         EventType        `json:"type"`
	Participant  string           `json:"participant,omitempty"`
	Move         *Move            `json:"move,omitempty"`
	Votes        *judgment.Votes  `json:"votes,omitempty"`
	Verdict      judgment.Verdict `json:"verdict,omitempty"`
	TimedOut     bool             `json:"timed_out,omitempty"`
	Letters      []Letter         `json:"letters,omitempty"`
	Attacker     string           `json:"attacker,omitempty"`
	Round        int              `json:"round,omitempty"`
	Phase        TurnPhase        `json:"phase,omitempty"`
	Status       Status           `json:"status,omitempty"`
	WinnerID     string           `json:"winner_id,omitempty"`
	VoteDeadline *time.Time       `json:"vote_deadline,omitempty"`
	Online       *bool            `json:"online,omitempty"`
	DisputeID    string           `json:"dispute_id,omitempty"`
}

// Delta is what leaves the battle after a persisted mutation: one event and
// the session version it produced, so receivers can drop stale or repeated
// deliveries.
type Delta struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`
	Event     Event  `json:"event"`
}

// Apply runs cmd against s. It never touches s: on success it returns the
// events and the next session with Version bumped; on error, s itself. A
// command that changes nothing returns no events and s unchanged.
func Apply(s Session, cmd Command) ([]Event, Session, error) {
	next := s.Clone()

	var (
		events []Event
		err    error
	)
	switch cmd.Type {
	case CmdSubmitSet:
		events, err = submitSet(&next, cmd)
	case CmdSubmitMatch:
		events, err = submitMatch(&next, cmd)
	case CmdCastVote:
		events, err = castVote(&next, cmd)
	case CmdConcede:
		events, err = concede(&next, cmd)
	case CmdPresence:
		events, err = presence(&next, cmd)
	case CmdVoteReminder:
		events, err = voteReminder(&next, cmd)
	case CmdVoteTimeout:
		events, err = voteTimeout(&next, cmd)
	case CmdAbandon:
		events, err = abandon(&next, cmd)
	default:
		err = ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	if len(events) == 0 {
		return nil, s, nil
	}

	next.Version++
	next.UpdatedAt = cmd.At
	return events, next, nil
}

func submitSet(s *Session, cmd Command) ([]Event, error) {
	if s.Status != StatusActive && s.Status != StatusWaiting {
		return nil, illegal("battle is %s", s.Status)
	}
	if s.TurnPhase != PhaseAttackerRecording {
		return nil, illegal("cannot set a trick during %s", s.TurnPhase)
	}
	if cmd.Participant != s.CurrentAttacker {
		return nil, illegal("%s is not the attacker", cmd.Participant)
	}

	move := Move{
		ID:        moveID(cmd),
		Round:     s.RoundNumber,
		PlayerID:  cmd.Participant,
		Type:      MoveSet,
		Clip:      cmd.Clip,
		Result:    ResultLanded,
		CreatedAt: cmd.At,
	}
	s.Moves = append(s.Moves, move)
	s.CurrentSetMove = move.ID
	s.TurnPhase = PhaseDefenderRecording
	s.Status = StatusActive
	s.TurnDeadline = cmd.At.Add(s.Rules.TurnTimeout)

	return []Event{{
		Type:        EvtMoveSubmitted,
		Participant: cmd.Participant,
		Move:        &move,
		Round:       s.RoundNumber,
		Phase:       s.TurnPhase,
		Status:      s.Status,
	}}, nil
}

func submitMatch(s *Session, cmd Command) ([]Event, error) {
	if s.Status != StatusActive {
		return nil, illegal("battle is %s", s.Status)
	}
	if s.TurnPhase != PhaseDefenderRecording {
		return nil, illegal("cannot match a trick during %s", s.TurnPhase)
	}
	if !s.IsParticipant(cmd.Participant) || cmd.Participant == s.CurrentAttacker {
		return nil, illegal("%s is not the defender", cmd.Participant)
	}

	deadline := judgment.Deadline(cmd.At, s.Rules.VoteWindow)
	move := Move{
		ID:        moveID(cmd),
		Round:     s.RoundNumber,
		PlayerID:  cmd.Participant,
		Type:      MoveMatch,
		Clip:      cmd.Clip,
		Result:    ResultPending,
		Votes:     &judgment.Votes{},
		CreatedAt: cmd.At,
	}
	s.Moves = append(s.Moves, move)
	s.TurnPhase = PhaseJudging
	s.VoteDeadline = &deadline
	s.VoteReminderSent = false
	s.VoteTimeoutOccurred = false
	s.TurnDeadline = cmd.At.Add(s.Rules.TurnTimeout)

	return []Event{{
		Type:         EvtMoveSubmitted,
		Participant:  cmd.Participant,
		Move:         &move,
		Round:        s.RoundNumber,
		Phase:        s.TurnPhase,
		VoteDeadline: &deadline,
	}}, nil
}

func castVote(s *Session, cmd Command) ([]Event, error) {
	if s.Status != StatusActive && s.Status != StatusPaused {
		return nil, illegal("battle is %s", s.Status)
	}
	if s.TurnPhase != PhaseJudging {
		return nil, illegal("no attempt is being judged")
	}
	if _, ok := judgment.ParseVote(string(cmd.Vote)); !ok {
		return nil, illegal("unknown vote %q", cmd.Vote)
	}
	role, ok := s.roleOf(cmd.Participant)
	if !ok {
		return nil, illegal("%s is not in this battle", cmd.Participant)
	}

	match := s.pendingMatch()
	if match == nil {
		return nil, illegal("no attempt is being judged")
	}
	votes, recorded := match.Votes.Cast(role, cmd.Vote)
	if !recorded {
		return nil, nil
	}
	match.Votes = &votes
	s.TurnDeadline = cmd.At.Add(s.Rules.TurnTimeout)

	tally := votes
	events := []Event{{
		Type:        EvtVoteCast,
		Participant: cmd.Participant,
		Votes:       &tally,
		Round:       s.RoundNumber,
	}}

	verdict, decided := judgment.Decide(votes)
	if !decided {
		return events, nil
	}
	return append(events, resolveRound(s, verdict, false)...), nil
}

func voteTimeout(s *Session, cmd Command) ([]Event, error) {
	if s.Status.Terminal() || s.TurnPhase != PhaseJudging || s.VoteDeadline == nil {
		return nil, ErrNotDue
	}
	if !judgment.Expired(*s.VoteDeadline, cmd.At) {
		return nil, ErrNotDue
	}

	s.VoteTimeoutOccurred = true
	if match := s.pendingMatch(); match != nil {
		match.TimedOut = true
	}
	s.TurnDeadline = cmd.At.Add(s.Rules.TurnTimeout)
	return resolveRound(s, judgment.VerdictMissed, true), nil
}

func voteReminder(s *Session, cmd Command) ([]Event, error) {
	if s.Status.Terminal() || s.TurnPhase != PhaseJudging || s.VoteDeadline == nil {
		return nil, ErrNotDue
	}
	if !judgment.ReminderDue(*s.VoteDeadline, cmd.At, s.Rules.ReminderLead, s.VoteReminderSent) {
		return nil, ErrNotDue
	}

	s.VoteReminderSent = true
	deadline := *s.VoteDeadline
	return []Event{{
		Type:         EvtVoteReminder,
		Round:        s.RoundNumber,
		VoteDeadline: &deadline,
	}}, nil
}

// resolveRound applies a verdict to the pending match. A landed match hands
// the attack to the defender; a miss costs the defender the next letter and
// the attacker sets again. It is the only place a round is closed.
func resolveRound(s *Session, verdict judgment.Verdict, timedOut bool) []Event {
	defender := s.Defender()
	match := s.pendingMatch()
	if match != nil {
		if verdict == judgment.VerdictLanded {
			match.Result = ResultLanded
		} else {
			match.Result = ResultMissed
		}
	}
	s.VoteDeadline = nil
	s.CurrentSetMove = ""

	if verdict == judgment.VerdictLanded {
		s.CurrentAttacker = defender
	} else if letter, ok := nextLetter(s.Letters[defender]); ok {
		s.Letters[defender] = append(s.Letters[defender], letter)
	}

	resolved := Event{
		Type:        EvtRoundResolved,
		Participant: defender,
		Verdict:     verdict,
		TimedOut:    timedOut,
		Letters:     append([]Letter(nil), s.Letters[defender]...),
	}
	if match != nil && match.Votes != nil {
		votes := *match.Votes
		resolved.Votes = &votes
	}

	if spelledOut(s.Letters[defender]) {
		s.TurnPhase = PhaseRoundComplete
		s.Status = StatusCompleted
		s.WinnerID = s.Opponent(defender)
		resolved.Round = s.RoundNumber
		resolved.Attacker = s.CurrentAttacker
		resolved.Phase = s.TurnPhase
		return []Event{resolved, {
			Type:     EvtCompleted,
			Status:   s.Status,
			WinnerID: s.WinnerID,
			Round:    s.RoundNumber,
		}}
	}

	s.RoundNumber++
	s.TurnPhase = PhaseAttackerRecording
	resolved.Round = s.RoundNumber
	resolved.Attacker = s.CurrentAttacker
	resolved.Phase = s.TurnPhase
	return []Event{resolved}
}

func concede(s *Session, cmd Command) ([]Event, error) {
	if s.Status.Terminal() {
		return nil, illegal("battle is %s", s.Status)
	}
	if !s.IsParticipant(cmd.Participant) {
		return nil, illegal("%s is not in this battle", cmd.Participant)
	}

	s.voidPendingMatch()
	s.Status = StatusCompleted
	s.TurnPhase = PhaseRoundComplete
	s.ConcededBy = cmd.Participant
	s.WinnerID = s.Opponent(cmd.Participant)

	return []Event{{
		Type:        EvtCompleted,
		Participant: cmd.Participant,
		Status:      s.Status,
		WinnerID:    s.WinnerID,
		Round:       s.RoundNumber,
	}}, nil
}

// abandon forfeits a battle nobody has touched since TurnDeadline. The
// winner is whoever is still connected, if exactly one of them is. A round
// under judgment is closed by the vote timeout instead.
func abandon(s *Session, cmd Command) ([]Event, error) {
	if s.Status.Terminal() || s.TurnPhase == PhaseJudging {
		return nil, ErrNotDue
	}
	if s.TurnDeadline.IsZero() || cmd.At.Before(s.TurnDeadline) {
		return nil, ErrNotDue
	}

	s.Status = StatusAbandoned
	s.TurnPhase = PhaseRoundComplete
	s.CurrentSetMove = ""
	aOnline, bOnline := s.Connected[s.PlayerA], s.Connected[s.PlayerB]
	switch {
	case aOnline && !bOnline:
		s.WinnerID = s.PlayerA
	case bOnline && !aOnline:
		s.WinnerID = s.PlayerB
	}

	return []Event{{
		Type:     EvtAbandoned,
		Status:   s.Status,
		WinnerID: s.WinnerID,
		Round:    s.RoundNumber,
	}}, nil
}

func presence(s *Session, cmd Command) ([]Event, error) {
	if s.Status.Terminal() {
		return nil, nil
	}
	if !s.IsParticipant(cmd.Participant) {
		return nil, illegal("%s is not in this battle", cmd.Participant)
	}

	before := s.Status
	changed := s.Connected[cmd.Participant] != cmd.Online
	s.Connected[cmd.Participant] = cmd.Online

	switch s.Status {
	case StatusActive:
		if !s.bothConnected() {
			s.Status = StatusPaused
		}
	case StatusPaused:
		if s.bothConnected() {
			s.Status = StatusActive
		}
	}
	if !changed && before == s.Status {
		return nil, nil
	}

	online := cmd.Online
	return []Event{{
		Type:        EvtPresenceChanged,
		Participant: cmd.Participant,
		Online:      &online,
		Status:      s.Status,
	}}, nil
}

func moveID(cmd Command) string {
	if cmd.MoveID != "" {
		return cmd.MoveID
	}
	return uuid.NewString()
}
