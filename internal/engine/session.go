package engine

import (
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

type TurnPhase string

const (
	PhaseAttackerRecording TurnPhase = "attacker_recording"
	PhaseDefenderRecording TurnPhase = "defender_recording"
	PhaseJudging           TurnPhase = "judging"
	PhaseRoundComplete     TurnPhase = "round_complete"
)

type MoveType string

const (
	MoveSet   MoveType = "set"
	MoveMatch MoveType = "match"
)

type Result string

const (
	ResultLanded  Result = "landed"
	ResultMissed  Result = "missed"
	ResultPending Result = "pending"
	// ResultVoid closes a match attempt whose battle ended (concession) before
	// it was judged. It never costs a letter.
	ResultVoid Result = "void"
)

// Clip points at recorded media owned by the upload service.
type Clip struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type Move struct {
	ID        string          `json:"id"`
	Round     int             `json:"round"`
	PlayerID  string          `json:"player_id"`
	Type      MoveType        `json:"type"`
	Clip      Clip            `json:"clip"`
	Result    Result          `json:"result"`
	Votes     *judgment.Votes `json:"judgment_votes,omitempty"`
	TimedOut  bool            `json:"timed_out,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Rules struct {
	VoteWindow   time.Duration `json:"vote_window"`
	ReminderLead time.Duration `json:"reminder_lead"`
	TurnTimeout  time.Duration `json:"turn_timeout"`
}

func DefaultRules() Rules {
	return Rules{
		VoteWindow:   judgment.DefaultVoteWindow,
		ReminderLead: judgment.DefaultReminderLead,
		TurnTimeout:  10 * time.Minute,
	}
}

// Session is the full state of one battle. Version increases by one with
// every accepted mutation.
type Session struct {
	ID                  string              `json:"id"`
	PlayerA             string              `json:"player_a"`
	PlayerB             string              `json:"player_b"`
	Letters             map[string][]Letter `json:"letters"`
	CurrentAttacker     string              `json:"current_attacker"`
	TurnPhase           TurnPhase           `json:"turn_phase"`
	RoundNumber         int                 `json:"round_number"`
	Status              Status              `json:"status"`
	Moves               []Move              `json:"moves"`
	CurrentSetMove      string              `json:"current_set_move,omitempty"`
	VoteDeadline        *time.Time          `json:"vote_deadline,omitempty"`
	VoteReminderSent    bool                `json:"vote_reminder_sent"`
	VoteTimeoutOccurred bool                `json:"vote_timeout_occurred"`
	WinnerID            string              `json:"winner_id,omitempty"`
	ConcededBy          string              `json:"conceded_by,omitempty"`
	Connected           map[string]bool     `json:"connected"`
	TurnDeadline        time.Time           `json:"turn_deadline"`
	Rules               Rules               `json:"rules"`
	Version             int64               `json:"version"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}
