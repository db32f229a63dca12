// Package dispute handles contested results after a battle ends. Disputes
// never reopen or edit a battle; corrective actions are kept beside it and
// folded in by Standing.
package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
)

var (
	ErrNotTerminal    = errors.New("battle has not ended")
	ErrNotParticipant = errors.New("not a participant of this battle")
	ErrUnknownMove    = errors.New("move not in this battle")
	ErrNoAction       = errors.New("dispute has no corrective action")
	ErrInvalidAction  = errors.New("invalid corrective action")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusReverted Status = "reverted"
)

// Dispute is immutable once filed.
type Dispute struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	FiledBy   string    `json:"filed_by"`
	MoveIDs   []string  `json:"move_ids"`
	Reason    string    `json:"reason"`
	FiledAt   time.Time `json:"filed_at"`
}

type ActionKind string

const (
	// ActionLetterReversal takes back the last letter Participant received.
	ActionLetterReversal ActionKind = "letter_reversal"
	// ActionOutcomeOverride replaces the winner; an empty WinnerID means no winner.
	ActionOutcomeOverride ActionKind = "outcome_override"
	ActionNone            ActionKind = "no_action"
)

// Action is the single corrective action taken for a dispute. Reverting it
// stamps RevertedAt; the record itself stays.
type Action struct {
	ID          string     `json:"id"`
	DisputeID   string     `json:"dispute_id"`
	SessionID   string     `json:"session_id"`
	Kind        ActionKind `json:"kind"`
	Participant string     `json:"participant,omitempty"`
	WinnerID    string     `json:"winner_id,omitempty"`
	Note        string     `json:"note,omitempty"`
	AppliedAt   time.Time  `json:"applied_at"`
	RevertedAt  *time.Time `json:"reverted_at,omitempty"`
}

func (a Action) Active() bool { return a.RevertedAt == nil }

type Repository interface {
	File(ctx context.Context, d Dispute) error
	Get(ctx context.Context, id string) (Dispute, error)
	// ListPending returns disputes without an active action.
	ListPending(ctx context.Context) ([]Dispute, error)
	// PutAction stores a for its dispute unless an active action is already
	// there, in which case that one is returned. Reverted actions are kept.
	PutAction(ctx context.Context, a Action) (Action, error)
	// ActionFor returns the dispute's most recent action.
	ActionFor(ctx context.Context, disputeID string) (Action, error)
	// MarkReverted reverts the active action. With none active it returns
	// the most recent one unchanged.
	MarkReverted(ctx context.Context, disputeID string, at time.Time) (Action, error)
	Actions(ctx context.Context, sessionID string) ([]Action, error)
}

// Standing is a battle's result once corrective actions are applied.
type Standing struct {
	SessionID string                     `json:"session_id"`
	Status    engine.Status              `json:"status"`
	Letters   map[string][]engine.Letter `json:"letters"`
	WinnerID  string                     `json:"winner_id,omitempty"`
	Applied   []string                   `json:"applied_actions"`
}

// Effective folds active actions, oldest first, over the battle's own result.
func Effective(s engine.Session, actions []Action) Standing {
	c := s.Clone()
	st := Standing{
		SessionID: s.ID,
		Status:    s.Status,
		Letters:   c.Letters,
		WinnerID:  s.WinnerID,
		Applied:   []string{},
	}
	for _, a := range actions {
		if !a.Active() || a.SessionID != s.ID {
			continue
		}
		switch a.Kind {
		case ActionLetterReversal:
			have := st.Letters[a.Participant]
			if len(have) == 0 {
				continue
			}
			if len(have) == len(engine.Word) && st.WinnerID == s.Opponent(a.Participant) {
				st.WinnerID = ""
			}
			st.Letters[a.Participant] = have[:len(have)-1]
		case ActionOutcomeOverride:
			st.WinnerID = a.WinnerID
		case ActionNone:
		default:
			continue
		}
		st.Applied = append(st.Applied, a.ID)
	}
	return st
}
