package types

import "github.com/DoyleJ11/skate-battle-backend/internal/engine"

// Client message types.
const (
	MsgSubmitSet   = "SubmitSet"
	MsgSubmitMatch = "SubmitMatch"
	MsgCastVote    = "CastVote"
	MsgConcede     = "Concede"
)

// Server message types.
const (
	MsgSnapshot = "Snapshot"
	MsgDelta    = "Delta"
	MsgAck      = "Ack"
	MsgError    = "Error"
)

type Clip struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type ClientMessage struct {
	Type        string `json:"type"`
	Clip        *Clip  `json:"clip,omitempty"`
	Vote        string `json:"vote,omitempty"`
	BaseVersion int64  `json:"base_version,omitempty"`
}

type ServerMessage struct {
	Type    string          `json:"type"` // "Snapshot" | "Delta" | "Ack" | "Error"
	Version int64           `json:"version,omitempty"`
	Session *engine.Session `json:"session,omitempty"`
	Event   *engine.Event   `json:"event,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}
