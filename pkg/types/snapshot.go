package types

// Session:
//   id: string
//   player_a, player_b: string
//   letters: { [participant]: ("S"|"K"|"A"|"T"|"E")[] }
//   current_attacker: string
//   turn_phase: "attacker_recording" | "defender_recording" | "judging" | "round_complete"
//   round_number: number
//   status: "waiting" | "active" | "paused" | "completed" | "abandoned"
//   moves: Move[]
//   current_set_move: string // move id, optional
//   vote_deadline: RFC3339 timestamp // only while judging
//   vote_reminder_sent, vote_timeout_occurred: boolean
//   winner_id: string // optional
//   conceded_by: string // optional
//   connected: { [participant]: boolean }
//   turn_deadline: RFC3339 timestamp
//   rules: { vote_window, reminder_lead, turn_timeout } // nanoseconds
//   version: number
//
// Move:
//   id: string
//   round: number
//   player_id: string
//   type: "set" | "match"
//   clip: { url: string, duration_seconds: number }
//   result: "landed" | "missed" | "pending" | "void"
//   judgment_votes: { attacker_vote: "landed"|"bailed", defender_vote: "landed"|"bailed" } // match only
//   timed_out: boolean
//   created_at: RFC3339 timestamp
