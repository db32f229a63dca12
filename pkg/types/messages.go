package types

// Client -> Server
// Every message may carry base_version: the session version the client last
// saw. A mismatch is rejected with code "stale_session".
//
// SubmitSet:
//   clip: { url: string, duration_seconds: number }
//
// SubmitMatch:
//   clip: { url: string, duration_seconds: number }
//
// CastVote:
//   vote: "landed" | "bailed"
//
// Concede: {}

// Server -> Client
// Snapshot (sent once on connect, after the room join):
//   version: number
//   session: Session (see snapshot.go)
//
// Delta (one per persisted event, in version order):
//   version: number
//   event: {
//     type: "battle.created" | "battle.moveSubmitted" | "battle.voteCast" |
//           "battle.voteReminder" | "battle.roundResolved" | "battle.completed" |
//           "battle.abandoned" | "battle.presenceChanged" | "battle.disputeFiled"
//     ...fields relevant to the event
//   }
//
// Ack (reply to the sender of an accepted command):
//   version: number
//
// Error:
//   code: "illegal_move" | "stale_session" | "rate_limited" | "not_found" |
//         "bad_request" | "internal"
//   error: string
