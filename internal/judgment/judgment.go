// Package judgment decides whether a match attempt landed from the two
// participants' independent votes, and owns the vote deadline arithmetic.
package judgment

import "time"

const (
	DefaultVoteWindow   = 60 * time.Second
	DefaultReminderLead = 30 * time.Second
)

type Vote string

const (
	VoteLanded Vote = "landed"
	VoteBailed Vote = "bailed"
)

type Verdict string

const (
	VerdictLanded Verdict = "landed"
	VerdictMissed Verdict = "missed"
)

type Role string

const (
	RoleAttacker Role = "attacker"
	RoleDefender Role = "defender"
)

// Votes is the tally for one match attempt. A nil field means that party
// has not voted yet.
type Votes struct {
	Attacker *Vote `json:"attacker_vote"`
	Defender *Vote `json:"defender_vote"`
}

func ParseVote(s string) (Vote, bool) {
	switch Vote(s) {
	case VoteLanded, VoteBailed:
		return Vote(s), true
	default:
		return "", false
	}
}

// Cast records vote for role. A role votes once per attempt: when it has
// already voted the tally comes back unchanged with recorded=false.
func (v Votes) Cast(role Role, vote Vote) (Votes, bool) {
	cast := vote
	switch role {
	case RoleAttacker:
		if v.Attacker != nil {
			return v, false
		}
		v.Attacker = &cast
	case RoleDefender:
		if v.Defender != nil {
			return v, false
		}
		v.Defender = &cast
	default:
		return v, false
	}
	return v, true
}

func (v Votes) Complete() bool {
	return v.Attacker != nil && v.Defender != nil
}

// Decide returns the verdict once both votes are in. Only a unanimous
// "landed" counts; a bail or any disagreement is a miss.
func Decide(v Votes) (Verdict, bool) {
	if !v.Complete() {
		return "", false
	}
	if *v.Attacker == VoteLanded && *v.Defender == VoteLanded {
		return VerdictLanded, true
	}
	return VerdictMissed, true
}

func Deadline(opened time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = DefaultVoteWindow
	}
	return opened.Add(window)
}

// ReminderDue reports whether the one-shot reminder should go out: inside
// the lead window, before the deadline, and not already sent.
func ReminderDue(deadline, now time.Time, lead time.Duration, sent bool) bool {
	if sent {
		return false
	}
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	return !now.Before(deadline.Add(-lead)) && now.Before(deadline)
}

func Expired(deadline, now time.Time) bool {
	return !now.Before(deadline)
}
