package judgment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tally(attacker, defender Vote) Votes {
	var v Votes
	if attacker != "" {
		v, _ = v.Cast(RoleAttacker, attacker)
	}
	if defender != "" {
		v, _ = v.Cast(RoleDefender, defender)
	}
	return v
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name     string
		votes    Votes
		want     Verdict
		resolved bool
	}{
		{name: "both landed", votes: tally(VoteLanded, VoteLanded), want: VerdictLanded, resolved: true},
		{name: "both bailed", votes: tally(VoteBailed, VoteBailed), want: VerdictMissed, resolved: true},
		{name: "attacker disagrees", votes: tally(VoteBailed, VoteLanded), want: VerdictMissed, resolved: true},
		{name: "defender disagrees", votes: tally(VoteLanded, VoteBailed), want: VerdictMissed, resolved: true},
		{name: "only attacker voted", votes: tally(VoteLanded, ""), resolved: false},
		{name: "nobody voted", votes: Votes{}, resolved: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decide(tc.votes)
			require.Equal(t, tc.resolved, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCast_SecondVoteIsIgnored(t *testing.T) {
	v, recorded := Votes{}.Cast(RoleDefender, VoteLanded)
	require.True(t, recorded)

	again, recorded := v.Cast(RoleDefender, VoteBailed)
	require.False(t, recorded)
	require.NotNil(t, again.Defender)
	assert.Equal(t, VoteLanded, *again.Defender)
	assert.Nil(t, again.Attacker)
}

func TestCast_DoesNotAliasPreviousTally(t *testing.T) {
	before := Votes{}
	after, _ := before.Cast(RoleAttacker, VoteBailed)
	assert.Nil(t, before.Attacker)
	assert.NotNil(t, after.Attacker)
}

func TestParseVote(t *testing.T) {
	v, ok := ParseVote("landed")
	require.True(t, ok)
	assert.Equal(t, VoteLanded, v)

	_, ok = ParseVote("sketchy")
	assert.False(t, ok)
}

func TestDeadlineArithmetic(t *testing.T) {
	opened := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	deadline := Deadline(opened, 0)
	require.Equal(t, opened.Add(60*time.Second), deadline)

	cases := []struct {
		name    string
		at      time.Duration
		sent    bool
		remind  bool
		expired bool
	}{
		{name: "too early for reminder", at: 29 * time.Second},
		{name: "reminder window opens", at: 30 * time.Second, remind: true},
		{name: "reminder already sent", at: 45 * time.Second, sent: true},
		{name: "deadline reached", at: 60 * time.Second, expired: true},
		{name: "past deadline", at: 61 * time.Second, expired: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := opened.Add(tc.at)
			assert.Equal(t, tc.remind, ReminderDue(deadline, now, DefaultReminderLead, tc.sent))
			assert.Equal(t, tc.expired, Expired(deadline, now))
		})
	}
}
