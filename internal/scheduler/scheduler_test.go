package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/skate-battle-backend/internal/battle"
	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/judgment"
	"github.com/DoyleJ11/skate-battle-backend/internal/notify"
	"github.com/DoyleJ11/skate-battle-backend/internal/scheduler"
	"github.com/DoyleJ11/skate-battle-backend/internal/store/memory"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type staticLister struct {
	ids    []string
	before time.Time
	err    error
}

func (l *staticLister) ListExpired(_ context.Context, before time.Time) ([]string, error) {
	l.before = before
	return l.ids, l.err
}

type scriptedSweeper struct {
	mu       sync.Mutex
	seen     []string
	results  map[string]error
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *scriptedSweeper) Sweep(_ context.Context, id string, _ time.Time) (bool, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, id)
	if err := s.results[id]; err != nil {
		return false, err
	}
	return true, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(engine.Delta) {}

func TestSweepOnce_LooksAheadByReminderLead(t *testing.T) {
	lister := &staticLister{}
	s := scheduler.New(lister, &scriptedSweeper{}, scheduler.Config{ReminderLead: 30 * time.Second}, zaptest.NewLogger(t))

	rep := s.SweepOnce(context.Background(), t0)
	require.NoError(t, rep.Err)
	assert.Equal(t, t0.Add(30*time.Second), lister.before)
	assert.Zero(t, rep.Candidates)
}

func TestSweepOnce_FailuresDoNotStopTheSweep(t *testing.T) {
	lister := &staticLister{ids: []string{"a", "b", "c", "d"}}
	sweeper := &scriptedSweeper{results: map[string]error{
		"b": errors.New("store unavailable"),
		"d": errors.New("decode failed"),
	}}
	s := scheduler.New(lister, sweeper, scheduler.Config{Concurrency: 2}, zaptest.NewLogger(t))

	rep := s.SweepOnce(context.Background(), t0)

	assert.Equal(t, 4, rep.Candidates)
	assert.Equal(t, 2, rep.Applied)
	assert.Len(t, multierr.Errors(rep.Err), 2)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, sweeper.seen)
	assert.LessOrEqual(t, sweeper.peak.Load(), int32(2))
}

func TestSweepOnce_ListFailure(t *testing.T) {
	lister := &staticLister{err: errors.New("connection refused")}
	s := scheduler.New(lister, &scriptedSweeper{}, scheduler.Config{}, zaptest.NewLogger(t))

	rep := s.SweepOnce(context.Background(), t0)
	require.Error(t, rep.Err)
	assert.Zero(t, rep.Applied)
}

func TestSweepOnce_ForfeitsThroughBattleService(t *testing.T) {
	ctx := context.Background()
	now := t0
	clock := func() time.Time { return now }

	sessions := memory.NewSessions()
	svc := battle.NewService(sessions, nopPublisher{}, notify.NewLogNotifier(zaptest.NewLogger(t)), zaptest.NewLogger(t), battle.Options{
		Rules: engine.DefaultRules(),
		Clock: clock,
	})
	s := scheduler.New(sessions, svc, scheduler.Config{ReminderLead: judgment.DefaultReminderLead, Clock: clock}, zaptest.NewLogger(t))

	b, err := svc.Create(ctx, "A", "B", "")
	require.NoError(t, err)
	_, err = svc.SubmitSet(ctx, b.ID, "A", engine.Clip{URL: "set.mp4"}, 0)
	require.NoError(t, err)
	_, err = svc.SubmitMatch(ctx, b.ID, "B", engine.Clip{URL: "match.mp4"}, 0)
	require.NoError(t, err)

	// Inside the reminder window only.
	now = t0.Add(40 * time.Second)
	rep := s.SweepOnce(ctx, now)
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.Applied)
	got, _ := svc.Get(ctx, b.ID)
	assert.True(t, got.VoteReminderSent)
	assert.Equal(t, engine.PhaseJudging, got.TurnPhase)

	// Two schedulers racing on the same deadline apply it once.
	now = t0.Add(61 * time.Second)
	other := scheduler.New(sessions, svc, scheduler.Config{ReminderLead: judgment.DefaultReminderLead}, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	reports := make([]scheduler.Report, 2)
	for i, sch := range []*scheduler.Scheduler{s, other} {
		i, sch := i, sch
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = sch.SweepOnce(ctx, now)
		}()
	}
	wg.Wait()

	require.NoError(t, reports[0].Err)
	require.NoError(t, reports[1].Err)
	got, _ = svc.Get(ctx, b.ID)
	assert.True(t, got.VoteTimeoutOccurred)
	assert.Equal(t, []engine.Letter{"S"}, got.Letters["B"])
	assert.Equal(t, 2, got.RoundNumber)
}

func TestRun_StopsWithContext(t *testing.T) {
	lister := &staticLister{}
	s := scheduler.New(lister, &scriptedSweeper{}, scheduler.Config{Interval: time.Millisecond}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
