// Package scheduler drives battle deadlines: vote reminders, vote timeouts
// and abandonment. It never decides outcomes itself; each due battle is
// handed to the same transition the live path uses.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Lister finds battles with a deadline at or before the given instant.
type Lister interface {
	ListExpired(ctx context.Context, before time.Time) ([]string, error)
}

// Sweeper applies whatever deadline action is due for one battle.
type Sweeper interface {
	Sweep(ctx context.Context, id string, now time.Time) (bool, error)
}

type Config struct {
	Interval     time.Duration
	Concurrency  int
	ReminderLead time.Duration // how far ahead of a vote deadline to look
	Clock        func() time.Time
}

type Scheduler struct {
	lister  Lister
	sweeper Sweeper
	cfg     Config
	log     *zap.Logger
}

// Report summarises one sweep.
type Report struct {
	Candidates int
	Applied    int
	Err        error
}

func New(lister Lister, sweeper Sweeper, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Scheduler{lister: lister, sweeper: sweeper, cfg: cfg, log: log.Named("scheduler")}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	rep := s.SweepOnce(ctx, s.cfg.Clock())
	if rep.Err != nil {
		s.log.Error("sweep finished with errors",
			zap.Int("candidates", rep.Candidates),
			zap.Int("applied", rep.Applied),
			zap.Errors("errors", multierr.Errors(rep.Err)))
		return
	}
	if rep.Applied > 0 {
		s.log.Info("sweep applied deadlines", zap.Int("candidates", rep.Candidates), zap.Int("applied", rep.Applied))
	}
}

// SweepOnce processes every battle with a deadline due by now. A failure on
// one battle is collected into the report and does not stop the others.
func (s *Scheduler) SweepOnce(ctx context.Context, now time.Time) Report {
	ids, err := s.lister.ListExpired(ctx, now.Add(s.cfg.ReminderLead))
	if err != nil {
		return Report{Err: fmt.Errorf("list expired: %w", err)}
	}

	var (
		mu   sync.Mutex
		errs error
	)
	applied := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := s.sweeper.Sweep(gctx, id, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil // keep sweeping the rest
			}
			if ok {
				applied++
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Candidates: len(ids), Applied: applied, Err: errs}
}
