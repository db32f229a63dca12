// Package ratelimit throttles one connection's requests per category. Each
// connection owns its Limiter; nothing is shared between connections.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

type Category string

const (
	CategoryMove    Category = "move"
	CategoryVote    Category = "vote"
	CategoryControl Category = "control"
)

// Limit is a token bucket: PerSecond tokens refill each second, up to Burst.
type Limit struct {
	PerSecond float64
	Burst     int
}

type Config map[Category]Limit

func DefaultConfig() Config {
	return Config{
		CategoryMove:    {PerSecond: 1, Burst: 3},
		CategoryVote:    {PerSecond: 1, Burst: 2},
		CategoryControl: {PerSecond: 2, Burst: 5},
	}
}

type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

type Limiter struct {
	mu      sync.Mutex
	clock   Clock
	config  Config
	buckets map[Category]*rate.Limiter
}

// New builds a connection's limiter. A nil clock means wall time.
func New(config Config, clock Clock) *Limiter {
	if clock == nil {
		clock = wallClock{}
	}
	return &Limiter{
		clock:   clock,
		config:  config,
		buckets: make(map[Category]*rate.Limiter),
	}
}

// Allow takes one token from the category's bucket or fails with
// ErrRateLimited. Categories without a configured limit are never throttled.
func (l *Limiter) Allow(c Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[c]
	if !ok {
		limit, configured := l.config[c]
		if !configured {
			return nil
		}
		b = rate.NewLimiter(rate.Limit(limit.PerSecond), limit.Burst)
		l.buckets[c] = b
	}
	if !b.AllowN(l.clock.Now(), 1) {
		return fmt.Errorf("%w: %s", ErrRateLimited, c)
	}
	return nil
}
