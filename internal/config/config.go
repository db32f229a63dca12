// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/ratelimit"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"` // empty keeps battles in memory

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`

	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"8"`

	VoteWindow       time.Duration `env:"VOTE_WINDOW" envDefault:"60s"`
	VoteReminderLead time.Duration `env:"VOTE_REMINDER_LEAD" envDefault:"30s"`
	TurnTimeout      time.Duration `env:"TURN_TIMEOUT" envDefault:"10m"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`

	RateMovePerSec    float64 `env:"RATE_MOVE_PER_SEC" envDefault:"1"`
	RateMoveBurst     int     `env:"RATE_MOVE_BURST" envDefault:"3"`
	RateVotePerSec    float64 `env:"RATE_VOTE_PER_SEC" envDefault:"1"`
	RateVoteBurst     int     `env:"RATE_VOTE_BURST" envDefault:"2"`
	RateControlPerSec float64 `env:"RATE_CONTROL_PER_SEC" envDefault:"2"`
	RateControlBurst  int     `env:"RATE_CONTROL_BURST" envDefault:"5"`

	WSOriginPatterns []string `env:"WS_ORIGIN_PATTERNS" envSeparator:","`
}

// Load reads files (default ".env") into the environment without
// overriding variables already set, then parses Config. Missing files are
// ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.VoteWindow <= 0:
		return errors.New("VOTE_WINDOW must be positive")
	case c.VoteReminderLead <= 0 || c.VoteReminderLead >= c.VoteWindow:
		return errors.New("VOTE_REMINDER_LEAD must be positive and within VOTE_WINDOW")
	case c.TurnTimeout <= 0:
		return errors.New("TURN_TIMEOUT must be positive")
	case c.SweepInterval <= 0:
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c Config) Rules() engine.Rules {
	return engine.Rules{
		VoteWindow:   c.VoteWindow,
		ReminderLead: c.VoteReminderLead,
		TurnTimeout:  c.TurnTimeout,
	}
}

func (c Config) RateLimits() ratelimit.Config {
	return ratelimit.Config{
		ratelimit.CategoryMove:    {PerSecond: c.RateMovePerSec, Burst: c.RateMoveBurst},
		ratelimit.CategoryVote:    {PerSecond: c.RateVotePerSec, Burst: c.RateVoteBurst},
		ratelimit.CategoryControl: {PerSecond: c.RateControlPerSec, Burst: c.RateControlBurst},
	}
}

// Logger builds the process logger: JSON in production, console when
// LOG_DEV is set.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
