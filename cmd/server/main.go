package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/skate-battle-backend/internal/battle"
	"github.com/DoyleJ11/skate-battle-backend/internal/config"
	"github.com/DoyleJ11/skate-battle-backend/internal/dispute"
	"github.com/DoyleJ11/skate-battle-backend/internal/httpapi"
	"github.com/DoyleJ11/skate-battle-backend/internal/hub"
	"github.com/DoyleJ11/skate-battle-backend/internal/notify"
	"github.com/DoyleJ11/skate-battle-backend/internal/scheduler"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
	"github.com/DoyleJ11/skate-battle-backend/internal/store/memory"
	"github.com/DoyleJ11/skate-battle-backend/internal/store/postgres"
	"github.com/DoyleJ11/skate-battle-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, disputes, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	// The hub needs the battle service for presence and the service needs
	// the hub to publish, so the presence hook closes over svc.
	var svc *battle.Service
	h := hub.NewHub(ctx, func(ctx context.Context, id, participant string, online bool) error {
		return svc.SetPresence(ctx, id, participant, online)
	}, logger)
	svc = battle.NewService(sessions, h, notify.NewLogNotifier(logger), logger, battle.Options{
		Rules:   cfg.Rules(),
		Retries: cfg.MaxRetries,
	})
	disputeSvc := dispute.NewService(sessions, disputes, h, logger)

	sched := scheduler.New(sessions, svc, scheduler.Config{
		Interval:     cfg.SweepInterval,
		Concurrency:  cfg.SweepConcurrency,
		ReminderLead: cfg.VoteReminderLead,
	}, logger)

	wsHandler := ws.Handler(h, svc, ws.Options{
		Limits:         cfg.RateLimits(),
		OriginPatterns: cfg.WSOriginPatterns,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(svc, disputeSvc, wsHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		h.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg config.Config, logger *zap.Logger) (store.Sessions, dispute.Repository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, battles are kept in memory")
		return memory.NewSessions(), memory.NewDisputes(), nil
	}
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewSessions(db), postgres.NewDisputes(db), nil
}
