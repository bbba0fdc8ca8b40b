// Worker periodically purges expired sessions and pending second-factor tokens.
// Expiry is already enforced at read time; this only reclaims storage. Set DATABASE_URL and
// optionally JANITOR_INTERVAL (default 1h).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"twofactor-session/internal/config"
	"twofactor-session/internal/db"
	"twofactor-session/internal/logging"
	mfaintentrepo "twofactor-session/internal/mfaintent/repository"
	sessionrepo "twofactor-session/internal/session/repository"
	sessionservice "twofactor-session/internal/session/service"
	userrepo "twofactor-session/internal/user/repository"
)

// purgeTimeout bounds one janitor pass.
const purgeTimeout = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(logging.Config{ServiceName: "twofactor-session-worker", Environment: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("worker: shutting down...")
		cancel()
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("worker: database", zap.Error(err))
	}
	defer conn.Close()

	store := sessionservice.NewStore(sessionrepo.NewPostgresRepository(conn), userrepo.NewPostgresRepository(conn), cfg.SessionTTL())
	intents := mfaintentrepo.NewPostgresRepository(conn)

	interval := cfg.JanitorInterval()
	logger.Info("worker: janitor started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		purge(ctx, store, intents, logger)
		select {
		case <-ctx.Done():
			logger.Info("worker: stopped")
			return
		case <-ticker.C:
		}
	}
}

func purge(ctx context.Context, store *sessionservice.Store, intents mfaintentrepo.Repository, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	sessions, err := store.PurgeExpired(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("worker: purge sessions", zap.Error(err))
	}
	pending, err := intents.DeleteExpired(ctx, time.Now().UTC())
	if err != nil && ctx.Err() == nil {
		logger.Error("worker: purge pending second-factor tokens", zap.Error(err))
	}
	if sessions > 0 || pending > 0 {
		logger.Info("worker: purged expired rows", zap.Int64("sessions", sessions), zap.Int64("pending", pending))
	}
}
