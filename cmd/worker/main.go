package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/infrastructure/config"
	"github.com/inferpay/inferpay/internal/infrastructure/database"
	"github.com/inferpay/inferpay/internal/infrastructure/kvstore"
	"github.com/inferpay/inferpay/internal/infrastructure/ledgerclient"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	"github.com/inferpay/inferpay/internal/infrastructure/repository"
	"github.com/inferpay/inferpay/internal/infrastructure/scheduler"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// The worker retries settlements and expires overdue sessions out of band,
// so a crashed or slow coordinator instance cannot strand escrowed deposits.
func main() {
	env := "development"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger()
	log.Infow("starting settlement worker", "environment", env)

	if err := database.Init(&cfg.Database); err != nil {
		log.Errorw("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	sessionRepo := repository.NewSessionRepository(database.Get())
	kv := kvstore.NewGormStore(database.Get(), "inferpay:")
	recoveryStore := recovery.NewStore(kv, cfg.Recovery.MaxAge())
	recorder := analytics.NewRecorder(cfg.Analytics.MaxEvents, cfg.Analytics.MaxSummaries, kv, log)
	ledgerClient := ledgerclient.NewHTTPLedger(cfg.Ledger.RelayURL, cfg.Ledger.CallTimeout(), log)

	splitPolicy, err := session.NewSplitPolicy(cfg.Session.HostShareBps)
	if err != nil {
		log.Errorw("invalid session config", "error", err)
		os.Exit(1)
	}
	retry := usecases.RetryPolicy{
		MaxAttempts: cfg.Ledger.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Ledger.BackoffBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Ledger.BackoffMaxMs) * time.Millisecond,
	}
	endUC := usecases.NewEndSessionUseCase(sessionRepo, ledgerClient, splitPolicy, recoveryStore, recorder, log, retry)

	settlementJob := scheduler.NewSettlementJob(sessionRepo, endUC, log)
	expiryJob := scheduler.NewExpiryJob(sessionRepo, endUC, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interval := time.Duration(cfg.Ledger.SettleRetryMins) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, expiryJob, settlementJob, log)
	log.Infow("settlement worker started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			runOnce(ctx, expiryJob, settlementJob, log)

		case sig := <-sigChan:
			log.Infow("received signal, shutting down", "signal", sig)

			// One last pass so nothing settles a full interval late.
			finalCtx, finalCancel := context.WithTimeout(context.Background(), 60*time.Second)
			runOnce(finalCtx, expiryJob, settlementJob, log)
			finalCancel()

			log.Infow("settlement worker stopped")
			return
		}
	}
}

func runOnce(ctx context.Context, expiry, settlement scheduler.BatchJob, log logger.Interface) {
	if expired, err := expiry.Execute(ctx); err != nil {
		log.Errorw("expiry pass failed", "error", err)
	} else if expired > 0 {
		log.Infow("expired sessions ended", "count", expired)
	}

	if settled, err := settlement.Execute(ctx); err != nil {
		log.Errorw("settlement pass failed", "error", err)
	} else if settled > 0 {
		log.Infow("settlements retried", "count", settled)
	}
}
