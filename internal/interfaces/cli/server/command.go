package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/inferpay/inferpay/internal/infrastructure/config"
	"github.com/inferpay/inferpay/internal/infrastructure/database"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	"github.com/inferpay/inferpay/internal/infrastructure/scheduler"
	httpRouter "github.com/inferpay/inferpay/internal/interfaces/http"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long:  `Start the session coordinator HTTP server with the specified configuration.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Run database migrations on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Server.Mode = mapEnvToGinMode(env)

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()
	log.Infow("starting server", "environment", env, "auto_migrate", autoMigrate)

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if autoMigrate {
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Infow("database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Infow("redis connection established", "address", cfg.Redis.GetAddr())
	}

	router, err := httpRouter.NewRouter(database.Get(), redisClient, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	defer router.Coordinator().Close()
	router.SetupRoutes(cfg)

	jobs, err := startScheduler(cfg, router, log)
	if err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer jobs.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.GetAddr(),
		Handler: router.Engine(),
	}

	go func() {
		log.Infow("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Infow("server stopped")
	return nil
}

// startScheduler registers the maintenance jobs: session expiry, settlement
// retries, and rate-limit window sweeps for the in-process limiter.
func startScheduler(cfg *config.Config, router *httpRouter.Router, log logger.Interface) (*scheduler.Manager, error) {
	manager, err := scheduler.NewManager(log)
	if err != nil {
		return nil, err
	}

	expiry := scheduler.NewExpiryJob(router.SessionRepo(), router.EndSessionUseCase(), router.Coordinator(), log)
	settlement := scheduler.NewSettlementJob(router.SessionRepo(), router.EndSessionUseCase(), log)

	retryInterval := time.Duration(cfg.Ledger.SettleRetryMins) * time.Minute
	if err := manager.RegisterJob("session-expiry", time.Minute, expiry); err != nil {
		return nil, err
	}
	if err := manager.RegisterJob("settlement-retry", retryInterval, settlement); err != nil {
		return nil, err
	}

	if fwl, ok := router.Limiter().(*ratelimit.FixedWindowLimiter); ok {
		sweep := scheduler.NewSweepJob(fwl, log)
		interval := time.Duration(cfg.RateLimit.SweepIntervalSeconds) * time.Second
		if err := manager.RegisterJob("ratelimit-sweep", interval, sweep); err != nil {
			return nil, err
		}
	}

	manager.Start()
	return manager, nil
}

func mapEnvToGinMode(env string) string {
	switch env {
	case "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
