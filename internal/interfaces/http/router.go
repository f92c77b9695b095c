package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/inferpay/inferpay/internal/application/session/coordinator"
	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/domain/grant"
	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/infrastructure/config"
	"github.com/inferpay/inferpay/internal/infrastructure/grantstore"
	"github.com/inferpay/inferpay/internal/infrastructure/hostclient"
	"github.com/inferpay/inferpay/internal/infrastructure/kvstore"
	"github.com/inferpay/inferpay/internal/infrastructure/ledgerclient"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	"github.com/inferpay/inferpay/internal/infrastructure/repository"
	"github.com/inferpay/inferpay/internal/infrastructure/walletclient"
	"github.com/inferpay/inferpay/internal/interfaces/http/handlers"
	"github.com/inferpay/inferpay/internal/interfaces/http/middleware"
	sharedConfig "github.com/inferpay/inferpay/internal/shared/config"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// Router wires the HTTP surface: repositories, stores, use cases, the
// per-session coordinator, and the handlers over them.
type Router struct {
	engine *gin.Engine
	logger logger.Interface

	sessionHandler   *handlers.SessionHandler
	recoveryHandler  *handlers.RecoveryHandler
	hostHandler      *handlers.HostHandler
	analyticsHandler *handlers.AnalyticsHandler
	ipRateLimiter    *middleware.IPRateLimiter

	coord       *coordinator.Coordinator
	limiter     ratelimit.Limiter
	sessionRepo session.SessionRepository
	endUC       *usecases.EndSessionUseCase
	recorder    *analytics.Recorder
	db          *gorm.DB
}

// NewRouter builds the full dependency graph. redisClient may be nil; the
// limiter and snapshot store then run on process-local state backed by the
// database.
func NewRouter(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, log logger.Interface) (*Router, error) {
	engine := gin.New()

	sessionRepo := repository.NewSessionRepository(db)

	var kv kvstore.Store
	var limiter ratelimit.Limiter
	rules := rateLimitRules(&cfg.RateLimit)
	if redisClient != nil {
		kv = kvstore.NewRedisStore(redisClient, "inferpay:", cfg.Recovery.MaxAge())
		limiter = ratelimit.NewRedisLimiter(redisClient, rules)
	} else {
		kv = kvstore.NewGormStore(db, "inferpay:")
		limiter = ratelimit.NewFixedWindowLimiter(rules)
	}

	recoveryStore := recovery.NewStore(kv, cfg.Recovery.MaxAge())
	recorder := analytics.NewRecorder(cfg.Analytics.MaxEvents, cfg.Analytics.MaxSummaries, kv, log)

	ledgerClient := ledgerclient.NewHTTPLedger(cfg.Ledger.RelayURL, cfg.Ledger.CallTimeout(), log)
	transport := hostclient.NewHTTPTransport(cfg.Hosts.RegistryURL, cfg.Hosts.PromptTimeout(), log)
	walletSigner := walletclient.NewHTTPSigner(cfg.Wallet.BridgeURL, log)

	grantBuilder, err := grant.NewBuilder(cfg.Grant.PeriodSeconds, cfg.Grant.DurationSeconds, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid grant config: %w", err)
	}
	grantStore := grantstore.NewStore(kv)
	splitPolicy, err := session.NewSplitPolicy(cfg.Session.HostShareBps)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	settings := usecases.SessionSettings{
		DepositAmount:       cfg.Session.DepositAmount,
		PricePerToken:       cfg.Session.DefaultPricePerToken,
		CheckpointInterval:  cfg.Session.CheckpointInterval,
		Duration:            cfg.Session.Duration(),
		MaxTokensPerMessage: cfg.Session.MaxTokensPerMessage,
		HostShareBps:        cfg.Session.HostShareBps,
		ChainID:             cfg.Ledger.ChainID,
	}
	retry := usecases.RetryPolicy{
		MaxAttempts: cfg.Ledger.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Ledger.BackoffBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Ledger.BackoffMaxMs) * time.Millisecond,
	}

	endUC := usecases.NewEndSessionUseCase(sessionRepo, ledgerClient, splitPolicy, recoveryStore, recorder, log, retry)
	openUC := usecases.NewOpenSessionUseCase(sessionRepo, ledgerClient, walletSigner, grantBuilder, grantStore, limiter, recoveryStore, recorder, log, settings, retry)
	sendUC := usecases.NewSendMessageUseCase(sessionRepo, transport, ledgerClient, limiter, recoveryStore, recorder, endUC, log, settings)
	recoverUC := usecases.NewRecoverSessionUseCase(sessionRepo, ledgerClient, recoveryStore, endUC, log)
	discoverUC := usecases.NewDiscoverHostsUseCase(transport, limiter, log)

	coord := coordinator.New(log)

	router := &Router{
		engine:           engine,
		logger:           log,
		sessionHandler:   handlers.NewSessionHandler(openUC, sendUC, endUC, sessionRepo, coord, log),
		recoveryHandler:  handlers.NewRecoveryHandler(recoverUC, coord, log),
		hostHandler:      handlers.NewHostHandler(discoverUC, log),
		analyticsHandler: handlers.NewAnalyticsHandler(recorder),
		coord:            coord,
		limiter:          limiter,
		sessionRepo:      sessionRepo,
		endUC:            endUC,
		recorder:         recorder,
		db:               db,
	}
	if redisClient != nil {
		router.ipRateLimiter = middleware.NewIPRateLimiter(redisClient, 300, time.Minute)
	}
	return router, nil
}

func rateLimitRules(cfg *sharedConfig.RateLimitConfig) ratelimit.Rules {
	return ratelimit.Rules{
		ratelimit.KindMessage: {
			Capacity: cfg.MessageCapacity,
			Window:   time.Duration(cfg.MessageWindowSeconds) * time.Second,
		},
		ratelimit.KindSessionStart: {
			Capacity: cfg.SessionStartCapacity,
			Window:   time.Duration(cfg.SessionStartWindowSecs) * time.Second,
		},
		ratelimit.KindHostDiscovery: {
			Capacity: cfg.DiscoveryCapacity,
			Window:   time.Duration(cfg.DiscoveryWindowSeconds) * time.Second,
		},
	}
}

// Engine exposes the underlying gin engine for serving.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Coordinator exposes the per-session coordinator for shutdown.
func (r *Router) Coordinator() *coordinator.Coordinator {
	return r.coord
}

// Limiter exposes the rate limiter for the sweep scheduler.
func (r *Router) Limiter() ratelimit.Limiter {
	return r.limiter
}

// SessionRepo exposes the session repository for the maintenance jobs.
func (r *Router) SessionRepo() session.SessionRepository {
	return r.sessionRepo
}

// EndSessionUseCase exposes the end-session use case for the maintenance jobs.
func (r *Router) EndSessionUseCase() *usecases.EndSessionUseCase {
	return r.endUC
}

func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
