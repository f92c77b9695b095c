package http

import (
	"github.com/inferpay/inferpay/internal/infrastructure/config"
	"github.com/inferpay/inferpay/internal/interfaces/http/middleware"
)

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes(cfg *config.Config) {
	r.engine.Use(middleware.Logger(r.logger))
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	r.engine.GET("/health", r.healthCheck)

	r.setupSessionRoutes()
	r.setupRecoveryRoutes()
	r.setupHostRoutes()
	r.setupAnalyticsRoutes()
}

func (r *Router) setupSessionRoutes() {
	sessions := r.engine.Group("/sessions")
	if r.ipRateLimiter != nil {
		sessions.Use(r.ipRateLimiter.Limit())
	}
	{
		sessions.POST("", r.sessionHandler.OpenSession)
		sessions.GET("", r.sessionHandler.ListSessions)
		sessions.GET("/:id", r.sessionHandler.GetSession)
		sessions.GET("/:id/messages", r.sessionHandler.GetMessages)
		sessions.POST("/:id/messages", r.sessionHandler.SendMessage)
		sessions.POST("/:id/end", r.sessionHandler.EndSession)
	}
}

func (r *Router) setupRecoveryRoutes() {
	recoveryGroup := r.engine.Group("/recovery")
	{
		recoveryGroup.GET("/pending", r.recoveryHandler.GetPending)
		recoveryGroup.POST("/accept", r.recoveryHandler.Accept)
		recoveryGroup.POST("/decline", r.recoveryHandler.Decline)
	}
}

func (r *Router) setupHostRoutes() {
	r.engine.GET("/hosts", r.hostHandler.ListHosts)
}

func (r *Router) setupAnalyticsRoutes() {
	analyticsGroup := r.engine.Group("/analytics")
	{
		analyticsGroup.GET("/events", r.analyticsHandler.ListEvents)
		analyticsGroup.GET("/summaries", r.analyticsHandler.ListSummaries)
	}
}
