package api

import (
	"github.com/concave-dev/anchor/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

// Configures all API routes
func (s *Server) setupRoutes(router *gin.Engine) {
	// API version prefix
	v1 := router.Group("/api/v1")

	// Health check endpoint
	v1.GET("/health", s.handleHealth)

	// Payload lifecycle endpoints
	payloads := v1.Group("/payloads")
	{
		payloads.POST("", handlers.HandleCreatePayload(s.cfg.Store))
		payloads.GET("", handlers.HandleListPayloads(s.cfg.Store))
		payloads.GET("/:id", handlers.HandleGetPayload(s.cfg.Store))
		payloads.POST("/:id/submit", handlers.HandleSubmitPayload(s.cfg.Executor))
		payloads.GET("/:id/verify", handlers.HandleVerifyPayload(s.cfg.Executor))
	}

	// Batch execution endpoints
	batches := v1.Group("/batches")
	{
		batches.POST("", handlers.HandleProcessBatch(s.cfg.Orchestrator))
		batches.POST("/retry", handlers.HandleRetryBatch(s.cfg.Orchestrator))
	}

	// Operational statistics
	v1.GET("/stats", handlers.HandleStats(s.cfg.Store, s.cfg.Tracker, s.cfg.Chain, s.cfg.FromAddress))
}
