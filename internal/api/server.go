// Package api provides the HTTP API server for the Anchor relay. The server
// exposes payload intake, single-payload submission, batch and retry
// triggers, and operational stats via REST endpoints, allowing operators and
// upstream signers to drive the pipeline without touching the store.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/concave-dev/anchor/internal/api/handlers"
	"github.com/concave-dev/anchor/internal/chain"
	"github.com/concave-dev/anchor/internal/logging"
	"github.com/concave-dev/anchor/internal/pipeline"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/concave-dev/anchor/internal/version"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

var startTime = time.Now() // Track server start time for uptime calculation

// Config carries the server's collaborators and bind address.
type Config struct {
	BindAddr string
	BindPort int

	Store        store.Store
	Executor     *pipeline.SubmissionExecutor
	Orchestrator *pipeline.BatchOrchestrator
	Tracker      *pipeline.InFlightTracker
	Chain        chain.Client
	FromAddress  common.Address
}

// Server is the Anchor REST API server.
type Server struct {
	cfg        Config
	httpServer *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	return &Server{cfg: cfg}
}

// Start starts the API server.
func (s *Server) Start() error {
	logging.Info("Starting HTTP API server on %s:%d", s.cfg.BindAddr, s.cfg.BindPort)

	router := gin.New()

	// Configure Gin logging only if not already configured by CLI tools
	if !logging.IsConfiguredByCLI() {
		gin.DefaultWriter = logging.NewLevelWriter("INFO", "gin")
		gin.DefaultErrorWriter = logging.NewLevelWriter("ERROR", "gin")
	}

	router.Use(s.loggingMiddleware())
	router.Use(s.corsMiddleware())
	router.Use(gin.Recovery())

	s.setupRoutes(router)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.BindAddr, s.cfg.BindPort),
		Handler: router,
		// Timeouts for production
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Test binding first to catch errors immediately
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.httpServer.Addr, err)
	}
	listener.Close() // Close the test listener

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed: %v", err)
		}
	}()

	logging.Success("HTTP API server started successfully")
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP API server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth delegates to handlers.HandleHealth
func (s *Server) handleHealth(c *gin.Context) {
	handlers.HandleHealth(version.AnchordVersion, startTime)(c)
}
