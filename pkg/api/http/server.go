package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/internal/application/engine"
)

// Server is the HTTP API server.
type Server struct {
	router *gin.Engine
	server *http.Server
	engine *engine.Engine
	logger *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Port   int
	Engine *engine.Engine
	Logger *zap.Logger
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())
	router.Use(userIdentity())

	s := &Server{
		router: router,
		engine: cfg.Engine,
		logger: cfg.Logger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/executions", s.handleSubmitExecution)
		v1.GET("/executions", s.handleListExecutions)
		v1.GET("/executions/stats", s.handleExecutionStats)
		v1.GET("/executions/:id", s.handleGetExecution)
		v1.GET("/executions/:id/history", s.handleGetHistory)
		v1.GET("/executions/:id/result", s.handleGetResult)
		v1.POST("/executions/:id/cancel", s.handleCancelExecution)
	}
}

// SetupWebSocket mounts the execution event stream endpoint.
func (s *Server) SetupWebSocket(handler interface {
	HandleExecutionStream(*gin.Context)
}) {
	s.router.GET("/api/v1/executions/:id/ws", handler.HandleExecutionStream)
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.logger.Info("HTTP server shut down complete")
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
