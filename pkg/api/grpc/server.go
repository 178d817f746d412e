package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pentaflow/pentaflow/internal/application/engine"
)

// Server is the gRPC API server. It currently serves health and
// reflection; execution RPCs arrive with the protobuf definitions.
type Server struct {
	server   *grpc.Server
	listener net.Listener
	engine   *engine.Engine
	health   *health.Server
	logger   *zap.Logger
}

// Config holds gRPC server configuration.
type Config struct {
	Port   int
	Engine *engine.Engine
	Logger *zap.Logger
}

// NewServer creates a gRPC server listening on the configured port.
func NewServer(cfg *Config) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		server:   grpcServer,
		listener: listener,
		engine:   cfg.Engine,
		health:   healthServer,
		logger:   cfg.Logger,
	}, nil
}

// Start blocks serving gRPC until the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("starting gRPC server", zap.String("addr", s.listener.Addr().String()))
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if err := s.server.Serve(s.listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(_ context.Context) error {
	s.logger.Info("shutting down gRPC server")
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.server.GracefulStop()
	s.logger.Info("gRPC server shut down complete")
	return nil
}
