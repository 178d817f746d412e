package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pentaflow/pentaflow/internal/application/engine"
	"github.com/pentaflow/pentaflow/internal/application/primitives"
	"github.com/pentaflow/pentaflow/internal/config"
	"github.com/pentaflow/pentaflow/pkg/adapters/agents"
	"github.com/pentaflow/pentaflow/pkg/adapters/durable"
	eventsmemory "github.com/pentaflow/pentaflow/pkg/adapters/events/memory"
	eventsredis "github.com/pentaflow/pentaflow/pkg/adapters/events/redis"
	"github.com/pentaflow/pentaflow/pkg/adapters/llm"
	"github.com/pentaflow/pentaflow/pkg/adapters/metrics/prometheus"
	storememory "github.com/pentaflow/pentaflow/pkg/adapters/store/memory"
	storeredis "github.com/pentaflow/pentaflow/pkg/adapters/store/redis"
	"github.com/pentaflow/pentaflow/pkg/api/grpc"
	"github.com/pentaflow/pentaflow/pkg/api/http"
	"github.com/pentaflow/pentaflow/pkg/api/websocket"
	"github.com/pentaflow/pentaflow/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting pentaflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	// Storage and events: Redis when configured, in-memory otherwise.
	var (
		executionStore ports.ExecutionStore
		eventBus       ports.EventBus
		redisClient    *goredis.Client
	)
	if cfg.RedisEnabled() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		executionStore = storeredis.NewExecutionStore(redisClient, cfg.Redis.RecordTTL, logger)
		eventBus = eventsredis.NewStreamsEventBus(
			redisClient,
			"pentaflow-engine",
			fmt.Sprintf("pentaflow-%d", os.Getpid()),
			logger,
		)
	} else {
		logger.Info("running with in-memory store and event bus")
		executionStore = storememory.NewExecutionStore()
		eventBus = eventsmemory.NewEventBus()
	}

	// Agent delegation: enabled only when an LLM key is configured.
	var coordinator ports.AgentCoordinator
	if cfg.AgentsEnabled() {
		llmClient, err := llm.NewClient(&llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("failed to create LLM client", zap.Error(err))
		}
		coordinator = agents.NewCoordinator(llmClient, cfg.LLM.DefaultModel, logger)
		logger.Info("agent delegation enabled", zap.String("provider", cfg.LLM.Provider))
	} else {
		logger.Info("agent delegation disabled, no LLM API key configured")
	}

	// Durable execution: enabled only when an endpoint is configured.
	var durableEngine ports.DurableEngine
	if cfg.Durable.Endpoint != "" {
		durableEngine = durable.NewRemoteEngine(cfg.Durable.Endpoint, cfg.Durable.RequestTimeout, logger)
		logger.Info("durable execution configured", zap.String("endpoint", cfg.Durable.Endpoint))
	}

	metricsCollector := prometheus.NewCollector()
	registry := primitives.NewRegistry(logger)

	eng := engine.New(engine.Config{
		Registry:     registry,
		Store:        executionStore,
		Events:       eventBus,
		Durable:      durableEngine,
		Agents:       coordinator,
		Metrics:      metricsCollector,
		Logger:       logger,
		GraphTimeout: cfg.Timeouts.GraphExecutionTimeout,
	})

	httpServer := http.NewServer(&http.Config{
		Port:   cfg.HTTPPort,
		Engine: eng,
		Logger: logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(eventBus, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("pentaflow started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", zap.Error(err))
	}
	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("pentaflow shut down complete")
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return logger
}
