// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package answers provides the core question-answering service for
// StudioBridge.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the record store gateway, entity extraction,
// access policy, context aggregation, the LLM summarizer, and
// observability infrastructure.
//
// # Usage
//
//	cfg := answers.Config{Port: 12310, LLMBackend: "openai"}
//	svc, err := answers.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package answers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/aggregate"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/extract"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/handlers"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/observability"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/routes"
	svc "github.com/StudioBridgeAI/StudioBridge/services/answers/services"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/store"
	"github.com/StudioBridgeAI/StudioBridge/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the answers service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Limitations
//
//   - No graceful shutdown method yet
//   - Run() blocks until server error
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	// Callers must not modify the router.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds answers service configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or programmatically
// for testing. All fields are optional with defaults applied by New().
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Full configuration
//	cfg := Config{
//	    Port:          12310,
//	    LLMBackend:    "openai",
//	    MongoURI:      "mongodb://localhost:27017",
//	    MongoDatabase: "studiobridge",
//	    OTelEndpoint:  "localhost:4317",
//	    ChunkDelay:    100 * time.Millisecond,
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the LLM provider.
	// Valid values: "openai", "relay"
	// Default: "openai"
	LLMBackend string

	// MongoURI is the MongoDB connection string.
	// If empty, an in-memory record store is used (development only).
	MongoURI string

	// MongoDatabase is the database name. Default: "studiobridge"
	MongoDatabase string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "studiobridge-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// ChunkDelay is the fixed pause between streamed sentence chunks.
	// Default: 75ms
	ChunkDelay time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - Record store gateway (MongoDB or in-memory)
//   - Entity extraction and context aggregation
//   - LLM summarization
//   - OpenTelemetry tracing
//   - Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	gateway       store.Gateway
	llmClient     llm.LLMClient
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new answers Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Connects the record store (MongoDB, or in-memory fallback)
//  5. Creates the LLM client based on backend type
//  6. Wires extractor, aggregator, summarizer, and handler
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run answers service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider
//   - Network is available for external service connections
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	var metrics *observability.QueryMetrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for query streaming")
	}

	// Initialize record store
	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	// Initialize LLM client
	s.llmClient, err = llm.New(s.config.LLMBackend)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	slog.Info("Using LLM backend", "backend", s.config.LLMBackend)

	// Wire the pipeline
	extractor, err := extract.New(extract.DefaultConfig())
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build extractor: %w", err)
	}
	aggregator := aggregate.New(s.gateway)
	summarizer := svc.NewSummaryService(s.llmClient)
	queryHandler := handlers.NewQueryHandler(
		s.gateway, extractor, aggregator, summarizer, metrics, s.config.ChunkDelay)

	// Setup HTTP router
	s.initRouter(queryHandler)

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting answers server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "studiobridge"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "studiobridge-otel-collector:4317"
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = handlers.DefaultChunkDelay
	}
	cfg.EnableMetrics = true

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up OTLP trace exporter to send spans to the configured collector.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("answers-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore connects the record store gateway.
//
// # Description
//
// Connects to MongoDB when a URI is configured. Without one the service
// falls back to an empty in-memory store, which keeps local development
// and tests working but answers every lookup with not-found.
func (s *service) initStore() error {
	if s.config.MongoURI == "" {
		slog.Warn("MONGO_URI not configured, using in-memory record store")
		s.gateway = store.NewMemoryGateway()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gateway, err := store.ConnectMongo(ctx, s.config.MongoURI, s.config.MongoDatabase)
	if err != nil {
		return fmt.Errorf("mongo connection failed: %w", err)
	}
	s.gateway = gateway
	slog.Info("Connected to MongoDB", "database", s.config.MongoDatabase)

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter(queryHandler *handlers.QueryHandler) {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("answers-service"))

	routes.SetupRoutes(s.router, queryHandler, s.config.EnableMetrics)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.gateway.Close(ctx); err != nil {
			slog.Warn("record store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
