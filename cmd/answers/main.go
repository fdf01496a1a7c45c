// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command answers starts the StudioBridge question-answering HTTP server.
//
// This is the main entry point for the containerized answers service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ANSWERS_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - openai, relay (default: openai)
//   - MONGO_URI: MongoDB connection string (optional; in-memory store if unset)
//   - MONGO_DATABASE: MongoDB database name (default: studiobridge)
//   - CHUNK_DELAY_MS: Pause between streamed sentence chunks (default: 75)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: studiobridge-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o answers ./cmd/answers
//
//	# Run
//	./answers
//
//	# Or via container
//	podman-compose up answers
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/StudioBridgeAI/StudioBridge/services/answers"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := answers.Config{
		Port:          getEnvInt("ANSWERS_PORT", 12310),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "openai"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnvString("MONGO_DATABASE", "studiobridge"),
		ChunkDelay:    time.Duration(getEnvInt("CHUNK_DELAY_MS", 75)) * time.Millisecond,
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "studiobridge-otel-collector:4317"),
	}

	slog.Info("Starting answers service",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"mongo_database", cfg.MongoDatabase,
	)

	svc, err := answers.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create answers service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Answers service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
