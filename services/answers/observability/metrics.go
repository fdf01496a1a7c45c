// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the answers
// service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring query streaming
// operations. Metrics include:
//   - Request counters (by visibility policy and status)
//   - Chunk counters (sentence chunks delivered)
//   - Latency histograms (summarization, total stream duration)
//   - Active stream gauges
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "studiobridge"

// Subsystem for answer streaming metrics
const answersSubsystem = "answers"

// QueryMetrics holds all Prometheus metrics for query streaming operations.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring streaming
// performance and resource usage. Initialize once at startup via
// InitMetrics().
//
// # Fields
//
//   - RequestsTotal: Counter of query requests by policy and status
//   - ChunksTotal: Counter of sentence chunks delivered by policy
//   - SummarizeDurationSeconds: Histogram of blocking summarization latency
//   - StreamDurationSeconds: Histogram of total stream duration
//   - ActiveStreams: Gauge of currently active streams
//   - ErrorsTotal: Counter of errors by type
//   - KeepAlivesTotal: Counter of keepalive pings sent
//   - ClientDisconnectsTotal: Counter of mid-stream client disconnects
//
// # Thread Safety
//
// All operations are thread-safe.
type QueryMetrics struct {
	// RequestsTotal counts query requests by visibility policy and status.
	// Labels: policy (org_wide, org_read, owned_only), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ChunksTotal counts sentence chunks delivered to clients.
	// Labels: policy
	ChunksTotal *prometheus.CounterVec

	// SummarizeDurationSeconds measures the blocking model call latency.
	SummarizeDurationSeconds prometheus.Histogram

	// StreamDurationSeconds measures total stream duration.
	// Labels: status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active streaming connections.
	ActiveStreams prometheus.Gauge

	// ErrorsTotal counts errors by type.
	// Labels: error_code (validation, not_found, llm_error, internal, ...)
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive pings sent.
	KeepAlivesTotal prometheus.Counter

	// ClientDisconnectsTotal counts client disconnections during streaming.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of QueryMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *QueryMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *QueryMetrics {
	DefaultMetrics = &QueryMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "requests_total",
				Help:      "Total number of query requests by policy and status",
			},
			[]string{"policy", "status"},
		),

		ChunksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "chunks_total",
				Help:      "Total sentence chunks delivered by policy",
			},
			[]string{"policy"},
		),

		SummarizeDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "summarize_duration_seconds",
				Help:      "Blocking summarization call latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "errors_total",
				Help:      "Total query errors by type",
			},
			[]string{"error_code"},
		),

		KeepAlivesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive pings sent",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answersSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeNotFound indicates a named record was absent.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeLLMError indicates the summarization backend failed.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeStoreError indicates a record store failure.
	ErrorCodeStoreError ErrorCode = "store_error"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed query request.
func (m *QueryMetrics) RecordRequest(policy string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(policy, status).Inc()
}

// RecordChunks adds to the delivered chunk counter.
func (m *QueryMetrics) RecordChunks(policy string, count int) {
	m.ChunksTotal.WithLabelValues(policy).Add(float64(count))
}

// RecordError records a query error.
func (m *QueryMetrics) RecordError(code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(code)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *QueryMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *QueryMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordSummarizeDuration records the blocking model call latency.
func (m *QueryMetrics) RecordSummarizeDuration(seconds float64) {
	m.SummarizeDurationSeconds.Observe(seconds)
}

// RecordStreamDuration records the total stream duration.
func (m *QueryMetrics) RecordStreamDuration(seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *QueryMetrics) RecordKeepAlive() {
	m.KeepAlivesTotal.Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *QueryMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}
