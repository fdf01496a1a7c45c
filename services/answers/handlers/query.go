// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP handlers for the answers service.
//
// The streaming query handler is the service's single operation: it binds
// the request, resolves the tenant and requester, builds the role-filtered
// context, produces the answer, and delivers it as paced Server-Sent
// Events. All fallible work happens before streaming begins, so every
// failure maps to a plain HTTP status; once the stream is open the only
// remaining failure mode is the client going away.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/access"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/aggregate"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/extract"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/observability"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/services"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/store"
)

// queryTracer is the OpenTelemetry tracer for query handler operations.
var queryTracer = otel.Tracer("studiobridge.answers.handlers.query")

// DefaultChunkDelay is the pause between sentence chunks when no delay is
// configured.
const DefaultChunkDelay = 75 * time.Millisecond

// =============================================================================
// Handler Definition
// =============================================================================

// QueryHandler serves the streaming question-answering endpoint.
//
// # Description
//
// HandleQueryStream runs the full pipeline for one question:
//
//  1. Bind and validate the request body.
//  2. Resolve the organisation and the asking user (404 when absent).
//  3. Resolve the visibility policy from the user's role.
//  4. Extract entity references from the question.
//  5. Build the role-filtered ContextEnvelope.
//  6. Produce the answer (blocking model call).
//  7. Stream sentence chunks at a fixed pace, then reference trailers,
//     then the done event.
//
// # Thread Safety
//
// Safe for concurrent use; all fields are set at construction and never
// mutated.
type QueryHandler struct {
	gateway    store.Gateway
	extractor  *extract.Extractor
	aggregator *aggregate.Aggregator
	summarizer services.Summarizer
	metrics    *observability.QueryMetrics
	chunkDelay time.Duration
}

// NewQueryHandler creates a QueryHandler.
//
// # Inputs
//
//   - gateway: Record store. Must not be nil.
//   - extractor: Entity extractor. Must not be nil.
//   - aggregator: Context aggregator. Must not be nil.
//   - summarizer: Answer producer. Must not be nil.
//   - metrics: Prometheus metrics. May be nil (metrics become no-ops).
//   - chunkDelay: Pause between sentence chunks; <= 0 selects
//     DefaultChunkDelay.
//
// # Limitations
//
//   - Panics on nil required dependencies (programming error).
func NewQueryHandler(
	gateway store.Gateway,
	extractor *extract.Extractor,
	aggregator *aggregate.Aggregator,
	summarizer services.Summarizer,
	metrics *observability.QueryMetrics,
	chunkDelay time.Duration,
) *QueryHandler {
	if gateway == nil {
		panic("handlers.NewQueryHandler: gateway must not be nil")
	}
	if extractor == nil {
		panic("handlers.NewQueryHandler: extractor must not be nil")
	}
	if aggregator == nil {
		panic("handlers.NewQueryHandler: aggregator must not be nil")
	}
	if summarizer == nil {
		panic("handlers.NewQueryHandler: summarizer must not be nil")
	}
	if chunkDelay <= 0 {
		chunkDelay = DefaultChunkDelay
	}
	return &QueryHandler{
		gateway:    gateway,
		extractor:  extractor,
		aggregator: aggregator,
		summarizer: summarizer,
		metrics:    metrics,
		chunkDelay: chunkDelay,
	}
}

// =============================================================================
// Handler
// =============================================================================

// HandleQueryStream handles POST /v1/query/stream.
//
// # Description
//
// Runs the question-answering pipeline and streams the answer as SSE.
// Error mapping, all before the stream opens:
//
//   - 400: Malformed body or validation failure.
//   - 404: Organisation, user, or a directly-named record absent under an
//     organisation-wide policy.
//   - 502: The summarization backend failed.
//   - 500: Record store failure or non-flushable response writer.
//
// Owned-only refusals are not errors: the denial message flows through
// summarization like any other context.
func (h *QueryHandler) HandleQueryStream(c *gin.Context) {
	started := time.Now()
	ctx, span := queryTracer.Start(c.Request.Context(), "HandleQueryStream")
	defer span.End()

	var req datatypes.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordError(observability.ErrorCodeValidation)
		span.SetStatus(codes.Error, "invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		h.recordError(observability.ErrorCodeValidation)
		span.SetStatus(codes.Error, "validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	span.SetAttributes(
		attribute.String("org_id", req.OrgID),
		attribute.Int("question_length", len(req.Question)),
	)

	// Tenant and requester resolution.
	org, err := h.gateway.FindOne(ctx, datatypes.KindOrganization, store.Filter{
		datatypes.FieldID: req.OrgID,
	})
	if err != nil {
		h.recordError(observability.ErrorCodeStoreError)
		h.failInternal(c, span, "organisation lookup failed", err)
		return
	}
	if org == nil {
		h.recordError(observability.ErrorCodeNotFound)
		span.SetStatus(codes.Error, "organisation not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Organisation not found"})
		return
	}

	user, err := h.gateway.FindOne(ctx, datatypes.KindUser, store.Filter{
		datatypes.FieldID:           req.UserID,
		datatypes.FieldOrganization: req.OrgID,
	})
	if err != nil {
		h.recordError(observability.ErrorCodeStoreError)
		h.failInternal(c, span, "user lookup failed", err)
		return
	}
	if user == nil {
		h.recordError(observability.ErrorCodeNotFound)
		span.SetStatus(codes.Error, "user not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	visibility := access.Resolve(user.String(datatypes.FieldRole))
	policy := visibility.String()
	span.SetAttributes(attribute.String("policy", policy))

	// Context assembly.
	refs := h.extractor.Extract(req.Question)
	envelope, resolved, err := h.aggregator.Build(ctx, aggregate.Request{
		Org:         org,
		OrgID:       req.OrgID,
		RequesterID: req.UserID,
		Visibility:  visibility,
		Refs:        refs,
	})
	if err != nil {
		if aggregate.IsNotFound(err) {
			h.recordError(observability.ErrorCodeNotFound)
			h.recordRequest(policy, false)
			span.SetStatus(codes.Error, "record not found")
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.recordError(observability.ErrorCodeStoreError)
		h.recordRequest(policy, false)
		h.failInternal(c, span, "context aggregation failed", err)
		return
	}

	// Blocking summarization. The full answer exists before the stream
	// opens, so an upstream failure is still a plain HTTP error.
	summarizeStart := time.Now()
	answer, err := h.summarizer.Summarize(ctx, req.Question, envelope)
	if h.metrics != nil {
		h.metrics.RecordSummarizeDuration(time.Since(summarizeStart).Seconds())
	}
	if err != nil {
		slog.Error("Summarization failed", "error", err, "org_id", req.OrgID)
		h.recordError(observability.ErrorCodeLLMError)
		h.recordRequest(policy, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarization failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "answer generation failed"})
		return
	}

	chunks := services.Chunk(answer)
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	// From here on the response is a stream.
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.recordError(observability.ErrorCodeInternal)
		h.recordRequest(policy, false)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	if h.metrics != nil {
		h.metrics.StreamStarted()
		defer h.metrics.StreamEnded()
	}

	completed := h.streamAnswer(ctx, writer, chunks, resolved)

	h.recordRequest(policy, completed)
	if h.metrics != nil {
		h.metrics.RecordChunks(policy, len(chunks))
		h.metrics.RecordStreamDuration(time.Since(started).Seconds(), completed)
	}
	if !completed {
		span.SetStatus(codes.Error, "client disconnected")
		return
	}
	span.SetStatus(codes.Ok, "stream completed")
}

// streamAnswer delivers the chunks at the configured pace, then the
// reference trailers, then the done event. Returns false when the client
// went away mid-stream; delivery stops at the first undeliverable event
// and nothing is retried.
func (h *QueryHandler) streamAnswer(ctx context.Context, writer SSEWriter, chunks []string, resolved datatypes.ResolvedRefs) bool {
	if err := writer.WriteStatus("Answer ready"); err != nil {
		h.clientGone("status write failed")
		return false
	}

	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			h.clientGone("during chunk delivery")
			return false
		default:
		}

		if err := writer.WriteChunk(chunk); err != nil {
			h.clientGone("chunk write failed")
			return false
		}

		// Fixed pause between chunks, not after the last one.
		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				h.clientGone("during chunk pacing")
				return false
			case <-time.After(h.chunkDelay):
			}
		}
	}

	// Reference trailers: each at most once, after all chunks.
	if resolved.ProjectID != "" {
		if err := writer.WriteProjectRef(resolved.ProjectID); err != nil {
			h.clientGone("project trailer write failed")
			return false
		}
	}
	if resolved.LeadID != "" {
		if err := writer.WriteLeadRef(resolved.LeadID); err != nil {
			h.clientGone("lead trailer write failed")
			return false
		}
	}

	if err := writer.WriteDone(); err != nil {
		h.clientGone("done write failed")
		return false
	}
	return true
}

// =============================================================================
// Helpers
// =============================================================================

func (h *QueryHandler) clientGone(where string) {
	slog.Info("Client disconnected", "where", where)
	if h.metrics != nil {
		h.metrics.RecordClientDisconnect()
		h.metrics.RecordError(observability.ErrorCodeClientDisconnect)
	}
}

func (h *QueryHandler) failInternal(c *gin.Context, span trace.Span, msg string, err error) {
	slog.Error(msg, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (h *QueryHandler) recordError(code observability.ErrorCode) {
	if h.metrics != nil {
		h.metrics.RecordError(code)
	}
}

func (h *QueryHandler) recordRequest(policy string, success bool) {
	if h.metrics != nil {
		h.metrics.RecordRequest(policy, success)
	}
}
