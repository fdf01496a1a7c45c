// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the answers service.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Orchestrating calls to the LLM backend
//   - Shaping model output for client delivery
//   - Managing error handling around upstream calls
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: Services can call other services
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
	"github.com/StudioBridgeAI/StudioBridge/services/llm"
)

// summaryTracer is the OpenTelemetry tracer for SummaryService operations.
var summaryTracer = otel.Tracer("studiobridge.answers.services.summary")

// Compile-time interface implementation check.
var _ Summarizer = (*SummaryService)(nil)

// =============================================================================
// Interfaces
// =============================================================================

// Summarizer defines the contract for turning a question plus its
// ContextEnvelope into a conversational answer.
//
// # Description
//
// The summarization step is deliberately blocking: the full answer is
// produced before any streaming begins, so sanitization and sentence
// chunking operate on complete text. Token-level model streaming is a
// transport optimization this service does not attempt.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Summarizer interface {
	// Summarize produces the final answer text for a question given its
	// assembled context. The returned text is already sanitized.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and tracing.
	//   - question: The user's question, verbatim.
	//   - envelope: The role-filtered context. When it carries a denial or
	//     note message, the model is asked to phrase the answer around it.
	//
	// # Outputs
	//
	//   - string: Sanitized answer text, ready for chunking.
	//   - error: *UpstreamError when the model call fails; the request
	//     must abort without partial output.
	Summarize(ctx context.Context, question string, envelope *datatypes.ContextEnvelope) (string, error)
}

// =============================================================================
// Errors
// =============================================================================

// UpstreamError reports a failed model call. Handlers map it to a 502.
type UpstreamError struct {
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("summarization upstream failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream checks whether an error is an *UpstreamError.
func IsUpstream(err error) bool {
	_, ok := err.(*UpstreamError)
	return ok
}

// =============================================================================
// Sanitization
// =============================================================================

// Sanitization strips model formatting the clients cannot render: markdown
// emphasis runs, angle-bracket fragments, and hard line breaks.
var (
	emphasisRuns  = regexp.MustCompile(`\*+`)
	angleBrackets = regexp.MustCompile(`<[^>]*>`)
	lineBreaks    = regexp.MustCompile(`[\r\n]+`)
)

// Sanitize normalizes raw model output into plain single-line prose.
// Applying it twice yields the same result.
func Sanitize(raw string) string {
	out := emphasisRuns.ReplaceAllString(raw, "")
	out = angleBrackets.ReplaceAllString(out, "")
	out = lineBreaks.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// =============================================================================
// Sentence Chunking
// =============================================================================

// sentenceEnd marks a chunk boundary: terminal punctuation followed by
// whitespace. Runs like "?!" stay inside one chunk.
var sentenceEnd = regexp.MustCompile(`[.?!]+\s+`)

// Chunk splits sanitized answer text into sentence-sized pieces for paced
// delivery. Every byte of the input lands in exactly one chunk, in order;
// text without terminal punctuation becomes a single chunk. Chunks carry
// no trailing whitespace.
func Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	rest := text
	for {
		loc := sentenceEnd.FindStringIndex(rest)
		if loc == nil {
			break
		}
		chunks = append(chunks, strings.TrimRight(rest[:loc[1]], " \t"))
		rest = rest[loc[1]:]
	}
	if strings.TrimSpace(rest) != "" {
		chunks = append(chunks, strings.TrimRight(rest, " \t"))
	}
	return chunks
}

// =============================================================================
// SummaryService
// =============================================================================

// SummaryService produces answers through an injected LLM backend.
type SummaryService struct {
	client llm.LLMClient
}

// NewSummaryService creates a SummaryService. Panics on a nil client
// (programming error).
func NewSummaryService(client llm.LLMClient) *SummaryService {
	if client == nil {
		panic("services.NewSummaryService: client must not be nil")
	}
	return &SummaryService{client: client}
}

// BuildPrompt assembles the single-shot prompt: the question, the
// serialized context, and the answering instructions.
//
// # Limitations
//
// The envelope is serialized as JSON rather than prose. Models handle
// this fine and it keeps the prompt assembly trivial, but it means field
// names leak into the prompt; the instructions tell the model not to echo
// them.
func (s *SummaryService) BuildPrompt(question string, envelope *datatypes.ContextEnvelope) (string, error) {
	contextJSON, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to serialize context: %w", err)
	}

	var b strings.Builder
	b.WriteString("Answer the user's question using only the context below.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	b.Write(contextJSON)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString("- Answer concisely in plain conversational prose.\n")
	b.WriteString("- Do not mention field names, identifiers, or that you were given context.\n")
	b.WriteString("- If the context contains a message instead of records, relay that message politely.\n")
	b.WriteString("- If the context does not answer the question, say so; never invent details.\n")
	return b.String(), nil
}

// Summarize implements the Summarizer interface.
func (s *SummaryService) Summarize(ctx context.Context, question string, envelope *datatypes.ContextEnvelope) (string, error) {
	ctx, span := summaryTracer.Start(ctx, "SummaryService.Summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("question_length", len(question)))

	prompt, err := s.BuildPrompt(question, envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt assembly failed")
		return "", err
	}

	temperature := float32(0.2)
	raw, err := s.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return "", &UpstreamError{Err: err}
	}

	answer := Sanitize(raw)
	span.SetAttributes(attribute.Int("answer_length", len(answer)))
	return answer, nil
}
