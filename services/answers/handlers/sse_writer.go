// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Implementations
// handle the SSE wire format (event: type\ndata: json\n\n) internally.
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Assumptions
//
//   - Caller has set Content-Type: text/event-stream before writing
//   - Caller has disabled buffering (X-Accel-Buffering: no)
type SSEWriter interface {
	// WriteEvent writes a single SSE event to the response. Id and
	// CreatedAt are auto-set; the write flushes immediately.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus writes a status event with the given message
	// (e.g., "Gathering project context...").
	WriteStatus(message string) error

	// WriteChunk writes one sentence chunk of the answer.
	WriteChunk(content string) error

	// WriteProjectRef writes the project identifier trailer event.
	// Emitted at most once per stream, after all chunks.
	WriteProjectRef(projectID string) error

	// WriteLeadRef writes the lead identifier trailer event.
	// Emitted at most once per stream, after all chunks.
	WriteLeadRef(leadID string) error

	// WriteError writes an error event and signals stream failure.
	// The message must already be sanitized (no internal details).
	WriteError(errMsg string) error

	// WriteDone writes the final event indicating successful completion.
	// Should only be called once per stream.
	WriteDone() error

	// WriteKeepAlive sends an SSE comment (": ping\n\n") to keep the TCP
	// connection active during long operations. Comments are ignored by
	// clients but reset load balancer timeout counters.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// # Description
//
// sseWriter wraps an http.ResponseWriter to emit SSE-formatted events.
// Each event is written in the format:
//
//	event: {type}
//	data: {json}
//
// # Thread Safety
//
// Thread-safe via mutex.
//
// # Limitations
//
//   - Cannot be reused across requests
//
// # Assumptions
//
//   - Response headers already set by caller
//   - ResponseWriter supports http.Flusher interface
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates a new SSEWriter for the given ResponseWriter.
//
// # Description
//
// Creates an sseWriter that wraps the ResponseWriter. The caller must
// set appropriate SSE headers before creating the writer.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write SSE events.
//   - error: Non-nil if ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetSSEHeaders(w)
//	writer, err := NewSSEWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteStatus("Processing...")
//	writer.WriteChunk("Atlas is in design.")
//	writer.WriteDone()
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteEvent writes a single SSE event to the response.
//
// # Description
//
// Populates event metadata (Id, CreatedAt), serializes to JSON, and writes
// in SSE format. Flushes immediately after writing.
//
// # Inputs
//
//   - event: StreamEvent to write. Id and CreatedAt are auto-set.
//
// # Outputs
//
//   - error: Non-nil if JSON marshaling or writing failed.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// SSE format: event: type\ndata: json\n\n
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteStatus writes a status event with the given message.
func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventStatus,
		Message: message,
	})
}

// WriteChunk writes one sentence chunk of the answer.
func (w *sseWriter) WriteChunk(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventChunk,
		Content: content,
	})
}

// WriteProjectRef writes the project identifier trailer event.
func (w *sseWriter) WriteProjectRef(projectID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.EventProjectRef,
		ProjectID: projectID,
	})
}

// WriteLeadRef writes the lead identifier trailer event.
func (w *sseWriter) WriteLeadRef(leadID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:   datatypes.EventLeadRef,
		LeadID: leadID,
	})
}

// WriteError writes an error event.
//
// # Limitations
//
//   - Caller must sanitize error messages (no internal details).
func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.EventError,
		Error: errMsg,
	})
}

// WriteDone writes the done event.
func (w *sseWriter) WriteDone() error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.EventDone,
	})
}

// WriteKeepAlive sends a comment line to keep the connection alive.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
