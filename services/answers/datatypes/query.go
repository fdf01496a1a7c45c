// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the answers service.
//
// This file contains the inbound query request and the stream event types
// emitted over SSE. For record store shapes, see records.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQuestionBytes is the maximum size of a question. Checked in bytes,
	// not runes, to bound memory for pathological payloads.
	MaxQuestionBytes = 8 * 1024
)

// queryValidate is the validator instance for query datatypes.
var queryValidate *validator.Validate

func init() {
	queryValidate = validator.New()
	_ = queryValidate.RegisterValidation("maxbytes", validateQuestionBytes)
}

func validateQuestionBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// =============================================================================
// Query Request
// =============================================================================

// QueryRequest is the body of POST /v1/query/stream.
//
// # Description
//
// A query names the asking user, their organisation, and a free-text
// question. Both identifiers must resolve against the record store before
// any entity extraction happens; the handler rejects the request otherwise.
//
// # Fields
//
//   - Question: Required. Free-text question, at most 8KB.
//   - OrgID: Required. Storage identifier of the organisation.
//   - UserID: Required. Storage identifier of the asking user. The user's
//     role and assignment set drive the visibility policy.
//
// # Validation
//
// Uses go-playground/validator:
//   - Question: required, maxbytes (8KB)
//   - OrgID, UserID: required
//
// # Assumptions
//
//   - Identifiers are opaque strings minted by the record store; the
//     service never parses them.
type QueryRequest struct {
	Question string `json:"question" validate:"required,maxbytes"`
	OrgID    string `json:"org_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
}

// Validate checks the request against its validation rules.
func (r *QueryRequest) Validate() error {
	return queryValidate.Struct(r)
}

// =============================================================================
// Stream Events
// =============================================================================

// Stream event types emitted by the summary delivery pipeline, in order:
// status, zero or more chunks, at most one project_ref and one lead_ref,
// then done. An error event replaces everything after the point of failure.
const (
	EventStatus     = "status"
	EventChunk      = "chunk"
	EventProjectRef = "project_ref"
	EventLeadRef    = "lead_ref"
	EventError      = "error"
	EventDone       = "done"
)

// StreamEvent is a single SSE event payload.
//
// # Description
//
// Events are serialized as JSON in the SSE data field. Id and CreatedAt are
// populated by the SSE writer at emission time; callers only fill the
// content fields relevant to the event type.
//
// # Fields
//
//   - Type: One of the Event* constants.
//   - Id: UUID v4 assigned per event for ordering and deduplication.
//   - CreatedAt: Unix timestamp in milliseconds at emission.
//   - Content: Sentence chunk text (chunk events).
//   - Message: Human-readable status (status events).
//   - Error: Sanitized failure description (error events).
//   - ProjectID/LeadID: Resolved record identifier (trailer events). These
//     are the only places a storage identifier may reach the caller; it
//     never appears inside the summary text itself.
type StreamEvent struct {
	Type      string `json:"type"`
	Id        string `json:"id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	LeadID    string `json:"lead_id,omitempty"`
}
