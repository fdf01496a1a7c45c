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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/aggregate"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/extract"
	svc "github.com/StudioBridgeAI/StudioBridge/services/answers/services"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSummarizer returns a canned answer and captures the envelope it saw.
type stubSummarizer struct {
	answer string
	err    error

	gotQuestion string
	gotEnvelope *datatypes.ContextEnvelope
}

func (s *stubSummarizer) Summarize(_ context.Context, question string, envelope *datatypes.ContextEnvelope) (string, error) {
	s.gotQuestion = question
	s.gotEnvelope = envelope
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

// seedGateway builds the fixture shared by the handler tests.
func seedGateway(t *testing.T) *store.MemoryGateway {
	t.Helper()
	gw := store.NewMemoryGateway()

	gw.Insert(datatypes.KindOrganization, datatypes.Record{
		"_id":          "org-acme",
		"organization": "Acme Studio",
	})
	gw.Insert(datatypes.KindProject, datatypes.Record{
		"_id":            "doc-p1",
		"project_id":     "p-atlas",
		"project_name":   "atlas",
		"org_id":         "org-acme",
		"client":         "Northwind",
		"project_status": "design",
		"fileId":         "file-77",
	})
	gw.Insert(datatypes.KindProject, datatypes.Record{
		"_id":          "doc-p2",
		"project_id":   "p-beacon",
		"project_name": "beacon",
		"org_id":       "org-acme",
	})
	gw.Insert(datatypes.KindLead, datatypes.Record{
		"_id":     "doc-l1",
		"lead_id": "l-harbor",
		"name":    "harbor",
		"org_id":  "org-acme",
	})
	gw.Insert(datatypes.KindUser, datatypes.Record{
		"_id":          "u-priya",
		"username":     "priya",
		"organization": "org-acme",
		"role":         "ADMIN",
		"password":     "hashed-secret",
	})
	gw.Insert(datatypes.KindUser, datatypes.Record{
		"_id":          "u-sam",
		"username":     "sam",
		"organization": "org-acme",
		"role":         "USER",
		"data": map[string]any{
			"projectData": []any{
				map[string]any{"project_id": "p-atlas"},
			},
		},
	})

	return gw
}

// newTestRouter wires a full pipeline over the memory gateway with the
// given summarizer and a near-zero chunk delay.
func newTestRouter(t *testing.T, gw *store.MemoryGateway, summarizer svc.Summarizer) *gin.Engine {
	t.Helper()

	extractor, err := extract.New(extract.DefaultConfig())
	require.NoError(t, err)

	handler := NewQueryHandler(gw, extractor, aggregate.New(gw), summarizer, nil, time.Millisecond)

	router := gin.New()
	router.POST("/v1/query/stream", handler.HandleQueryStream)
	return router
}

func postQuery(t *testing.T, router *gin.Engine, question, orgID, userID string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(datatypes.QueryRequest{
		Question: question,
		OrgID:    orgID,
		UserID:   userID,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/query/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

// eventsOfType filters parsed events by type.
func eventsOfType(events []datatypes.StreamEvent, eventType string) []datatypes.StreamEvent {
	var out []datatypes.StreamEvent
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Happy Path
// ============================================================================

func TestHandleQueryStream_NamedProjectStream(t *testing.T) {
	summarizer := &stubSummarizer{answer: "Atlas is in design. Its client is Northwind."}
	router := newTestRouter(t, seedGateway(t), summarizer)

	rec := postQuery(t, router, "What is the status of project atlas?", "org-acme", "u-priya")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())

	statuses := eventsOfType(events, datatypes.EventStatus)
	require.Len(t, statuses, 1)

	chunks := eventsOfType(events, datatypes.EventChunk)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Atlas is in design.", chunks[0].Content)
	assert.Equal(t, "Its client is Northwind.", chunks[1].Content)

	// The project trailer appears exactly once, after all chunks.
	projectRefs := eventsOfType(events, datatypes.EventProjectRef)
	require.Len(t, projectRefs, 1)
	assert.Equal(t, "p-atlas", projectRefs[0].ProjectID)
	assert.Empty(t, eventsOfType(events, datatypes.EventLeadRef))

	// Done is the last event.
	require.NotEmpty(t, events)
	assert.Equal(t, datatypes.EventDone, events[len(events)-1].Type)

	// The summarizer saw the question and the disclosed project.
	assert.Equal(t, "What is the status of project atlas?", summarizer.gotQuestion)
	require.NotNil(t, summarizer.gotEnvelope.Project)
	assert.NotContains(t, summarizer.gotEnvelope.Project, "fileId")
}

func TestHandleQueryStream_LeadTrailer(t *testing.T) {
	summarizer := &stubSummarizer{answer: "Harbor came from a referral."}
	router := newTestRouter(t, seedGateway(t), summarizer)

	rec := postQuery(t, router, "Tell me about lead harbor", "org-acme", "u-priya")

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())

	leadRefs := eventsOfType(events, datatypes.EventLeadRef)
	require.Len(t, leadRefs, 1)
	assert.Equal(t, "l-harbor", leadRefs[0].LeadID)
	assert.Empty(t, eventsOfType(events, datatypes.EventProjectRef))
}

func TestHandleQueryStream_WildcardHasNoTrailers(t *testing.T) {
	summarizer := &stubSummarizer{answer: "There are two projects."}
	router := newTestRouter(t, seedGateway(t), summarizer)

	rec := postQuery(t, router, "List all projects please", "org-acme", "u-priya")

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	assert.Empty(t, eventsOfType(events, datatypes.EventProjectRef))
	assert.Empty(t, eventsOfType(events, datatypes.EventLeadRef))
	require.NotNil(t, summarizer.gotEnvelope)
	assert.Len(t, summarizer.gotEnvelope.Projects, 2)
}

func TestHandleQueryStream_OwnedDenialStillStreams(t *testing.T) {
	// sam is not assigned to beacon. Refusal is not an HTTP error: the
	// denial message flows through summarization like any other context.
	summarizer := &stubSummarizer{answer: "You do not have access to that project."}
	router := newTestRouter(t, seedGateway(t), summarizer)

	rec := postQuery(t, router, "Show me project beacon", "org-acme", "u-sam")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, summarizer.gotEnvelope)
	assert.Nil(t, summarizer.gotEnvelope.Project)
	assert.Equal(t, "You do not have access to get this project details.", summarizer.gotEnvelope.Message)

	events := parseSSE(t, rec.Body.String())
	assert.Empty(t, eventsOfType(events, datatypes.EventProjectRef))
	assert.Equal(t, datatypes.EventDone, events[len(events)-1].Type)
}

// ============================================================================
// Error Mapping
// ============================================================================

func TestHandleQueryStream_MalformedBody(t *testing.T) {
	router := newTestRouter(t, seedGateway(t), &stubSummarizer{answer: "x"})

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/query/stream", bytes.NewReader([]byte("{not json")))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryStream_ValidationFailure(t *testing.T) {
	router := newTestRouter(t, seedGateway(t), &stubSummarizer{answer: "x"})

	rec := postQuery(t, router, "", "org-acme", "u-priya")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryStream_UnknownOrganisation(t *testing.T) {
	router := newTestRouter(t, seedGateway(t), &stubSummarizer{answer: "x"})

	rec := postQuery(t, router, "Anything", "org-ghost", "u-priya")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Organisation not found")
}

func TestHandleQueryStream_UnknownUser(t *testing.T) {
	router := newTestRouter(t, seedGateway(t), &stubSummarizer{answer: "x"})

	rec := postQuery(t, router, "Anything", "org-acme", "u-ghost")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "User not found")
}

func TestHandleQueryStream_NamedProjectMissing(t *testing.T) {
	// Elevated policy, directly-named record absent: 404 before any
	// summarization or streaming.
	summarizer := &stubSummarizer{answer: "never used"}
	router := newTestRouter(t, seedGateway(t), summarizer)

	rec := postQuery(t, router, "Show me project zephyr", "org-acme", "u-priya")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, summarizer.gotEnvelope, "summarizer must not run")
}

func TestHandleQueryStream_UpstreamFailure(t *testing.T) {
	summarizer := &stubSummarizer{err: &svc.UpstreamError{Err: errors.New("connection refused")}}
	router := newTestRouter(t, seedGateway(t), summarizer)

	rec := postQuery(t, router, "What is project atlas?", "org-acme", "u-priya")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "answer generation failed")
}

// ============================================================================
// Constructor
// ============================================================================

func TestNewQueryHandler_NilDependenciesPanic(t *testing.T) {
	gw := seedGateway(t)
	extractor, err := extract.New(extract.DefaultConfig())
	require.NoError(t, err)
	aggregator := aggregate.New(gw)
	summarizer := &stubSummarizer{answer: "x"}

	assert.Panics(t, func() {
		NewQueryHandler(nil, extractor, aggregator, summarizer, nil, time.Millisecond)
	})
	assert.Panics(t, func() {
		NewQueryHandler(gw, nil, aggregator, summarizer, nil, time.Millisecond)
	})
	assert.Panics(t, func() {
		NewQueryHandler(gw, extractor, nil, summarizer, nil, time.Millisecond)
	})
	assert.Panics(t, func() {
		NewQueryHandler(gw, extractor, aggregator, nil, nil, time.Millisecond)
	})
}

func TestNewQueryHandler_DefaultChunkDelay(t *testing.T) {
	gw := seedGateway(t)
	extractor, err := extract.New(extract.DefaultConfig())
	require.NoError(t, err)

	handler := NewQueryHandler(gw, extractor, aggregate.New(gw), &stubSummarizer{answer: "x"}, nil, 0)
	assert.Equal(t, DefaultChunkDelay, handler.chunkDelay)
}
