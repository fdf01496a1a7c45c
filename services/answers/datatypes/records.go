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
// This file describes the shape of records held by the external record
// store (organisations, users, projects, leads), the closed role set, and
// the ContextEnvelope assembled per request. The store owns and mutates
// these records; the answers service only ever holds read-only,
// request-scoped snapshots of them.
package datatypes

// =============================================================================
// Record
// =============================================================================

// Record is a single document from the external record store.
//
// # Description
//
// The record store is schemaless from this service's perspective, so records
// are generic key/value documents. Field-level access control is applied by
// copying a record minus a deny-list of keys (see Redacted) before it may
// enter a ContextEnvelope.
//
// # Thread Safety
//
// Records are request-scoped snapshots and must not be shared across
// requests. Redacted returns a fresh copy; the receiver is never mutated.
type Record map[string]any

// String returns the record field as a string, or "" if the field is
// missing or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Redacted returns a copy of the record with the given keys removed.
//
// # Description
//
// Implements deny-list redaction: every field survives except the named
// ones. Storage identifiers, organisation foreign keys, and credential
// material must always be in the deny list before a record is disclosed.
//
// # Inputs
//
//   - denied: Field names to strip. Missing keys are ignored.
//
// # Outputs
//
//   - Record: A new record; the receiver is unchanged.
func (r Record) Redacted(denied ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, k := range denied {
		delete(out, k)
	}
	return out
}

// =============================================================================
// Record Kinds
// =============================================================================

// Kind identifies a record collection in the external store.
type Kind string

const (
	// KindOrganization is the tenant boundary. Every other record belongs
	// to exactly one organisation.
	KindOrganization Kind = "organisation"

	// KindUser holds user identity, role, and the assignment set used for
	// owned-only access checks.
	KindUser Kind = "users"

	// KindProject holds project records, unique by name within an organisation.
	KindProject Kind = "project"

	// KindLead holds lead records, structurally parallel to projects.
	KindLead Kind = "Lead"
)

// =============================================================================
// Roles
// =============================================================================

// Role values form a closed set. Anything outside it is treated as the
// standard (owned-only) tier; see the access package for the fail-closed
// mapping.
const (
	RoleAdmin           = "ADMIN"
	RoleSuperAdmin      = "SUPERADMIN"
	RoleSeniorArchitect = "Senior Architect"
)

// =============================================================================
// Store Field Names
// =============================================================================

// Field names are fixed by the external record store's schema. The service
// never invents fields; it only reads, redacts, and derives from these.
const (
	// FieldID is the raw storage identifier on every record. Never disclosed.
	FieldID = "_id"

	// FieldOrgID is the organisation foreign key on project and lead records.
	FieldOrgID = "org_id"

	// FieldOrganization is double-duty in the store schema: on a user record
	// it is the organisation membership foreign key, on an organisation
	// record it is the display name.
	FieldOrganization = "organization"

	FieldUsername     = "username"
	FieldRole         = "role"
	FieldPassword     = "password"
	FieldRefreshToken = "refreshToken"
	FieldUserProfile  = "userProfile"
	FieldUserData     = "data"

	FieldProjectName   = "project_name"
	FieldProjectID     = "project_id"
	FieldClient        = "client"
	FieldProjectStatus = "project_status"
	FieldFileID        = "fileId"

	FieldLeadName = "name"
	FieldLeadID   = "lead_id"
)

// Nested assignment paths on user records. A user is an assignee of a
// project or lead when their assignment set contains its identifier under
// one of these paths.
const (
	PathProjectAssignment = "data.projectData.project_id"
	PathLeadAssignment    = "data.leadData.lead_id"
)

// Derived field names attached by the Context Aggregator. These never exist
// on stored records.
const (
	FieldAssignees        = "assignees"
	FieldOrganisationName = "organisation_name"
)

// =============================================================================
// Redaction Deny Lists
// =============================================================================

// Deny lists are kind-specific. A record of the given kind must pass through
// Record.Redacted with the matching list before entering a ContextEnvelope.
var (
	// ProjectDenyList strips storage and cross-reference identifiers from a
	// disclosed project record.
	ProjectDenyList = []string{FieldID, FieldProjectID, FieldOrgID, FieldFileID}

	// LeadDenyList strips storage and cross-reference identifiers from a
	// disclosed lead record.
	LeadDenyList = []string{FieldID, FieldLeadID, FieldOrgID}

	// UserDenyList strips identifiers, credential material, and internal
	// bookkeeping from a disclosed user record.
	UserDenyList = []string{
		FieldID, FieldOrgID, FieldOrganization,
		FieldPassword, FieldUserData, FieldRefreshToken, FieldUserProfile,
	}
)

// =============================================================================
// Context Envelope
// =============================================================================

// ProjectSummary is one entry of a wildcard project listing. Wildcard
// listings are summaries, not full detail: no assignees, no identifiers.
type ProjectSummary struct {
	Name       string `json:"name"`
	ClientInfo any    `json:"client_info,omitempty"`
	Phase      any    `json:"phase,omitempty"`
}

// ContextEnvelope is the transient, per-request structure holding resolved,
// access-filtered data for the summarization service.
//
// # Description
//
// An envelope holds zero or more of a single project, a single lead, a
// single user, full listings, and a denial message. It is created fresh per
// request, serialized into the summarization prompt, and discarded when the
// response completes. It must never carry raw storage identifiers or
// credential material; the aggregate package enforces that via the deny
// lists above.
//
// # Limitations
//
//   - Listing order follows store order and is unordered as far as callers
//     are concerned.
type ContextEnvelope struct {
	Project  Record           `json:"project,omitempty"`
	Lead     Record           `json:"lead,omitempty"`
	User     Record           `json:"user,omitempty"`
	Projects []ProjectSummary `json:"projects,omitempty"`
	Leads    []Record         `json:"leads,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Empty reports whether nothing was resolved into the envelope, not even a
// denial message.
func (e *ContextEnvelope) Empty() bool {
	return e.Project == nil && e.Lead == nil && e.User == nil &&
		len(e.Projects) == 0 && len(e.Leads) == 0 && e.Message == ""
}

// ResolvedRefs carries the raw identifiers of the project and lead records
// resolved during aggregation. They ride outside the envelope on purpose:
// the caller needs them for the trailer events of the stream, but they must
// never appear in the serialized context.
type ResolvedRefs struct {
	ProjectID string
	LeadID    string
}
