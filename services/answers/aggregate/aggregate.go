// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate composes extractor output, the visibility policy, and
// gateway lookups into one ContextEnvelope.
//
// One aggregation algorithm serves every role; the policy parameterizes it.
// Project and lead resolution share a single code path driven by a
// per-kind spec (name field, identifier field, assignment path, deny list),
// so the two kinds cannot drift apart.
//
// Lookup results are an explicit three-way outcome (found, found but
// unauthorized, not found) and the aggregator branches on that outcome
// deterministically. Only the organisation-wide not-found case becomes an
// error; owned-only refusals fold into the envelope as denial messages so
// the request still produces a conversational answer.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/access"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/extract"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/store"
)

// aggregateTracer is the OpenTelemetry tracer for aggregation operations.
var aggregateTracer = otel.Tracer("studiobridge.answers.aggregate")

// =============================================================================
// Denial Messages
// =============================================================================

// Denial messages are product copy: they enter the envelope verbatim and
// the summarizer phrases the refusal around them.
const (
	denialProject = "You do not have access to get this project details."
	denialLead    = "You do not have access to this lead."
	denialDefault = "You do not have access to get details."

	// noteNoReferences is the explicit empty-context note for
	// organisation-wide policies, so the summarizer never invents content
	// from a silent, empty envelope.
	noteNoReferences = "The question did not reference any known project, lead, or user."
)

// =============================================================================
// Errors
// =============================================================================

// NotFoundError reports a directly-named record missing from the store
// under an organisation-wide policy. Handlers map it to a 404.
type NotFoundError struct {
	Kind datatypes.Kind
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsNotFound checks whether an error is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// =============================================================================
// Lookup Outcome
// =============================================================================

// Outcome is the explicit result of one named lookup.
type Outcome int

const (
	// OutcomeNotFound means no record matched within the organisation.
	OutcomeNotFound Outcome = iota

	// OutcomeUnauthorized means the record exists but the requester's
	// assignment set does not reference it.
	OutcomeUnauthorized

	// OutcomeFound means the record exists and the requester may see it.
	OutcomeFound
)

// =============================================================================
// Per-kind Specs
// =============================================================================

// kindSpec drives the shared resolution path for projects and leads.
type kindSpec struct {
	kind       datatypes.Kind
	nameField  string
	idField    string
	assignPath string
	denyList   []string
	denial     string
}

var projectSpec = kindSpec{
	kind:       datatypes.KindProject,
	nameField:  datatypes.FieldProjectName,
	idField:    datatypes.FieldProjectID,
	assignPath: datatypes.PathProjectAssignment,
	denyList:   datatypes.ProjectDenyList,
	denial:     denialProject,
}

var leadSpec = kindSpec{
	kind:       datatypes.KindLead,
	nameField:  datatypes.FieldLeadName,
	idField:    datatypes.FieldLeadID,
	assignPath: datatypes.PathLeadAssignment,
	denyList:   datatypes.LeadDenyList,
	denial:     denialLead,
}

// =============================================================================
// Request
// =============================================================================

// Request carries everything aggregation needs, resolved upstream by the
// handler: the tenant, the requester, the policy, and the extracted
// references.
//
// # Fields
//
//   - Org: The organisation record (already resolved; its display name
//     becomes the derived organisation_name field on disclosed users).
//   - OrgID: The organisation identifier as supplied in the request. Every
//     gateway filter is scoped by it.
//   - RequesterID: The asking user's identifier; owned-only ownership
//     checks run against this user's assignment set.
//   - Visibility: The policy resolved from the requester's role.
//   - Refs: Extractor output for the question.
type Request struct {
	Org         datatypes.Record
	OrgID       string
	RequesterID string
	Visibility  access.Visibility
	Refs        extract.References
}

// =============================================================================
// Aggregator
// =============================================================================

// Aggregator builds ContextEnvelopes through an injected Gateway. Safe for
// concurrent use; it holds no per-request state.
type Aggregator struct {
	gateway store.Gateway
}

// New creates an Aggregator. Panics on a nil gateway (programming error).
func New(gateway store.Gateway) *Aggregator {
	if gateway == nil {
		panic("aggregate.New: gateway must not be nil")
	}
	return &Aggregator{gateway: gateway}
}

// Build assembles the ContextEnvelope for one request.
//
// # Description
//
// Runs the per-kind algorithm under the request's policy:
//
//  1. Wildcards resolve to full organisation listings where the policy
//     allows them, and are ignored silently where it does not.
//  2. Named project/lead lookups resolve by (name, organisation). Under
//     organisation-wide policies a miss is a NotFoundError; under the
//     owned-only policy a miss or a failed ownership check downgrades to a
//     denial message inside the envelope.
//  3. A disclosed single project or lead gains its assignee list, computed
//     at request time from the organisation's user assignment sets.
//  4. A named user resolves only under the elevated policy; the disclosed
//     record is stripped of credential and bookkeeping fields and gains the
//     organisation's display name.
//  5. Every disclosed record passes deny-list redaction before entering
//     the envelope.
//
// Multiple kinds merge into the same envelope. When nothing at all
// resolves, the envelope carries an explicit message rather than staying
// silently empty.
//
// # Outputs
//
//   - *ContextEnvelope: Never nil on success; possibly just a message.
//   - ResolvedRefs: Raw project/lead identifiers for trailer events. These
//     never enter the envelope.
//   - error: *NotFoundError for organisation-wide misses, or a wrapped
//     gateway error.
func (a *Aggregator) Build(ctx context.Context, req Request) (*datatypes.ContextEnvelope, datatypes.ResolvedRefs, error) {
	ctx, span := aggregateTracer.Start(ctx, "Aggregator.Build")
	defer span.End()
	span.SetAttributes(
		attribute.String("policy", req.Visibility.String()),
		attribute.Bool("refs.project_wildcard", req.Refs.Project.Wildcard),
		attribute.Bool("refs.lead_wildcard", req.Refs.Lead.Wildcard),
		attribute.Bool("refs.user_named", req.Refs.User.Name != ""),
	)

	envelope := &datatypes.ContextEnvelope{}
	var resolved datatypes.ResolvedRefs

	var err error
	if req.Visibility.RequiresOwnership() {
		err = a.buildOwned(ctx, req, envelope, &resolved)
	} else {
		err = a.buildOrgWide(ctx, req, envelope, &resolved)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, datatypes.ResolvedRefs{}, err
	}

	if envelope.Empty() {
		envelope.Message = noteNoReferences
	}

	span.SetAttributes(
		attribute.Int("envelope.project_listing", len(envelope.Projects)),
		attribute.Int("envelope.lead_listing", len(envelope.Leads)),
		attribute.Bool("envelope.denied", envelope.Message != "" && envelope.Project == nil &&
			envelope.Lead == nil && envelope.User == nil),
	)
	return envelope, resolved, nil
}

// =============================================================================
// Organisation-wide Aggregation
// =============================================================================

// buildOrgWide handles the elevated and mid-tier policies.
func (a *Aggregator) buildOrgWide(ctx context.Context, req Request, envelope *datatypes.ContextEnvelope, resolved *datatypes.ResolvedRefs) error {
	// Projects: wildcard listing or single named record.
	if req.Refs.Project.Wildcard {
		listing, err := a.listProjects(ctx, req.OrgID)
		if err != nil {
			return err
		}
		envelope.Projects = listing
	} else if name := req.Refs.Project.Name; name != "" {
		record, err := a.findNamed(ctx, projectSpec, name, req.OrgID)
		if err != nil {
			return err
		}
		if record == nil {
			return &NotFoundError{Kind: datatypes.KindProject, Name: name}
		}
		disclosed, id, err := a.disclose(ctx, projectSpec, record, req.OrgID)
		if err != nil {
			return err
		}
		envelope.Project = disclosed
		resolved.ProjectID = id
	}

	// Leads: same shape.
	if req.Refs.Lead.Wildcard {
		listing, err := a.listLeads(ctx, req.OrgID)
		if err != nil {
			return err
		}
		envelope.Leads = listing
	} else if name := req.Refs.Lead.Name; name != "" {
		record, err := a.findNamed(ctx, leadSpec, name, req.OrgID)
		if err != nil {
			return err
		}
		if record == nil {
			return &NotFoundError{Kind: datatypes.KindLead, Name: name}
		}
		disclosed, id, err := a.disclose(ctx, leadSpec, record, req.OrgID)
		if err != nil {
			return err
		}
		envelope.Lead = disclosed
		resolved.LeadID = id
	}

	// Users: elevated policy only. The mid-tier policy never resolves this
	// branch, so a user name in the question simply goes unanswered.
	if name := req.Refs.User.Name; name != "" && req.Visibility.AllowsUserLookup() {
		user, err := a.gateway.FindOne(ctx, datatypes.KindUser, store.Filter{
			datatypes.FieldUsername:     name,
			datatypes.FieldOrganization: req.OrgID,
		})
		if err != nil {
			return fmt.Errorf("user lookup failed: %w", err)
		}
		if user == nil {
			return &NotFoundError{Kind: datatypes.KindUser, Name: name}
		}
		disclosed := user.Redacted(datatypes.UserDenyList...)
		disclosed[datatypes.FieldOrganisationName] = req.Org.String(datatypes.FieldOrganization)
		envelope.User = disclosed
	}

	return nil
}

// =============================================================================
// Owned-only Aggregation
// =============================================================================

// buildOwned handles the standard role: wildcards are ignored silently, a
// named lookup must pass an ownership check, and every refusal becomes a
// denial message instead of an error. Project takes precedence over lead;
// the user branch never runs.
func (a *Aggregator) buildOwned(ctx context.Context, req Request, envelope *datatypes.ContextEnvelope, resolved *datatypes.ResolvedRefs) error {
	for _, attempt := range []struct {
		spec kindSpec
		name string
	}{
		{projectSpec, req.Refs.Project.Name},
		{leadSpec, req.Refs.Lead.Name},
	} {
		if attempt.name == "" {
			continue
		}

		outcome, record, err := a.resolveOwned(ctx, attempt.spec, attempt.name, req)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeFound:
			disclosed, id, err := a.disclose(ctx, attempt.spec, record, req.OrgID)
			if err != nil {
				return err
			}
			if attempt.spec.kind == datatypes.KindProject {
				envelope.Project = disclosed
				resolved.ProjectID = id
			} else {
				envelope.Lead = disclosed
				resolved.LeadID = id
			}
			return nil
		case OutcomeUnauthorized:
			envelope.Message = attempt.spec.denial
			return nil
		case OutcomeNotFound:
			// Fall through to the next kind.
		}
	}

	envelope.Message = denialDefault
	return nil
}

// resolveOwned resolves one named lookup under the owned-only policy,
// returning the explicit three-way outcome.
func (a *Aggregator) resolveOwned(ctx context.Context, spec kindSpec, name string, req Request) (Outcome, datatypes.Record, error) {
	record, err := a.findNamed(ctx, spec, name, req.OrgID)
	if err != nil {
		return OutcomeNotFound, nil, err
	}
	if record == nil {
		return OutcomeNotFound, nil, nil
	}

	// Ownership: the requester's assignment set must reference the record's
	// identifier, within the same organisation.
	owner, err := a.gateway.FindOne(ctx, datatypes.KindUser, store.Filter{
		datatypes.FieldID:           req.RequesterID,
		datatypes.FieldOrganization: req.OrgID,
		spec.assignPath:             record.String(spec.idField),
	})
	if err != nil {
		return OutcomeNotFound, nil, fmt.Errorf("ownership check failed: %w", err)
	}
	if owner == nil {
		slog.Info("Access refused by ownership check",
			"kind", spec.kind, "name", name, "requester", req.RequesterID)
		return OutcomeUnauthorized, record, nil
	}
	return OutcomeFound, record, nil
}

// =============================================================================
// Shared Resolution Helpers
// =============================================================================

// findNamed fetches a single record by (name, organisation). Absence is
// (nil, nil); the caller decides what that means under its policy.
func (a *Aggregator) findNamed(ctx context.Context, spec kindSpec, name, orgID string) (datatypes.Record, error) {
	record, err := a.gateway.FindOne(ctx, spec.kind, store.Filter{
		spec.nameField:       name,
		datatypes.FieldOrgID: orgID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s lookup failed: %w", spec.kind, err)
	}
	return record, nil
}

// disclose redacts a resolved record and attaches its assignee list. It
// returns the display-safe record and the raw identifier, which the caller
// keeps outside the envelope.
func (a *Aggregator) disclose(ctx context.Context, spec kindSpec, record datatypes.Record, orgID string) (datatypes.Record, string, error) {
	id := record.String(spec.idField)

	assignees, err := a.assigneesOf(ctx, spec, id, orgID)
	if err != nil {
		return nil, "", err
	}

	disclosed := record.Redacted(spec.denyList...)
	disclosed[datatypes.FieldAssignees] = assignees
	return disclosed, id, nil
}

// assigneesOf recomputes the assignee list at request time: usernames of
// organisation users whose assignment set references the record.
func (a *Aggregator) assigneesOf(ctx context.Context, spec kindSpec, id, orgID string) ([]string, error) {
	users, err := a.gateway.FindMany(ctx, datatypes.KindUser, store.Filter{
		spec.assignPath:             id,
		datatypes.FieldOrganization: orgID,
	})
	if err != nil {
		return nil, fmt.Errorf("assignee lookup failed: %w", err)
	}

	assignees := make([]string, 0, len(users))
	for _, user := range users {
		assignees = append(assignees, user.String(datatypes.FieldUsername))
	}
	return assignees, nil
}

// listProjects fetches the wildcard project listing: summaries only, no
// assignees, no identifiers.
func (a *Aggregator) listProjects(ctx context.Context, orgID string) ([]datatypes.ProjectSummary, error) {
	records, err := a.gateway.FindMany(ctx, datatypes.KindProject, store.Filter{
		datatypes.FieldOrgID: orgID,
	})
	if err != nil {
		return nil, fmt.Errorf("project listing failed: %w", err)
	}

	listing := make([]datatypes.ProjectSummary, 0, len(records))
	for _, record := range records {
		listing = append(listing, datatypes.ProjectSummary{
			Name:       record.String(datatypes.FieldProjectName),
			ClientInfo: record[datatypes.FieldClient],
			Phase:      record[datatypes.FieldProjectStatus],
		})
	}
	return listing, nil
}

// listLeads fetches the wildcard lead listing: full fields minus internal
// identifiers.
func (a *Aggregator) listLeads(ctx context.Context, orgID string) ([]datatypes.Record, error) {
	records, err := a.gateway.FindMany(ctx, datatypes.KindLead, store.Filter{
		datatypes.FieldOrgID: orgID,
	})
	if err != nil {
		return nil, fmt.Errorf("lead listing failed: %w", err)
	}

	denied := append([]string{datatypes.FieldFileID}, datatypes.LeadDenyList...)
	listing := make([]datatypes.Record, 0, len(records))
	for _, record := range records {
		listing = append(listing, record.Redacted(denied...))
	}
	return listing, nil
}
