// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package access maps a requester's role onto a visibility policy.
//
// Roles form a closed set; everything the service discloses is gated by the
// policy resolved here. The aggregation algorithm is shared across roles
// and parameterized by the policy, so role differences live in exactly one
// place: this mapping and the three predicate methods on Visibility.
package access

import (
	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
)

// =============================================================================
// Visibility Policies
// =============================================================================

// Visibility is the policy applied to every lookup in a request.
type Visibility int

const (
	// VisibilityOwned is the owned-only policy of the standard role and the
	// fail-closed default for unknown roles. Wildcards are ignored silently
	// and every named lookup must pass an ownership check against the
	// requester's assignment set; failures become denial messages, never
	// errors.
	VisibilityOwned Visibility = iota

	// VisibilityOrgRead is the mid-tier policy: organisation-wide read
	// access to projects and leads, wildcards honored, but the user-name
	// branch is never resolved.
	VisibilityOrgRead

	// VisibilityOrgWide is the elevated policy: everything VisibilityOrgRead
	// grants, plus user-identity lookups within the organisation.
	VisibilityOrgWide
)

// String returns the policy name for logs and span attributes.
func (v Visibility) String() string {
	switch v {
	case VisibilityOrgWide:
		return "org_wide"
	case VisibilityOrgRead:
		return "org_read"
	default:
		return "owned_only"
	}
}

// AllowsWildcard reports whether wildcard references resolve to full
// organisation listings under this policy.
func (v Visibility) AllowsWildcard() bool {
	return v == VisibilityOrgWide || v == VisibilityOrgRead
}

// AllowsUserLookup reports whether the user-name branch of a question is
// resolved at all under this policy.
func (v Visibility) AllowsUserLookup() bool {
	return v == VisibilityOrgWide
}

// RequiresOwnership reports whether a named project or lead lookup must
// pass an assignment-set check before any field is disclosed.
func (v Visibility) RequiresOwnership() bool {
	return v == VisibilityOwned
}

// =============================================================================
// Resolution
// =============================================================================

// Resolve maps a role value onto its visibility policy.
//
// # Description
//
// ADMIN and SUPERADMIN resolve to the elevated organisation-wide policy,
// Senior Architect to the mid-tier read policy. Any other value, including
// the empty string and values the store has never defined, falls through to
// owned-only: unknown roles must never widen visibility.
//
// # Inputs
//
//   - role: The role field of the requesting user's record, as stored.
//     Matching is exact; role values are store-controlled constants.
//
// # Outputs
//
//   - Visibility: The policy to parameterize aggregation with.
func Resolve(role string) Visibility {
	switch role {
	case datatypes.RoleAdmin, datatypes.RoleSuperAdmin:
		return VisibilityOrgWide
	case datatypes.RoleSeniorArchitect:
		return VisibilityOrgRead
	default:
		return VisibilityOwned
	}
}
