// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/access"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/extract"
	"github.com/StudioBridgeAI/StudioBridge/services/answers/store"
)

// seedStore builds a two-organisation fixture: Acme Studio with two
// projects, one lead, and three users, plus a second organisation that
// reuses the project name "atlas" to exercise tenant scoping.
func seedStore(t *testing.T) *store.MemoryGateway {
	t.Helper()
	gw := store.NewMemoryGateway()

	gw.Insert(datatypes.KindOrganization, datatypes.Record{
		"_id":          "org-acme",
		"organization": "Acme Studio",
	})
	gw.Insert(datatypes.KindOrganization, datatypes.Record{
		"_id":          "org-rival",
		"organization": "Rival Works",
	})

	gw.Insert(datatypes.KindProject, datatypes.Record{
		"_id":            "doc-p1",
		"project_id":     "p-atlas",
		"project_name":   "atlas",
		"org_id":         "org-acme",
		"client":         "Northwind",
		"project_status": "design",
		"fileId":         "file-77",
		"budget":         250000,
	})
	gw.Insert(datatypes.KindProject, datatypes.Record{
		"_id":            "doc-p2",
		"project_id":     "p-beacon",
		"project_name":   "beacon",
		"org_id":         "org-acme",
		"client":         "Contoso",
		"project_status": "construction",
	})
	gw.Insert(datatypes.KindProject, datatypes.Record{
		"_id":          "doc-p3",
		"project_id":   "p-atlas-rival",
		"project_name": "atlas",
		"org_id":       "org-rival",
	})

	gw.Insert(datatypes.KindLead, datatypes.Record{
		"_id":     "doc-l1",
		"lead_id": "l-harbor",
		"name":    "harbor",
		"org_id":  "org-acme",
		"source":  "referral",
	})

	gw.Insert(datatypes.KindUser, datatypes.Record{
		"_id":          "u-priya",
		"username":     "priya",
		"organization": "org-acme",
		"role":         "ADMIN",
		"password":     "hashed-secret",
		"refreshToken": "rt-priya",
	})
	gw.Insert(datatypes.KindUser, datatypes.Record{
		"_id":          "u-sam",
		"username":     "sam",
		"organization": "org-acme",
		"role":         "USER",
		"password":     "hashed-secret",
		"data": map[string]any{
			"projectData": []any{
				map[string]any{"project_id": "p-atlas"},
			},
			"leadData": []any{
				map[string]any{"lead_id": "l-harbor"},
			},
		},
	})
	gw.Insert(datatypes.KindUser, datatypes.Record{
		"_id":          "u-lee",
		"username":     "lee",
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

func acmeRequest(vis access.Visibility, refs extract.References) Request {
	return Request{
		Org:         datatypes.Record{"_id": "org-acme", "organization": "Acme Studio"},
		OrgID:       "org-acme",
		RequesterID: "u-sam",
		Visibility:  vis,
		Refs:        refs,
	}
}

func TestBuild_NamedProjectOrgWide(t *testing.T) {
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{Project: extract.Reference{Name: "atlas"}},
	))
	require.NoError(t, err)
	require.NotNil(t, envelope.Project)

	assert.Equal(t, "atlas", envelope.Project["project_name"])
	assert.Equal(t, "Northwind", envelope.Project["client"])

	// Deny-listed fields never reach the envelope.
	for _, field := range datatypes.ProjectDenyList {
		assert.NotContains(t, envelope.Project, field)
	}

	// Assignees are derived from user assignment sets, exactly.
	assert.ElementsMatch(t, []string{"sam", "lee"}, envelope.Project["assignees"])

	// The raw identifier rides outside the envelope for trailer events.
	assert.Equal(t, "p-atlas", resolved.ProjectID)
	assert.Empty(t, resolved.LeadID)
}

func TestBuild_NamedLookupIsCaseSensitiveAtStore(t *testing.T) {
	// Captured names keep the question's casing and the store match is
	// exact: "Atlas" misses because the stored name is "atlas".
	agg := New(seedStore(t))

	_, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{Project: extract.Reference{Name: "Atlas"}},
	))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestBuild_NamedProjectMissingOrgWide(t *testing.T) {
	agg := New(seedStore(t))

	_, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{Project: extract.Reference{Name: "zephyr"}},
	))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, datatypes.KindProject, nf.Kind)
	assert.Equal(t, "zephyr", nf.Name)
}

func TestBuild_CrossOrgIsolation(t *testing.T) {
	// "atlas" also exists under org-rival; a rival requester must not see
	// Acme's record, and assignee computation must not leak across tenants.
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), Request{
		Org:        datatypes.Record{"_id": "org-rival", "organization": "Rival Works"},
		OrgID:      "org-rival",
		Visibility: access.VisibilityOrgWide,
		Refs:       extract.References{Project: extract.Reference{Name: "atlas"}},
	})
	require.NoError(t, err)
	require.NotNil(t, envelope.Project)
	assert.Equal(t, "p-atlas-rival", resolved.ProjectID)
	assert.Empty(t, envelope.Project["assignees"])
}

func TestBuild_WildcardProjectListing(t *testing.T) {
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{Project: extract.Reference{Wildcard: true}},
	))
	require.NoError(t, err)
	require.Len(t, envelope.Projects, 2)
	assert.Nil(t, envelope.Project)
	assert.Empty(t, resolved.ProjectID)

	names := []string{envelope.Projects[0].Name, envelope.Projects[1].Name}
	assert.ElementsMatch(t, []string{"atlas", "beacon"}, names)
	for _, summary := range envelope.Projects {
		if summary.Name == "atlas" {
			assert.Equal(t, "Northwind", summary.ClientInfo)
			assert.Equal(t, "design", summary.Phase)
		}
	}
}

func TestBuild_WildcardLeadListing(t *testing.T) {
	agg := New(seedStore(t))

	envelope, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgRead,
		extract.References{Lead: extract.Reference{Wildcard: true}},
	))
	require.NoError(t, err)
	require.Len(t, envelope.Leads, 1)

	lead := envelope.Leads[0]
	assert.Equal(t, "harbor", lead["name"])
	for _, field := range datatypes.LeadDenyList {
		assert.NotContains(t, lead, field)
	}
}

func TestBuild_UserLookupElevated(t *testing.T) {
	agg := New(seedStore(t))

	envelope, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{User: extract.Reference{Name: "priya"}},
	))
	require.NoError(t, err)
	require.NotNil(t, envelope.User)

	assert.Equal(t, "priya", envelope.User["username"])
	assert.Equal(t, "Acme Studio", envelope.User["organisation_name"])
	for _, field := range datatypes.UserDenyList {
		assert.NotContains(t, envelope.User, field)
	}
}

func TestBuild_UserLookupMissingElevated(t *testing.T) {
	agg := New(seedStore(t))

	_, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{User: extract.Reference{Name: "ghost"}},
	))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestBuild_UserLookupIgnoredMidTier(t *testing.T) {
	// The mid-tier policy has no user branch: a user name produces neither
	// disclosure nor an error.
	agg := New(seedStore(t))

	envelope, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgRead,
		extract.References{User: extract.Reference{Name: "priya"}},
	))
	require.NoError(t, err)
	assert.Nil(t, envelope.User)
	assert.Equal(t, noteNoReferences, envelope.Message)
}

func TestBuild_MergesMultipleKinds(t *testing.T) {
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide,
		extract.References{
			Project: extract.Reference{Name: "beacon"},
			Lead:    extract.Reference{Name: "harbor"},
			User:    extract.Reference{Name: "sam"},
		},
	))
	require.NoError(t, err)
	require.NotNil(t, envelope.Project)
	require.NotNil(t, envelope.Lead)
	require.NotNil(t, envelope.User)
	assert.Equal(t, "p-beacon", resolved.ProjectID)
	assert.Equal(t, "l-harbor", resolved.LeadID)
}

func TestBuild_NoReferencesOrgWide(t *testing.T) {
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOrgWide, extract.References{},
	))
	require.NoError(t, err)
	assert.Equal(t, noteNoReferences, envelope.Message)
	assert.Empty(t, resolved.ProjectID)
	assert.Empty(t, resolved.LeadID)
}

func TestBuild_OwnedProjectDisclosed(t *testing.T) {
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOwned,
		extract.References{Project: extract.Reference{Name: "atlas"}},
	))
	require.NoError(t, err)
	require.NotNil(t, envelope.Project)
	assert.Empty(t, envelope.Message)
	assert.Equal(t, "p-atlas", resolved.ProjectID)
	for _, field := range datatypes.ProjectDenyList {
		assert.NotContains(t, envelope.Project, field)
	}
}

func TestBuild_OwnedProjectDenied(t *testing.T) {
	// sam is not assigned to Beacon: found-but-unauthorized downgrades to
	// a denial message, never an error.
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOwned,
		extract.References{Project: extract.Reference{Name: "beacon"}},
	))
	require.NoError(t, err)
	assert.Nil(t, envelope.Project)
	assert.Equal(t, denialProject, envelope.Message)
	assert.Empty(t, resolved.ProjectID)
}

func TestBuild_OwnedLeadDenied(t *testing.T) {
	gw := seedStore(t)
	gw.Insert(datatypes.KindLead, datatypes.Record{
		"_id": "doc-l2", "lead_id": "l-quay", "name": "quay", "org_id": "org-acme",
	})
	agg := New(gw)

	envelope, _, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOwned,
		extract.References{Lead: extract.Reference{Name: "quay"}},
	))
	require.NoError(t, err)
	assert.Equal(t, denialLead, envelope.Message)
}

func TestBuild_OwnedFallsFromProjectToLead(t *testing.T) {
	// The named project does not exist, but the named lead does and sam
	// owns it: resolution falls through to the lead.
	agg := New(seedStore(t))

	envelope, resolved, err := agg.Build(context.Background(), acmeRequest(
		access.VisibilityOwned,
		extract.References{
			Project: extract.Reference{Name: "zephyr"},
			Lead:    extract.Reference{Name: "harbor"},
		},
	))
	require.NoError(t, err)
	require.NotNil(t, envelope.Lead)
	assert.Equal(t, "l-harbor", resolved.LeadID)
}

func TestBuild_OwnedNothingResolves(t *testing.T) {
	agg := New(seedStore(t))

	for _, refs := range []extract.References{
		{},
		{Project: extract.Reference{Name: "zephyr"}},
		{Project: extract.Reference{Wildcard: true}}, // wildcard ignored silently
		{User: extract.Reference{Name: "priya"}},     // no user branch
	} {
		envelope, resolved, err := agg.Build(context.Background(),
			acmeRequest(access.VisibilityOwned, refs))
		require.NoError(t, err)
		assert.Equal(t, denialDefault, envelope.Message)
		assert.Nil(t, envelope.Project)
		assert.Nil(t, envelope.User)
		assert.Empty(t, resolved.ProjectID)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	agg := New(seedStore(t))
	req := acmeRequest(access.VisibilityOrgWide,
		extract.References{Project: extract.Reference{Name: "atlas"}})

	first, firstRefs, err := agg.Build(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		next, nextRefs, err := agg.Build(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, firstRefs, nextRefs)
		assert.Equal(t, first.Project["project_name"], next.Project["project_name"])
		assert.ElementsMatch(t, first.Project["assignees"], next.Project["assignees"])
	}
}

func TestNew_NilGatewayPanics(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}
