// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
)

func seedGateway() *MemoryGateway {
	g := NewMemoryGateway()
	g.Insert(datatypes.KindProject, datatypes.Record{
		"_id": "p-oid-1", "project_id": "prj_1", "project_name": "Atlas",
		"org_id": "org_1", "project_status": "design",
	})
	g.Insert(datatypes.KindProject, datatypes.Record{
		"_id": "p-oid-2", "project_id": "prj_2", "project_name": "Atlas",
		"org_id": "org_2", "project_status": "build",
	})
	g.Insert(datatypes.KindUser, datatypes.Record{
		"_id": "u-oid-1", "username": "jdoe", "organization": "org_1",
		"data": map[string]any{
			"projectData": []any{
				map[string]any{"project_id": "prj_1"},
			},
			"leadData": []any{},
		},
	})
	return g
}

// =============================================================================
// FindOne Tests
// =============================================================================

func TestMemoryGateway_FindOne_ExactMatch(t *testing.T) {
	g := seedGateway()

	rec, err := g.FindOne(context.Background(), datatypes.KindProject,
		Filter{"project_name": "Atlas", "org_id": "org_1"})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "prj_1", rec.String("project_id"))
}

// TestMemoryGateway_FindOne_NotFoundIsNilNil pins the gateway contract:
// absence is a distinguishable empty result, not an error.
func TestMemoryGateway_FindOne_NotFoundIsNilNil(t *testing.T) {
	g := seedGateway()

	rec, err := g.FindOne(context.Background(), datatypes.KindProject,
		Filter{"project_name": "Zephyr", "org_id": "org_1"})

	require.NoError(t, err)
	assert.Nil(t, rec)
}

// TestMemoryGateway_FindOne_OrgScoping verifies a name collision across
// organisations never leaks the other tenant's record.
func TestMemoryGateway_FindOne_OrgScoping(t *testing.T) {
	g := seedGateway()

	rec, err := g.FindOne(context.Background(), datatypes.KindProject,
		Filter{"project_name": "Atlas", "org_id": "org_2"})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "prj_2", rec.String("project_id"))
}

// =============================================================================
// Nested Path Tests
// =============================================================================

// TestMemoryGateway_NestedAssignmentPath exercises the dotted-path
// membership semantics used for assignment-set queries.
func TestMemoryGateway_NestedAssignmentPath(t *testing.T) {
	g := seedGateway()

	rec, err := g.FindOne(context.Background(), datatypes.KindUser,
		Filter{"data.projectData.project_id": "prj_1", "organization": "org_1"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "jdoe", rec.String("username"))

	rec, err = g.FindOne(context.Background(), datatypes.KindUser,
		Filter{"data.projectData.project_id": "prj_2", "organization": "org_1"})
	require.NoError(t, err)
	assert.Nil(t, rec, "user is not assigned to prj_2")

	rec, err = g.FindOne(context.Background(), datatypes.KindUser,
		Filter{"data.leadData.lead_id": "lead_1", "organization": "org_1"})
	require.NoError(t, err)
	assert.Nil(t, rec, "empty assignment list matches nothing")
}

// =============================================================================
// FindMany Tests
// =============================================================================

func TestMemoryGateway_FindMany(t *testing.T) {
	g := seedGateway()
	g.Insert(datatypes.KindProject, datatypes.Record{
		"_id": "p-oid-3", "project_id": "prj_3", "project_name": "Borealis",
		"org_id": "org_1", "project_status": "handover",
	})

	records, err := g.FindMany(context.Background(), datatypes.KindProject,
		Filter{"org_id": "org_1"})

	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestMemoryGateway_FindMany_EmptyResult(t *testing.T) {
	g := seedGateway()

	records, err := g.FindMany(context.Background(), datatypes.KindLead,
		Filter{"org_id": "org_1"})

	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
