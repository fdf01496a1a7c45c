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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// =============================================================================
// Filter Translation Tests
// =============================================================================

func TestToBSON_PromotesIDToObjectID(t *testing.T) {
	hex := "65f1a2b3c4d5e6f708192a3b"

	doc := toBSON(Filter{"_id": hex, "organization": "org_1"})

	oid, ok := doc["_id"].(primitive.ObjectID)
	require.True(t, ok, "hex _id should become an ObjectID")
	assert.Equal(t, hex, oid.Hex())
	assert.Equal(t, "org_1", doc["organization"])
}

func TestToBSON_KeepsNonHexIDAsString(t *testing.T) {
	doc := toBSON(Filter{"_id": "not-an-object-id"})

	assert.Equal(t, "not-an-object-id", doc["_id"])
}

func TestToBSON_NestedPathKeysPassThrough(t *testing.T) {
	doc := toBSON(Filter{
		"data.projectData.project_id": "prj_1",
		"organization":                "org_1",
	})

	assert.Equal(t, "prj_1", doc["data.projectData.project_id"])
	assert.Len(t, doc, 2)
}
