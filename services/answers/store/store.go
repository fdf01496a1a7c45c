// Copyright (C) 2025 StudioBridge AI (dev@studiobridge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the thin gateway over the external record store.
//
// The engine never embeds store-specific logic; it issues named queries
// through the Gateway interface against one of the four record kinds. All
// filters are exact-match (identifier equality, name equality, membership
// in a nested assignment path) and every caller scopes its filter by
// organisation identifier, so no query ever crosses organisations.
//
// The gateway is an injected, lifecycle-managed dependency: the service
// constructs one implementation at startup, passes it down, and releases
// its connection resources via Close on shutdown.
package store

import (
	"context"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
)

// =============================================================================
// Filter
// =============================================================================

// Filter is an exact-match query against record fields.
//
// # Description
//
// Keys are field names; dotted keys descend into nested documents, and a
// list encountered along the path matches when any of its elements does
// (the usual document-store membership semantics, which is how assignment
// sets are queried). Values compare by equality.
type Filter map[string]any

// =============================================================================
// Gateway
// =============================================================================

// Gateway defines the named queries the engine may issue.
//
// # Description
//
// Two queries, four kinds. Not-found is a distinguishable empty result,
// never an error: FindOne returns (nil, nil) and FindMany returns an empty
// slice. The caller decides whether an empty result is fatal.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; requests share one
// gateway instance.
type Gateway interface {
	// FindOne returns the first record of the kind matching the filter, or
	// (nil, nil) when nothing matches. A non-nil error means the store
	// itself failed, not that the record is absent.
	FindOne(ctx context.Context, kind datatypes.Kind, filter Filter) (datatypes.Record, error)

	// FindMany returns every record of the kind matching the filter, in
	// store order. The order is not meaningful to callers. An empty slice
	// is a valid result.
	FindMany(ctx context.Context, kind datatypes.Kind, filter Filter) ([]datatypes.Record, error)

	// Close releases the gateway's underlying connection resources. The
	// gateway must not be used afterwards.
	Close(ctx context.Context) error
}
