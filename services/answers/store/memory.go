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
	"reflect"
	"strings"
	"sync"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
)

// =============================================================================
// Memory Gateway
// =============================================================================

// MemoryGateway implements Gateway over in-process maps.
//
// # Description
//
// Matches the MongoGateway's filter semantics (exact equality, dotted-path
// descent, and list membership along the path) so the aggregation logic can
// be exercised in tests without a running store. Records are seeded via
// Insert.
//
// # Thread Safety
//
// Thread-safe via RWMutex. Reads take the read lock; Insert takes the write
// lock.
//
// # Limitations
//
//   - No ObjectID handling: identifiers are plain strings.
//   - Linear scans; fine for the record counts a test works with.
type MemoryGateway struct {
	mu          sync.RWMutex
	collections map[datatypes.Kind][]datatypes.Record
}

// NewMemoryGateway returns an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		collections: make(map[datatypes.Kind][]datatypes.Record),
	}
}

// Insert seeds a record into the kind's collection.
func (g *MemoryGateway) Insert(kind datatypes.Kind, record datatypes.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collections[kind] = append(g.collections[kind], record)
}

// FindOne implements Gateway. Not-found returns (nil, nil).
func (g *MemoryGateway) FindOne(_ context.Context, kind datatypes.Kind, filter Filter) (datatypes.Record, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, record := range g.collections[kind] {
		if matches(record, filter) {
			return record, nil
		}
	}
	return nil, nil
}

// FindMany implements Gateway. An empty result is an empty slice.
func (g *MemoryGateway) FindMany(_ context.Context, kind datatypes.Kind, filter Filter) ([]datatypes.Record, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	records := []datatypes.Record{}
	for _, record := range g.collections[kind] {
		if matches(record, filter) {
			records = append(records, record)
		}
	}
	return records, nil
}

// Close implements Gateway. Nothing to release.
func (g *MemoryGateway) Close(context.Context) error {
	return nil
}

// =============================================================================
// Filter Matching
// =============================================================================

// matches reports whether every filter entry holds for the record.
func matches(record datatypes.Record, filter Filter) bool {
	for key, want := range filter {
		if !matchPath(map[string]any(record), strings.Split(key, "."), want) {
			return false
		}
	}
	return true
}

// matchPath walks one dotted path through the record. A list met along the
// path matches when any element does; at the leaf, values compare by
// equality, with a list leaf matching by membership.
func matchPath(current any, path []string, want any) bool {
	if len(path) == 0 {
		return leafEqual(current, want)
	}

	switch cur := current.(type) {
	case datatypes.Record:
		return matchPath(map[string]any(cur), path, want)
	case map[string]any:
		next, ok := cur[path[0]]
		if !ok {
			return false
		}
		return matchPath(next, path[1:], want)
	case []any:
		for _, element := range cur {
			if matchPath(element, path, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func leafEqual(value, want any) bool {
	if list, ok := value.([]any); ok {
		for _, element := range list {
			if reflect.DeepEqual(element, want) {
				return true
			}
		}
		return false
	}
	return reflect.DeepEqual(value, want)
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Gateway = (*MemoryGateway)(nil)
