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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/StudioBridgeAI/StudioBridge/services/answers/datatypes"
)

// =============================================================================
// Mongo Gateway
// =============================================================================

// MongoGateway implements Gateway against a MongoDB record store.
//
// # Description
//
// Record kinds map one-to-one onto collections in a single database; the
// Kind constants carry the collection names the store actually uses. The
// gateway converts Filter values to BSON, translating identifier strings to
// ObjectIDs where the store uses them (the _id field).
//
// # Thread Safety
//
// Thread-safe; the underlying mongo.Client pools connections internally.
//
// # Limitations
//
//   - Exact-match filters only. The engine has no use for range or text
//     queries, so none are exposed.
type MongoGateway struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo connects to the record store and verifies the connection.
//
// # Description
//
// Dials the store, pings the primary with a short timeout, and returns a
// gateway bound to the given database. The caller owns the returned gateway
// and must release it via Close on shutdown.
//
// # Inputs
//
//   - ctx: Context for dialing; a request-independent startup context.
//   - uri: MongoDB connection string.
//   - database: Database holding the organisation/users/project/Lead
//     collections.
//
// # Outputs
//
//   - *MongoGateway: Connected and verified gateway.
//   - error: Non-nil if dialing or the ping fails.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoGateway, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to record store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("record store ping failed: %w", err)
	}

	slog.Info("Connected to record store", "database", database)
	return &MongoGateway{
		client: client,
		db:     client.Database(database),
	}, nil
}

// FindOne implements Gateway. Not-found returns (nil, nil).
func (g *MongoGateway) FindOne(ctx context.Context, kind datatypes.Kind, filter Filter) (datatypes.Record, error) {
	var record datatypes.Record
	err := g.db.Collection(string(kind)).FindOne(ctx, toBSON(filter)).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find_one %s: %w", kind, err)
	}
	return record, nil
}

// FindMany implements Gateway. An empty result is an empty slice, not an error.
func (g *MongoGateway) FindMany(ctx context.Context, kind datatypes.Kind, filter Filter) ([]datatypes.Record, error) {
	cursor, err := g.db.Collection(string(kind)).Find(ctx, toBSON(filter))
	if err != nil {
		return nil, fmt.Errorf("find_many %s: %w", kind, err)
	}
	defer cursor.Close(ctx)

	records := []datatypes.Record{}
	for cursor.Next(ctx) {
		var record datatypes.Record
		if err := cursor.Decode(&record); err != nil {
			return nil, fmt.Errorf("find_many %s: decode: %w", kind, err)
		}
		records = append(records, record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("find_many %s: cursor: %w", kind, err)
	}
	return records, nil
}

// Close implements Gateway, disconnecting the underlying client.
func (g *MongoGateway) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}

// toBSON converts a Filter to a BSON document, promoting _id values from
// hex strings to ObjectIDs where that is what the store holds.
func toBSON(filter Filter) bson.M {
	doc := bson.M{}
	for key, value := range filter {
		if key == datatypes.FieldID {
			if s, ok := value.(string); ok {
				if oid, err := primitive.ObjectIDFromHex(s); err == nil {
					doc[key] = oid
					continue
				}
			}
		}
		doc[key] = value
	}
	return doc
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Gateway = (*MongoGateway)(nil)
