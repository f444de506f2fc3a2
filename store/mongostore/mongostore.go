// Package mongostore is the durable side-store for records that outlive the
// session TTL sweep: API keys and audit events (spec §4.7 expansion). It is
// not subject to session TTL semantics — these collections persist until an
// operator explicitly revokes/archives an entry.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fleetcore/models/apikey"
	"fleetcore/models/audit"
)

// Store persists API keys and audit events in MongoDB collections, bulk-
// writing with ReplaceOne+upsert the way the teacher's batch writer flushes
// session documents.
type Store struct {
	apiKeys *mongo.Collection
	audit   *mongo.Collection
}

// New wraps the given database's "api_keys" and "audit_events" collections.
func New(db *mongo.Database) *Store {
	return &Store{
		apiKeys: db.Collection("api_keys"),
		audit:   db.Collection("audit_events"),
	}
}

// PutAPIKey upserts one key record by id.
func (s *Store) PutAPIKey(ctx context.Context, k *apikey.APIKey) error {
	filter := bson.M{"_id": k.ID}
	_, err := s.apiKeys.ReplaceOne(ctx, filter, k, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: put api key: %w", err)
	}
	return nil
}

// GetAPIKeyByPrefix finds an active key by its public prefix; the caller
// still must constant-time-compare the salted hash (spec §4.9).
func (s *Store) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error) {
	var k apikey.APIKey
	err := s.apiKeys.FindOne(ctx, bson.M{"prefix": prefix, "active": true}).Decode(&k)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get api key: %w", err)
	}
	return &k, nil
}

// ListAPIKeysByOwner returns every key (active or revoked) owned by a user.
func (s *Store) ListAPIKeysByOwner(ctx context.Context, ownerUserID string) ([]*apikey.APIKey, error) {
	cur, err := s.apiKeys.Find(ctx, bson.M{"owner_user_id": ownerUserID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list api keys: %w", err)
	}
	defer cur.Close(ctx)
	var out []*apikey.APIKey
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode api keys: %w", err)
	}
	return out, nil
}

// BulkPutAuditEvents writes a batch of audit events in one unordered bulk
// write, mirroring the teacher's BatchWriter.sendBatchToMongoDB shape
// (ReplaceOne+upsert per document, unordered for throughput).
func (s *Store) BulkPutAuditEvents(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(events))
	for _, e := range events {
		filter := bson.M{"_id": e.ID}
		models = append(models, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(e).SetUpsert(true))
	}
	opts := options.BulkWrite().SetOrdered(false)
	if _, err := s.audit.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("mongostore: bulk write audit events: %w", err)
	}
	return nil
}

// ListAuditEvents returns events for a session, newest first, since a given
// time (zero value means "since the beginning").
func (s *Store) ListAuditEvents(ctx context.Context, sessionID string, since time.Time) ([]audit.Event, error) {
	filter := bson.M{"session_id": sessionID}
	if !since.IsZero() {
		filter["occurred_at"] = bson.M{"$gte": since}
	}
	cur, err := s.audit.Find(ctx, filter, options.Find().SetSort(bson.M{"occurred_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list audit events: %w", err)
	}
	defer cur.Close(ctx)
	var out []audit.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode audit events: %w", err)
	}
	return out, nil
}
