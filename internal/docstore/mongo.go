package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"rmqmeta/internal/config"
	"rmqmeta/internal/metadata"
)

type mongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// OpenMongo connects to MongoDB and selects store.database/store.collection.
func OpenMongo(ctx context.Context, cfg config.Store, timeout time.Duration) (Store, error) {
	connectCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &mongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		timeout:    timeout,
	}, nil
}

func (s *mongoStore) Backend() string { return config.StoreMongo }

func (s *mongoStore) Insert(ctx context.Context, rec *metadata.Record) error {
	if rec == nil {
		return fmt.Errorf("insert: nil record")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.collection.ReplaceOne(ctx, bson.D{{Key: metadata.FieldID, Value: rec.ID}}, recordDocument(rec), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *mongoStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.collection.DeleteOne(ctx, bson.D{{Key: metadata.FieldID, Value: id}}); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// recordDocument keeps the record's field order in the stored document.
func recordDocument(rec *metadata.Record) bson.D {
	fields := rec.Fields()
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		doc = append(doc, bson.E{Key: f.Key, Value: f.Value})
	}
	return doc
}
