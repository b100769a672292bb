package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"rmqmeta/internal/config"
	"rmqmeta/internal/metadata"
)

type firestoreStore struct {
	client     *firestore.Client
	collection string
	timeout    time.Duration
}

// OpenFirestore creates a Firestore client for store.project_id. Records are
// written to store.collection with the record id as document id.
func OpenFirestore(ctx context.Context, cfg config.Store, timeout time.Duration) (Store, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("projectID must be provided to create a firestore client")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &firestoreStore{client: client, collection: cfg.Collection, timeout: timeout}, nil
}

func (s *firestoreStore) Backend() string { return config.StoreFirestore }

func (s *firestoreStore) Insert(ctx context.Context, rec *metadata.Record) error {
	if rec == nil {
		return fmt.Errorf("insert: nil record")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.Collection(s.collection).Doc(rec.ID).Set(ctx, rec.Map()); err != nil {
		return fmt.Errorf("set record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *firestoreStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.Collection(s.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// Ping reads at most one document to prove the credentials and project work.
func (s *firestoreStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *firestoreStore) Close() error {
	return s.client.Close()
}
