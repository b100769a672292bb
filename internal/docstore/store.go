package docstore

import (
	"context"
	"fmt"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/metadata"
)

// Store is the document-store collaborator used by the pipeline.
type Store interface {
	// Insert writes one record, replacing any record with the same id.
	Insert(ctx context.Context, rec *metadata.Record) error
	// Delete removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// Open connects to the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	timeout := time.Duration(cfg.Store.TimeoutSeconds) * time.Second
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		return OpenSQLite(cfg.Store.SQLitePath, timeout)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.Store.DSN, timeout)
	case config.StoreMongo:
		return OpenMongo(ctx, cfg.Store, timeout)
	case config.StoreFirestore:
		return OpenFirestore(ctx, cfg.Store, timeout)
	default:
		return nil, fmt.Errorf("store backend %q is not supported", cfg.Store.Backend)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
