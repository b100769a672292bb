package docstore

import (
	"fmt"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/sqlitedb"
)

// OpenSQLite opens (creating if needed) the SQLite metadata database.
func OpenSQLite(path string, timeout time.Duration) (Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sqlStore{db: db, backend: config.StoreSQLite, timeout: timeout, retry: sqlitedb.RetryOnBusy}, nil
}
