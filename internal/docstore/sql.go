package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rmqmeta/internal/metadata"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

//go:embed schema/postgres.sql
var postgresSchema string

const upsertRecord = `INSERT INTO metadata_records (id, file_name, directory, date_time, entity_count, document)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    file_name = excluded.file_name,
    directory = excluded.directory,
    date_time = excluded.date_time,
    entity_count = excluded.entity_count,
    document = excluded.document`

const deleteRecord = `DELETE FROM metadata_records WHERE id = ?`

// sqlStore serves both SQL backends. Queries are written with ? placeholders
// and rebound for drivers that use numbered parameters.
type sqlStore struct {
	db       *sql.DB
	backend  string
	numbered bool
	timeout  time.Duration
	retry    func(ctx context.Context, op func() error) error
}

func (s *sqlStore) Backend() string { return s.backend }

func (s *sqlStore) Insert(ctx context.Context, rec *metadata.Record) error {
	if rec == nil {
		return fmt.Errorf("insert: nil record")
	}
	document, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.exec(ctx, upsertRecord, rec.ID, rec.FileName, rec.Directory, rec.DateTime, rec.EntityCount(), string(document))
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.exec(ctx, deleteRecord, id)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) error {
	query = s.rebind(query)
	op := func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}
	if s.retry != nil {
		return s.retry(ctx, op)
	}
	return op()
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
