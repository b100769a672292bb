package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rmqmeta/internal/extract"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/pipeline"
	"rmqmeta/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one ledger row.
type Entry struct {
	ID             int64
	MessageID      string
	RoutingKey     string
	Queue          string
	State          string
	Redelivered    bool
	RecordID       string
	DocumentPath   string
	QuarantinePath string
	Reason         string
	Error          string
	BackendsOK     int
	Duration       time.Duration
	CreatedAt      time.Time
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(path string) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Append writes one entry and returns its id. A zero CreatedAt is set to now.
func (s *Store) Append(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var id int64
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO deliveries (
                message_id, routing_key, queue, state, redelivered, record_id, document_path,
                quarantine_path, reason, error_message, backends_ok, duration_ms, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.MessageID,
			e.RoutingKey,
			e.Queue,
			e.State,
			boolToInt(e.Redelivered),
			nullableString(e.RecordID),
			nullableString(e.DocumentPath),
			nullableString(e.QuarantinePath),
			nullableString(e.Reason),
			nullableString(e.Error),
			e.BackendsOK,
			e.Duration.Milliseconds(),
			e.CreatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append delivery: %w", err)
	}
	return id, nil
}

const entryColumns = `id, message_id, routing_key, queue, state, redelivered, record_id, document_path,
    quarantine_path, reason, error_message, backends_ok, duration_ms, created_at`

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent deliveries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByMessageID returns every entry for a message id, oldest first.
func (s *Store) ByMessageID(ctx context.Context, messageID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM deliveries WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountsByState returns the number of entries per state.
func (s *Store) CountsByState(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM deliveries GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// Prune deletes entries created before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return removed, nil
}

// Observer returns a pipeline observer that appends every outcome. Write
// failures are logged; the ledger never affects message handling.
func (s *Store) Observer(logger *slog.Logger) func(*pipeline.Outcome) {
	logger = logging.NewComponentLogger(logger, "ledger")
	return func(out *pipeline.Outcome) {
		if _, err := s.Append(context.Background(), FromOutcome(out)); err != nil {
			logging.WarnWithContext(logger, "ledger write failed", "ledger_write_failed",
				logging.String(logging.FieldMessageID, out.MessageID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check free space for "+s.path),
				logging.String(logging.FieldImpact, "delivery missing from status history"),
			)
		}
	}
}

// FromOutcome converts a pipeline outcome into a ledger entry.
func FromOutcome(out *pipeline.Outcome) Entry {
	e := Entry{
		MessageID:    out.MessageID,
		RoutingKey:   out.RoutingKey,
		Queue:        out.Route,
		State:        string(out.State),
		Redelivered:  out.Redelivered,
		DocumentPath: out.Document,
		Duration:     out.Duration,
		CreatedAt:    out.Started,
		BackendsOK:   countSucceeded(out.Results),
	}
	if out.Record != nil {
		e.RecordID = out.Record.ID
	}
	if out.Quarantine != nil {
		e.QuarantinePath = out.Quarantine.Path
		e.Reason = out.Quarantine.Reason
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	return e
}

func countSucceeded(results []extract.Result) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e                                                  Entry
			redelivered                                        int
			recordID, document, quarantine, reason, errMessage sql.NullString
			durationMS                                         int64
			created                                            string
		)
		if err := rows.Scan(&e.ID, &e.MessageID, &e.RoutingKey, &e.Queue, &e.State, &redelivered,
			&recordID, &document, &quarantine, &reason, &errMessage, &e.BackendsOK, &durationMS, &created); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		e.Redelivered = redelivered != 0
		e.RecordID = recordID.String
		e.DocumentPath = document.String
		e.QuarantinePath = quarantine.String
		e.Reason = reason.String
		e.Error = errMessage.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(timeLayout, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
