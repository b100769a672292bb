package docstore_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/docstore"
	"rmqmeta/internal/entity"
	"rmqmeta/internal/metadata"
)

func openSQLite(t *testing.T) (docstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "metadata.db")
	store, err := docstore.OpenSQLite(path, 5*time.Second)
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func readDocument(t *testing.T, path, id string) (string, int, bool) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	var document string
	var count int
	err = db.QueryRow("SELECT document, entity_count FROM metadata_records WHERE id = ?", id).Scan(&document, &count)
	if err == sql.ErrNoRows {
		return "", 0, false
	}
	if err != nil {
		t.Fatalf("query record: %v", err)
	}
	return document, count, true
}

func sampleRecord() *metadata.Record {
	rec := metadata.New("docs_pdf_1.pdf", "/data/out/pdf", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	rec.Fold([]entity.Phrase{{Text: "London", Type: "LOCATION"}, {Text: "Ada Lovelace", Type: "PERSON"}})
	return rec
}

func TestSQLiteInsertWritesOrderedDocument(t *testing.T) {
	store, path := openSQLite(t)
	rec := sampleRecord()

	if err := store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	document, count, ok := readDocument(t, path, rec.ID)
	if !ok {
		t.Fatal("record not stored")
	}
	if count != 2 {
		t.Fatalf("entity_count = %d, want 2", count)
	}
	wantPrefix := `{"_id":"` + rec.ID + `","FileName":"docs_pdf_1.pdf","Directory":"/data/out/pdf","DateTime":"2024-01-02_03:04:05","LOCATION":["London"]`
	if !strings.HasPrefix(document, wantPrefix) {
		t.Fatalf("document %s does not start with %s", document, wantPrefix)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(document), &decoded); err != nil {
		t.Fatalf("stored document is not JSON: %v", err)
	}
}

func TestSQLiteInsertIsUpsert(t *testing.T) {
	store, path := openSQLite(t)
	rec := sampleRecord()
	ctx := context.Background()

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	rec.Fold([]entity.Phrase{{Text: "Paris", Type: "LOCATION"}})
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("second insert: %v", err)
	}
	document, count, _ := readDocument(t, path, rec.ID)
	if count != 3 || !strings.Contains(document, `"LOCATION":["London","Paris"]`) {
		t.Fatalf("expected updated record, got count=%d doc=%s", count, document)
	}
}

func TestSQLiteDelete(t *testing.T) {
	store, path := openSQLite(t)
	rec := sampleRecord()
	ctx := context.Background()

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, ok := readDocument(t, path, rec.ID); ok {
		t.Fatal("record still present after delete")
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing id should succeed: %v", err)
	}
}

func TestSQLitePingAndBackend(t *testing.T) {
	store, _ := openSQLite(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if store.Backend() != config.StoreSQLite {
		t.Fatalf("unexpected backend %q", store.Backend())
	}
}

func TestInsertRejectsNilRecord(t *testing.T) {
	store, _ := openSQLite(t)
	if err := store.Insert(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "meta.db")
	store, err := docstore.Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer store.Close()
	if store.Backend() != config.StoreSQLite {
		t.Fatalf("unexpected backend %q", store.Backend())
	}

	cfg.Store.Backend = "cassandra"
	if _, err := docstore.Open(context.Background(), &cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := docstore.OpenPostgres(context.Background(), " ", time.Second); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpenFirestoreRequiresProject(t *testing.T) {
	if _, err := docstore.OpenFirestore(context.Background(), config.Store{}, time.Second); err == nil {
		t.Fatal("expected error for empty project id")
	}
}
