package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesExchangeLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LogFile = "rmq_metadata_docs.log"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	if got := readLog(t, filepath.Join(cfg.Paths.LogDir, "rmq_metadata_docs.log")); !strings.Contains(got, "hello from config") {
		t.Fatalf("expected message in log file, got %q", got)
	}
}

func TestConsoleLoggerPromotesSubjectFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("document relocated",
		logging.String(logging.FieldRoutingKey, "pdf"),
		logging.String(logging.FieldMessageID, "abc123"),
		logging.String("path", "/data/out file.pdf"),
	)

	got := readLog(t, logPath)
	if !strings.Contains(got, "INFO  pipeline: document relocated [pdf abc123]") {
		t.Fatalf("unexpected console line: %q", got)
	}
	if !strings.Contains(got, `path="/data/out file.pdf"`) {
		t.Fatalf("expected quoted path attribute, got %q", got)
	}
	if strings.Contains(got, "component=") {
		t.Fatalf("component should be rendered as prefix only, got %q", got)
	}
	if strings.Contains(got, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", got)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		SessionID:        "session-1",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithMessageID(context.Background(), "msg-1")
	ctx = services.WithRoutingKey(ctx, "pdf")
	ctx = services.WithStage(ctx, "extracted")
	logging.WithContext(ctx, logger).Warn("stage done")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	want := map[string]string{
		"level":                 "warn",
		"msg":                   "stage done",
		logging.FieldMessageID:  "msg-1",
		logging.FieldRoutingKey: "pdf",
		logging.FieldStage:      "extracted",
		logging.FieldSessionID:  "session-1",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Fatalf("field %s: got %v want %q", key, entry[key], value)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "mail skipped", "notification_skipped")

	got := readLog(t, logPath)
	for _, want := range []string{`"event_type":"notification_skipped"`, `"error_hint":`, `"impact":`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %s in %q", want, got)
		}
	}
}

func TestPruneRunLogsKeepsCurrentAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "rmqmeta-20200101T000000.000Z.log")
	recent := filepath.Join(dir, "rmqmeta-20990101T000000.000Z.log")
	current := filepath.Join(dir, "rmqmeta-current.log")
	for _, path := range []string{old, recent, current} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -90)
	for _, path := range []string{old, current} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneRunLogs(logging.NewNop(), dir, "rmqmeta-*.log", current, 30)
	if len(removed) != 1 || removed[0] != old {
		t.Fatalf("unexpected removals: %v", removed)
	}
	for _, path := range []string{recent, current} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}
