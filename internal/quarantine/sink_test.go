package quarantine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rmqmeta/internal/logging"
	"rmqmeta/internal/notifications"
	"rmqmeta/internal/quarantine"
	"rmqmeta/internal/services"
	"rmqmeta/internal/testsupport"
)

type recordingNotifier struct {
	events   []notifications.Event
	payloads []notifications.Payload
	err      error
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return r.err
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 600_000_000, time.UTC)
}

func TestPutWritesBodyAndAlerts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.ToLine = []string{"ops@example.com"}
	notifier := &recordingNotifier{}
	sink := quarantine.New(cfg, notifier, logging.NewNop(), quarantine.WithClock(fixedClock))

	cause := services.Wrap(services.ErrRouting, "dispatch", "match route", "zip", nil)
	entry, err := sink.Put(context.Background(), "zip", []byte("raw body"), cause)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	wantPath := filepath.Join(cfg.Paths.MessageDir, "docs_zip_2024-01-02_03:04:05.6000.txt")
	if entry.Path != wantPath {
		t.Fatalf("path = %q, want %q", entry.Path, wantPath)
	}
	got, err := os.ReadFile(wantPath)
	if err != nil || string(got) != "raw body" {
		t.Fatalf("unexpected body %q err=%v", got, err)
	}
	if entry.Reason != services.ReasonNoQueue || !entry.Notified {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventQuarantined {
		t.Fatalf("unexpected events %v", notifier.events)
	}
	payload := notifier.payloads[0]
	if payload["path"] != wantPath || payload["exchange"] != "docs" || payload["stamp"] != "2024-01-02_03:04:05.6000" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["logFile"] != cfg.LogFilePath() {
		t.Fatalf("log file pointer = %v, want %s", payload["logFile"], cfg.LogFilePath())
	}
}

func TestPutSkipsAlertWithoutRecipients(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	notifier := &recordingNotifier{}
	sink := quarantine.New(cfg, notifier, logging.NewNop(), quarantine.WithClock(fixedClock))

	entry, err := sink.Put(context.Background(), "pdf", []byte("x"), errors.New("store down"))
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if entry.Notified || len(notifier.events) != 0 {
		t.Fatal("no alert expected without recipients")
	}
	if entry.Reason != services.ReasonExtractStore {
		t.Fatalf("unexpected reason %q", entry.Reason)
	}
}

func TestPutAlertFailureDoesNotFail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = "https://ntfy.example/rmq"
	notifier := &recordingNotifier{err: errors.New("unreachable")}
	sink := quarantine.New(cfg, notifier, logging.NewNop(), quarantine.WithClock(fixedClock))

	entry, err := sink.Put(context.Background(), "pdf", []byte("x"), services.Wrap(services.ErrRelocation, "pipeline", "relocate", "", nil))
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if entry.Notified || entry.Reason != services.ReasonRelocation {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestPutReportsWriteFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.MessageDir = filepath.Join(t.TempDir(), "missing")
	sink := quarantine.New(cfg, nil, logging.NewNop(), quarantine.WithClock(fixedClock))

	if _, err := sink.Put(context.Background(), "pdf", []byte("x"), nil); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient write error, got %v", err)
	}
}
