package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rmqmeta/internal/ipc"
	"rmqmeta/internal/ledger"
	"rmqmeta/internal/testsupport"
)

func TestConfigInitValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "rmqmeta.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}

	t.Setenv("RMQ_PASSWORD", "hunter2")
	out, _, err = runCLI(t, env, "config", "show", "--format", "yaml")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "exchange_name: docs")
	requireContains(t, out, redacted)
	if strings.Contains(out, "hunter2") {
		t.Fatalf("secret leaked into config show output:\n%s", out)
	}

	if _, _, err := runCLI(t, env, "config", "show", "--format", "xml"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestStatusOfflineReadsLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t,
		ledger.Entry{MessageID: "m-1", RoutingKey: "pdf", State: "RELOCATED", RecordID: "01HXRECORD"},
		ledger.Entry{MessageID: "m-2", RoutingKey: "zip", State: "UNROUTED", Reason: "No queue detected"},
	)

	out, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "RELOCATED")
	requireContains(t, out, "UNROUTED")
	requireContains(t, out, "01HXRECORD")
	requireContains(t, out, "Route pdf")
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestDeliveriesThroughDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t,
		ledger.Entry{MessageID: "m-1", RoutingKey: "pdf", State: "EXTRACTION_FAILED", Reason: "All extractions or database insertion failure"},
		ledger.Entry{MessageID: "m-1", RoutingKey: "pdf", State: "RELOCATED", Redelivered: true, RecordID: "01HXRECORD"},
		ledger.Entry{MessageID: "m-2", RoutingKey: "pdf", State: "RELOCATED"},
	)
	env.startDaemon(t)

	out, _, err := runCLI(t, env, "deliveries", "--json", "--limit", "2")
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	var recent []ipc.Delivery
	if err := json.Unmarshal([]byte(out), &recent); err != nil {
		t.Fatalf("decode deliveries: %v\n%s", err, out)
	}
	if len(recent) != 2 || recent[0].MessageID != "m-2" {
		t.Fatalf("unexpected recent deliveries: %+v", recent)
	}

	out, _, err = runCLI(t, env, "deliveries", "lookup", "m-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	requireContains(t, out, "EXTRACTION_FAILED")
	requireContains(t, out, "(redelivered)")

	if _, _, err := runCLI(t, env, "deliveries", "lookup", "missing"); err == nil {
		t.Fatal("expected lookup of an unknown message to fail")
	}

	out, _, err = runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "no notification recipients configured")
}

func TestDeliveriesOfflineFallsBackToLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t, ledger.Entry{MessageID: "m-9", RoutingKey: "pdf", State: "PERSISTED_FAILED"})

	out, _, err := runCLI(t, env, "recent")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	requireContains(t, out, "m-9")
	requireContains(t, out, "PERSISTED_FAILED")
}

func TestExtractReportsEveryBackend(t *testing.T) {
	env := setupCLITestEnv(t)
	doc := filepath.Join(t.TempDir(), "report.pdf")
	testsupport.WriteTextPDF(t, doc, "Ada Lovelace visited London")

	out, _, err := runCLI(t, env, "extract", "--format", "json", doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var report struct {
		File     string `json:"file"`
		Pages    int    `json:"pages"`
		Backends []struct {
			Backend string `json:"backend"`
		} `json:"backends"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.File != doc || report.Pages != 1 {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if len(report.Backends) != 3 {
		t.Fatalf("expected one result per backend, got %+v", report.Backends)
	}
}

func TestPublishRequiresRoutingKey(t *testing.T) {
	env := setupCLITestEnv(t)
	doc := filepath.Join(t.TempDir(), "doc.pdf")
	testsupport.WriteTextPDF(t, doc, "hello")
	_, _, err := runCLI(t, env, "publish", doc)
	if err == nil || !strings.Contains(err.Error(), "--routing-key") {
		t.Fatalf("expected routing key error, got %v", err)
	}
}

func TestStateCountRowsOrdersTerminalStatesFirst(t *testing.T) {
	rows := stateCountRows(map[string]int{"ZZZ": 1, "UNROUTED": 2, "RELOCATED": 5})
	got := make([]string, 0, len(rows))
	for _, row := range rows {
		got = append(got, row[0]+"="+row[1])
	}
	if strings.Join(got, ",") != "RELOCATED=5,UNROUTED=2,ZZZ=1" {
		t.Fatalf("unexpected rows: %v", got)
	}
}
