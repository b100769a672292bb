package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rmqmeta/internal/daemon"
	"rmqmeta/internal/ipc"
	"rmqmeta/internal/ledger"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/testsupport"
	"rmqmeta/internal/transport"
)

type idleConsumer struct{}

func (idleConsumer) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (idleConsumer) Status() transport.Status {
	return transport.Status{Connected: true, Queues: []string{"pdf_queue"}, Processed: 3}
}

func TestIPCServerClient(t *testing.T) {
	t.Setenv("JAVA_HOME", "")
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	logPath := cfg.LogFilePath()
	logger := logging.NewNop()

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for _, e := range []ledger.Entry{
		{MessageID: "m-1", RoutingKey: "pdf", Queue: "pdf_queue", State: "RELOCATED", RecordID: "01HX", BackendsOK: 3, Duration: 1500 * time.Millisecond},
		{MessageID: "m-2", RoutingKey: "pdf", Queue: "pdf_queue", State: "EXTRACTION_FAILED", Reason: "All extractions or database insertion failure"},
		{MessageID: "m-2", RoutingKey: "pdf", Queue: "pdf_queue", State: "RELOCATED", Redelivered: true},
	} {
		if _, err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	d, err := daemon.New(cfg, idleConsumer{}, store, nil, nil, logger, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || !status.Connected || status.Exchange != "docs" || status.Processed != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.StateCounts["RELOCATED"] != 2 || status.StateCounts["EXTRACTION_FAILED"] != 1 {
		t.Fatalf("unexpected state counts: %v", status.StateCounts)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency statuses")
	}

	recent, err := client.Recent(2)
	if err != nil {
		t.Fatalf("Recent RPC failed: %v", err)
	}
	if len(recent.Deliveries) != 2 || recent.Deliveries[0].MessageID != "m-2" || !recent.Deliveries[0].Redelivered {
		t.Fatalf("unexpected recent deliveries: %+v", recent.Deliveries)
	}

	lookup, err := client.Lookup("m-1")
	if err != nil {
		t.Fatalf("Lookup RPC failed: %v", err)
	}
	if len(lookup.Deliveries) != 1 || lookup.Deliveries[0].DurationMillis != 1500 || lookup.Deliveries[0].RecordID != "01HX" {
		t.Fatalf("unexpected lookup: %+v", lookup.Deliveries)
	}
	if _, err := client.Lookup(""); err == nil {
		t.Fatal("expected lookup without id to fail")
	}

	if err := os.WriteFile(logPath, []byte("first\nsecond m-9\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second m-9" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}
	matchResp, err := client.LogTail(ipc.LogTailRequest{Offset: 0, Match: "m-9"})
	if err != nil || len(matchResp.Lines) != 1 {
		t.Fatalf("unexpected match response: %#v err=%v", matchResp, err)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("expected skipped notification with message, got %#v", notifyResp)
	}

	stopResp, err := client.Stop()
	if err != nil || !stopResp.Stopped {
		t.Fatalf("Stop RPC failed: %v %#v", err, stopResp)
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if filepath.Dir(socket) != cfg.Paths.LogDir {
		t.Fatalf("unexpected socket location %s", socket)
	}
}
