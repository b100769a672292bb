package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"rmqmeta/internal/config"
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
	return transport.Status{Connected: true, Queues: []string{"pdf_queue"}}
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	socketPath string
	ledger     *ledger.Store
}

// setupCLITestEnv writes a config file for a temp workspace. No daemon is
// running until startDaemon is called.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("JAVA_HOME", "")
	t.Setenv("RMQ_PASSWORD", "")

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(cfg.Paths.BaseDir, "config.toml")
	writeTestConfig(t, configPath, cfg)

	loaded, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	return &cliTestEnv{cfg: loaded, configPath: configPath, socketPath: loaded.SocketPath()}
}

func (e *cliTestEnv) openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	if e.ledger != nil {
		return e.ledger
	}
	store, err := ledger.Open(e.cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	e.ledger = store
	return store
}

func (e *cliTestEnv) seed(t *testing.T, entries ...ledger.Entry) {
	t.Helper()
	store := e.openLedger(t)
	for _, entry := range entries {
		if _, err := store.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func (e *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	logger := logging.NewNop()
	d, err := daemon.New(e.cfg, idleConsumer{}, e.openLedger(t), nil, nil, logger, e.cfg.LogFilePath())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, e.socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon-backed CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})
	return d
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
