package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rmqmeta/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }
func (f fakeStore) Backend() string            { return "sqlite" }

func TestCheckStore(t *testing.T) {
	if r := CheckStore(context.Background(), fakeStore{}); !r.Passed || r.Name != "Document store (sqlite)" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := CheckStore(context.Background(), fakeStore{err: context.DeadlineExceeded}); r.Passed || r.Detail != "timed out" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestCheckBrokerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	cfg := config.Default()
	cfg.RabbitMQ.Host = "127.0.0.1"
	cfg.RabbitMQ.Port = addr.Port
	r := CheckBroker(context.Background(), &cfg)
	if r.Passed || !strings.Contains(r.Detail, "127.0.0.1") {
		t.Fatalf("expected broker failure, got %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil, false); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsRouteDirectoriesOnce(t *testing.T) {
	out := t.TempDir()
	cfg := config.Default()
	cfg.Paths.MessageDir = t.TempDir()
	cfg.Paths.TmpDir = t.TempDir()
	cfg.Routes = []config.Route{
		{RoutingKey: "pdf", Directory: out},
		{RoutingKey: "doc", Directory: out},
		{RoutingKey: "gone", Directory: filepath.Join(out, "missing")},
	}

	results := RunAll(context.Background(), &cfg, fakeStore{err: errors.New("down")}, false)
	names := map[string]Result{}
	for _, r := range results {
		names[r.Name] = r
	}
	if _, ok := names["Route doc"]; ok {
		t.Fatal("expected duplicate route directory to be checked once")
	}
	if !names["Route pdf"].Passed || names["Route gone"].Passed {
		t.Fatalf("unexpected route results: %+v %+v", names["Route pdf"], names["Route gone"])
	}
	if r, ok := names["Document store (sqlite)"]; !ok || r.Passed {
		t.Fatalf("expected failing store check, got %+v", r)
	}
	if _, ok := names["RabbitMQ"]; ok {
		t.Fatal("broker check should be skipped")
	}

	failed := Failed(results)
	for _, r := range failed {
		if r.Optional {
			t.Fatalf("optional check reported as failure: %+v", r)
		}
	}
	if len(failed) == 0 {
		t.Fatal("expected failures")
	}
}
