package dispatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/dispatch"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/materialize"
	"rmqmeta/internal/services"
)

var clock = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.UTC) }

func newDispatcher(t *testing.T, archiveDir string, routes ...config.Route) (*dispatch.Dispatcher, string) {
	t.Helper()
	cfg := config.Default()
	cfg.RabbitMQ.ExchangeName = "docs"
	cfg.Paths.ArchiveDir = archiveDir
	cfg.Routes = routes
	tmp := t.TempDir()
	m := materialize.New("docs", tmp, logging.NewNop(), materialize.WithClock(clock))
	return dispatch.New(&cfg, m, logging.NewNop(), dispatch.WithClock(clock)), tmp
}

func TestDispatchFirstMatchingRouteWins(t *testing.T) {
	d, _ := newDispatcher(t, "",
		config.Route{Queue: "first", RoutingKey: "pdf", Prename: "one", Mode: "w"},
		config.Route{Queue: "second", RoutingKey: "pdf", Prename: "two", Mode: "w"},
	)
	for i := 0; i < 3; i++ {
		res, err := d.Dispatch(context.Background(), "pdf", []byte("body"))
		if err != nil {
			t.Fatalf("Dispatch returned error: %v", err)
		}
		if res.Route.Queue != "first" {
			t.Fatalf("expected first route, got %q", res.Route.Queue)
		}
		if filepath.Base(res.Document.Path)[:4] != "one_" {
			t.Fatalf("unexpected document name %q", res.Document.Name)
		}
	}
}

func TestDispatchUnknownRoutingKey(t *testing.T) {
	d, tmp := newDispatcher(t, "", config.Route{Queue: "q", RoutingKey: "pdf", Mode: "w"})
	res, err := d.Dispatch(context.Background(), "xml", []byte("body"))
	if !errors.Is(err, services.ErrRouting) {
		t.Fatalf("expected ErrRouting, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Fatal("nothing should be materialized for an unknown key")
	}
}

func TestDispatchArchivesWhenRouteAndDirectoryAllow(t *testing.T) {
	archive := t.TempDir()
	d, _ := newDispatcher(t, archive, config.Route{Queue: "q", RoutingKey: "pdf", Archive: true, Mode: "w"})
	res, err := d.Dispatch(context.Background(), "pdf", []byte("raw body"))
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	want := filepath.Join(archive, "docs_pdf_2024-01-02_03:04:05.6000.body")
	if res.ArchivePath != want {
		t.Fatalf("archive path %q want %q", res.ArchivePath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "raw body" {
		t.Fatalf("unexpected archive content %q err=%v", data, err)
	}
}

func TestDispatchSkipsArchiveWithoutDirectory(t *testing.T) {
	d, _ := newDispatcher(t, "", config.Route{Queue: "q", RoutingKey: "pdf", Archive: true, Mode: "w"})
	res, err := d.Dispatch(context.Background(), "pdf", []byte("raw body"))
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if res.ArchivePath != "" {
		t.Fatalf("expected no archive, got %q", res.ArchivePath)
	}
}

func TestDispatchReturnsRouteOnMaterializeFailure(t *testing.T) {
	d, _ := newDispatcher(t, "", config.Route{Queue: "q", RoutingKey: "pdf", SType: config.EncodedSType, Mode: "w"})
	res, err := d.Dispatch(context.Background(), "pdf", []byte("@@@"))
	if !errors.Is(err, services.ErrMaterialize) {
		t.Fatalf("expected ErrMaterialize, got %v", err)
	}
	if res == nil || res.Route.Queue != "q" || res.Document != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}
