package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"rmqmeta/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The working directories and one "pdf" route directory exist on return; the
// NER jar and model paths point at empty placeholder files.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = base
	cfgVal.Paths.MessageDir = filepath.Join(base, "message_dir")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TmpDir = filepath.Join(base, "tmp")
	cfgVal.Paths.EnvFile = ""
	cfgVal.RabbitMQ.ExchangeName = "docs"
	cfgVal.Routes = []config.Route{{
		Queue:      "pdf_queue",
		RoutingKey: "pdf",
		Directory:  filepath.Join(base, "out", "pdf"),
		Mode:       "w",
		Ext:        "pdf",
	}}
	cfgVal.NER.StanfordJar = filepath.Join(base, "ner", "stanford-ner.jar")
	cfgVal.NER.LangModule = filepath.Join(base, "ner", "english.all.3class.distsim.crf.ser.gz")
	cfgVal.Store.SQLitePath = filepath.Join(base, "metadata.db")
	cfgVal.Metrics.Listen = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.MessageDir, cfgVal.Paths.LogDir, cfgVal.Paths.TmpDir, filepath.Dir(cfgVal.NER.StanfordJar)} {
		mustMkdir(t, dir)
	}
	for _, route := range cfgVal.Routes {
		mustMkdir(t, route.Directory)
	}
	if cfgVal.Paths.ArchiveDir != "" {
		mustMkdir(t, cfgVal.Paths.ArchiveDir)
	}
	for _, path := range []string{cfgVal.NER.StanfordJar, cfgVal.NER.LangModule} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, nil, 0o644); err != nil {
				t.Fatalf("write placeholder %s: %v", path, err)
			}
		}
	}

	return builder.cfg
}

// WithRoute appends a route whose directory lives under the test base dir.
func WithRoute(route config.Route) ConfigOption {
	return func(b *configBuilder) {
		if route.Directory == "" {
			route.Directory = filepath.Join(b.baseDir, "out", route.RoutingKey)
		}
		if route.Mode == "" {
			route.Mode = "w"
		}
		b.cfg.Routes = append(b.cfg.Routes, route)
	}
}

// WithEncodedRoutes marks every configured route as base64 encoded.
func WithEncodedRoutes() ConfigOption {
	return func(b *configBuilder) {
		for i := range b.cfg.Routes {
			b.cfg.Routes[i].SType = config.EncodedSType
		}
	}
}

// WithArchive enables body archiving for every route.
func WithArchive() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.ArchiveDir = filepath.Join(b.baseDir, "archive")
		for i := range b.cfg.Routes {
			b.cfg.Routes[i].Archive = true
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"pdftotext", "java"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteStub(b.t, binDir, name, "exit 0\n")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.BaseDir
}

func mustMkdir(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}
