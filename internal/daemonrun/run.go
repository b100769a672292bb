package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"rmqmeta/internal/config"
	"rmqmeta/internal/daemon"
	"rmqmeta/internal/deps"
	"rmqmeta/internal/dispatch"
	"rmqmeta/internal/docstore"
	"rmqmeta/internal/extract"
	"rmqmeta/internal/ipc"
	"rmqmeta/internal/ledger"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/materialize"
	"rmqmeta/internal/metrics"
	"rmqmeta/internal/mirror"
	"rmqmeta/internal/ner"
	"rmqmeta/internal/notifications"
	"rmqmeta/internal/pipeline"
	"rmqmeta/internal/quarantine"
	"rmqmeta/internal/transport"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the rmqmeta daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	stem := strings.TrimSuffix(cfg.Paths.LogFile, filepath.Ext(cfg.Paths.LogFile))
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", stem, runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	sessionID := uuid.NewString()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		SessionID:        sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldExchange, cfg.RabbitMQ.ExchangeName))

	if err := ensureCurrentLogPointer(cfg.LogFilePath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", cfg.Paths.LogFile, err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, stem+"-*.log", logPath, cfg.Logging.RetentionDays)
	logDependencySnapshot(logger, cfg)
	for _, key := range cfg.DuplicateRoutingKeys() {
		logging.WarnWithContext(logger, "routing key bound to several routes; first route wins", "duplicate_routing_key",
			logging.String(logging.FieldRoutingKey, key),
			logging.String(logging.FieldErrorHint, "remove the duplicate [[routes]] entry"),
		)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := docstore.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open document store", logging.Error(err), logging.String("backend", cfg.Store.Backend))
		return err
	}
	defer store.Close()

	ledgerStore, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}
	defer ledgerStore.Close()
	pruneLedger(signalCtx, ledgerStore, cfg.Logging.RetentionDays, logger)

	mirrorClient, err := mirror.Open(signalCtx, cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "mirror unavailable; continuing without it", "mirror_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [mirror] bucket and credentials"),
			logging.String(logging.FieldImpact, "archive and quarantine copies stay local only"),
		)
		mirrorClient = nil
	}
	defer mirrorClient.Close()

	var collector *metrics.Metrics
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	notifier := notifications.NewService(cfg)
	controller := buildController(cfg, store, mirrorClient, notifier, collector, ledgerStore, logger)
	consumer := transport.NewConsumer(cfg, controller, logger, transport.WithQueueState(collector.SetConsumerUp))

	d, err := daemon.New(cfg, consumer, ledgerStore, store, notifier, logger, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if collector != nil {
		brokerHealth := func(context.Context) error {
			if !consumer.Status().Connected {
				return fmt.Errorf("not connected")
			}
			return nil
		}
		server := metrics.NewServer(cfg.Metrics.Listen, collector, map[string]metrics.HealthFunc{
			"store":  store.Ping,
			"broker": brokerHealth,
		}, logger)
		if err := server.Start(); err != nil {
			logging.WarnWithContext(logger, "metrics endpoint unavailable", "metrics_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.listen is a free host:port"),
			)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()
		}
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported checks, then run `rmqmeta start`"),
			logging.String(logging.FieldImpact, "no messages are consumed until the daemon is started"),
		)
	}

	<-signalCtx.Done()
	logger.Info("rmqmeta daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

func buildController(cfg *config.Config, store docstore.Store, mirrorClient *mirror.Mirror, notifier notifications.Service, collector *metrics.Metrics, ledgerStore *ledger.Store, logger *slog.Logger) *pipeline.Controller {
	materializer := materialize.New(cfg.RabbitMQ.ExchangeName, cfg.Paths.TmpDir, logger)
	dispatcher := dispatch.New(cfg, materializer, logger, dispatch.WithMirror(mirrorClient))

	classifier := ner.NewClassifier(cfg.NER, cfg.Paths.TmpDir, logger)
	runner := extract.NewRunner(
		extract.Backends(cfg.Extraction),
		ner.NewTagger(classifier, cfg.NER.TokenTypes),
		cfg.NER.TokenTypes,
		extract.WithTimeout(time.Duration(cfg.Extraction.TimeoutSeconds)*time.Second),
		extract.WithConcurrency(cfg.Extraction.Concurrent),
		extract.WithLogger(logger),
		extract.WithObserver(collector.ObserveBackend),
	)

	sink := quarantine.New(cfg, notifier, logger, quarantine.WithMirror(mirrorClient))
	return pipeline.NewController(dispatcher, runner, store, sink, logger,
		pipeline.WithNotifier(notifier),
		pipeline.WithObserver(ledgerStore.Observer(logger)),
		pipeline.WithObserver(collector.Observe),
	)
}

func pruneLedger(ctx context.Context, store *ledger.Store, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(logger, "ledger prune failed", "ledger_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger.db permissions"),
		)
		return
	}
	if removed > 0 {
		logger.Info("ledger pruned",
			logging.Int64("removed", removed),
			logging.String(logging.FieldEventType, "ledger_pruned"),
		)
	}
}

// ensureCurrentLogPointer points the configured log file at the current run log.
func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	java := deps.ResolveJava(cfg.NER.JavaBinary)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("java_binary", java),
		logging.String("store_backend", cfg.Store.Backend),
		logging.String("mirror_backend", cfg.Mirror.Backend),
		logging.Int("routes", len(cfg.Routes)),
		logging.Bool("alerts_configured", notifications.HasRecipients(cfg)),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
	}
	for _, status := range deps.CheckBinaries([]deps.Requirement{
		{Name: "java", Command: java},
		{Name: "pdftotext", Command: cfg.Extraction.PdftotextBinary, Optional: true},
	}) {
		attrs = append(attrs, logging.Bool(status.Name+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
