package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"rmqmeta/internal/config"
	"rmqmeta/internal/deps"
	"rmqmeta/internal/ledger"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/notifications"
	"rmqmeta/internal/preflight"
	"rmqmeta/internal/transport"
)

// Consumer is the broker loop the daemon supervises.
type Consumer interface {
	Run(ctx context.Context) error
	Status() transport.Status
}

// Daemon supervises the consumer and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	consumer Consumer
	ledger   *ledger.Store
	store    preflight.Pinger
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Connected    bool
	Queues       []string
	Processed    int64
	StateCounts  map[string]int
	LastError    string
	LockFilePath string
	LedgerPath   string
	PID          int
	Dependencies []deps.Status
}

// New constructs a daemon. store and notifier may be nil.
func New(cfg *config.Config, consumer Consumer, ledgerStore *ledger.Store, store preflight.Pinger, notifier notifications.Service, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || consumer == nil || ledgerStore == nil {
		return nil, errors.New("daemon requires config, consumer, and ledger")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		consumer: consumer,
		ledger:   ledgerStore,
		store:    store,
		notifier: notifier,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the program lock, runs preflight checks and launches the
// consumer.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another rmqmeta instance for flavor %q is already running", d.cfg.Daemon.FlavorID)
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg, d.store, false)); len(failed) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			names = append(names, r.Name+": "+r.Detail)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, "; "))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.lastErr = ""
	go func() {
		defer close(done)
		if err := d.consumer.Run(runCtx); err != nil {
			d.mu.Lock()
			d.lastErr = err.Error()
			d.mu.Unlock()
			logging.ErrorWithContext(d.logger, "consumer stopped", "consumer_failed", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("rmqmeta daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldExchange, d.cfg.RabbitMQ.ExchangeName),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop cancels the consumer, waits for the in-flight message to finish and
// releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	// A stop is already draining the consumer; wait for it.
	if cancel == nil {
		<-done
		return
	}

	cancel()
	<-done
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.mu.Lock()
	d.done = nil
	d.running.Store(false)
	d.mu.Unlock()
	d.logger.Info("rmqmeta daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether the consumer is active.
func (d *Daemon) Running() bool { return d.running.Load() }

// Exchange returns the exchange the consumer is bound to.
func (d *Daemon) Exchange() string { return d.cfg.RabbitMQ.ExchangeName }

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string { return d.logPath }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	consumer := d.consumer.Status()
	d.mu.Lock()
	lastErr := d.lastErr
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		Connected:    consumer.Connected,
		Queues:       consumer.Queues,
		Processed:    consumer.Processed,
		LastError:    lastErr,
		LockFilePath: d.lockPath,
		LedgerPath:   d.ledger.Path(),
		PID:          os.Getpid(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
	counts, err := d.ledger.CountsByState(ctx)
	if err != nil {
		d.logger.Warn("ledger counts unavailable", logging.Error(err))
	}
	status.StateCounts = counts
	return status
}

// Recent returns the latest ledger entries, newest first.
func (d *Daemon) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return d.ledger.Recent(ctx, limit)
}

// Lookup returns every ledger entry recorded for messageID.
func (d *Daemon) Lookup(ctx context.Context, messageID string) ([]ledger.Entry, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, errors.New("message id is required")
	}
	return d.ledger.ByMessageID(ctx, messageID)
}

// TestNotification sends a test alert through the configured channels.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if !notifications.HasRecipients(d.cfg) {
		return false, "no notification recipients configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Payload{
		"exchange": d.cfg.RabbitMQ.ExchangeName,
	}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
