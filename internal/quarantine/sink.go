// Package quarantine preserves the raw body of a message the pipeline could
// not process and alerts an operator about it.
package quarantine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/materialize"
	"rmqmeta/internal/mirror"
	"rmqmeta/internal/notifications"
	"rmqmeta/internal/services"
)

// Entry describes one quarantined body.
type Entry struct {
	Path       string
	Reason     string
	Stamp      string
	RoutingKey string
	Notified   bool
}

// Sink writes failed message bodies to message_dir.
type Sink struct {
	exchange      string
	dir           string
	logFile       string
	notifier      notifications.Service
	hasRecipients bool
	mirror        *mirror.Mirror
	logger        *slog.Logger
	now           func() time.Time
}

// Option customizes a Sink.
type Option func(*Sink)

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMirror copies quarantined bodies off-host.
func WithMirror(m *mirror.Mirror) Option {
	return func(s *Sink) { s.mirror = m }
}

// New builds a sink. A nil notifier disables alerts.
func New(cfg *config.Config, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Sink {
	s := &Sink{
		exchange:      cfg.RabbitMQ.ExchangeName,
		dir:           cfg.Paths.MessageDir,
		logFile:       cfg.LogFilePath(),
		notifier:      notifier,
		hasRecipients: notifier != nil && notifications.HasRecipients(cfg),
		logger:        logging.NewComponentLogger(logger, "quarantine"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put writes body to message_dir/<exchange>_<routingKey>_<stamp>.txt and sends
// the alert. The reason is derived from cause. Only a failed write is
// returned as an error; alert and mirror failures are logged.
func (s *Sink) Put(ctx context.Context, routingKey string, body []byte, cause error) (*Entry, error) {
	stamp := materialize.ReadableStamp(s.now())
	entry := &Entry{
		Path:       filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s.txt", s.exchange, routingKey, stamp)),
		Reason:     services.Reason(cause),
		Stamp:      stamp,
		RoutingKey: routingKey,
	}
	logger := logging.WithContext(ctx, s.logger)

	if err := os.WriteFile(entry.Path, body, 0o644); err != nil {
		logging.ErrorWithContext(logger, "failed to save message body", "quarantine_write_failed",
			logging.String("path", entry.Path),
			logging.String("reason", entry.Reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that paths.message_dir exists and is writable"),
		)
		return entry, services.Wrap(services.ErrTransient, "quarantine", "write body", entry.Path, err)
	}

	logger.Error("message was not processed",
		logging.String("reason", entry.Reason),
		logging.String(logging.FieldExchange, s.exchange),
		logging.String(logging.FieldRoutingKey, routingKey),
		logging.String("path", entry.Path),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "message_quarantined"),
	)

	s.mirror.Copy(ctx, mirror.CategoryQuarantine, entry.Path)
	entry.Notified = s.notify(ctx, logger, entry)
	return entry, nil
}

func (s *Sink) notify(ctx context.Context, logger *slog.Logger, entry *Entry) bool {
	if !s.hasRecipients {
		logging.WarnWithContext(logger, "no alert sent, no recipients configured", "alert_skipped",
			logging.String(logging.FieldErrorHint, "set notifications.to_line or notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "quarantine is only visible in the log and message_dir"),
		)
		return false
	}
	err := s.notifier.Publish(ctx, notifications.EventQuarantined, notifications.Payload{
		"reason":     entry.Reason,
		"exchange":   s.exchange,
		"routingKey": entry.RoutingKey,
		"logFile":    s.logFile,
		"stamp":      entry.Stamp,
		"path":       entry.Path,
	})
	if err != nil {
		logging.WarnWithContext(logger, "quarantine alert failed", "alert_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check smtp and ntfy settings; run 'rmqmeta test-notify'"),
		)
		return false
	}
	logger.Info("quarantine alert sent", logging.String("reason", entry.Reason))
	return true
}
