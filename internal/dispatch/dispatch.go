// Package dispatch selects the route for an inbound message, archives the raw
// body when the route asks for it, and hands the body to the materializer.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/materialize"
	"rmqmeta/internal/mirror"
	"rmqmeta/internal/services"
)

// Result describes a dispatched message.
type Result struct {
	Route       config.Route
	Document    *materialize.Document
	ArchivePath string
}

// Dispatcher routes message bodies by routing key.
type Dispatcher struct {
	routes       []config.Route
	exchange     string
	archiveDir   string
	materializer *materialize.Materializer
	mirror       *mirror.Mirror
	logger       *slog.Logger
	now          func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used for archive file names.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithMirror copies archived bodies off-host.
func WithMirror(m *mirror.Mirror) Option {
	return func(d *Dispatcher) { d.mirror = m }
}

// New builds a dispatcher over the configured route table.
func New(cfg *config.Config, materializer *materialize.Materializer, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes:       append([]config.Route(nil), cfg.Routes...),
		exchange:     cfg.RabbitMQ.ExchangeName,
		archiveDir:   strings.TrimSpace(cfg.Paths.ArchiveDir),
		materializer: materializer,
		logger:       logging.NewComponentLogger(logger, "dispatch"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Match returns the first route whose routing key equals key.
func (d *Dispatcher) Match(key string) (config.Route, bool) {
	for _, route := range d.routes {
		if route.RoutingKey == key {
			return route, true
		}
	}
	return config.Route{}, false
}

// Dispatch finds the route for routingKey, archives the body when enabled and
// materializes it. An unknown routing key returns an error tagged
// services.ErrRouting; materialization failures carry services.ErrMaterialize.
// The returned Result carries the matched route whenever one was found.
func (d *Dispatcher) Dispatch(ctx context.Context, routingKey string, body []byte) (*Result, error) {
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("processing message body", logging.String(logging.FieldRoutingKey, routingKey))

	route, ok := d.Match(routingKey)
	if !ok {
		return nil, services.Wrap(services.ErrRouting, "dispatch", "match route",
			fmt.Sprintf("no route configured for routing key %q", routingKey), nil)
	}
	result := &Result{Route: route}

	if route.Archive && d.archiveDir != "" {
		path, err := d.archive(routingKey, body)
		if err != nil {
			logging.WarnWithContext(logger, "archive write failed; continuing", "archive_failed",
				logging.String("archive_dir", d.archiveDir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check archive_dir permissions and free space"),
				logging.String(logging.FieldImpact, "raw body not archived"),
			)
		} else {
			result.ArchivePath = path
			logger.Info("message archived", logging.String("path", path), logging.String(logging.FieldEventType, "archived"))
			d.mirror.Copy(ctx, mirror.CategoryArchive, path)
		}
	}

	doc, err := d.materializer.Materialize(ctx, route, body)
	if err != nil {
		return result, err
	}
	result.Document = doc
	return result, nil
}

func (d *Dispatcher) archive(routingKey string, body []byte) (string, error) {
	name := d.exchange + "_" + routingKey + "_" + materialize.ReadableStamp(d.now()) + ".body"
	path := filepath.Join(d.archiveDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
