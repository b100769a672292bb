// Package materialize turns a raw queue message body into a document file in
// the temporary directory, decoding base64 bodies for encoded routes.
package materialize

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/services"
)

// Document is a materialized message body on disk.
type Document struct {
	Path  string
	Name  string
	Route config.Route
	// Received is the instant the name timestamp was taken from.
	Received time.Time
}

// Materializer writes message bodies into the temporary directory.
type Materializer struct {
	exchange string
	tmpDir   string
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Materializer.
type Option func(*Materializer)

// WithClock overrides the time source used for file name timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a Materializer for the given exchange and temp directory.
func New(exchange, tmpDir string, logger *slog.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		exchange: exchange,
		tmpDir:   tmpDir,
		logger:   logging.NewComponentLogger(logger, "materialize"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize writes body to a temp file and then either base64-decodes it
// into the final document (encoded routes) or renames it in place. Failures
// are tagged services.ErrMaterialize and leave no partial document behind.
func (m *Materializer) Materialize(ctx context.Context, route config.Route, body []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	received := m.now()
	stamp := CompactStamp(received)
	tmpPath := filepath.Join(m.tmpDir, TempName(m.exchange, route.RoutingKey, stamp))
	name := Name{
		Prefix:     route.Prename,
		Exchange:   m.exchange,
		RoutingKey: route.RoutingKey,
		Stamp:      stamp,
		Suffix:     route.Postname,
		Ext:        route.Ext,
	}.String()
	finalPath := filepath.Join(m.tmpDir, name)

	logger := logging.WithContext(ctx, m.logger)
	logger.Debug("materializing message body", logging.String("path", finalPath), logging.Int("bytes", len(body)))

	if err := writeBody(tmpPath, body, route.Mode); err != nil {
		return nil, services.Wrap(services.ErrMaterialize, "materialize", "write temp file", tmpPath, err)
	}

	if route.Encoded() {
		if err := decodeFile(tmpPath, finalPath); err != nil {
			_ = os.Remove(tmpPath)
			return nil, services.Wrap(services.ErrMaterialize, "materialize", "decode base64 body", name, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			logging.WarnWithContext(logger, "temp file cleanup failed", "tmp_cleanup_failed",
				logging.String("path", tmpPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the file from tmp_dir manually"),
				logging.String(logging.FieldImpact, "stale temp file remains"),
			)
		}
	} else if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, services.Wrap(services.ErrMaterialize, "materialize", "rename temp file", name, err)
	}

	logger.Info("message body materialized",
		logging.String("file", name),
		logging.Bool("decoded", route.Encoded()),
		logging.String(logging.FieldEventType, "materialized"),
	)
	return &Document{Path: finalPath, Name: name, Route: route, Received: received}, nil
}

func writeBody(path string, body []byte, mode string) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == "a" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(body); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// decodeFile streams base64 content from src into dst. Line breaks in the
// encoded input are ignored.
func decodeFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := out.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	n, err := io.Copy(out, base64.NewDecoder(base64.StdEncoding, in))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if n == 0 {
		return errors.New("decoded body is empty")
	}
	return nil
}
