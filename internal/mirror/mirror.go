// Package mirror copies archived and quarantined message bodies to an object
// store. Copies are best effort: failures are logged and never fail a message.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
)

// Object categories.
const (
	CategoryArchive    = "archive"
	CategoryQuarantine = "quarantine"
)

// Uploader writes one object.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	Close() error
}

// Mirror uploads local files under a key prefix.
type Mirror struct {
	uploader Uploader
	prefix   string
	timeout  time.Duration
	logger   *slog.Logger
}

// New wraps an uploader.
func New(uploader Uploader, prefix string, timeout time.Duration, logger *slog.Logger) *Mirror {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Mirror{
		uploader: uploader,
		prefix:   prefix,
		timeout:  timeout,
		logger:   logging.NewComponentLogger(logger, "mirror"),
	}
}

// Open builds the mirror selected by cfg.Mirror.Backend. It returns nil when
// mirroring is disabled; a nil *Mirror is safe to use.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Mirror, error) {
	timeout := time.Duration(cfg.Mirror.TimeoutSeconds) * time.Second
	switch cfg.Mirror.Backend {
	case config.MirrorNone:
		return nil, nil
	case config.MirrorS3:
		uploader, err := NewS3Uploader(ctx, cfg.Mirror)
		if err != nil {
			return nil, err
		}
		return New(uploader, cfg.Mirror.Prefix, timeout, logger), nil
	case config.MirrorGCS:
		uploader, err := NewGCSUploader(ctx, cfg.Mirror)
		if err != nil {
			return nil, err
		}
		return New(uploader, cfg.Mirror.Prefix, timeout, logger), nil
	default:
		return nil, fmt.Errorf("mirror backend %q is not supported", cfg.Mirror.Backend)
	}
}

// Key returns the object key for a local file.
func (m *Mirror) Key(category, localPath string) string {
	return path.Join(m.prefix, category, filepath.Base(localPath))
}

// Copy uploads localPath under category. Errors are logged.
func (m *Mirror) Copy(ctx context.Context, category, localPath string) {
	if m == nil || m.uploader == nil {
		return
	}
	if err := m.upload(ctx, category, localPath); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "mirror upload failed", "mirror_failed",
			logging.String("path", localPath),
			logging.String("category", category),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check bucket permissions and mirror credentials"),
			logging.String(logging.FieldImpact, "body kept locally only"),
		)
		return
	}
	m.logger.Debug("body mirrored", logging.String("key", m.Key(category, localPath)))
}

func (m *Mirror) upload(ctx context.Context, category, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.uploader.Upload(uploadCtx, m.Key(category, localPath), file)
}

// Close releases the underlying client.
func (m *Mirror) Close() error {
	if m == nil || m.uploader == nil {
		return nil
	}
	return m.uploader.Close()
}
