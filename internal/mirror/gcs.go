package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"rmqmeta/internal/config"
)

// GCSUploader writes objects to a Cloud Storage bucket. Objects are never
// overwritten: an existing key counts as already mirrored.
type GCSUploader struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSUploader creates a storage client using the configured credentials
// file, or application default credentials when none is set.
func NewGCSUploader(ctx context.Context, cfg config.Mirror) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: client.Bucket(cfg.Bucket)}, nil
}

// Upload copies body into a new object named key.
func (u *GCSUploader) Upload(ctx context.Context, key string, body io.Reader) error {
	writer := u.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(writer, body); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			return nil
		}
		return fmt.Errorf("write gcs object: %w", err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			return nil
		}
		return fmt.Errorf("finalize gcs object: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
