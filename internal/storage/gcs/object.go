// Package gcs provides a snapshot backend stored as a single Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcstorage "cloud.google.com/go/storage"

	"github.com/allofdaniel/placecrawl/internal/storage"
)

// Config captures the object location.
type Config struct {
	Bucket string
	Object string
}

// Object reads and writes a snapshot in a GCS object. GCS only makes a new
// object generation visible once the upload completes, so writes are atomic.
type Object struct {
	client *gcstorage.Client
	bucket string
	object string
}

// New creates a GCS-backed snapshot store.
func New(client *gcstorage.Client, cfg Config) (*Object, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &Object{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
	}, nil
}

// Read downloads the snapshot or returns storage.ErrNotExist.
func (o *Object) Read(ctx context.Context) ([]byte, error) {
	reader, err := o.client.Bucket(o.bucket).Object(o.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, storage.ErrNotExist
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only handle
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Write uploads data as a new object generation.
func (o *Object) Write(ctx context.Context, data []byte) error {
	writer := o.client.Bucket(o.bucket).Object(o.object).NewWriter(ctx)
	writer.ContentType = "application/json; charset=utf-8"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// URI returns the gs:// location of the snapshot.
func (o *Object) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.bucket, o.object)
}
