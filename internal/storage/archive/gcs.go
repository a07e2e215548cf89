// Package archive stores each run's raw batch for later inspection or
// replay.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters of the archive bucket.
type Config struct {
	Bucket string
	Prefix string
}

// GCS writes batch blobs to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	cfg    Config
}

// NewGCS creates a GCS-backed archiver.
func NewGCS(client *storage.Client, cfg Config) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCS{client: client, cfg: cfg}, nil
}

// Save uploads the blob under the configured prefix.
func (g *GCS) Save(ctx context.Context, objectName string, data []byte) error {
	if strings.TrimSpace(objectName) == "" {
		return fmt.Errorf("object name is required")
	}
	path := objectName
	if g.cfg.Prefix != "" {
		path = strings.TrimSuffix(g.cfg.Prefix, "/") + "/" + objectName
	}
	writer := g.client.Bucket(g.cfg.Bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
