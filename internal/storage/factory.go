package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/config"
)

const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// NewFromConfig builds the object storage selected by cfg.Storage.Backend.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Storage, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)); backend {
	case "", BackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return NewStorage(client), nil
	case BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", backend)
	}
}
