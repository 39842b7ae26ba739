package storage

import (
	"context"
	"testing"

	"github.com/jjudge-oj/accounts/config"
	"github.com/stretchr/testify/assert"
)

func TestNewFromConfig_Validation(t *testing.T) {
	_, err := NewFromConfig(context.Background(), config.Config{Storage: config.StorageConfig{Backend: "s3"}})
	assert.ErrorContains(t, err, "unsupported storage backend")

	_, err = NewFromConfig(context.Background(), config.Config{})
	assert.ErrorContains(t, err, "minio endpoint is required")

	_, err = NewFromConfig(context.Background(), config.Config{
		Minio: config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"},
	})
	assert.ErrorContains(t, err, "minio bucket is required")

	_, err = NewFromConfig(context.Background(), config.Config{Storage: config.StorageConfig{Backend: "gcs"}})
	assert.ErrorContains(t, err, "gcs bucket is required")
}
