package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Object is an upload request.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Backend is implemented by each object store adapter.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, obj Object) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	Close() error
}

// Storage wraps a Backend with helpers used by the export command.
type Storage struct {
	backend Backend
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend Backend) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket creates the configured bucket if it does not exist.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads obj to the configured bucket.
func (s *Storage) Put(ctx context.Context, obj Object) (ObjectInfo, error) {
	if obj.Key == "" {
		return ObjectInfo{}, fmt.Errorf("object key is required")
	}
	return s.backend.Put(ctx, obj)
}

// PutJSON encodes v with indentation and uploads it under key.
func (s *Storage) PutJSON(ctx context.Context, key string, v any, metadata map[string]string) (ObjectInfo, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, Object{
		Key:         key,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: "application/json",
		Metadata:    metadata,
	})
}

// Prune keeps the newest keep objects under prefix, ordered by key, and
// deletes the rest. It returns the deleted keys.
func (s *Storage) Prune(ctx context.Context, prefix string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, nil
	}
	objects, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(objects) <= keep {
		return nil, nil
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	var deleted []string
	for _, obj := range objects[keep:] {
		if err := s.backend.Delete(ctx, obj.Key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", obj.Key, err)
		}
		deleted = append(deleted, obj.Key)
	}
	return deleted, nil
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Close releases the backend client.
func (s *Storage) Close() error {
	return s.backend.Close()
}
