// Package export writes snapshots of the user directory to object storage.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jjudge-oj/accounts/internal/storage"
	"github.com/jjudge-oj/accounts/types"
)

// Prefix is shared by every export key so retention can list them.
const Prefix = "exports/users-"

// Lister returns every user with role names.
type Lister interface {
	ListWithRoles(ctx context.Context) ([]types.UserSummary, error)
}

// Document is the uploaded JSON body.
type Document struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Count       int                 `json:"count"`
	Users       []types.UserSummary `json:"users"`
}

// Result reports what a run uploaded and pruned.
type Result struct {
	Object storage.ObjectInfo
	Count  int
	Pruned []string
}

type Exporter struct {
	users Lister
	store *storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

func NewExporter(users Lister, store *storage.Storage, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{users: users, store: store, log: log, now: time.Now}
}

// Key names the export taken at t.
func Key(t time.Time) string {
	return Prefix + t.UTC().Format("20060102T150405Z") + ".json"
}

// Run uploads a snapshot and, when keep > 0, deletes all but the newest keep exports.
func (e *Exporter) Run(ctx context.Context, keep int) (Result, error) {
	users, err := e.users.ListWithRoles(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load users: %w", err)
	}
	if err := e.store.EnsureBucket(ctx); err != nil {
		return Result{}, fmt.Errorf("ensure bucket %s: %w", e.store.Bucket(), err)
	}

	now := e.now().UTC()
	doc := Document{GeneratedAt: now, Count: len(users), Users: users}
	info, err := e.store.PutJSON(ctx, Key(now), doc, map[string]string{
		"user-count": strconv.Itoa(len(users)),
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload export: %w", err)
	}
	e.log.Info("user export uploaded", "bucket", e.store.Bucket(), "key", info.Key, "users", len(users))

	pruned, err := e.store.Prune(ctx, Prefix, keep)
	if err != nil {
		return Result{Object: info, Count: len(users), Pruned: pruned}, fmt.Errorf("prune exports: %w", err)
	}
	for _, key := range pruned {
		e.log.Info("old user export removed", "key", key)
	}
	return Result{Object: info, Count: len(users), Pruned: pruned}, nil
}
