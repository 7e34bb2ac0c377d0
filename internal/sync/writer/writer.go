// Package writer contains the SnapshotWriter interface and implementations
package writer

import (
	"context"
	"fmt"

	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/model"
)

// SnapshotWriter defines the interface needed to persist a freshly fetched snapshot.
type SnapshotWriter interface {
	// Store replaces the snapshot of snapshot.DomainID in a single write
	Store(ctx context.Context, snapshot *model.Snapshot) error
}

// cacheWriter writes snapshots into the local cache store
type cacheWriter struct {
	store cache.Store
}

// NewCacheWriter creates a SnapshotWriter backed by store
func NewCacheWriter(store cache.Store) SnapshotWriter {
	return &cacheWriter{store: store}
}

func (w *cacheWriter) Store(ctx context.Context, snapshot *model.Snapshot) error {
	if err := cache.WriteSnapshot(ctx, w.store, snapshot); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
