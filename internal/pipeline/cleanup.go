package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tdeslauriers/halide/internal/photo"
	"github.com/tdeslauriers/halide/internal/storage"
)

// unwindTimeout bounds best-effort cleanup when the caller's context is
// already cancelled.
const unwindTimeout = 30 * time.Second

// CleanupResult reports the outcome of a best-effort deletion pass over a
// record's stored objects so operators can reconcile orphans later.
type CleanupResult struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failures  []string `json:"failures,omitempty"`
}

// deleteStoredFiles removes every stored object referenced by an existing
// record's storage block: the original, each derivative, nothing else.
// Deletions are best effort; failures are collected, never raised.
func (p *pipeline) deleteStoredFiles(ctx context.Context, existing *photo.Record) *CleanupResult {

	result := &CleanupResult{}

	if existing == nil || existing.Storage == "" {
		return result
	}

	block, err := photo.UnmarshalStorageBlock(existing.Storage)
	if err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf("unreadable storage block: %v", err))
		return result
	}

	objects := make([]storage.StoredObject, 0, len(block.Thumbnails)+1)
	objects = append(objects, block.Original)
	for _, obj := range block.Thumbnails {
		objects = append(objects, obj)
	}

	for _, obj := range objects {

		result.Attempted++

		provider, err := p.registry.Get(obj.Provider)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("'%s': %v", obj.Path, err))
			continue
		}

		if err := provider.DeleteFile(ctx, obj.Path); err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("'%s': %v", obj.Path, err))
			continue
		}

		result.Succeeded++
	}

	return result
}

// unwindStoredFiles deletes the objects written during a failed or cancelled
// upload so no orphaned bytes remain. It runs on its own context since the
// caller's may already be cancelled.
func (p *pipeline) unwindStoredFiles(provider storage.Provider, stored *photo.StorageBlock) {

	if stored == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), unwindTimeout)
	defer cancel()

	if err := provider.DeleteFile(ctx, stored.Original.Path); err != nil {
		p.logger.Warn(fmt.Sprintf("failed to remove stored original '%s' during unwind: %v", stored.Original.Path, err))
	}

	for name, obj := range stored.Thumbnails {
		if err := provider.DeleteFile(ctx, obj.Path); err != nil {
			p.logger.Warn(fmt.Sprintf("failed to remove stored %s derivative '%s' during unwind: %v", name, obj.Path, err))
		}
	}
}
