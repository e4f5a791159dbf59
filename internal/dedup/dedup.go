// Package dedup detects whether an incoming upload duplicates a photo that
// has already been ingested.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tdeslauriers/halide/internal/fingerprint"
	"github.com/tdeslauriers/halide/internal/photo"
	"github.com/tdeslauriers/halide/internal/util"
)

// duplicate match reasons
const (
	ReasonFingerprint      = "identical content fingerprint"
	ReasonNameAndSize      = "matching file name and size"
	ReasonAlbumNameAndSize = "matching file name and size in album"
)

// Result is the outcome of a duplicate check.
type Result struct {
	Exists      bool
	Existing    *photo.Record
	Fingerprint string
	Reason      string
}

// Detector is the interface for checking whether an upload duplicates an
// existing photo record.
type Detector interface {

	// Check inspects the raw upload bytes and submission attributes and
	// reports whether a matching photo record already exists. The content
	// fingerprint is computed here and returned for reuse by the caller.
	Check(ctx context.Context, raw []byte, originalName string, albumId string) (*Result, error)
}

// NewDetector creates a new duplicate detector, returning a pointer to the
// concrete implementation.
func NewDetector(store photo.Store) Detector {
	return &detector{
		store: store,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageDedup)).
			With(slog.String(util.ComponentKey, util.ComponentDedup)),
	}
}

var _ Detector = (*detector)(nil)

// detector is the concrete implementation of the Detector interface.
type detector struct {
	store photo.Store

	logger *slog.Logger
}

// Check is the concrete implementation of the interface method which checks
// an upload against existing photo records. Lookups run cheapest-first:
// content fingerprint, then original file name and size, then the same pair
// scoped to the target album. Store errors are logged and treated as no
// match so that a degraded lookup path cannot block ingestion.
func (d *detector) Check(ctx context.Context, raw []byte, originalName string, albumId string) (*Result, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := fingerprint.Hash(raw)
	size := int64(len(raw))

	existing, err := d.store.FindByFingerprint(ctx, fp)
	if err != nil {
		d.logger.Warn(fmt.Sprintf("fingerprint lookup failed, continuing without match: %v", err))
	} else if existing != nil {
		return &Result{Exists: true, Existing: existing, Fingerprint: fp, Reason: ReasonFingerprint}, nil
	}

	existing, err = d.store.FindByNameAndSize(ctx, originalName, size, "")
	if err != nil {
		d.logger.Warn(fmt.Sprintf("name and size lookup failed, continuing without match: %v", err))
	} else if existing != nil {
		return &Result{Exists: true, Existing: existing, Fingerprint: fp, Reason: ReasonNameAndSize}, nil
	}

	if albumId != "" {
		existing, err = d.store.FindByNameAndSize(ctx, originalName, size, albumId)
		if err != nil {
			d.logger.Warn(fmt.Sprintf("album-scoped lookup failed, continuing without match: %v", err))
		} else if existing != nil {
			return &Result{Exists: true, Existing: existing, Fingerprint: fp, Reason: ReasonAlbumNameAndSize}, nil
		}
	}

	return &Result{Exists: false, Fingerprint: fp}, nil
}
