// Package album supplies the pipeline's view of the album aggregate: the
// storage binding an upload must honor and the photo counter maintained on
// insert. Album crud and the album tree live elsewhere.
package album

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/carapace/pkg/validate"
	"github.com/tdeslauriers/halide/internal/util"
)

// Service is the interface for album lookups and counter maintenance used by
// the upload pipeline.
type Service interface {

	// GetById retrieves the album, decrypted, by its uuid.
	GetById(ctx context.Context, id string) (*Album, error)

	// IncrementPhotoCount adds exactly one to the album's photo counter.
	// The statement is a single conditional update so concurrent uploads
	// into the same album cannot lose increments.
	IncrementPhotoCount(ctx context.Context, id string) error
}

// NewService creates a new album service instance, returning a pointer to the
// concrete implementation.
func NewService(sql data.SqlRepository, c data.Cryptor) Service {
	return &albumService{
		sql:     sql,
		cryptor: c,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageAlbum)).
			With(slog.String(util.ComponentKey, util.ComponentAlbumService)),
	}
}

var _ Service = (*albumService)(nil)

// albumService is the concrete implementation of the Service interface.
type albumService struct {
	sql     data.SqlRepository
	cryptor data.Cryptor

	logger *slog.Logger
}

// GetById is the concrete implementation of the interface method which
// retrieves the album by its uuid.
func (s *albumService) GetById(ctx context.Context, id string) (*Album, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !validate.IsValidUuid(id) {
		return nil, fmt.Errorf("invalid album id: %s", id)
	}

	qry := `
		SELECT
			uuid,
			title,
			description,
			slug,
			slug_index,
			storage_provider,
			storage_path,
			photo_count,
			created_at,
			updated_at,
			is_archived
		FROM album
		WHERE uuid = ?;`
	var record Record
	if err := s.sql.SelectRecord(qry, &record, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("album '%s' was not found", id)
		}
		return nil, fmt.Errorf("failed to query album record '%s': %v", id, err)
	}

	// decrypt the fields the pipeline consumes
	title, err := s.cryptor.DecryptServiceData(record.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt title of album '%s': %v", id, err)
	}

	storagePath, err := s.cryptor.DecryptServiceData(record.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt storage path of album '%s': %v", id, err)
	}

	return &Album{
		Id:              record.Id,
		Title:           string(title),
		StorageProvider: record.StorageProvider,
		StoragePath:     string(storagePath),
		PhotoCount:      record.PhotoCount,
		IsArchived:      record.IsArchived,
	}, nil
}

// IncrementPhotoCount is the concrete implementation of the interface method
// which adds exactly one to the album's photo counter.
func (s *albumService) IncrementPhotoCount(ctx context.Context, id string) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if !validate.IsValidUuid(id) {
		return fmt.Errorf("invalid album id: %s", id)
	}

	// increment-in-place, not read-modify-write
	qry := `
		UPDATE album
		SET
			photo_count = photo_count + 1,
			updated_at = ?
		WHERE uuid = ?;`
	if err := s.sql.UpdateRecord(qry, data.CustomTime{Time: time.Now().UTC()}, id); err != nil {
		return fmt.Errorf("failed to increment photo count of album '%s': %v", id, err)
	}

	return nil
}
