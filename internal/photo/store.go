// Package photo persists photo records. The rest of the pipeline consumes the
// Store interface; the concrete implementation is a MariaDB repository with
// field-level encryption and blind-index lookups.
package photo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/halide/internal/util"
)

// Store is the interface for photo record persistence. Find methods return
// nil (not an error) when no record matches.
type Store interface {

	// FindByFingerprint retrieves the photo record matching the content
	// fingerprint, the primary dedup key.
	FindByFingerprint(ctx context.Context, fingerprint string) (*Record, error)

	// FindByNameAndSize retrieves the photo record matching the original
	// file name and byte size, optionally scoped to an album when albumId
	// is non-empty.
	FindByNameAndSize(ctx context.Context, originalName string, size int64, albumId string) (*Record, error)

	// Insert persists a new photo record.
	Insert(ctx context.Context, r *Record) error

	// UpdateFileFields overwrites the file-derived fields of an existing
	// record, preserving every caller-owned field.
	UpdateFileFields(ctx context.Context, id string, f *FileFields) error
}

// NewStore creates a new photo store over a sql repository, returning a
// pointer to the concrete implementation.
func NewStore(sql data.SqlRepository, i data.Indexer, c data.Cryptor) Store {
	return &mariaStore{
		sql:     sql,
		indexer: i,
		cryptor: c,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackagePhoto)).
			With(slog.String(util.ComponentKey, util.ComponentPhotoStore)),
	}
}

var _ Store = (*mariaStore)(nil)

// mariaStore is the concrete implementation of the Store interface.
type mariaStore struct {
	sql     data.SqlRepository
	indexer data.Indexer
	cryptor data.Cryptor

	logger *slog.Logger
}

// selectColumns is the photo table's column list in Record field order.
const selectColumns = `
			uuid,
			title,
			description,
			file_name,
			original_file_name,
			original_name_index,
			file_type,
			size,
			fingerprint,
			fingerprint_index,
			width,
			height,
			display_width,
			display_height,
			orientation,
			storage,
			tags,
			metadata,
			album_uuid,
			slug,
			slug_index,
			is_published,
			is_leading,
			uploaded_by,
			created_at,
			updated_at`

// FindByFingerprint is the concrete implementation of the interface method
// which retrieves the photo record matching the content fingerprint.
func (s *mariaStore) FindByFingerprint(ctx context.Context, fingerprint string) (*Record, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is empty")
	}

	// fingerprints are encrypted at rest; lookup goes through the blind index
	index, err := s.indexer.ObtainBlindIndex(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain blind index for fingerprint: %v", err)
	}

	qry := `SELECT ` + selectColumns + ` FROM photo WHERE fingerprint_index = ?;`

	var record Record
	if err := s.sql.SelectRecord(qry, &record, index); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query photo record by fingerprint: %v", err)
	}

	if err := s.decryptRecord(&record); err != nil {
		return nil, fmt.Errorf("failed to decrypt photo record '%s': %v", record.Id, err)
	}

	return &record, nil
}

// FindByNameAndSize is the concrete implementation of the interface method
// which retrieves the photo record matching original file name and byte size,
// optionally scoped to an album.
func (s *mariaStore) FindByNameAndSize(ctx context.Context, originalName string, size int64, albumId string) (*Record, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if originalName == "" {
		return nil, fmt.Errorf("original file name is empty")
	}

	index, err := s.indexer.ObtainBlindIndex(originalName)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain blind index for original file name: %v", err)
	}

	qry := `SELECT ` + selectColumns + ` FROM photo WHERE original_name_index = ? AND size = ?`
	args := []interface{}{index, size}

	if albumId != "" {
		qry += ` AND album_uuid = ?`
		args = append(args, albumId)
	}
	qry += `;`

	var record Record
	if err := s.sql.SelectRecord(qry, &record, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query photo record by name and size: %v", err)
	}

	if err := s.decryptRecord(&record); err != nil {
		return nil, fmt.Errorf("failed to decrypt photo record '%s': %v", record.Id, err)
	}

	return &record, nil
}

// Insert is the concrete implementation of the interface method which
// persists a new photo record, encrypting sensitive fields and computing the
// blind indexes on the way in.
func (s *mariaStore) Insert(ctx context.Context, r *Record) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("photo record is nil")
	}

	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid photo record: %v", err)
	}

	// encrypt the record fields and compute the blind indexes
	encrypted := *r
	if err := s.encryptRecord(&encrypted); err != nil {
		return fmt.Errorf("failed to encrypt photo record '%s': %v", r.Id, err)
	}

	qry := `
		INSERT INTO photo (` + selectColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	if err := s.sql.InsertRecord(qry, encrypted); err != nil {
		return fmt.Errorf("failed to insert photo record '%s': %v", r.Id, err)
	}

	return nil
}

// UpdateFileFields is the concrete implementation of the interface method
// which overwrites the file-derived fields of an existing record. Caller
// owned fields are untouched by construction: they are not in the statement.
func (s *mariaStore) UpdateFileFields(ctx context.Context, id string, f *FileFields) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if f == nil {
		return fmt.Errorf("file fields are nil")
	}

	encryptedOriginalName, err := s.cryptor.EncryptServiceData([]byte(f.OriginalFileName))
	if err != nil {
		return fmt.Errorf("failed to encrypt original file name for photo record '%s': %v", id, err)
	}

	originalNameIndex, err := s.indexer.ObtainBlindIndex(f.OriginalFileName)
	if err != nil {
		return fmt.Errorf("failed to obtain original file name blind index for photo record '%s': %v", id, err)
	}

	encryptedFingerprint, err := s.cryptor.EncryptServiceData([]byte(f.Fingerprint))
	if err != nil {
		return fmt.Errorf("failed to encrypt fingerprint for photo record '%s': %v", id, err)
	}

	fingerprintIndex, err := s.indexer.ObtainBlindIndex(f.Fingerprint)
	if err != nil {
		return fmt.Errorf("failed to obtain fingerprint blind index for photo record '%s': %v", id, err)
	}

	encryptedStorage, err := s.cryptor.EncryptServiceData([]byte(f.Storage))
	if err != nil {
		return fmt.Errorf("failed to encrypt storage block for photo record '%s': %v", id, err)
	}

	encryptedMetadata := ""
	if f.Metadata != "" {
		encryptedMetadata, err = s.cryptor.EncryptServiceData([]byte(f.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encrypt metadata block for photo record '%s': %v", id, err)
		}
	}

	qry := `
		UPDATE photo
		SET
			file_name = ?,
			original_file_name = ?,
			original_name_index = ?,
			file_type = ?,
			size = ?,
			fingerprint = ?,
			fingerprint_index = ?,
			width = ?,
			height = ?,
			display_width = ?,
			display_height = ?,
			orientation = ?,
			storage = ?,
			metadata = ?,
			updated_at = ?
		WHERE uuid = ?;`
	if err := s.sql.UpdateRecord(qry,
		f.FileName,
		encryptedOriginalName,
		originalNameIndex,
		f.MimeType,
		f.Size,
		encryptedFingerprint,
		fingerprintIndex,
		f.Width,
		f.Height,
		f.DisplayWidth,
		f.DisplayHeight,
		f.Orientation,
		encryptedStorage,
		encryptedMetadata,
		data.CustomTime{Time: time.Now().UTC()},
		id); err != nil {

		return fmt.Errorf("failed to update file fields of photo record '%s': %v", id, err)
	}

	return nil
}

// encryptRecord encrypts the sensitive fields of a photo record in place and
// computes the blind-index columns.
func (s *mariaStore) encryptRecord(r *Record) error {

	fields := []struct {
		name  string
		value *string
	}{
		{"title", &r.Title},
		{"description", &r.Description},
		{"original_file_name", &r.OriginalFileName},
		{"fingerprint", &r.Fingerprint},
		{"storage", &r.Storage},
		{"tags", &r.Tags},
		{"metadata", &r.Metadata},
		{"slug", &r.Slug},
		{"uploaded_by", &r.UploadedBy},
	}

	// indexes are computed from the plaintext before encryption
	var err error
	if r.OriginalNameIndex, err = s.indexer.ObtainBlindIndex(r.OriginalFileName); err != nil {
		return fmt.Errorf("failed to obtain original file name blind index: %v", err)
	}

	if r.FingerprintIndex, err = s.indexer.ObtainBlindIndex(r.Fingerprint); err != nil {
		return fmt.Errorf("failed to obtain fingerprint blind index: %v", err)
	}

	if r.SlugIndex, err = s.indexer.ObtainBlindIndex(r.Slug); err != nil {
		return fmt.Errorf("failed to obtain slug blind index: %v", err)
	}

	for _, f := range fields {
		if *f.value == "" {
			continue
		}

		encrypted, err := s.cryptor.EncryptServiceData([]byte(*f.value))
		if err != nil {
			return fmt.Errorf("failed to encrypt '%s' field: %v", f.name, err)
		}
		*f.value = encrypted
	}

	return nil
}

// decryptRecord decrypts the sensitive fields of a photo record in place.
func (s *mariaStore) decryptRecord(r *Record) error {

	fields := []struct {
		name  string
		value *string
	}{
		{"title", &r.Title},
		{"description", &r.Description},
		{"original_file_name", &r.OriginalFileName},
		{"fingerprint", &r.Fingerprint},
		{"storage", &r.Storage},
		{"tags", &r.Tags},
		{"metadata", &r.Metadata},
		{"slug", &r.Slug},
		{"uploaded_by", &r.UploadedBy},
	}

	for _, f := range fields {
		if *f.value == "" {
			continue
		}

		decrypted, err := s.cryptor.DecryptServiceData(*f.value)
		if err != nil {
			return fmt.Errorf("failed to decrypt '%s' field: %v", f.name, err)
		}
		*f.value = string(decrypted)
	}

	return nil
}
