package photo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/carapace/pkg/validate"
	"github.com/tdeslauriers/halide/internal/storage"
	"github.com/tdeslauriers/halide/pkg/api"
)

// Record is a model that represents the photo record in the database.
// Sensitive fields are encrypted at rest; exact-match lookups on encrypted
// fields go through blind-index companion columns.
type Record struct {
	Id                string          `db:"uuid" json:"id"`                                 // Unique identifier for the photo record
	Title             string          `db:"title" json:"title"`                             // ENCRYPTED: title of the photo
	Description       string          `db:"description" json:"description"`                 // ENCRYPTED: description of the photo
	FileName          string          `db:"file_name" json:"file_name"`                     // name of the stored file with its extension, eg, "slug.jpg"
	OriginalFileName  string          `db:"original_file_name" json:"original_file_name"`   // ENCRYPTED: file name as uploaded
	OriginalNameIndex string          `db:"original_name_index" json:"original_name_index"` // blind index for original file name, used by dedup
	MimeType          string          `db:"file_type" json:"file_type"`                     // MIME type of the image, eg, "image/jpeg"
	Size              int64           `db:"size" json:"size"`                               // Size of the image file in bytes
	Fingerprint       string          `db:"fingerprint" json:"fingerprint"`                 // ENCRYPTED: content hash of the raw bytes
	FingerprintIndex  string          `db:"fingerprint_index" json:"fingerprint_index"`     // blind index for fingerprint, primary dedup key
	Width             int             `db:"width" json:"width"`                             // Native width of the image in pixels
	Height            int             `db:"height" json:"height"`                           // Native height of the image in pixels
	DisplayWidth      int             `db:"display_width" json:"display_width"`             // Width after orientation is applied
	DisplayHeight     int             `db:"display_height" json:"display_height"`           // Height after orientation is applied
	Orientation       int             `db:"orientation" json:"orientation"`                 // exif orientation code of the original bytes
	Storage           string          `db:"storage" json:"storage"`                         // ENCRYPTED: json StorageBlock -> original, thumbnails, blur
	Tags              string          `db:"tags" json:"tags"`                               // ENCRYPTED: json array of tags
	Metadata          string          `db:"metadata" json:"metadata"`                       // ENCRYPTED: json MetadataBlock; empty when none extracted
	AlbumId           string          `db:"album_uuid" json:"album_id"`                     // owning album, empty when unfiled
	Slug              string          `db:"slug" json:"slug"`                               // ENCRYPTED: a unique slug for the photo, used in URLs
	SlugIndex         string          `db:"slug_index" json:"slug_index"`                   // blind index for slug, indexed for fast lookups
	IsPublished       bool            `db:"is_published" json:"is_published"`               // Indicates if the photo is visible to users
	IsLeading         bool            `db:"is_leading" json:"is_leading"`                   // Indicates if the photo is its album's cover
	UploadedBy        string          `db:"uploaded_by" json:"uploaded_by"`                 // ENCRYPTED: opaque id of the uploading user
	CreatedAt         data.CustomTime `db:"created_at" json:"created_at"`                   // Timestamp when the photo was first uploaded
	UpdatedAt         data.CustomTime `db:"updated_at" json:"updated_at"`                   // Timestamp when the photo was last updated
}

// Validate checks the Record for valid data before storing it in the database.
// NOTE: regexes are for plaintext validation, not for encrypted fields.
func (r *Record) Validate() error {

	if r.Id != "" && !validate.IsValidUuid(r.Id) {
		return fmt.Errorf("id must be a valid UUID")
	}

	if r.Title != "" && !validate.MatchesRegex(strings.TrimSpace(r.Title), api.PhotoTitleRegex) {
		return fmt.Errorf("title must be alphanumeric and spaces, max %d chars", api.PhotoTitleMaxLength)
	}

	if r.Description != "" && !validate.MatchesRegex(strings.TrimSpace(r.Description), api.PhotoDescriptionRegex) {
		return fmt.Errorf("description must be alphanumeric, spaces, and punctuation, max %d chars", api.PhotoDescriptionMaxLength)
	}

	if r.FileName != "" {
		split := strings.Split(r.FileName, ".")
		if len(split) < 2 || len(split[len(split)-1]) == 0 {
			return fmt.Errorf("file name must include a valid file extension, eg, 'slug.jpg'")
		}

		if !validate.IsValidUuid(split[0]) {
			return fmt.Errorf("file name must start with a valid UUID, eg, 'xxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.jpg'")
		}
	}

	if !api.IsValidFiletype(r.MimeType) {
		return fmt.Errorf("file type must be one of: %s", strings.Join(api.AllowedFileTypes, ", "))
	}

	if r.Size <= 0 {
		return fmt.Errorf("size must be greater than zero")
	}

	if !validate.IsValidUuid(r.Slug) {
		return fmt.Errorf("slug must be a valid UUID")
	}

	if r.AlbumId != "" && !validate.IsValidUuid(r.AlbumId) {
		return fmt.Errorf("album id must be a valid UUID")
	}

	return nil
}

// StorageBlock aggregates every durable location belonging to one photo: the
// original object, one object per generated derivative size, and the blur
// placeholder data url. It is persisted as a single json column.
type StorageBlock struct {
	Original    storage.StoredObject            `json:"original"`
	Thumbnails  map[string]storage.StoredObject `json:"thumbnails,omitempty"`
	BlurDataUrl string                          `json:"blur_data_url,omitempty"`
}

// Marshal renders the storage block to its persisted json form.
func (b *StorageBlock) Marshal() (string, error) {

	encoded, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal storage block: %v", err)
	}

	return string(encoded), nil
}

// UnmarshalStorageBlock parses the persisted json form of a storage block.
func UnmarshalStorageBlock(encoded string) (*StorageBlock, error) {

	if strings.TrimSpace(encoded) == "" {
		return nil, fmt.Errorf("storage block json is empty")
	}

	var block StorageBlock
	if err := json.Unmarshal([]byte(encoded), &block); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage block: %v", err)
	}

	return &block, nil
}

// FileFields are the file-derived fields overwritten on a replace operation.
// Caller-owned fields (title, description, tags, uploader, original upload
// timestamp, publication flags) are deliberately absent: a replace must
// preserve them.
type FileFields struct {
	FileName         string
	OriginalFileName string
	MimeType         string
	Size             int64
	Fingerprint      string
	Width            int
	Height           int
	DisplayWidth     int
	DisplayHeight    int
	Orientation      int
	Storage          string // json StorageBlock
	Metadata         string // json MetadataBlock, may be empty
}
