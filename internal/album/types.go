package album

import (
	"github.com/tdeslauriers/carapace/pkg/data"
)

// Record is a model that represents the album record in the database.
type Record struct {
	Id              string          `db:"uuid" json:"id"`                           // Unique identifier for the album record
	Title           string          `db:"title" json:"title"`                       // ENCRYPTED: title of the album
	Description     string          `db:"description" json:"description"`           // ENCRYPTED: description of the album
	Slug            string          `db:"slug" json:"slug"`                         // ENCRYPTED: a unique slug for the album, used in URLs
	SlugIndex       string          `db:"slug_index" json:"slug_index"`             // blind index for slug, indexed for fast lookups
	StorageProvider string          `db:"storage_provider" json:"storage_provider"` // name of the storage provider the album is bound to
	StoragePath     string          `db:"storage_path" json:"storage_path"`         // ENCRYPTED: base folder path for the album's files
	PhotoCount      int             `db:"photo_count" json:"photo_count"`           // number of photos inserted into the album
	CreatedAt       data.CustomTime `db:"created_at" json:"created_at"`             // Timestamp when the album was created
	UpdatedAt       data.CustomTime `db:"updated_at" json:"updated_at"`             // Timestamp when the album was last updated
	IsArchived      bool            `db:"is_archived" json:"is_archived"`           // Indicates if the album is archived
}

// Album is the decrypted view of an album record the pipeline consumes: the
// storage binding established when the album was created, plus the counter.
type Album struct {
	Id              string `json:"id"`
	Title           string `json:"title"`
	StorageProvider string `json:"storage_provider"`
	StoragePath     string `json:"storage_path"`
	PhotoCount      int    `json:"photo_count"`
	IsArchived      bool   `json:"is_archived"`
}
