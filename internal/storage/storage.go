// Package storage defines the durable byte-storage capability the ingestion
// pipeline writes through, and its concrete back-ends: a local filesystem
// directory, an s3-compatible object store, and a hierarchical remote drive.
// Everything above this package is storage agnostic.
package storage

import (
	"context"
	"fmt"
)

const (
	ProviderLocal = "local"
	ProviderMinio = "minio"
	ProviderDrive = "drive"
)

// StoredObject is the durable location of one uploaded byte stream, original
// or derivative. Each stored object is referenced by exactly one photo record
// field; objects are never shared between records.
type StoredObject struct {
	Provider string `json:"provider"`
	FileId   string `json:"file_id,omitempty"`   // back-end native id, eg, a drive file id
	Url      string `json:"url,omitempty"`       // serving url, set by the pipeline
	Bucket   string `json:"bucket,omitempty"`    // object-store bucket, when applicable
	FolderId string `json:"folder_id,omitempty"` // hierarchical parent folder id, when applicable
	Path     string `json:"path"`                // provider-relative path, eg, "2025/slug.jpg"
}

// Metadata is free-form key/value metadata attached to an uploaded object
// where the back-end supports it.
type Metadata map[string]string

// Provider is the capability implemented per storage back-end. Hierarchical
// providers create intermediate folders transparently on upload; flat
// providers treat folder paths as key prefixes and implement the folder
// operations as no-ops.
type Provider interface {

	// Name returns the provider identifier, eg, "minio".
	Name() string

	// UploadFile durably stores the content under folderPath/name and
	// returns the stored object's location. Missing intermediate folders
	// are created transparently.
	UploadFile(ctx context.Context, content []byte, name, mimeType, folderPath string, meta Metadata) (*StoredObject, error)

	// DeleteFile removes the object at the provider-relative path.
	// Idempotent: deleting a non-existent path is not an error.
	DeleteFile(ctx context.Context, path string) error

	// FolderExists reports whether the folder path exists. Flat providers
	// always report true.
	FolderExists(ctx context.Context, path string) (bool, error)

	// CreateFolder creates the folder path, including intermediate
	// folders. Flat providers implement this as a no-op.
	CreateFolder(ctx context.Context, path string) error
}

// Registry resolves a provider by name. Albums are bound to exactly one
// provider at creation time; the pipeline resolves the album's provider here
// rather than using a global default.
type Registry interface {

	// Get returns the provider registered under the given name.
	Get(name string) (Provider, error)

	// Default returns the provider used when an upload targets no album.
	Default() Provider
}

// NewRegistry creates a registry over the provided set. The first provider is
// the default.
func NewRegistry(def Provider, others ...Provider) Registry {

	providers := make(map[string]Provider, len(others)+1)
	providers[def.Name()] = def
	for _, p := range others {
		providers[p.Name()] = p
	}

	return &registry{
		def:       def,
		providers: providers,
	}
}

var _ Registry = (*registry)(nil)

// registry is the concrete implementation of the Registry interface.
type registry struct {
	def       Provider
	providers map[string]Provider
}

// Get is the concrete implementation of the interface method which returns
// the provider registered under the given name.
func (r *registry) Get(name string) (Provider, error) {

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered under name '%s'", name)
	}

	return p, nil
}

// Default is the concrete implementation of the interface method which
// returns the default provider.
func (r *registry) Default() Provider {
	return r.def
}
