package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tdeslauriers/halide/internal/util"
)

// NewLocalProvider creates a storage provider over a local filesystem
// directory, returning a pointer to the concrete implementation. The root
// directory must already exist.
func NewLocalProvider(root string) (Provider, error) {

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat local storage root '%s': %v", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("local storage root '%s' is not a directory", root)
	}

	return &localProvider{
		root: root,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageStorage)).
			With(slog.String(util.ComponentKey, util.ComponentLocalStorage)),
	}, nil
}

var _ Provider = (*localProvider)(nil)

// localProvider is the concrete implementation of the Provider interface over
// a local directory. It is hierarchical: folders are real directories.
type localProvider struct {
	root string

	logger *slog.Logger
}

// Name is the concrete implementation of the interface method which returns
// the provider identifier.
func (p *localProvider) Name() string {
	return ProviderLocal
}

// UploadFile is the concrete implementation of the interface method which
// writes the content under root/folderPath/name, creating intermediate
// directories transparently.
func (p *localProvider) UploadFile(ctx context.Context, content []byte, name, mimeType, folderPath string, meta Metadata) (*StoredObject, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel, err := p.cleanRelative(path.Join(folderPath, name))
	if err != nil {
		return nil, err
	}

	full := filepath.Join(p.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for '%s': %v", rel, err)
	}

	if err := os.WriteFile(full, content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file '%s': %v", rel, err)
	}

	return &StoredObject{
		Provider: ProviderLocal,
		Path:     rel,
	}, nil
}

// DeleteFile is the concrete implementation of the interface method which
// removes the file at the provider-relative path. Deleting a non-existent
// path is not an error.
func (p *localProvider) DeleteFile(ctx context.Context, objPath string) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	rel, err := p.cleanRelative(objPath)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(p.root, filepath.FromSlash(rel))); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %v", rel, err)
	}

	return nil
}

// FolderExists is the concrete implementation of the interface method which
// reports whether the folder path exists as a directory.
func (p *localProvider) FolderExists(ctx context.Context, folderPath string) (bool, error) {

	if err := ctx.Err(); err != nil {
		return false, err
	}

	rel, err := p.cleanRelative(folderPath)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat folder '%s': %v", rel, err)
	}

	return info.IsDir(), nil
}

// CreateFolder is the concrete implementation of the interface method which
// creates the folder path including intermediate directories.
func (p *localProvider) CreateFolder(ctx context.Context, folderPath string) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	rel, err := p.cleanRelative(folderPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(p.root, filepath.FromSlash(rel)), 0o755); err != nil {
		return fmt.Errorf("failed to create folder '%s': %v", rel, err)
	}

	return nil
}

// cleanRelative normalizes a provider-relative path and rejects anything
// escaping the storage root.
func (p *localProvider) cleanRelative(raw string) (string, error) {

	rel := path.Clean("/" + strings.TrimSpace(raw))[1:]
	if rel == "" || rel == "." {
		return "", fmt.Errorf("storage path is empty")
	}

	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("storage path '%s' escapes the storage root", raw)
	}

	return rel, nil
}
