package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/tdeslauriers/halide/internal/util"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// NewDriveProvider creates a storage provider over a hierarchical remote
// drive, returning a pointer to the concrete implementation. rootFolderId is
// the drive folder all paths are relative to.
func NewDriveProvider(ctx context.Context, credentialsJson []byte, rootFolderId string) (Provider, error) {

	svc, err := drive.NewService(ctx,
		option.WithCredentialsJSON(credentialsJson),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %v", err)
	}

	if rootFolderId == "" {
		return nil, fmt.Errorf("drive root folder id is empty")
	}

	return &driveProvider{
		svc:       svc,
		root:      rootFolderId,
		folderIds: make(map[string]string),

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageStorage)).
			With(slog.String(util.ComponentKey, util.ComponentDriveStorage)),
	}, nil
}

var _ Provider = (*driveProvider)(nil)

// driveProvider is the concrete implementation of the Provider interface over
// a hierarchical remote drive. Folders are real drive objects which must be
// resolved or created segment by segment; resolved ids are cached.
type driveProvider struct {
	svc  *drive.Service
	root string

	mu        sync.Mutex
	folderIds map[string]string // folder path -> drive folder id

	logger *slog.Logger
}

// Name is the concrete implementation of the interface method which returns
// the provider identifier.
func (p *driveProvider) Name() string {
	return ProviderDrive
}

// UploadFile is the concrete implementation of the interface method which
// uploads the content into the drive folder at folderPath, creating missing
// intermediate folders.
func (p *driveProvider) UploadFile(ctx context.Context, content []byte, name, mimeType, folderPath string, meta Metadata) (*StoredObject, error) {

	folderId, err := p.resolveFolder(ctx, folderPath, true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve drive folder '%s': %v", folderPath, err)
	}

	file := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderId},
	}

	if len(meta) > 0 {
		file.Properties = map[string]string(meta)
	}

	created, err := p.svc.Files.Create(file).
		Context(ctx).
		Media(bytes.NewReader(content)).
		Fields("id, webContentLink").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload file '%s' to drive folder '%s': %v", name, folderPath, err)
	}

	return &StoredObject{
		Provider: ProviderDrive,
		FileId:   created.Id,
		FolderId: folderId,
		Url:      created.WebContentLink,
		Path:     path.Join(folderPath, name),
	}, nil
}

// DeleteFile is the concrete implementation of the interface method which
// removes the file at the provider-relative path. A path that does not
// resolve to a file is not an error.
func (p *driveProvider) DeleteFile(ctx context.Context, objPath string) error {

	dir, name := path.Split(objPath)

	folderId, err := p.resolveFolder(ctx, strings.TrimSuffix(dir, "/"), false)
	if err != nil {
		return fmt.Errorf("failed to resolve drive folder for '%s': %v", objPath, err)
	}

	// parent folder gone means the file is gone too
	if folderId == "" {
		return nil
	}

	fileId, err := p.findChild(ctx, folderId, name, false)
	if err != nil {
		return fmt.Errorf("failed to look up drive file '%s': %v", objPath, err)
	}

	if fileId == "" {
		return nil
	}

	if err := p.svc.Files.Delete(fileId).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete drive file '%s': %v", objPath, err)
	}

	return nil
}

// FolderExists is the concrete implementation of the interface method which
// reports whether every segment of the folder path resolves.
func (p *driveProvider) FolderExists(ctx context.Context, folderPath string) (bool, error) {

	folderId, err := p.resolveFolder(ctx, folderPath, false)
	if err != nil {
		return false, err
	}

	return folderId != "", nil
}

// CreateFolder is the concrete implementation of the interface method which
// creates the folder path, including intermediate folders.
func (p *driveProvider) CreateFolder(ctx context.Context, folderPath string) error {

	if _, err := p.resolveFolder(ctx, folderPath, true); err != nil {
		return fmt.Errorf("failed to create drive folder '%s': %v", folderPath, err)
	}

	return nil
}

// resolveFolder walks the folder path from the root, segment by segment,
// optionally creating missing segments. It returns the final folder id, or
// the empty string when create is false and a segment is missing.
func (p *driveProvider) resolveFolder(ctx context.Context, folderPath string, create bool) (string, error) {

	clean := strings.Trim(path.Clean("/"+folderPath), "/")
	if clean == "" || clean == "." {
		return p.root, nil
	}

	p.mu.Lock()
	if id, ok := p.folderIds[clean]; ok {
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	parent := p.root
	for _, segment := range strings.Split(clean, "/") {

		id, err := p.findChild(ctx, parent, segment, true)
		if err != nil {
			return "", err
		}

		if id == "" {
			if !create {
				return "", nil
			}

			folder, err := p.svc.Files.Create(&drive.File{
				Name:     segment,
				MimeType: driveFolderMimeType,
				Parents:  []string{parent},
			}).Context(ctx).Fields("id").Do()
			if err != nil {
				return "", fmt.Errorf("failed to create drive folder segment '%s': %v", segment, err)
			}

			id = folder.Id
		}

		parent = id
	}

	p.mu.Lock()
	p.folderIds[clean] = parent
	p.mu.Unlock()

	return parent, nil
}

// findChild looks up a direct child of the given parent folder by name,
// returning its id or the empty string when absent.
func (p *driveProvider) findChild(ctx context.Context, parentId, name string, folder bool) (string, error) {

	escaped := strings.ReplaceAll(name, `'`, `\'`)

	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escaped, parentId)
	if folder {
		query += fmt.Sprintf(" and mimeType = '%s'", driveFolderMimeType)
	}

	list, err := p.svc.Files.List().
		Context(ctx).
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to query drive for '%s': %v", name, err)
	}

	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}
