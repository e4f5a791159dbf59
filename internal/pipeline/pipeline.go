// Package pipeline sequences the ingestion of one raw upload: duplicate
// detection, geometry analysis, derivative generation, metadata extraction,
// storage writes, and the single persistence commit.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/halide/internal/album"
	"github.com/tdeslauriers/halide/internal/dedup"
	"github.com/tdeslauriers/halide/internal/derivative"
	"github.com/tdeslauriers/halide/internal/geometry"
	"github.com/tdeslauriers/halide/internal/meta"
	"github.com/tdeslauriers/halide/internal/patron"
	"github.com/tdeslauriers/halide/internal/photo"
	"github.com/tdeslauriers/halide/internal/site"
	"github.com/tdeslauriers/halide/internal/storage"
	"github.com/tdeslauriers/halide/internal/util"
	"github.com/tdeslauriers/halide/pkg/api"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentUploads bounds the number of derivative objects written to the
// storage provider at once.
const maxConcurrentUploads = 4

// Service is the interface for the upload orchestrator.
type Service interface {

	// Upload runs one raw upload through the full ingestion sequence and
	// returns a uniform result. It never panics past the pipeline boundary:
	// fatal failures come back as a result with the error field populated,
	// and detected duplicates come back flagged skipped, not failed.
	Upload(ctx context.Context, cmd *api.UploadCmd, raw []byte) *api.UploadResult

	// ImportFolder ingests every supported image file in a local directory,
	// calling Upload per file and aggregating the outcomes. A single file's
	// failure never aborts the batch.
	ImportFolder(ctx context.Context, cmd *api.ImportCmd) (*api.ImportReport, error)
}

// NewService creates a new upload orchestrator, returning a pointer to the
// concrete implementation.
func NewService(
	store photo.Store,
	albums album.Service,
	patrons patron.Service,
	detector dedup.Detector,
	generator derivative.Generator,
	registry storage.Registry,
	sites site.Service,
) Service {
	return &pipeline{
		store:     store,
		albums:    albums,
		patrons:   patrons,
		detector:  detector,
		generator: generator,
		registry:  registry,
		sites:     sites,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackagePipeline)).
			With(slog.String(util.ComponentKey, util.ComponentOrchestrator)),
	}
}

var _ Service = (*pipeline)(nil)

// pipeline is the concrete implementation of the Service interface.
type pipeline struct {
	store     photo.Store
	albums    album.Service
	patrons   patron.Service
	detector  dedup.Detector
	generator derivative.Generator
	registry  storage.Registry
	sites     site.Service

	logger *slog.Logger
}

// Upload is the concrete implementation of the interface method which runs
// one raw upload through the ingestion sequence.
func (p *pipeline) Upload(ctx context.Context, cmd *api.UploadCmd, raw []byte) *api.UploadResult {

	if cmd == nil {
		return failed("upload command is nil")
	}

	if err := cmd.Validate(); err != nil {
		return failed(fmt.Sprintf("invalid upload command: %v", err))
	}

	if len(raw) == 0 {
		return failed("upload is empty")
	}

	// resolve the destination: the album's bound provider and folder, or the
	// default provider when the upload is unfiled
	provider, folder, err := p.resolveDestination(ctx, cmd.AlbumId)
	if err != nil {
		return failed(err.Error())
	}

	// duplicate detection
	dup, err := p.detector.Check(ctx, raw, cmd.OriginalFileName, cmd.AlbumId)
	if err != nil {
		return failed(fmt.Sprintf("duplicate check aborted: %v", err))
	}

	if dup.Exists && !cmd.Replace {
		p.logger.Info(fmt.Sprintf("skipping duplicate upload '%s': %s", cmd.OriginalFileName, dup.Reason))
		return &api.UploadResult{
			Skipped: true,
			Reason:  dup.Reason,
			Photo:   recordView(dup.Existing),
		}
	}

	// geometry analysis; an unreadable buffer is fatal
	g, err := geometry.Analyze(raw)
	if err != nil {
		return failed(fmt.Sprintf("failed to analyze image '%s': %v", cmd.OriginalFileName, err))
	}

	// derivatives, blur placeholder, and metadata extraction are read-only
	// over the same immutable buffer, so they run concurrently
	var (
		derivatives derivative.Set
		blurDataUrl string
		metadata    *api.MetadataBlock
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var genErr error
		derivatives, genErr = p.generator.GenerateAll(groupCtx, raw, g)
		return genErr
	})
	group.Go(func() error {
		blurDataUrl = p.generator.BlurPlaceholder(raw, g)
		return nil
	})
	group.Go(func() error {
		metadata = meta.Extract(raw)
		return nil
	})
	if err := group.Wait(); err != nil {
		return failed(fmt.Sprintf("failed to generate derivatives for '%s': %v", cmd.OriginalFileName, err))
	}

	// a replace deletes the previous files before writing new ones
	if dup.Exists && cmd.Replace {
		cleanup := p.deleteStoredFiles(ctx, dup.Existing)
		if len(cleanup.Failures) > 0 {
			p.logger.Warn(fmt.Sprintf("replace cleanup for photo record '%s' left orphaned objects: %s",
				dup.Existing.Id, strings.Join(cleanup.Failures, "; ")))
		}
	}

	// identity: a replace keeps the existing record's id and slug
	slug := uuid.NewString()
	if dup.Exists && cmd.Replace {
		slug = dup.Existing.Slug
	}
	ext := strings.ToLower(filepath.Ext(cmd.OriginalFileName))
	fileName := slug + ext

	stored, err := p.storeFiles(ctx, raw, cmd.MimeType, fileName, slug, folder, provider, derivatives)
	if err != nil {
		return failed(err.Error())
	}
	stored.BlurDataUrl = blurDataUrl

	// cancellation after storage but before persistence must not leave
	// orphaned bytes behind
	if err := ctx.Err(); err != nil {
		p.unwindStoredFiles(provider, stored)
		return failed(fmt.Sprintf("upload of '%s' cancelled: %v", cmd.OriginalFileName, err))
	}

	storageJson, err := stored.Marshal()
	if err != nil {
		p.unwindStoredFiles(provider, stored)
		return failed(err.Error())
	}

	metadataJson := ""
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			p.logger.Warn(fmt.Sprintf("failed to marshal metadata block for '%s', persisting without: %v", cmd.OriginalFileName, err))
		} else {
			metadataJson = string(encoded)
		}
	}

	// persistence is the single commit point
	record, err := p.persist(ctx, cmd, dup, g, raw, fileName, slug, storageJson, metadataJson)
	if err != nil {
		p.unwindStoredFiles(provider, stored)
		return failed(err.Error())
	}

	return p.buildResult(record, stored, metadata)
}

// resolveDestination returns the storage provider and folder path for the
// upload. An album upload uses the album's bound provider and path; an
// unfiled upload uses the default provider and a year folder.
func (p *pipeline) resolveDestination(ctx context.Context, albumId string) (storage.Provider, string, error) {

	if albumId == "" {
		return p.registry.Default(), time.Now().UTC().Format("2006"), nil
	}

	a, err := p.albums.GetById(ctx, albumId)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up album '%s': %v", albumId, err)
	}

	provider := p.registry.Default()
	if a.StorageProvider != "" {
		provider, err = p.registry.Get(a.StorageProvider)
		if err != nil {
			return nil, "", fmt.Errorf("album '%s' is bound to an unknown storage provider: %v", albumId, err)
		}
	}

	folder := a.StoragePath
	if folder == "" {
		folder = a.Id
	}

	return provider, folder, nil
}

// storeFiles writes the original bytes and every generated derivative to the
// provider. The original goes first since its path is the record's canonical
// location; derivatives upload concurrently under size sub-folders. Any write
// failure unwinds the objects stored so far.
func (p *pipeline) storeFiles(
	ctx context.Context,
	raw []byte,
	mimeType string,
	fileName string,
	slug string,
	folder string,
	provider storage.Provider,
	derivatives derivative.Set,
) (*photo.StorageBlock, error) {

	// per-size folders are expected to exist from album creation; a miss is
	// logged only, since the provider creates missing folders on upload
	for _, spec := range derivative.DefaultSizes {
		if _, ok := derivatives[spec.Name]; !ok {
			continue
		}
		exists, err := provider.FolderExists(ctx, path.Join(folder, spec.Name))
		if err != nil {
			p.logger.Warn(fmt.Sprintf("failed to verify folder '%s': %v", path.Join(folder, spec.Name), err))
		} else if !exists {
			p.logger.Warn(fmt.Sprintf("folder '%s' missing, provider will create it on upload", path.Join(folder, spec.Name)))
		}
	}

	objectMeta := storage.Metadata{"slug": slug}

	original, err := provider.UploadFile(ctx, raw, fileName, mimeType, folder, objectMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to store original file '%s': %v", fileName, err)
	}
	original.Url = p.sites.FileUrl(provider.Name(), original.Path)

	block := &photo.StorageBlock{
		Original:   *original,
		Thumbnails: make(map[string]storage.StoredObject, len(derivatives)),
	}

	// a derivative that fails to upload is logged and absent from the
	// result, same as one that fails to generate; only the original's
	// upload is fatal
	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(maxConcurrentUploads)

	for name, d := range derivatives {
		group.Go(func() error {
			obj, err := provider.UploadFile(ctx, d.Data, slug+".jpg", "image/jpeg", path.Join(folder, name), objectMeta)
			if err != nil {
				p.logger.Error(fmt.Sprintf("failed to store %s derivative of '%s', omitting size: %v", name, fileName, err))
				return nil
			}
			obj.Url = p.sites.FileUrl(provider.Name(), obj.Path)

			mu.Lock()
			block.Thumbnails[name] = *obj
			mu.Unlock()
			return nil
		})
	}
	group.Wait()

	return block, nil
}

// persist commits the upload: a replace overwrites the file-derived fields of
// the existing record, a fresh upload inserts a new record and increments the
// owning album's photo count exactly once.
func (p *pipeline) persist(
	ctx context.Context,
	cmd *api.UploadCmd,
	dup *dedup.Result,
	g *geometry.Geometry,
	raw []byte,
	fileName string,
	slug string,
	storageJson string,
	metadataJson string,
) (*photo.Record, error) {

	now := data.CustomTime{Time: time.Now().UTC()}

	if dup.Exists && cmd.Replace {

		fields := &photo.FileFields{
			FileName:         fileName,
			OriginalFileName: cmd.OriginalFileName,
			MimeType:         cmd.MimeType,
			Size:             int64(len(raw)),
			Fingerprint:      dup.Fingerprint,
			Width:            g.NativeWidth,
			Height:           g.NativeHeight,
			DisplayWidth:     g.DisplayWidth,
			DisplayHeight:    g.DisplayHeight,
			Orientation:      g.Orientation,
			Storage:          storageJson,
			Metadata:         metadataJson,
		}

		if err := p.store.UpdateFileFields(ctx, dup.Existing.Id, fields); err != nil {
			return nil, fmt.Errorf("failed to persist replacement of photo record '%s': %v", dup.Existing.Id, err)
		}

		// caller-owned fields are preserved from the existing record
		updated := *dup.Existing
		updated.FileName = fileName
		updated.OriginalFileName = cmd.OriginalFileName
		updated.MimeType = cmd.MimeType
		updated.Size = int64(len(raw))
		updated.Fingerprint = dup.Fingerprint
		updated.Width = g.NativeWidth
		updated.Height = g.NativeHeight
		updated.DisplayWidth = g.DisplayWidth
		updated.DisplayHeight = g.DisplayHeight
		updated.Orientation = g.Orientation
		updated.Storage = storageJson
		updated.Metadata = metadataJson
		updated.UpdatedAt = now

		return &updated, nil
	}

	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		title = api.PhotoTitleDefault
	}

	tagsJson := ""
	if len(cmd.Tags) > 0 {
		encoded, err := json.Marshal(cmd.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %v", err)
		}
		tagsJson = string(encoded)
	}

	record := &photo.Record{
		Id:               uuid.NewString(),
		Title:            title,
		Description:      strings.TrimSpace(cmd.Description),
		FileName:         fileName,
		OriginalFileName: cmd.OriginalFileName,
		MimeType:         cmd.MimeType,
		Size:             int64(len(raw)),
		Fingerprint:      dup.Fingerprint,
		Width:            g.NativeWidth,
		Height:           g.NativeHeight,
		DisplayWidth:     g.DisplayWidth,
		DisplayHeight:    g.DisplayHeight,
		Orientation:      g.Orientation,
		Storage:          storageJson,
		Tags:             tagsJson,
		Metadata:         metadataJson,
		AlbumId:          cmd.AlbumId,
		Slug:             slug,
		UploadedBy:       p.patrons.ResolveUploader(ctx, cmd.UploadedBy),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := p.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist photo record for '%s': %v", cmd.OriginalFileName, err)
	}

	if cmd.AlbumId != "" {
		if err := p.albums.IncrementPhotoCount(ctx, cmd.AlbumId); err != nil {
			p.logger.Warn(fmt.Sprintf("failed to increment photo count of album '%s': %v", cmd.AlbumId, err))
		}
	}

	return record, nil
}

// buildResult assembles the caller-facing result from the persisted record
// and stored objects. The legacy single-thumbnail url falls back medium,
// small, then the first available size.
func (p *pipeline) buildResult(record *photo.Record, stored *photo.StorageBlock, metadata *api.MetadataBlock) *api.UploadResult {

	thumbnails := make(map[string]string, len(stored.Thumbnails))
	for name, obj := range stored.Thumbnails {
		thumbnails[name] = obj.Url
	}

	thumbnailUrl := ""
	if obj, ok := stored.Thumbnails[derivative.SizeMedium]; ok {
		thumbnailUrl = obj.Url
	} else if obj, ok := stored.Thumbnails[derivative.SizeSmall]; ok {
		thumbnailUrl = obj.Url
	} else {
		for _, spec := range derivative.DefaultSizes {
			if obj, ok := stored.Thumbnails[spec.Name]; ok {
				thumbnailUrl = obj.Url
				break
			}
		}
	}

	view := recordView(record)
	view.Url = stored.Original.Url

	return &api.UploadResult{
		Success:      true,
		Photo:        view,
		Thumbnails:   thumbnails,
		ThumbnailUrl: thumbnailUrl,
		BlurDataUrl:  stored.BlurDataUrl,
		Metadata:     metadata,
	}
}

// recordView maps a decrypted photo record to its caller-facing view.
func recordView(r *photo.Record) *api.Photo {

	if r == nil {
		return nil
	}

	var tags []string
	if r.Tags != "" {
		// a tags column that fails to parse is surfaced as empty, not fatal
		_ = json.Unmarshal([]byte(r.Tags), &tags)
	}

	return &api.Photo{
		Id:               r.Id,
		Title:            r.Title,
		Description:      r.Description,
		Slug:             r.Slug,
		FileName:         r.FileName,
		OriginalFileName: r.OriginalFileName,
		MimeType:         r.MimeType,
		Size:             r.Size,
		Fingerprint:      r.Fingerprint,
		Width:            r.Width,
		Height:           r.Height,
		DisplayWidth:     r.DisplayWidth,
		DisplayHeight:    r.DisplayHeight,
		Orientation:      r.Orientation,
		AlbumId:          r.AlbumId,
		Tags:             tags,
		IsPublished:      r.IsPublished,
		IsLeading:        r.IsLeading,
		UploadedBy:       r.UploadedBy,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// failed builds a uniform failure result.
func failed(message string) *api.UploadResult {
	return &api.UploadResult{Error: message}
}
