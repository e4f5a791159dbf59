package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/halide/internal/album"
	"github.com/tdeslauriers/halide/internal/dedup"
	"github.com/tdeslauriers/halide/internal/derivative"
	"github.com/tdeslauriers/halide/internal/fingerprint"
	"github.com/tdeslauriers/halide/internal/geometry"
	"github.com/tdeslauriers/halide/internal/photo"
	"github.com/tdeslauriers/halide/internal/site"
	"github.com/tdeslauriers/halide/internal/storage"
	"github.com/tdeslauriers/halide/pkg/api"
)

const (
	testAlbumId  = "aaaaaaaa-1111-2222-3333-444444444444"
	testUploader = "bbbbbbbb-1111-2222-3333-444444444444"
	fallbackUser = "cccccccc-1111-2222-3333-444444444444"
)

// newTestJpeg encodes a solid-color jpeg of the given dimensions.
func newTestJpeg(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

type fakeStore struct {
	mu      sync.Mutex
	records []*photo.Record

	insertErr error
}

func (f *fakeStore) FindByFingerprint(ctx context.Context, fp string) (*photo.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Fingerprint == fp {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByNameAndSize(ctx context.Context, name string, size int64, albumId string) (*photo.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OriginalFileName != name || r.Size != size {
			continue
		}
		if albumId != "" && r.AlbumId != albumId {
			continue
		}
		clone := *r
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeStore) Insert(ctx context.Context, r *photo.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *r
	f.records = append(f.records, &clone)
	return nil
}

func (f *fakeStore) UpdateFileFields(ctx context.Context, id string, fields *photo.FileFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Id == id {
			r.FileName = fields.FileName
			r.OriginalFileName = fields.OriginalFileName
			r.MimeType = fields.MimeType
			r.Size = fields.Size
			r.Fingerprint = fields.Fingerprint
			r.Width = fields.Width
			r.Height = fields.Height
			r.DisplayWidth = fields.DisplayWidth
			r.DisplayHeight = fields.DisplayHeight
			r.Orientation = fields.Orientation
			r.Storage = fields.Storage
			r.Metadata = fields.Metadata
			r.UpdatedAt = data.CustomTime{Time: time.Now().UTC()}
			return nil
		}
	}
	return fmt.Errorf("photo record '%s' not found", id)
}

type fakeAlbums struct {
	album *album.Album

	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeAlbums) GetById(ctx context.Context, id string) (*album.Album, error) {
	if f.album == nil || f.album.Id != id {
		return nil, fmt.Errorf("album '%s' not found", id)
	}
	return f.album, nil
}

func (f *fakeAlbums) IncrementPhotoCount(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[id]++
	return nil
}

func (f *fakeAlbums) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[id]
}

type fakePatrons struct{}

func (f *fakePatrons) ResolveUploader(ctx context.Context, userId string) string {
	if userId != "" {
		return userId
	}
	return fallbackUser
}

type fakeProvider struct {
	mu       sync.Mutex
	uploads  map[string][]byte
	deletes  []string
	failPut  bool
	failPath string
	onUpload func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{uploads: make(map[string][]byte)}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) UploadFile(ctx context.Context, content []byte, name, mimeType, folderPath string, meta storage.Metadata) (*storage.StoredObject, error) {
	if f.failPut {
		return nil, errors.New("provider unavailable")
	}
	if f.failPath != "" && strings.Contains(folderPath, f.failPath) {
		return nil, fmt.Errorf("transient object-store error for %s", folderPath)
	}
	f.mu.Lock()
	key := folderPath + "/" + name
	f.uploads[key] = content
	f.mu.Unlock()
	if f.onUpload != nil {
		f.onUpload()
	}
	return &storage.StoredObject{Provider: "fake", Path: key}, nil
}

func (f *fakeProvider) DeleteFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, path)
	delete(f.uploads, path)
	return nil
}

func (f *fakeProvider) FolderExists(ctx context.Context, path string) (bool, error) { return true, nil }

func (f *fakeProvider) CreateFolder(ctx context.Context, path string) error { return nil }

type testRig struct {
	store    *fakeStore
	albums   *fakeAlbums
	provider *fakeProvider
	service  Service
}

func newTestRig() *testRig {

	store := &fakeStore{}
	albums := &fakeAlbums{
		album: &album.Album{Id: testAlbumId, Title: "Summer", StoragePath: "albums/summer"},
	}
	provider := newFakeProvider()

	svc := NewService(
		store,
		albums,
		&fakePatrons{},
		dedup.NewDetector(store),
		derivative.NewGenerator(),
		storage.NewRegistry(provider),
		site.NewService(func() (*site.Settings, error) {
			return &site.Settings{ServePrefix: "files"}, nil
		}),
	)

	return &testRig{store: store, albums: albums, provider: provider, service: svc}
}

func TestUploadLandscapeToFreshAlbum(t *testing.T) {

	rig := newTestRig()
	raw := newTestJpeg(t, 400, 300)

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "beach.jpg",
		MimeType:         "image/jpeg",
		AlbumId:          testAlbumId,
		UploadedBy:       testUploader,
	}, raw)

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(result.Thumbnails) != len(derivative.DefaultSizes) {
		t.Errorf("expected %d thumbnails, got %d", len(derivative.DefaultSizes), len(result.Thumbnails))
	}
	if !strings.HasPrefix(result.BlurDataUrl, derivative.BlurDataUrlPrefix) {
		t.Error("expected inline-image blur placeholder")
	}
	if rig.albums.count(testAlbumId) != 1 {
		t.Errorf("expected album photo count 1, got %d", rig.albums.count(testAlbumId))
	}

	record := rig.store.records[0]
	if record.Title != api.PhotoTitleDefault {
		t.Errorf("expected default title, got %q", record.Title)
	}
	if record.Width != 400 || record.DisplayWidth != 400 {
		t.Errorf("unexpected geometry: %d/%d", record.Width, record.DisplayWidth)
	}
	if record.UploadedBy != testUploader {
		t.Errorf("expected uploader %s, got %s", testUploader, record.UploadedBy)
	}
	if !strings.HasSuffix(record.FileName, ".jpg") || !strings.HasPrefix(record.FileName, record.Slug) {
		t.Errorf("expected file name derived from slug, got %q", record.FileName)
	}

	// original plus one object per size
	if len(rig.provider.uploads) != 1+len(derivative.DefaultSizes) {
		t.Errorf("expected %d stored objects, got %d", 1+len(derivative.DefaultSizes), len(rig.provider.uploads))
	}
	if result.Photo.Url != "/files/fake/albums/summer/"+record.FileName {
		t.Errorf("unexpected original url: %q", result.Photo.Url)
	}
	for name, url := range result.Thumbnails {
		if !strings.Contains(url, "/"+name+"/") {
			t.Errorf("expected %s thumbnail under its size folder, got %q", name, url)
		}
	}
}

func TestUploadDuplicateSkipped(t *testing.T) {

	rig := newTestRig()
	raw := newTestJpeg(t, 200, 200)

	cmd := &api.UploadCmd{
		OriginalFileName: "twice.jpg",
		MimeType:         "image/jpeg",
		AlbumId:          testAlbumId,
		UploadedBy:       testUploader,
	}

	first := rig.service.Upload(context.Background(), cmd, raw)
	if !first.Success {
		t.Fatalf("first upload failed: %s", first.Error)
	}

	second := rig.service.Upload(context.Background(), cmd, raw)
	if second.Success || !second.Skipped {
		t.Fatalf("expected second upload skipped, got success=%t error=%q", second.Success, second.Error)
	}
	if second.Reason == "" {
		t.Error("expected a skip reason")
	}
	if len(rig.store.records) != 1 {
		t.Errorf("expected a single record, got %d", len(rig.store.records))
	}
	if rig.albums.count(testAlbumId) != 1 {
		t.Errorf("expected photo count unchanged at 1, got %d", rig.albums.count(testAlbumId))
	}
}

func TestUploadReplacePreservesCallerFields(t *testing.T) {

	rig := newTestRig()
	replacement := newTestJpeg(t, 500, 400)

	// existing record matched by name and size, with old objects on disk
	oldBlock := &photo.StorageBlock{
		Original: storage.StoredObject{Provider: "fake", Path: "albums/summer/old.jpg"},
		Thumbnails: map[string]storage.StoredObject{
			derivative.SizeSmall: {Provider: "fake", Path: "albums/summer/small/old.jpg"},
		},
	}
	oldJson, err := oldBlock.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	rig.provider.uploads["albums/summer/old.jpg"] = []byte("old original")
	rig.provider.uploads["albums/summer/small/old.jpg"] = []byte("old small")

	created := data.CustomTime{Time: time.Now().UTC().Add(-24 * time.Hour)}
	rig.store.records = append(rig.store.records, &photo.Record{
		Id:               "dddddddd-1111-2222-3333-444444444444",
		Title:            "Sunset",
		FileName:         "old.jpg",
		OriginalFileName: "sunset.jpg",
		MimeType:         "image/jpeg",
		Size:             int64(len(replacement)),
		Fingerprint:      "previous-fingerprint",
		Storage:          oldJson,
		AlbumId:          testAlbumId,
		Slug:             "eeeeeeee-1111-2222-3333-444444444444",
		UploadedBy:       testUploader,
		CreatedAt:        created,
		UpdatedAt:        created,
	})

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "sunset.jpg",
		MimeType:         "image/jpeg",
		AlbumId:          testAlbumId,
		Replace:          true,
	}, replacement)
	if !result.Success {
		t.Fatalf("replace failed: %s", result.Error)
	}

	if len(rig.store.records) != 1 {
		t.Fatalf("expected replace to update in place, got %d records", len(rig.store.records))
	}
	after := rig.store.records[0]

	if after.Title != "Sunset" {
		t.Errorf("expected title preserved, got %q", after.Title)
	}
	if after.UploadedBy != testUploader {
		t.Error("expected uploader preserved")
	}
	if !after.CreatedAt.Equal(created.Time) {
		t.Error("expected original upload timestamp preserved")
	}
	if after.Fingerprint == "previous-fingerprint" {
		t.Error("expected fingerprint to change")
	}
	if after.Width != 500 {
		t.Errorf("expected new geometry, got width %d", after.Width)
	}
	if after.FileName == "old.jpg" || !strings.HasPrefix(after.FileName, after.Slug) {
		t.Errorf("expected a new stored file name under the kept slug, got %q", after.FileName)
	}
	if rig.albums.count(testAlbumId) != 0 {
		t.Errorf("expected photo count untouched by replace, got %d", rig.albums.count(testAlbumId))
	}

	// the previous original and derivative were deleted before the rewrite
	deleted := strings.Join(rig.provider.deletes, " ")
	if !strings.Contains(deleted, "albums/summer/old.jpg") || !strings.Contains(deleted, "albums/summer/small/old.jpg") {
		t.Errorf("expected old objects deleted, got deletions: %s", deleted)
	}
}

func TestUploadUnsupportedFormat(t *testing.T) {

	rig := newTestRig()

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "junk.jpg",
		MimeType:         "image/jpeg",
	}, []byte("not an image at all"))

	if result.Success || result.Skipped {
		t.Fatal("expected a failure result")
	}
	if !strings.Contains(result.Error, "analyze") {
		t.Errorf("expected analysis failure, got %q", result.Error)
	}
	if len(rig.store.records) != 0 {
		t.Error("expected no record persisted")
	}
	if len(rig.provider.uploads) != 0 {
		t.Error("expected no bytes stored")
	}
}

func TestUploadPersistFailureUnwindsStorage(t *testing.T) {

	rig := newTestRig()
	rig.store.insertErr = errors.New("db down")

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "doomed.jpg",
		MimeType:         "image/jpeg",
		AlbumId:          testAlbumId,
	}, newTestJpeg(t, 150, 150))

	if result.Success {
		t.Fatal("expected failure when persistence is down")
	}
	if len(rig.provider.uploads) != 0 {
		t.Errorf("expected stored objects removed after persist failure, %d remain", len(rig.provider.uploads))
	}
	if rig.albums.count(testAlbumId) != 0 {
		t.Error("expected photo count untouched on failure")
	}
}

func TestUploadCancelledAfterStorageUnwinds(t *testing.T) {

	rig := newTestRig()
	ctx, cancel := context.WithCancel(context.Background())
	rig.provider.onUpload = cancel

	result := rig.service.Upload(ctx, &api.UploadCmd{
		OriginalFileName: "late-cancel.jpg",
		MimeType:         "image/jpeg",
	}, newTestJpeg(t, 150, 150))

	if result.Success {
		t.Fatal("expected failure on cancellation")
	}
	if len(rig.provider.uploads) != 0 {
		t.Errorf("expected stored objects removed after cancellation, %d remain", len(rig.provider.uploads))
	}
	if len(rig.store.records) != 0 {
		t.Error("expected no record persisted after cancellation")
	}
}

func TestUploadInvalidCommand(t *testing.T) {

	rig := newTestRig()

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "no-extension",
		MimeType:         "image/jpeg",
	}, newTestJpeg(t, 10, 10))

	if result.Success || result.Error == "" {
		t.Fatal("expected validation failure")
	}
}

// fixedSetGenerator returns a canned derivative set regardless of input.
type fixedSetGenerator struct {
	set derivative.Set
}

func (f *fixedSetGenerator) GenerateAll(ctx context.Context, raw []byte, g *geometry.Geometry) (derivative.Set, error) {
	return f.set, nil
}

func (f *fixedSetGenerator) BlurPlaceholder(raw []byte, g *geometry.Geometry) string {
	return derivative.BlurDataUrlPrefix + "blur"
}

func TestThumbnailFallbackChain(t *testing.T) {

	smallOnly := derivative.Set{
		derivative.SizeSmall: {Name: derivative.SizeSmall, Width: 10, Height: 10, Data: []byte{1}},
		derivative.SizeHero:  {Name: derivative.SizeHero, Width: 20, Height: 20, Data: []byte{2}},
	}
	microOnly := derivative.Set{
		derivative.SizeMicro: {Name: derivative.SizeMicro, Width: 5, Height: 5, Data: []byte{3}},
		derivative.SizeHero:  {Name: derivative.SizeHero, Width: 20, Height: 20, Data: []byte{4}},
	}

	cases := []struct {
		name string
		set  derivative.Set
		want string
	}{
		{"medium missing falls back to small", smallOnly, derivative.SizeSmall},
		{"medium and small missing falls back to first available", microOnly, derivative.SizeMicro},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {

			store := &fakeStore{}
			provider := newFakeProvider()
			svc := NewService(
				store,
				&fakeAlbums{},
				&fakePatrons{},
				dedup.NewDetector(store),
				&fixedSetGenerator{set: tc.set},
				storage.NewRegistry(provider),
				site.NewService(func() (*site.Settings, error) {
					return &site.Settings{ServePrefix: "files"}, nil
				}),
			)

			result := svc.Upload(context.Background(), &api.UploadCmd{
				OriginalFileName: "partial.jpg",
				MimeType:         "image/jpeg",
			}, newTestJpeg(t, 100, 100))

			if !result.Success {
				t.Fatalf("upload failed: %s", result.Error)
			}
			if !strings.Contains(result.ThumbnailUrl, "/"+tc.want+"/") {
				t.Errorf("expected fallback to %s, got %q", tc.want, result.ThumbnailUrl)
			}
		})
	}
}

func TestUploadSurvivesDerivativeUploadFailure(t *testing.T) {

	rig := newTestRig()
	rig.provider.failPath = derivative.SizeMedium

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "mostly-fine.jpg",
		MimeType:         "image/jpeg",
		AlbumId:          testAlbumId,
		UploadedBy:       testUploader,
	}, newTestJpeg(t, 800, 600))

	if !result.Success {
		t.Fatalf("expected success with the failed size omitted, got error: %s", result.Error)
	}
	if _, ok := result.Thumbnails[derivative.SizeMedium]; ok {
		t.Error("expected medium absent from the thumbnail map")
	}
	if len(result.Thumbnails) != len(derivative.DefaultSizes)-1 {
		t.Errorf("expected %d thumbnails, got %d", len(derivative.DefaultSizes)-1, len(result.Thumbnails))
	}
	if !strings.Contains(result.ThumbnailUrl, "/"+derivative.SizeSmall+"/") {
		t.Errorf("expected single-thumbnail fallback to small, got %q", result.ThumbnailUrl)
	}
	if len(rig.store.records) != 1 {
		t.Fatal("expected the record persisted despite the missing size")
	}
	if rig.albums.count(testAlbumId) != 1 {
		t.Errorf("expected album photo count 1, got %d", rig.albums.count(testAlbumId))
	}
}

func TestUploadReplaceUpdatesOriginalFileName(t *testing.T) {

	rig := newTestRig()
	replacement := newTestJpeg(t, 320, 240)

	// existing record matched by content fingerprint, re-uploaded under a
	// different source name
	created := data.CustomTime{Time: time.Now().UTC().Add(-48 * time.Hour)}
	rig.store.records = append(rig.store.records, &photo.Record{
		Id:               "dddddddd-5555-6666-7777-888888888888",
		Title:            "Harbor",
		FileName:         "old.jpg",
		OriginalFileName: "harbor-draft.jpg",
		MimeType:         "image/jpeg",
		Size:             1,
		Fingerprint:      fingerprint.Hash(replacement),
		AlbumId:          testAlbumId,
		Slug:             "eeeeeeee-5555-6666-7777-888888888888",
		UploadedBy:       testUploader,
		CreatedAt:        created,
		UpdatedAt:        created,
	})

	result := rig.service.Upload(context.Background(), &api.UploadCmd{
		OriginalFileName: "harbor-final.jpg",
		MimeType:         "image/jpeg",
		AlbumId:          testAlbumId,
		Replace:          true,
	}, replacement)
	if !result.Success {
		t.Fatalf("replace failed: %s", result.Error)
	}

	after := rig.store.records[0]
	if after.OriginalFileName != "harbor-final.jpg" {
		t.Errorf("expected original file name updated to the new source name, got %q", after.OriginalFileName)
	}
	if after.Title != "Harbor" {
		t.Errorf("expected title preserved, got %q", after.Title)
	}
	if result.Photo.OriginalFileName != "harbor-final.jpg" {
		t.Errorf("expected result view to carry the new source name, got %q", result.Photo.OriginalFileName)
	}

	// the (name,size) dedup path now keys on the new name
	match, err := rig.store.FindByNameAndSize(context.Background(), "harbor-final.jpg", int64(len(replacement)), "")
	if err != nil || match == nil {
		t.Error("expected name and size lookup to find the record under the new name")
	}
	stale, err := rig.store.FindByNameAndSize(context.Background(), "harbor-draft.jpg", int64(len(replacement)), "")
	if err != nil || stale != nil {
		t.Error("expected no match under the stale name")
	}
}

func TestImportFolder(t *testing.T) {

	rig := newTestRig()
	dir := t.TempDir()

	valid := newTestJpeg(t, 120, 80)
	if err := os.WriteFile(filepath.Join(dir, "one.jpg"), valid, 0644); err != nil {
		t.Fatal(err)
	}
	// same bytes under a different name still fingerprints identically
	if err := os.WriteFile(filepath.Join(dir, "two.jpg"), valid, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := rig.service.ImportFolder(context.Background(), &api.ImportCmd{
		Path:       dir,
		AlbumId:    testAlbumId,
		UploadedBy: testUploader,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Total != 3 {
		t.Errorf("expected 3 image files attempted, got %d", report.Total)
	}
	if report.Successful != 1 || report.Skipped != 1 || report.Failed != 1 {
		t.Errorf("unexpected report: %d uploaded, %d skipped, %d failed",
			report.Successful, report.Skipped, report.Failed)
	}
	if len(report.SkippedItems) != 1 || report.SkippedItems[0].Reason == "" {
		t.Error("expected skipped item with reason")
	}
	if len(report.Failures) != 1 || report.Failures[0].FileName != "broken.jpg" {
		t.Error("expected broken.jpg reported as the failure")
	}
	if rig.albums.count(testAlbumId) != 1 {
		t.Errorf("expected album photo count 1, got %d", rig.albums.count(testAlbumId))
	}
}

func TestImportFolderRejectsMissingPath(t *testing.T) {

	rig := newTestRig()

	if _, err := rig.service.ImportFolder(context.Background(), &api.ImportCmd{
		Path: "/nonexistent/folder/nowhere",
	}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
