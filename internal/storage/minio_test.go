package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/minio/minio-go/v7"
)

// fakeMinio records calls in place of a live object store.
type fakeMinio struct {
	putKeys     []string
	putTypes    []string
	removedKeys []string
	failPut     bool
}

func (f *fakeMinio) PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPut {
		return minio.UploadInfo{}, fmt.Errorf("forced put failure")
	}
	f.putKeys = append(f.putKeys, name)
	f.putTypes = append(f.putTypes, opts.ContentType)
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
}

func (f *fakeMinio) RemoveObject(ctx context.Context, bucket, name string, opts minio.RemoveObjectOptions) error {
	f.removedKeys = append(f.removedKeys, name)
	return nil
}

func newTestMinioProvider(client minioApi) *minioProvider {
	return &minioProvider{
		client: client,
		bucket: "gallery",
		logger: slog.Default(),
	}
}

func TestMinioUploadFile(t *testing.T) {

	fake := &fakeMinio{}
	p := newTestMinioProvider(fake)

	obj, err := p.UploadFile(context.Background(), []byte("bytes"), "slug.jpg", "image/jpeg", "2025/small", nil)
	if err != nil {
		t.Fatalf("failed to upload object: %v", err)
	}

	if obj.Provider != ProviderMinio || obj.Bucket != "gallery" {
		t.Errorf("unexpected stored object: %+v", obj)
	}

	// folder semantics collapse to key prefixing
	if obj.Path != "2025/small/slug.jpg" {
		t.Errorf("expected key '2025/small/slug.jpg', got '%s'", obj.Path)
	}

	if len(fake.putKeys) != 1 || fake.putKeys[0] != "2025/small/slug.jpg" {
		t.Errorf("expected one put for the prefixed key, got %v", fake.putKeys)
	}

	if fake.putTypes[0] != "image/jpeg" {
		t.Errorf("expected content type 'image/jpeg', got '%s'", fake.putTypes[0])
	}
}

func TestMinioUploadFailure(t *testing.T) {

	p := newTestMinioProvider(&fakeMinio{failPut: true})

	if _, err := p.UploadFile(context.Background(), []byte("bytes"), "slug.jpg", "image/jpeg", "f", nil); err == nil {
		t.Error("expected upload failure to propagate")
	}
}

func TestMinioDeleteFile(t *testing.T) {

	fake := &fakeMinio{}
	p := newTestMinioProvider(fake)

	if err := p.DeleteFile(context.Background(), "2025/slug.jpg"); err != nil {
		t.Fatalf("failed to delete object: %v", err)
	}

	if len(fake.removedKeys) != 1 || fake.removedKeys[0] != "2025/slug.jpg" {
		t.Errorf("expected one remove call, got %v", fake.removedKeys)
	}
}

func TestMinioFoldersAreNoOps(t *testing.T) {

	p := newTestMinioProvider(&fakeMinio{})

	exists, err := p.FolderExists(context.Background(), "anything/at/all")
	if err != nil || !exists {
		t.Errorf("expected flat provider to report every folder as existing, got %t, %v", exists, err)
	}

	if err := p.CreateFolder(context.Background(), "anything/at/all"); err != nil {
		t.Errorf("expected flat provider folder creation to be a no-op, got %v", err)
	}
}
