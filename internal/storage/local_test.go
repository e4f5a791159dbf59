package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalUploadFile(t *testing.T) {

	root := t.TempDir()

	p, err := NewLocalProvider(root)
	if err != nil {
		t.Fatalf("failed to create local provider: %v", err)
	}

	obj, err := p.UploadFile(context.Background(), []byte("image bytes"), "slug.jpg", "image/jpeg", "2025/medium", nil)
	if err != nil {
		t.Fatalf("failed to upload file: %v", err)
	}

	if obj.Provider != ProviderLocal {
		t.Errorf("expected provider '%s', got '%s'", ProviderLocal, obj.Provider)
	}

	if obj.Path != "2025/medium/slug.jpg" {
		t.Errorf("expected path '2025/medium/slug.jpg', got '%s'", obj.Path)
	}

	// intermediate directories are created transparently
	written, err := os.ReadFile(filepath.Join(root, "2025", "medium", "slug.jpg"))
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}

	if string(written) != "image bytes" {
		t.Errorf("expected written content 'image bytes', got '%s'", string(written))
	}
}

func TestLocalDeleteFileIdempotent(t *testing.T) {

	root := t.TempDir()

	p, err := NewLocalProvider(root)
	if err != nil {
		t.Fatalf("failed to create local provider: %v", err)
	}

	if _, err := p.UploadFile(context.Background(), []byte("x"), "a.jpg", "image/jpeg", "f", nil); err != nil {
		t.Fatalf("failed to upload file: %v", err)
	}

	if err := p.DeleteFile(context.Background(), "f/a.jpg"); err != nil {
		t.Fatalf("failed to delete file: %v", err)
	}

	// deleting an already-deleted path is not an error
	if err := p.DeleteFile(context.Background(), "f/a.jpg"); err != nil {
		t.Errorf("expected idempotent delete, got: %v", err)
	}
}

func TestLocalFolders(t *testing.T) {

	root := t.TempDir()

	p, err := NewLocalProvider(root)
	if err != nil {
		t.Fatalf("failed to create local provider: %v", err)
	}

	exists, err := p.FolderExists(context.Background(), "albums/2025")
	if err != nil {
		t.Fatalf("failed to check folder: %v", err)
	}
	if exists {
		t.Error("expected folder to not exist yet")
	}

	if err := p.CreateFolder(context.Background(), "albums/2025"); err != nil {
		t.Fatalf("failed to create folder: %v", err)
	}

	exists, err = p.FolderExists(context.Background(), "albums/2025")
	if err != nil {
		t.Fatalf("failed to check folder: %v", err)
	}
	if !exists {
		t.Error("expected folder to exist after creation")
	}
}

func TestLocalPathEscape(t *testing.T) {

	root := t.TempDir()

	p, err := NewLocalProvider(root)
	if err != nil {
		t.Fatalf("failed to create local provider: %v", err)
	}

	// rooted clean strips traversal; the write must land inside the root
	obj, err := p.UploadFile(context.Background(), []byte("x"), "a.jpg", "image/jpeg", "../../etc", nil)
	if err != nil {
		t.Fatalf("failed to upload file: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(obj.Path))); err != nil {
		t.Errorf("expected object inside the storage root: %v", err)
	}
}

func TestLocalProviderRootMissing(t *testing.T) {

	if _, err := NewLocalProvider(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error creating a provider over a missing root")
	}
}
