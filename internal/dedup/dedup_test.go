package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/tdeslauriers/halide/internal/fingerprint"
	"github.com/tdeslauriers/halide/internal/photo"
)

type fakeStore struct {
	byFingerprint map[string]*photo.Record
	byNameGlobal  map[string]*photo.Record
	byNameAlbum   map[string]*photo.Record

	fingerprintErr error
	nameErr        error

	fingerprintCalls int
	nameCalls        int
}

func (f *fakeStore) FindByFingerprint(ctx context.Context, fp string) (*photo.Record, error) {
	f.fingerprintCalls++
	if f.fingerprintErr != nil {
		return nil, f.fingerprintErr
	}
	return f.byFingerprint[fp], nil
}

func (f *fakeStore) FindByNameAndSize(ctx context.Context, name string, size int64, albumId string) (*photo.Record, error) {
	f.nameCalls++
	if f.nameErr != nil {
		return nil, f.nameErr
	}
	if albumId != "" {
		return f.byNameAlbum[name], nil
	}
	return f.byNameGlobal[name], nil
}

func (f *fakeStore) Insert(ctx context.Context, r *photo.Record) error { return nil }

func (f *fakeStore) UpdateFileFields(ctx context.Context, id string, ff *photo.FileFields) error {
	return nil
}

func TestCheckFingerprintMatch(t *testing.T) {

	raw := []byte("identical bytes")
	existing := &photo.Record{Id: "photo-1"}

	store := &fakeStore{
		byFingerprint: map[string]*photo.Record{fingerprint.Hash(raw): existing},
	}
	d := NewDetector(store)

	result, err := d.Check(context.Background(), raw, "holiday.jpg", "album-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exists {
		t.Fatal("expected duplicate to be detected")
	}
	if result.Existing.Id != "photo-1" {
		t.Errorf("expected existing record photo-1, got %s", result.Existing.Id)
	}
	if result.Reason != ReasonFingerprint {
		t.Errorf("expected reason %q, got %q", ReasonFingerprint, result.Reason)
	}
	if store.nameCalls != 0 {
		t.Error("expected no name lookups after fingerprint match")
	}
}

func TestCheckNameAndSizeMatch(t *testing.T) {

	existing := &photo.Record{Id: "photo-2"}
	store := &fakeStore{
		byNameGlobal: map[string]*photo.Record{"holiday.jpg": existing},
	}
	d := NewDetector(store)

	result, err := d.Check(context.Background(), []byte("new bytes"), "holiday.jpg", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exists || result.Reason != ReasonNameAndSize {
		t.Fatalf("expected name and size match, got exists=%t reason=%q", result.Exists, result.Reason)
	}
}

func TestCheckAlbumScopedMatch(t *testing.T) {

	existing := &photo.Record{Id: "photo-3"}
	store := &fakeStore{
		byNameAlbum: map[string]*photo.Record{"holiday.jpg": existing},
	}
	d := NewDetector(store)

	result, err := d.Check(context.Background(), []byte("new bytes"), "holiday.jpg", "album-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Exists || result.Reason != ReasonAlbumNameAndSize {
		t.Fatalf("expected album-scoped match, got exists=%t reason=%q", result.Exists, result.Reason)
	}
}

func TestCheckNoMatchReturnsFingerprint(t *testing.T) {

	raw := []byte("fresh content")
	d := NewDetector(&fakeStore{})

	result, err := d.Check(context.Background(), raw, "fresh.jpg", "album-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exists {
		t.Fatal("expected no duplicate")
	}
	if result.Fingerprint != fingerprint.Hash(raw) {
		t.Error("expected computed fingerprint returned for reuse")
	}
}

func TestCheckFailsOpenOnStoreErrors(t *testing.T) {

	store := &fakeStore{
		fingerprintErr: errors.New("db down"),
		nameErr:        errors.New("db down"),
	}
	d := NewDetector(store)

	result, err := d.Check(context.Background(), []byte("bytes"), "x.jpg", "album-1")
	if err != nil {
		t.Fatalf("expected store errors to be swallowed, got: %v", err)
	}
	if result.Exists {
		t.Fatal("expected no match when lookups fail")
	}
	if store.fingerprintCalls != 1 || store.nameCalls != 2 {
		t.Errorf("expected all lookup paths attempted, got fingerprint=%d name=%d", store.fingerprintCalls, store.nameCalls)
	}
}

func TestCheckCancelledContext(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDetector(&fakeStore{})
	if _, err := d.Check(ctx, []byte("bytes"), "x.jpg", ""); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
