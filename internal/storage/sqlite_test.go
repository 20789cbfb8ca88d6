package storage

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLite_Ping(t *testing.T) {
	store := newTestStore(t)
	if !store.Ping() {
		t.Fatalf("expected Ping to return true")
	}
}

func TestSQLite_CreateAndGetImage(t *testing.T) {
	store := newTestStore(t)

	original := []byte{0x01, 0x02, 0x03}
	processed := []byte{0x10, 0x20}

	id, err := store.CreateImage("tshirt.png", original, processed)
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	gotOriginal, err := store.GetOriginalImageByID(id)
	if err != nil {
		t.Fatalf("GetOriginalImageByID error: %v", err)
	}
	if !bytes.Equal(gotOriginal, original) {
		t.Errorf("original mismatch: expected %v, got %v", original, gotOriginal)
	}

	gotProcessed, err := store.GetProcessedImageByID(id)
	if err != nil {
		t.Fatalf("GetProcessedImageByID error: %v", err)
	}
	if !bytes.Equal(gotProcessed, processed) {
		t.Errorf("processed mismatch: expected %v, got %v", processed, gotProcessed)
	}
}

func TestSQLite_GetImageByID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetOriginalImageByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = store.GetProcessedImageByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_SetProcessedImage(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateImage("dress.png", []byte{0x01}, nil)
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}

	updated := []byte{0xAA, 0xBB}
	if err := store.SetProcessedImage(id, updated); err != nil {
		t.Fatalf("SetProcessedImage error: %v", err)
	}

	got, err := store.GetProcessedImageByID(id)
	if err != nil {
		t.Fatalf("GetProcessedImageByID error: %v", err)
	}
	if !bytes.Equal(got, updated) {
		t.Errorf("expected %v, got %v", updated, got)
	}

	if err := store.SetProcessedImage("missing", updated); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestSQLite_GetImages_Projection(t *testing.T) {
	store := newTestStore(t)

	id1, err := store.CreateImage("a.png", []byte{0x01, 0x02}, []byte{0x10})
	if err != nil {
		t.Fatalf("CreateImage #1 error: %v", err)
	}
	id2, err := store.CreateImage("b.png", []byte{0x03}, []byte{0x20})
	if err != nil {
		t.Fatalf("CreateImage #2 error: %v", err)
	}

	images, err := store.GetImages("id", "name")
	if err != nil {
		t.Fatalf("GetImages(id, name) error: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	seen := map[string]bool{}
	for i, img := range images {
		if img.ID == "" {
			t.Errorf("image[%d].ID is empty; expected non-empty", i)
		}
		if img.Name == "" {
			t.Errorf("image[%d].Name is empty; expected non-empty", i)
		}
		if img.OriginalImage != nil || img.ProcessedImage != nil {
			t.Errorf("image[%d] binary fields should be nil when not selected", i)
		}
		seen[img.ID] = true
	}
	if !seen[id1] || !seen[id2] {
		t.Fatalf("expected IDs %q and %q in results, got %v", id1, id2, seen)
	}
}

func TestSQLite_GetImages_UnknownField(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetImages("nonexistent_field")
	if err == nil {
		t.Fatalf("expected error for unknown field, got nil")
	}
}

func TestSQLite_GetImages_AllFields(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateImage("coat.png", []byte("original"), []byte("processed"))
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}

	images, err := store.GetImages()
	if err != nil {
		t.Fatalf("GetImages error: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	img := images[0]
	if img.ID != id {
		t.Errorf("expected ID %q, got %q", id, img.ID)
	}
	if img.Name != "coat.png" {
		t.Errorf("expected name 'coat.png', got %q", img.Name)
	}
	if string(img.OriginalImage) != "original" || string(img.ProcessedImage) != "processed" {
		t.Error("expected binary fields to be populated")
	}
	if img.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestSQLite_DeleteImage(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateImage("hat.png", []byte{0x01}, []byte{0x02})
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}

	if err := store.DeleteImage(id); err != nil {
		t.Fatalf("DeleteImage error: %v", err)
	}

	if _, err := store.GetOriginalImageByID(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := store.DeleteImage(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for repeated delete, got %v", err)
	}
}

func TestSQLite_DeleteOlderThan(t *testing.T) {
	store := newTestStore(t)

	oldID, err := store.CreateImage("old.png", []byte{0x01}, []byte{0x02})
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}
	keepID, err := store.CreateImage("keep.png", []byte{0x03}, []byte{0x04})
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}

	// No images are older than a cutoff in the past
	ids, err := store.DeleteOlderThan(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no deletions, got %v", ids)
	}

	// Everything is older than a cutoff in the future
	ids, err = store.DeleteOlderThan(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 deletions, got %v", ids)
	}
	deleted := map[string]bool{}
	for _, id := range ids {
		deleted[id] = true
	}
	if !deleted[oldID] || !deleted[keepID] {
		t.Errorf("expected both IDs deleted, got %v", ids)
	}

	images, err := store.GetImages("id")
	if err != nil {
		t.Fatalf("GetImages error: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("expected empty table, got %d rows", len(images))
	}
}

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore("postgres", "irrelevant")
	if err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}

func TestNewStore_SQLite(t *testing.T) {
	store, err := NewStore("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.CreateImage("x.png", []byte{0x01}, []byte{0x02}); err != nil {
		t.Fatalf("CreateImage on factory-built store error: %v", err)
	}
}
