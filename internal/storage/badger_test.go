package storage

import (
	"context"
	"testing"
)

func TestBadgerStorageInMemory(t *testing.T) {
	store, err := NewBadgerStorage("")
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	defer store.Close()

	runStorageTests(t, store)
}

func TestBadgerStorageOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStorage(dir)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	if err := store.Write(ctx, testKey, []byte("[]")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBadgerStorage(dir)
	if err != nil {
		t.Fatalf("Failed to reopen badger: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Read(ctx, testKey)
	if err != nil || string(got) != "[]" {
		t.Errorf("Read after reopen: got %q, %v", got, err)
	}
}
