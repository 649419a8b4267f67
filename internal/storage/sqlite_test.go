package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStorage(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test_reminders.db")

	storage, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	defer storage.Close()

	runStorageTests(t, storage)
}

func TestSQLiteStoragePersistsAcrossReopen(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	storage, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	if err := storage.Write(ctx, testKey, []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	storage.Close()

	reopened, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite storage: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Read(ctx, testKey)
	if err != nil {
		t.Fatalf("Read after reopen failed: %v", err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Errorf("Read after reopen: got %s", got)
	}
}
