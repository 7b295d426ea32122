package store

import (
	"testing"

	"vitarp-go/internal/platform/storage"
)

func TestFactorySelectsSQLiteByDefault(t *testing.T) {
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if _, err := NewBackend(Config{}, db); err != nil {
		t.Fatalf("default driver should be sqlite: %v", err)
	}
	if _, err := NewBackend(Config{Driver: "sqlite"}, db); err != nil {
		t.Fatalf("explicit sqlite driver failed: %v", err)
	}
}

func TestFactoryRejectsUnknownDriver(t *testing.T) {
	if _, err := NewBackend(Config{Driver: "etcd"}, nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
