package testing

import (
	"path/filepath"
	"testing"

	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/logging"
)

// SetupTestConfig returns defaults rooted in a per-test temp directory so
// tests never touch real device storage.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Dir = ""
	cfg.Storage.DataDir = dir
	cfg.Storage.ProfilePath = filepath.Join(dir, "profile.json")
	cfg.Storage.DatabasePath = filepath.Join(dir, "vitarp.db")
	return cfg
}

// SetupTestLogger returns a logger writing into the test's temp directory.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "debug",
		Dir:      t.TempDir(),
		Filename: "test.log",
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}
