package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/persist"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	return NewStore(persist.NewRuntime(), logging.NewNop(), path), path
}

func TestLoadMissingProfile(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Load(); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	// The store still serves a usable default afterwards.
	if store.Get().DisplayName != "Player" {
		t.Errorf("default document not installed")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, path := newTestStore(t)
	store.CreateDefault()
	if err := store.SetDisplayName("Couch Gamer"); err != nil {
		t.Fatalf("SetDisplayName returned error: %v", err)
	}
	if err := store.SetIdentity("nD1Ho0mY7wY="); err != nil {
		t.Fatalf("SetIdentity returned error: %v", err)
	}

	reloaded := NewStore(persist.NewRuntime(), logging.NewNop(), path)
	doc, err := reloaded.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.DisplayName != "Couch Gamer" {
		t.Errorf("display name lost: %q", doc.DisplayName)
	}
	if doc.PSNIDBase64 != "nD1Ho0mY7wY=" {
		t.Errorf("identity lost: %q", doc.PSNIDBase64)
	}
	if got := reloaded.Identity().Base64(); got != "nD1Ho0mY7wY=" {
		t.Errorf("identity accessor mismatch: %q", got)
	}
}

func TestSetIdentityRejectsMalformed(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.SetIdentity("not-base64!"); !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("expected invalid_data, got %v", err)
	}
}

func TestFutureVersionIsCorrupt(t *testing.T) {
	store, path := newTestStore(t)
	content := `{"profile_version": 999, "display_name": "X"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := store.Load(); !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("expected invalid_data, got %v", err)
	}

	// Recovery path: default + save overwrites the live file.
	store.CreateDefault()
	if err := store.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := store.Load(); err != nil {
		t.Fatalf("Load after recovery returned error: %v", err)
	}
}

func TestMigrateOldVersion(t *testing.T) {
	store, path := newTestStore(t)
	content := `{"profile_version": 1, "display_name": "Old Timer"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.Version != CurrentVersion {
		t.Errorf("migration did not reach current version: %d", doc.Version)
	}
	if doc.QualityPreset != "balanced" {
		t.Errorf("v2 migration default missing: %q", doc.QualityPreset)
	}
	if !doc.CrashReporting {
		t.Error("v3 migration default missing")
	}
	if doc.DisplayName != "Old Timer" {
		t.Errorf("existing field lost in migration: %q", doc.DisplayName)
	}
}

func TestSanitizeOnLoad(t *testing.T) {
	store, path := newTestStore(t)
	content := `{"profile_version": 3, "display_name": "bad\u0001name"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.DisplayName != "bad?name" {
		t.Errorf("control character not sanitized: %q", doc.DisplayName)
	}
}

func TestUsageCounters(t *testing.T) {
	store, _ := newTestStore(t)
	store.CreateDefault()

	if err := store.RecordConnection("192.168.1.42", false); err != nil {
		t.Fatalf("RecordConnection returned error: %v", err)
	}
	if err := store.RecordConnection("192.168.1.42", true); err != nil {
		t.Fatalf("RecordConnection returned error: %v", err)
	}
	if err := store.AddStreamingTime(42); err != nil {
		t.Fatalf("AddStreamingTime returned error: %v", err)
	}
	if err := store.AddStreamingTime(-1); err == nil {
		t.Error("negative streaming time should be rejected")
	}

	stats := store.UsageStats()
	if stats.ConnectionAttempts != 2 || stats.SuccessfulConnections != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.StreamingMinutes != 42 {
		t.Errorf("unexpected streaming minutes: %d", stats.StreamingMinutes)
	}
	if got := store.Get().LastConsoleIP; got != "192.168.1.42" {
		t.Errorf("last console ip not recorded: %q", got)
	}
}

func TestSystemInfoFreshness(t *testing.T) {
	store, _ := newTestStore(t)
	store.CreateDefault()

	if _, fresh := store.CachedSystemInfo(); fresh {
		t.Error("empty snapshot should not be fresh")
	}
	if err := store.UpdateSystemInfo(SystemInfo{Hostname: "vita"}); err != nil {
		t.Fatalf("UpdateSystemInfo returned error: %v", err)
	}
	info, fresh := store.CachedSystemInfo()
	if !fresh {
		t.Error("just-written snapshot should be fresh")
	}
	if info.Hostname != "vita" {
		t.Errorf("snapshot lost: %+v", info)
	}
}

func TestBackupRetainsOldContent(t *testing.T) {
	store, path := newTestStore(t)
	store.CreateDefault()
	if err := store.SetDisplayName("Original"); err != nil {
		t.Fatalf("SetDisplayName returned error: %v", err)
	}
	if err := store.Backup(); err != nil {
		t.Fatalf("Backup returned error: %v", err)
	}
	if err := store.SetDisplayName("Changed"); err != nil {
		t.Fatalf("SetDisplayName returned error: %v", err)
	}

	backup, err := os.ReadFile(persist.BackupPath(path))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !strings.Contains(string(backup), "Original") {
		t.Error("backup should retain pre-change content")
	}

	if err := store.Restore(); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if store.Get().DisplayName != "Original" {
		t.Errorf("restore did not bring back old name: %q", store.Get().DisplayName)
	}
}

func TestCollectSystemInfo(t *testing.T) {
	info := CollectSystemInfo()
	if info.CPUCores <= 0 {
		t.Errorf("expected at least one cpu core, got %d", info.CPUCores)
	}
}
