package console

import (
	"testing"
	"time"

	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/storage"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	cache, err := NewCache(db, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}
	return cache
}

func testConsole(hostID, ip string) Discovered {
	return Discovered{
		IP:            ip,
		HostID:        hostID,
		Nickname:      "Living Room PS5",
		Generation:    GenPS5,
		DiscoveryPort: 987,
		State:         StateReady,
		IsAwake:       true,
		LastSeen:      time.Now(),
	}
}

func TestMergeInsertsAndUpdates(t *testing.T) {
	cache := newTestCache(t)

	if err := cache.Merge(testConsole("host-1", "192.168.1.42")); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(cache.Snapshot()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(cache.Snapshot()))
	}

	// Same host-id again must update in place, not duplicate.
	updated := testConsole("host-1", "192.168.1.42")
	updated.State = StateStandby
	updated.IsAwake = false
	if err := cache.Merge(updated); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	snapshot := cache.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("merge duplicated entry: %d", len(snapshot))
	}
	if snapshot[0].State != StateStandby || snapshot[0].IsAwake {
		t.Fatalf("merge did not refresh state: %+v", snapshot[0])
	}
}

func TestSetStateAndRegistered(t *testing.T) {
	cache := newTestCache(t)
	if err := cache.Merge(testConsole("host-1", "192.168.1.42")); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if err := cache.SetState("host-1", StateStandby); err != nil {
		t.Fatalf("SetState returned error: %v", err)
	}
	if err := cache.SetRegistered("host-1", true); err != nil {
		t.Fatalf("SetRegistered returned error: %v", err)
	}

	entry, ok := cache.Get("host-1")
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.State != StateStandby || entry.IsAwake {
		t.Errorf("state not applied: %+v", entry)
	}
	if !entry.IsRegistered {
		t.Error("registration shortcut not applied")
	}

	if err := cache.SetState("missing", StateReady); err == nil {
		t.Error("SetState on unknown host should fail")
	}
}

func TestSurvivesReload(t *testing.T) {
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	cache, err := NewCache(db, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}

	if err := cache.Merge(testConsole("host-1", "192.168.1.42")); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if err := cache.Merge(testConsole("host-2", "192.168.1.43")); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	// A second cache over the same database sees both rows.
	reloaded, err := NewCache(db, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}
	if len(reloaded.Snapshot()) != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", len(reloaded.Snapshot()))
	}
}

func TestGetByIP(t *testing.T) {
	cache := newTestCache(t)
	if err := cache.Merge(testConsole("host-1", "192.168.1.42")); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if _, ok := cache.GetByIP("192.168.1.42"); !ok {
		t.Error("expected hit by ip")
	}
	if _, ok := cache.GetByIP("10.0.0.1"); ok {
		t.Error("unexpected hit for unknown ip")
	}
}
