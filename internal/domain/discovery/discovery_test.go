package discovery

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/storage"
)

const readyResponse = "HTTP/1.1 200 Ok\n" +
	"host-id:0123456789AB\n" +
	"host-name:Living Room PS5\n" +
	"host-type:PS5\n" +
	"host-request-port:9302\n"

const standbyResponse = "HTTP/1.1 620 Server Standby\n" +
	"host-id:BA9876543210\n" +
	"host-name:Bedroom PS4\n" +
	"host-type:PS4\n"

// scriptedConn replays canned datagrams, then times out until the scan's
// deadline passes.
type scriptedConn struct {
	mu           sync.Mutex
	responses    []scriptedResponse
	broadcastErr error
	block        bool
}

type scriptedResponse struct {
	data string
	ip   string
}

func (c *scriptedConn) Broadcast(payload []byte) error { return c.broadcastErr }

func (c *scriptedConn) ReadFrom(buf []byte, deadline time.Time) (int, string, error) {
	c.mu.Lock()
	if len(c.responses) > 0 {
		resp := c.responses[0]
		c.responses = c.responses[1:]
		c.mu.Unlock()
		return copy(buf, resp.data), resp.ip, nil
	}
	c.mu.Unlock()
	time.Sleep(time.Until(deadline))
	return 0, "", stderrors.New("read timeout")
}

func (c *scriptedConn) Close() error { return nil }

func testConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		Port:         987,
		ScanTimeout:  300 * time.Millisecond,
		ScanInterval: 50 * time.Millisecond,
	}
}

func testCache(t *testing.T) *console.Cache {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	cache, err := console.NewCache(db, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}
	return cache
}

func TestParseReadyResponse(t *testing.T) {
	found, err := ParseResponse([]byte(readyResponse), "192.168.1.50", 987)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if found.HostID != "0123456789AB" || found.Nickname != "Living Room PS5" {
		t.Fatalf("unexpected identity: %+v", found)
	}
	if found.State != console.StateReady || !found.IsAwake {
		t.Fatalf("expected ready/awake, got %+v", found)
	}
	if found.Generation != console.GenPS5 || found.DiscoveryPort != 9302 {
		t.Fatalf("unexpected metadata: %+v", found)
	}
}

func TestParseStandbyResponse(t *testing.T) {
	found, err := ParseResponse([]byte(standbyResponse), "192.168.1.51", 987)
	if err != nil {
		t.Fatalf("ParseResponse returned error: %v", err)
	}
	if found.State != console.StateStandby || found.IsAwake {
		t.Fatalf("expected standby, got %+v", found)
	}
	if found.Generation != console.GenPS4 {
		t.Fatalf("expected PS4, got %q", found.Generation)
	}
}

func TestParseRejectsMissingHostID(t *testing.T) {
	if _, err := ParseResponse([]byte("HTTP/1.1 200 Ok\nhost-name:x\n"), "1.2.3.4", 987); err == nil {
		t.Fatal("expected error for response without host-id")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := ParseResponse([]byte("not a response"), "1.2.3.4", 987); err == nil {
		t.Fatal("expected error for non-discovery payload")
	}
}

func TestProbeCarriesAccountIdentity(t *testing.T) {
	SetAccountIdentity("nD1Ho0mY7wY=")
	t.Cleanup(func() { SetAccountIdentity("") })

	probe := string(BuildProbe(AccountIdentity()))
	if !strings.Contains(probe, "user-credential:nD1Ho0mY7wY=") {
		t.Fatalf("probe missing credential: %q", probe)
	}
	if !strings.HasPrefix(probe, "SRCH * HTTP/1.1\n") {
		t.Fatalf("unexpected probe shape: %q", probe)
	}
}

func TestAccountIdentitySurvivesNewService(t *testing.T) {
	SetAccountIdentity("nD1Ho0mY7wY=")
	t.Cleanup(func() { SetAccountIdentity("") })

	// A fresh service sees the identity without it being set again.
	_ = NewWithTransport(testConfig(), logging.NewNop(), nil, nil, nil)
	if AccountIdentity() != "nD1Ho0mY7wY=" {
		t.Fatal("account identity lost across service instances")
	}
}

func TestScanDeduplicatesByHostID(t *testing.T) {
	conn := &scriptedConn{responses: []scriptedResponse{
		{readyResponse, "192.168.1.50"},
		{readyResponse, "192.168.1.50"}, // repeat sighting
		{standbyResponse, "192.168.1.51"},
	}}
	cache := testCache(t)
	svc := NewWithTransport(testConfig(), logging.NewNop(), nil, cache,
		func(port int) (Conn, error) { return conn, nil })

	var mu sync.Mutex
	var foundIDs []string
	svc.OnFound(func(found console.Discovered, progress float64) {
		mu.Lock()
		foundIDs = append(foundIDs, found.HostID)
		mu.Unlock()
	})
	completed := make(chan []console.Discovered, 1)
	svc.OnComplete(func(results []console.Discovered) { completed <- results })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case results := <-completed:
		if len(results) != 2 {
			t.Fatalf("expected 2 deduplicated consoles, got %d", len(results))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not complete")
	}

	// The repeat sighting refreshes the entry and re-fires the callback,
	// so three deliveries reach the listener for two distinct consoles.
	mu.Lock()
	if len(foundIDs) != 3 {
		t.Fatalf("found callback fired %d times, want 3", len(foundIDs))
	}
	mu.Unlock()

	if _, ok := cache.Get("0123456789AB"); !ok {
		t.Fatal("discovered console missing from cache")
	}
	if svc.Progress() != 1 {
		t.Fatalf("progress should settle at 1, got %f", svc.Progress())
	}
}

func TestStartWhileScanningFails(t *testing.T) {
	conn := &scriptedConn{}
	svc := NewWithTransport(testConfig(), logging.NewNop(), nil, nil,
		func(port int) (Conn, error) { return conn, nil })
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer svc.Stop()

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while a scan is running")
	}
}

func TestStopPreservesResults(t *testing.T) {
	conn := &scriptedConn{responses: []scriptedResponse{
		{readyResponse, "192.168.1.50"},
	}}
	cfg := testConfig()
	cfg.ScanTimeout = 5 * time.Second // long enough that only Stop ends it
	cache := testCache(t)
	svc := NewWithTransport(cfg, logging.NewNop(), nil, cache,
		func(port int) (Conn, error) { return conn, nil })

	found := make(chan struct{}, 1)
	svc.OnFound(func(console.Discovered, float64) { found <- struct{}{} })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	select {
	case <-found:
	case <-time.After(2 * time.Second):
		t.Fatal("console was not discovered")
	}

	svc.Stop()

	if svc.IsScanning() {
		t.Fatal("service still scanning after Stop")
	}
	if got := svc.Results(); len(got) != 1 {
		t.Fatalf("early stop dropped results: %d", len(got))
	}
	if _, ok := cache.Get("0123456789AB"); !ok {
		t.Fatal("early stop did not merge results into the cache")
	}
}

func TestLocalNetworkOnlyDropsRoutableAddresses(t *testing.T) {
	conn := &scriptedConn{responses: []scriptedResponse{
		{readyResponse, "203.0.113.9"}, // routable, must be ignored
		{standbyResponse, "192.168.1.51"},
	}}
	cfg := testConfig()
	cfg.LocalNetworkOnly = true
	cache := testCache(t)
	svc := NewWithTransport(cfg, logging.NewNop(), nil, cache,
		func(port int) (Conn, error) { return conn, nil })

	completed := make(chan []console.Discovered, 1)
	svc.OnComplete(func(results []console.Discovered) { completed <- results })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case results := <-completed:
		if len(results) != 1 {
			t.Fatalf("expected 1 console, got %d", len(results))
		}
		if results[0].HostID != "BA9876543210" {
			t.Fatalf("wrong console survived the filter: %+v", results[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not complete")
	}

	if _, ok := cache.Get("0123456789AB"); ok {
		t.Fatal("console from a routable address reached the cache")
	}
}

func TestSimulatedFallback(t *testing.T) {
	cache := testCache(t)
	svc := NewWithTransport(testConfig(), logging.NewNop(), nil, cache,
		func(port int) (Conn, error) { return nil, stderrors.New("no socket") })
	svc.simDuration = 200 * time.Millisecond

	completed := make(chan []console.Discovered, 1)
	svc.OnComplete(func(results []console.Discovered) { completed <- results })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case results := <-completed:
		if len(results) != 2 {
			t.Fatalf("expected 2 simulated consoles, got %d", len(results))
		}
		for _, found := range results {
			if !found.Simulated {
				t.Fatalf("simulated console not flagged: %+v", found)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("simulated scan did not complete")
	}
}

func TestSimulatedFallbackWhenBroadcastFails(t *testing.T) {
	conn := &scriptedConn{broadcastErr: stderrors.New("network unreachable")}
	cache := testCache(t)
	svc := NewWithTransport(testConfig(), logging.NewNop(), nil, cache,
		func(port int) (Conn, error) { return conn, nil })
	svc.simDuration = 200 * time.Millisecond

	completed := make(chan []console.Discovered, 1)
	svc.OnComplete(func(results []console.Discovered) { completed <- results })

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case results := <-completed:
		if len(results) != 2 {
			t.Fatalf("expected 2 simulated consoles, got %d", len(results))
		}
		for _, found := range results {
			if !found.Simulated {
				t.Fatalf("simulated console not flagged: %+v", found)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scan with failing broadcasts did not fall back to simulation")
	}
}
