package discovery

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
)

// simulatedScanDuration is how long the fallback scan pretends to run when
// no broadcast socket can be opened.
const simulatedScanDuration = 10 * time.Second

// Conn is the datagram surface a scan needs. The production implementation
// wraps a UDP broadcast socket; tests substitute a scripted one.
type Conn interface {
	Broadcast(payload []byte) error
	ReadFrom(buf []byte, deadline time.Time) (n int, ip string, err error)
	Close() error
}

// Transport opens a Conn bound for broadcast probing on the given port.
type Transport func(port int) (Conn, error)

// FoundFunc receives each newly discovered console plus scan progress in
// [0,1].
type FoundFunc func(found console.Discovered, progress float64)

// CompleteFunc receives the final deduplicated result set.
type CompleteFunc func(results []console.Discovered)

// Service runs broadcast scans for consoles on the local network. One scan
// at a time; results accumulate per scan and merge into the console cache
// when the scan ends, whether it ran to completion or was stopped early.
type Service struct {
	cfg       config.DiscoveryConfig
	logger    *logging.Logger
	bus       *eventbus.Bus
	cache     *console.Cache
	transport Transport

	simDuration time.Duration

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	scanID     string
	progress   float64
	results    map[string]console.Discovered
	onFound    FoundFunc
	onComplete CompleteFunc
}

// The signed-in account identity survives service restarts so a rebuilt
// Service keeps authenticating probes without the caller re-supplying it.
var (
	accountMu       sync.Mutex
	cachedAccountID string
)

// SetAccountIdentity records the account id used to authenticate probes.
// It may be called before or after a scan starts; the next probe picks
// it up.
func SetAccountIdentity(accountID string) {
	accountMu.Lock()
	cachedAccountID = accountID
	accountMu.Unlock()
}

// AccountIdentity returns the last identity handed to SetAccountIdentity.
func AccountIdentity() string {
	accountMu.Lock()
	defer accountMu.Unlock()
	return cachedAccountID
}

// New builds a discovery service over the real UDP transport.
func New(cfg config.DiscoveryConfig, logger *logging.Logger, bus *eventbus.Bus, cache *console.Cache) *Service {
	return NewWithTransport(cfg, logger, bus, cache, openUDP)
}

// NewWithTransport is New with the socket layer swapped out.
func NewWithTransport(cfg config.DiscoveryConfig, logger *logging.Logger, bus *eventbus.Bus, cache *console.Cache, transport Transport) *Service {
	return &Service{
		cfg:         cfg,
		logger:      logger,
		bus:         bus,
		cache:       cache,
		transport:   transport,
		simDuration: simulatedScanDuration,
		results:     make(map[string]console.Discovered),
	}
}

// OnFound registers the per-console callback. Must be set before Start.
func (s *Service) OnFound(fn FoundFunc) {
	s.mu.Lock()
	s.onFound = fn
	s.mu.Unlock()
}

// OnComplete registers the end-of-scan callback. Must be set before Start.
func (s *Service) OnComplete(fn CompleteFunc) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// Start kicks off one scan. A scan already in flight is an error; the
// caller Stops or waits first.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(errors.KindInProgress, "discovery.start", "scan already running")
	}
	scanCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.scanID = uuid.NewString()
	s.progress = 0
	s.results = make(map[string]console.Discovered)
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(scanCtx)
	}()
	return nil
}

// Stop cancels the scan in flight and blocks until it winds down. Consoles
// found so far are kept. Stopping an idle service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// IsScanning reports whether a scan is in flight.
func (s *Service) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Progress reports scan progress in [0,1].
func (s *Service) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Results returns the consoles found so far, most recently seen first.
func (s *Service) Results() []console.Discovered {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() []console.Discovered {
	out := make([]console.Discovered, 0, len(s.results))
	for _, found := range s.results {
		out = append(out, found)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

func (s *Service) run(ctx context.Context) {
	conn, err := s.transport(s.cfg.Port)
	if err != nil {
		s.logger.Warn("discovery socket unavailable, running simulated scan",
			"port", s.cfg.Port, "error", err)
		s.runSimulated(ctx)
		return
	}
	defer conn.Close()

	probe := BuildProbe(AccountIdentity())
	deadline := time.Now().Add(s.cfg.ScanTimeout)
	nextProbe := time.Now()
	buf := make([]byte, 2048)
	sentAny := false

	s.logger.Info("discovery scan started", "port", s.cfg.Port, "timeout", s.cfg.ScanTimeout)

	for {
		if ctx.Err() != nil || time.Now().After(deadline) {
			break
		}
		if !time.Now().Before(nextProbe) {
			if err := conn.Broadcast(probe); err != nil {
				if !sentAny {
					// The very first send failing means the network path
					// is unusable, same as a failed bind.
					s.logger.Warn("discovery probe send unavailable, running simulated scan", "error", err)
					s.runSimulated(ctx)
					return
				}
				s.logger.Warn("discovery probe send failed", "error", err)
			} else {
				sentAny = true
			}
			nextProbe = time.Now().Add(s.cfg.ScanInterval)
		}

		readUntil := nextProbe
		if readUntil.After(deadline) {
			readUntil = deadline
		}
		n, ip, err := conn.ReadFrom(buf, readUntil)
		s.updateProgress(progressOf(deadline, s.cfg.ScanTimeout))
		if err != nil {
			continue // timeout between probes, or a transient read error
		}
		if s.cfg.LocalNetworkOnly && !isLocalIP(ip) {
			s.logger.Debug("discovery response from outside the local network dropped", "ip", ip)
			continue
		}
		found, perr := ParseResponse(buf[:n], ip, s.cfg.Port)
		if perr != nil {
			continue
		}
		s.deliver(found)
	}

	s.finish()
}

// isLocalIP reports whether ip belongs to a private, loopback or link-local
// range. Responses from routable addresses are never real consoles.
func isLocalIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast()
}

// runSimulated emits two synthetic consoles at fixed points of a fake scan
// so the UI stays exercisable on networks with no console.
func (s *Service) runSimulated(ctx context.Context) {
	synthetic := simulatedConsoles()
	schedule := []struct {
		at    time.Duration
		index int
	}{
		{time.Duration(float64(s.simDuration) * 0.3), 0},
		{time.Duration(float64(s.simDuration) * 0.7), 1},
	}

	start := time.Now()
	for _, step := range schedule {
		select {
		case <-ctx.Done():
			s.finish()
			return
		case <-time.After(step.at - time.Since(start)):
		}
		s.updateProgress(float64(step.at) / float64(s.simDuration))
		s.deliver(synthetic[step.index])
	}

	select {
	case <-ctx.Done():
	case <-time.After(s.simDuration - time.Since(start)):
	}
	s.finish()
}

func progressOf(deadline time.Time, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	return 1 - float64(remaining)/float64(total)
}

func (s *Service) updateProgress(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	s.mu.Lock()
	if p > s.progress {
		s.progress = p
	}
	s.mu.Unlock()
}

// deliver records one response, deduplicating by host id. Repeat sightings
// refresh the stored entry in place; the found callback fires for updates
// too so listeners always see the latest state and progress.
func (s *Service) deliver(found console.Discovered) {
	s.mu.Lock()
	_, seen := s.results[found.HostID]
	s.results[found.HostID] = found
	scanID, progress := s.scanID, s.progress
	onFound := s.onFound
	total := len(s.results)
	s.mu.Unlock()

	if !seen {
		s.logger.Info("console discovered",
			"host_id", found.HostID, "ip", found.IP, "state", string(found.State))
	}
	if onFound != nil {
		onFound(found, progress)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.EventDiscoveryFound, eventbus.DiscoveryEventData{
			ScanID:   scanID,
			HostID:   found.HostID,
			IP:       found.IP,
			Progress: progress,
			Total:    total,
		})
	}
}

// finish merges the scan's results into the console cache and fires the
// completion callback. Runs exactly once per scan, for both natural
// completion and early stop.
func (s *Service) finish() {
	s.mu.Lock()
	s.running = false
	s.progress = 1
	s.cancel = nil
	scanID := s.scanID
	results := s.snapshotLocked()
	onComplete := s.onComplete
	s.mu.Unlock()

	if s.cache != nil {
		for _, found := range results {
			if err := s.cache.Merge(found); err != nil {
				s.logger.Warn("console cache merge failed", "host_id", found.HostID, "error", err)
			}
		}
	}
	s.logger.Info("discovery scan finished", "found", len(results))
	if onComplete != nil {
		onComplete(results)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.EventDiscoveryComplete, eventbus.DiscoveryEventData{
			ScanID:   scanID,
			Progress: 1,
			Total:    len(results),
		})
	}
}
