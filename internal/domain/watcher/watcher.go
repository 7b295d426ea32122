package watcher

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/discovery"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
)

// ProbeFunc asks one console for its power state. The context carries the
// per-probe timeout.
type ProbeFunc func(ctx context.Context, entry console.Entry) (console.PowerState, error)

// Watcher keeps the console cache's power states fresh by probing each known
// console in the background. Consoles that stop answering are retried with
// exponential backoff so a powered-off console does not burn the radio.
type Watcher struct {
	cfg    config.WatcherConfig
	logger *logging.Logger
	bus    *eventbus.Bus
	cache  *console.Cache
	probe  ProbeFunc

	mu      sync.Mutex
	running bool
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
	backoff map[string]*hostBackoff
}

type hostBackoff struct {
	delay time.Duration
	next  time.Time
}

// New builds a watcher over the real unicast probe.
func New(cfg config.WatcherConfig, logger *logging.Logger, bus *eventbus.Bus, cache *console.Cache) *Watcher {
	return NewWithProbe(cfg, logger, bus, cache, UnicastProbe)
}

// NewWithProbe is New with the probe swapped out.
func NewWithProbe(cfg config.WatcherConfig, logger *logging.Logger, bus *eventbus.Bus, cache *console.Cache, probe ProbeFunc) *Watcher {
	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		cache:   cache,
		probe:   probe,
		backoff: make(map[string]*hostBackoff),
	}
}

// Start launches the poll loop. Starting a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.run(loopCtx)
	}()
}

// Stop halts the poll loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	w.running = false
	w.cancel = nil
	w.mu.Unlock()
}

// Pause suspends probing without tearing the loop down. The session engine
// pauses the watcher while streaming so probes do not contend with the
// stream for the network.
func (w *Watcher) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume lifts a Pause.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

// IsPaused reports whether probing is suspended.
func (w *Watcher) IsPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if w.IsPaused() {
			continue
		}
		w.pollOnce(ctx)
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	now := time.Now()
	for _, entry := range w.cache.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		if entry.Simulated {
			continue // synthetic consoles never answer probes
		}
		if !w.due(entry.HostID, now) {
			continue
		}
		w.probeOne(ctx, entry)
	}
}

func (w *Watcher) due(hostID string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.backoff[hostID]
	return !ok || !now.Before(b.next)
}

func (w *Watcher) probeOne(ctx context.Context, entry console.Entry) {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	state, err := w.probe(probeCtx, entry)
	cancel()

	if err != nil {
		delay := w.bumpBackoff(entry.HostID)
		w.logger.Debug("console probe failed",
			"host_id", entry.HostID, "retry_in", delay, "error", err)
		state = console.StateUnknown
	} else {
		w.resetBackoff(entry.HostID)
	}

	if state == entry.State {
		return
	}
	if err := w.cache.SetState(entry.HostID, state); err != nil {
		w.logger.Warn("console state update failed", "host_id", entry.HostID, "error", err)
		return
	}
	w.logger.Info("console state changed",
		"host_id", entry.HostID, "from", string(entry.State), "to", string(state))
	if w.bus != nil {
		w.bus.Publish(eventbus.EventConsoleUpdated, eventbus.ConsoleEventData{
			HostID: entry.HostID,
			IP:     entry.IP,
			State:  string(state),
		})
	}
}

// bumpBackoff doubles the retry delay for a console, capped at MaxBackoff,
// and returns the new delay.
func (w *Watcher) bumpBackoff(hostID string) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.backoff[hostID]
	if !ok {
		b = &hostBackoff{delay: w.cfg.PollInterval}
		w.backoff[hostID] = b
	} else {
		b.delay *= 2
		if b.delay > w.cfg.MaxBackoff {
			b.delay = w.cfg.MaxBackoff
		}
	}
	b.next = time.Now().Add(b.delay)
	return b.delay
}

func (w *Watcher) resetBackoff(hostID string) {
	w.mu.Lock()
	delete(w.backoff, hostID)
	w.mu.Unlock()
}

// UnicastProbe sends one discovery datagram straight to the console and
// interprets the reply. The wake engine polls with it too.
func UnicastProbe(ctx context.Context, entry console.Entry) (console.PowerState, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}

	port := entry.DiscoveryPort
	if port == 0 {
		port = 987
	}
	conn, err := net.Dial("udp4", net.JoinHostPort(entry.IP, strconv.Itoa(port)))
	if err != nil {
		return console.StateUnknown, errors.Wrap(errors.KindNetwork, "watcher.probe", "dial console", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return console.StateUnknown, errors.Wrap(errors.KindNetwork, "watcher.probe", "set deadline", err)
	}
	if _, err := conn.Write(discovery.BuildProbe(discovery.AccountIdentity())); err != nil {
		return console.StateUnknown, errors.Wrap(errors.KindNetwork, "watcher.probe", "send probe", err)
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return console.StateUnknown, errors.Wrap(errors.KindTimeout, "watcher.probe", "await reply", err)
	}
	found, err := discovery.ParseResponse(buf[:n], entry.IP, port)
	if err != nil {
		return console.StateUnknown, err
	}
	return found.State, nil
}
