package wake

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/domain/registration/store"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
)

// Status messages surfaced to the UI while a wake attempt runs. The timeout
// messages differ by what the probes learned: a console that kept answering
// STANDBY is a different situation from one that never answered at all.
const (
	msgSending      = "Sending wake signal..."
	msgChecking     = "Checking response..."
	msgAwakened     = "Console awakened!"
	msgTimeout      = "Console did not wake in time. It may be powered off completely."
	msgStillAsleep  = "Console is still in rest mode. Remote Play wake may be disabled on it."
	msgStateUnclear = "Console answered but its state is unclear. Check the network and retry."
)

// SendFunc delivers one wake datagram to ip:port.
type SendFunc func(ip string, port int, payload []byte) error

// ProbeFunc checks a console's power state during the wait phase.
type ProbeFunc func(ctx context.Context, entry console.Entry) (console.PowerState, error)

// Engine wakes a sleeping console and tracks the attempt's progress. One
// attempt at a time; progress is monotonic in [0,1] and safe to read at any
// moment, including when no attempt ran yet.
type Engine struct {
	cfg    config.WakeConfig
	logger *logging.Logger
	bus    *eventbus.Bus
	creds  *store.Store
	cache  *console.Cache
	send   SendFunc
	probe  ProbeFunc

	mu         sync.Mutex
	waking     bool
	cancel     context.CancelFunc
	done       chan struct{}
	ip         string
	progress   float64
	message    string
	finalState console.PowerState
	lastErr    error
}

// New builds a wake engine over real UDP delivery and probing.
func New(cfg config.WakeConfig, logger *logging.Logger, bus *eventbus.Bus, creds *store.Store, cache *console.Cache, probe ProbeFunc) *Engine {
	return NewWithSender(cfg, logger, bus, creds, cache, udpSend, probe)
}

// NewWithSender is New with the datagram delivery swapped out.
func NewWithSender(cfg config.WakeConfig, logger *logging.Logger, bus *eventbus.Bus, creds *store.Store, cache *console.Cache, send SendFunc, probe ProbeFunc) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		creds:  creds,
		cache:  cache,
		send:   send,
		probe:  probe,
	}
}

// Wake starts one wake attempt for the console at ip. The attempt runs in
// the background; callers poll IsWaking/Progress/StatusMessage or subscribe
// to wake progress events. Waking an unregistered console is refused.
func (e *Engine) Wake(ctx context.Context, ip string) error {
	creds, err := e.creds.Get(ctx, ip)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return errors.New(errors.KindNotRegistered, "wake.start",
				"console at "+ip+" is not registered")
		}
		return err
	}
	if !creds.Valid {
		return errors.New(errors.KindNotRegistered, "wake.start",
			"stored credentials for "+ip+" are incomplete")
	}

	e.mu.Lock()
	if e.waking {
		e.mu.Unlock()
		return errors.New(errors.KindInProgress, "wake.start", "wake already in progress")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.waking = true
	e.cancel = cancel
	e.done = make(chan struct{})
	e.ip = ip
	e.progress = 0
	e.message = msgSending
	e.lastErr = nil
	done := e.done
	e.mu.Unlock()

	go func() {
		defer close(done)
		e.run(runCtx, ip, creds.WakeCred, creds.HostID)
	}()
	return nil
}

// Cancel aborts the attempt in flight, if any, and waits for it to stop.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if !e.waking {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// IsWaking reports whether an attempt is in flight.
func (e *Engine) IsWaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waking
}

// Progress reports attempt progress in [0,1]. Zero when nothing ran yet.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// StatusMessage returns the current human-readable phase description.
func (e *Engine) StatusMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.message
}

// LastError returns the error that ended the most recent attempt, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// FinalState reports the console state the most recent attempt concluded
// with. Always one of UNKNOWN, READY or STANDBY; empty while nothing ran.
func (e *Engine) FinalState() console.PowerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalState
}

func (e *Engine) run(ctx context.Context, ip, wakeCred, hostID string) {
	start := time.Now()
	deadline := start.Add(e.cfg.Timeout)

	e.logger.Info("wake attempt started", "ip", ip)
	e.update(0.05, msgSending, "")

	entry, ok := e.cache.GetByIP(ip)
	if !ok {
		entry = console.Entry{Discovered: console.Discovered{IP: ip, HostID: hostID}}
	}
	port := entry.DiscoveryPort
	if port == 0 {
		port = 987
	}

	if err := e.send(ip, port, BuildWakePacket(wakeCred)); err != nil {
		e.finish(0, msgTimeout, console.StateUnknown,
			errors.Wrap(errors.KindNetwork, "wake.send", "send wake packet", err))
		return
	}

	// lastState tracks what the probes actually learned so the timeout
	// message can tell "still in rest mode" from "never answered".
	lastState := console.StateUnknown
	answered := false

	// Give the console a moment to boot before the first probe.
	select {
	case <-ctx.Done():
		e.finish(e.Progress(), "", lastState, errors.New(errors.KindCancelled, "wake", "wake cancelled"))
		return
	case <-time.After(e.cfg.ProbeDelay):
	}

	for {
		if time.Now().After(deadline) {
			msg, final := classifyTimeout(lastState, answered)
			e.finish(e.Progress(), msg, final,
				errors.New(errors.KindTimeout, "wake", "console did not wake within "+e.cfg.Timeout.String()))
			return
		}

		elapsed := time.Since(start)
		frac := float64(elapsed) / float64(e.cfg.Timeout)
		if frac > 0.95 {
			frac = 0.95
		}
		e.update(frac, msgChecking, "")

		probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeEvery)
		state, err := e.probe(probeCtx, entry)
		cancel()
		if err == nil {
			answered = true
			lastState = state
			if state == console.StateReady {
				if entry.HostID != "" {
					if cerr := e.cache.SetState(entry.HostID, console.StateReady); cerr != nil {
						e.logger.Debug("wake state update skipped", "host_id", entry.HostID, "error", cerr)
					}
				}
				e.finish(1, msgAwakened, console.StateReady, nil)
				return
			}
		}

		select {
		case <-ctx.Done():
			e.finish(e.Progress(), "", lastState, errors.New(errors.KindCancelled, "wake", "wake cancelled"))
			return
		case <-time.After(e.cfg.ProbeEvery):
		}
	}
}

// classifyTimeout picks the message and reported state for an attempt that
// ran out of time. A console that answered STANDBY the whole time is still
// reachable; one that never answered is likely powered off or unreachable.
func classifyTimeout(lastState console.PowerState, answered bool) (string, console.PowerState) {
	switch {
	case lastState == console.StateStandby:
		return msgStillAsleep, console.StateStandby
	case answered:
		return msgStateUnclear, console.StateUnknown
	default:
		return msgTimeout, console.StateUnknown
	}
}

// update raises progress (never lowers it) and publishes the new phase.
func (e *Engine) update(progress float64, message, finalState string) {
	e.mu.Lock()
	if progress > e.progress {
		e.progress = progress
	}
	if message != "" {
		e.message = message
	}
	ip, p, m := e.ip, e.progress, e.message
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(eventbus.EventWakeProgress, eventbus.WakeEventData{
			IP:         ip,
			Progress:   p,
			Message:    m,
			FinalState: finalState,
		})
	}
}

func (e *Engine) finish(progress float64, message string, final console.PowerState, err error) {
	e.mu.Lock()
	e.finalState = final
	e.mu.Unlock()
	e.update(progress, message, string(final))

	e.mu.Lock()
	e.waking = false
	e.cancel = nil
	e.lastErr = err
	ip := e.ip
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("wake attempt failed", "ip", ip, "error", err)
	} else {
		e.logger.Info("console awakened", "ip", ip)
	}
}

// BuildWakePacket renders the wakeup datagram carrying the stored wake
// credential.
func BuildWakePacket(wakeCred string) []byte {
	var b strings.Builder
	b.WriteString("WAKEUP * HTTP/1.1\n")
	b.WriteString("client-type:vr\n")
	b.WriteString("auth-type:R\n")
	b.WriteString("model:w\n")
	b.WriteString("app-type:r\n")
	b.WriteString("user-credential:" + wakeCred + "\n")
	b.WriteString("device-discovery-protocol-version:00030010\n")
	return []byte(b.String())
}

func udpSend(ip string, port int, payload []byte) error {
	conn, err := net.Dial("udp4", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}
