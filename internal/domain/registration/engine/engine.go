package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/domain/registration/store"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/observability"
)

const (
	maxAttempts      = 3
	eventBuffer      = 16
	portCheckTimeout = 2 * time.Second
)

// State is the pairing state machine's position.
type State string

const (
	StateIdle        State = "IDLE"
	StatePinEntry    State = "PIN_ENTRY"
	StateRegistering State = "REGISTERING"
	StateSuccess     State = "SUCCESS"
	StateError       State = "ERROR"
)

// EventKind classifies pairing events delivered to the UI.
type EventKind string

const (
	EventPinRequest EventKind = "PIN_REQUEST"
	EventSuccess    EventKind = "SUCCESS"
	EventFailed     EventKind = "FAILED"
	EventCancelled  EventKind = "CANCELLED"
)

// Event is one pairing notification. Credentials is set on SUCCESS only.
type Event struct {
	Kind        EventKind
	Message     string
	Attempts    int
	Credentials *model.Credentials
}

// Engine runs the PIN pairing flow for one console at a time. Callers move
// it IDLE → PIN_ENTRY with Start, feed digits, then SubmitPIN to launch the
// handshake task. Success persists credentials exactly once.
type Engine struct {
	cfg       config.SessionConfig
	logger    *logging.Logger
	bus       *eventbus.Bus
	creds     *store.Store
	cache     *console.Cache
	pairer    Pairer
	checkPort PortChecker

	mu        sync.Mutex
	state     State
	pin       PIN
	target    Target
	attempts  int
	persisted bool
	attemptID string
	cancel    context.CancelFunc
	done      chan struct{}
	events    chan Event
	lastErr   error
}

// New builds an engine over the real network pairer.
func New(cfg config.SessionConfig, logger *logging.Logger, bus *eventbus.Bus, creds *store.Store, cache *console.Cache) *Engine {
	return NewWithPairer(cfg, logger, bus, creds, cache, NewNetPairer(cfg.ControlPort), TCPPortChecker)
}

// NewWithPairer is New with the handshake and port probe swapped out.
func NewWithPairer(cfg config.SessionConfig, logger *logging.Logger, bus *eventbus.Bus, creds *store.Store, cache *console.Cache, pairer Pairer, checkPort PortChecker) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		bus:       bus,
		creds:     creds,
		cache:     cache,
		pairer:    pairer,
		checkPort: checkPort,
		state:     StateIdle,
		pin:       NewPIN(),
		events:    make(chan Event, eventBuffer),
	}
}

// Events is the bounded stream of pairing notifications. Slow consumers
// lose events rather than stalling the handshake.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// State returns the state machine's position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attempts returns how many handshake attempts the current flow has made.
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// LastError returns the error that ended the most recent flow, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// CurrentPIN renders the code under entry for display.
func (e *Engine) CurrentPIN() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pin.String()
}

// Start opens a pairing flow for target and asks the UI for a PIN. Refused
// while a flow is already past IDLE and not yet terminal.
func (e *Engine) Start(target Target) error {
	if target.IP == "" {
		return errors.New(errors.KindInvalidParam, "regengine.start", "target ip is required")
	}
	if target.AccountID == "" {
		return errors.New(errors.KindInvalidParam, "regengine.start", "account identity is required")
	}

	e.mu.Lock()
	if e.state == StatePinEntry || e.state == StateRegistering {
		e.mu.Unlock()
		return errors.New(errors.KindInProgress, "regengine.start", "pairing already in progress")
	}
	e.state = StatePinEntry
	e.pin = NewPIN()
	e.target = target
	e.attempts = 0
	e.persisted = false
	e.attemptID = uuid.NewString()
	e.lastErr = nil
	e.mu.Unlock()

	e.logger.Info("pairing started", "ip", target.IP, "generation", string(target.Generation))
	e.emit(Event{Kind: EventPinRequest, Message: "Enter the PIN shown on the console"})
	e.publishState(StatePinEntry, "")
	return nil
}

// SetDigit fills one PIN slot during entry.
func (e *Engine) SetDigit(pos, digit int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePinEntry {
		return errors.New(errors.KindInvalidParam, "regengine.pin", "no pairing flow awaiting a PIN")
	}
	return e.pin.SetDigit(pos, digit)
}

// ClearDigit empties one PIN slot during entry.
func (e *Engine) ClearDigit(pos int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePinEntry {
		return errors.New(errors.KindInvalidParam, "regengine.pin", "no pairing flow awaiting a PIN")
	}
	return e.pin.ClearDigit(pos)
}

// SubmitPIN validates the entered code and launches the handshake task.
func (e *Engine) SubmitPIN(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StatePinEntry {
		e.mu.Unlock()
		return errors.New(errors.KindInvalidParam, "regengine.submit", "no pairing flow awaiting a PIN")
	}
	pinValue, err := e.pin.Value()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	taskCtx, cancel := context.WithCancel(ctx)
	e.state = StateRegistering
	e.cancel = cancel
	e.done = make(chan struct{})
	target := e.target
	done := e.done
	e.mu.Unlock()

	e.publishState(StateRegistering, "")
	go func() {
		defer close(done)
		e.runHandshake(taskCtx, target, pinValue)
	}()
	return nil
}

// Cancel aborts the flow. During the handshake the task stops at its next
// wait site; during PIN entry the flow simply closes.
func (e *Engine) Cancel() {
	e.mu.Lock()
	switch e.state {
	case StatePinEntry:
		e.state = StateIdle
		e.mu.Unlock()
		e.emit(Event{Kind: EventCancelled, Message: "Pairing cancelled"})
		e.publishState(StateIdle, "")
		return
	case StateRegistering:
		cancel, done := e.cancel, e.done
		e.mu.Unlock()
		cancel()
		<-done
		return
	default:
		e.mu.Unlock()
	}
}

// Reset returns a terminal flow to IDLE.
func (e *Engine) Reset() {
	e.mu.Lock()
	if e.state == StateSuccess || e.state == StateError {
		e.state = StateIdle
		e.lastErr = nil
	}
	e.mu.Unlock()
}

func (e *Engine) runHandshake(ctx context.Context, target Target, pin uint32) {
	ctx, endSpan := observability.StartSpan(ctx, "registration", "handshake")
	defer func() { endSpan(e.LastError()) }()

	if err := e.sweepPorts(ctx, target.IP); err != nil {
		e.fail(err, 0)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			e.cancelled()
			return
		}
		e.mu.Lock()
		e.attempts = attempt
		e.mu.Unlock()

		result, err := e.pairer.Pair(ctx, target, pin)
		if err == nil {
			e.succeed(ctx, target, result)
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			e.cancelled()
			return
		}
		// PIN rejection and disabled Remote Play will not heal on retry.
		if errors.IsKind(err, errors.KindAuthFailed) || errors.IsKind(err, errors.KindServiceNotReady) {
			e.fail(err, attempt)
			return
		}
		e.logger.Warn("pairing attempt failed",
			"ip", target.IP, "attempt", attempt, "error", err)
	}

	e.fail(errors.Wrap(errors.KindNetwork, "regengine.pair",
		fmt.Sprintf("pairing failed after %d attempts", maxAttempts), lastErr), maxAttempts)
}

// sweepPorts pre-checks the well-known ports. Only the control port is a
// hard requirement; the others are logged for diagnostics.
func (e *Engine) sweepPorts(ctx context.Context, ip string) error {
	for _, probe := range []struct {
		port int
		hard bool
	}{
		{e.cfg.ControlPort, true},
		{e.cfg.StreamPort, false},
		{e.cfg.SenkushaPort, false},
	} {
		checkCtx, cancel := context.WithTimeout(ctx, portCheckTimeout)
		err := e.checkPort(checkCtx, ip, probe.port)
		cancel()
		if err == nil {
			e.logger.Debug("port check passed", "ip", ip, "port", probe.port)
			continue
		}
		if probe.hard {
			return errors.Wrap(errors.KindNetwork, "regengine.portcheck",
				"control port unreachable; enable Remote Play on the console", err)
		}
		e.logger.Warn("port check failed", "ip", ip, "port", probe.port, "error", err)
	}
	return nil
}

func (e *Engine) succeed(ctx context.Context, target Target, result PairResult) {
	creds := model.Credentials{
		HostID:     target.HostID,
		IP:         target.IP,
		Nickname:   result.Nickname,
		Target:     target.Generation,
		KeyType:    result.KeyType,
		AccountID:  target.AccountID,
		RegistKey:  result.RegistKey,
		MorningKey: result.MorningKey,
		Valid:      true,
	}
	if creds.Nickname == "" {
		creds.Nickname = target.Nickname
	}
	creds.Normalize()

	e.mu.Lock()
	alreadyPersisted := e.persisted
	e.persisted = true
	attempts := e.attempts
	e.mu.Unlock()

	if !alreadyPersisted {
		if err := e.creds.AddOrUpdate(ctx, creds); err != nil {
			e.fail(errors.Wrap(errors.KindIO, "regengine.persist", "store credentials", err), attempts)
			return
		}
		if e.cache != nil && target.HostID != "" {
			if err := e.cache.SetRegistered(target.HostID, true); err != nil &&
				!errors.IsKind(err, errors.KindNotFound) {
				e.logger.Warn("console cache update failed", "host_id", target.HostID, "error", err)
			}
		}
	}

	e.mu.Lock()
	e.state = StateSuccess
	attemptID := e.attemptID
	e.mu.Unlock()

	e.logger.Info("pairing succeeded",
		"ip", target.IP, "host_id", target.HostID, "regist_hex8", creds.RegistHex8)
	e.emit(Event{Kind: EventSuccess, Message: "Console registered", Attempts: attempts, Credentials: &creds})
	if e.bus != nil {
		e.bus.Publish(eventbus.EventRegistrationSuccess, eventbus.RegistrationEventData{
			AttemptID: attemptID,
			State:     string(StateSuccess),
			HostID:    target.HostID,
			Attempts:  attempts,
		})
	}
	e.publishState(StateSuccess, "")
}

func (e *Engine) fail(err error, attempts int) {
	e.mu.Lock()
	e.state = StateError
	e.lastErr = err
	attemptID := e.attemptID
	target := e.target
	e.mu.Unlock()

	message := errors.UserHintFor(err)
	e.logger.Warn("pairing failed", "ip", target.IP, "attempts", attempts, "error", err)
	e.emit(Event{Kind: EventFailed, Message: message, Attempts: attempts})
	if e.bus != nil {
		e.bus.Publish(eventbus.EventRegistrationError, eventbus.RegistrationEventData{
			AttemptID: attemptID,
			State:     string(StateError),
			HostID:    target.HostID,
			Message:   message,
			Attempts:  attempts,
		})
	}
	e.publishState(StateError, message)
}

func (e *Engine) cancelled() {
	e.mu.Lock()
	e.state = StateIdle
	e.lastErr = errors.New(errors.KindCancelled, "regengine", "pairing cancelled")
	e.mu.Unlock()

	e.emit(Event{Kind: EventCancelled, Message: "Pairing cancelled"})
	e.publishState(StateIdle, "")
}

// emit delivers an event without ever blocking the handshake task.
func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
		e.logger.Debug("pairing event dropped", "kind", string(event.Kind))
	}
}

func (e *Engine) publishState(state State, message string) {
	if e.bus == nil {
		return
	}
	e.mu.Lock()
	attemptID := e.attemptID
	hostID := e.target.HostID
	e.mu.Unlock()
	e.bus.Publish(eventbus.EventRegistrationState, eventbus.RegistrationEventData{
		AttemptID: attemptID,
		State:     string(state),
		HostID:    hostID,
		Message:   message,
	})
}
