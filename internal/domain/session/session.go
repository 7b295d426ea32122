package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/eventbus"
	"vitarp-go/internal/domain/input"
	"vitarp-go/internal/domain/profile"
	regengine "vitarp-go/internal/domain/registration/engine"
	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/domain/registration/store"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/observability"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle       State = "IDLE"
	StatePrecheck   State = "PRECHECK"
	StateWaking     State = "WAKING"
	StateConnecting State = "CONNECTING"
	StateStreaming  State = "STREAMING"
	StateStopping   State = "STOPPING"
	StateError      State = "ERROR"
)

// Watcher is the background poller the session pauses while it owns the
// network.
type Watcher interface {
	Pause()
	Resume()
}

// Waker wakes a sleeping console and returns once it is awake or the
// attempt gave up.
type Waker interface {
	Wake(ctx context.Context, ip string) error
}

// PairingStarter opens a registration flow when the session discovers the
// stored credentials no longer work.
type PairingStarter interface {
	Start(target regengine.Target) error
}

// InputSource reads the local controller state once per frame.
type InputSource func() input.Snapshot

// Stats is the live streaming telemetry the engine exposes.
type Stats struct {
	FPS       float64
	LatencyMS float64
	Quality   string
	Frames    uint64
}

// Engine drives one streaming session at a time through the lifecycle
// IDLE, PRECHECK, optional WAKING, CONNECTING, STREAMING, STOPPING and back
// to IDLE. ERROR is terminal until the caller acknowledges it.
type Engine struct {
	cfg       config.SessionConfig
	logger    *logging.Logger
	bus       *eventbus.Bus
	creds     *store.Store
	profiles  *profile.Store
	cache     *console.Cache
	watcher   Watcher
	waker     Waker
	pairing   PairingStarter
	connector Connector
	mapper    *input.Mapper
	source    InputSource
	sink      VideoSink

	mu        sync.Mutex
	state     State
	sessionID string
	ip        string
	cancel    context.CancelFunc
	done      chan struct{}
	stopReq   bool
	sinkLive  bool
	lastErr   error
	stats     Stats
}

// New wires a session engine. The input source may be nil when no local
// controller exists; frames then carry a neutral snapshot.
func New(cfg config.SessionConfig, logger *logging.Logger, bus *eventbus.Bus,
	creds *store.Store, profiles *profile.Store, cache *console.Cache,
	watcher Watcher, waker Waker, pairing PairingStarter,
	connector Connector, mapper *input.Mapper, source InputSource, sink VideoSink) *Engine {
	if source == nil {
		source = func() input.Snapshot { return input.Snapshot{} }
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		bus:       bus,
		creds:     creds,
		profiles:  profiles,
		cache:     cache,
		watcher:   watcher,
		waker:     waker,
		pairing:   pairing,
		connector: connector,
		mapper:    mapper,
		source:    source,
		sink:      sink,
		state:     StateIdle,
	}
}

// State returns the lifecycle position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns the latest streaming telemetry.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// LastError returns the error that moved the engine to ERROR, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Start runs the precondition gates and, when they pass, launches the
// connect sequence in the background. Gate failures are returned directly
// and leave the engine in ERROR until acknowledged.
func (e *Engine) Start(ctx context.Context, ip string) error {
	e.mu.Lock()
	switch e.state {
	case StateIdle:
	case StateError:
		e.mu.Unlock()
		return errors.New(errors.KindInvalidParam, "session.start",
			"previous error not acknowledged")
	default:
		e.mu.Unlock()
		return errors.New(errors.KindInProgress, "session.start", "session already active")
	}
	e.state = StatePrecheck
	e.sessionID = uuid.NewString()
	e.ip = ip
	e.stopReq = false
	e.lastErr = nil
	e.stats = Stats{}
	e.mu.Unlock()
	e.publishState(StatePrecheck, nil)

	creds, needWake, err := e.precheck(ctx, ip)
	if err != nil {
		e.toError(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	go func() {
		defer close(done)
		e.run(runCtx, creds, needWake)
	}()
	return nil
}

// precheck walks the ordered gates. It never waits on the network.
func (e *Engine) precheck(ctx context.Context, ip string) (model.Credentials, bool, error) {
	entry, known := e.cache.GetByIP(ip)
	if known && entry.Simulated {
		return model.Credentials{}, false, errors.New(errors.KindInvalidParam, "session.precheck",
			"simulated consoles cannot stream")
	}

	creds, err := e.creds.Get(ctx, ip)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return model.Credentials{}, false, errors.New(errors.KindNotRegistered, "session.precheck",
				"no credentials stored for "+ip)
		}
		return model.Credentials{}, false, err
	}
	if !creds.Valid {
		return model.Credentials{}, false, errors.New(errors.KindNotRegistered, "session.precheck",
			"stored credentials for "+ip+" are invalid")
	}

	if !e.profiles.Identity().IsSet() {
		return model.Credentials{}, false, errors.New(errors.KindNotInitialized, "session.precheck",
			"no account identity configured; sign in first")
	}

	if creds.NeedsRepair() {
		if creds.Repair() {
			if err := e.creds.AddOrUpdate(ctx, creds); err != nil {
				e.logger.Warn("credential repair not persisted", "ip", ip, "error", err)
			}
		} else {
			e.routeToPairing(creds, entry)
			return model.Credentials{}, false, errors.New(errors.KindAuthFailed, "session.precheck",
				"stored credentials are damaged beyond repair")
		}
	}

	// Power state is advisory: UNKNOWN proceeds straight to connect, the
	// connect attempt is the final arbiter.
	needWake := known && entry.State == console.StateStandby
	return creds, needWake, nil
}

func (e *Engine) run(ctx context.Context, creds model.Credentials, needWake bool) {
	if e.watcher != nil {
		e.watcher.Pause()
	}

	// One deadline spans waking and connecting.
	connectCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()

	if needWake && e.waker != nil {
		e.setState(StateWaking)
		if err := e.waker.Wake(connectCtx, creds.IP); err != nil {
			// The connect attempt decides whether the console is up.
			e.logger.Warn("wake before connect failed", "ip", creds.IP, "error", err)
		}
	}

	e.setState(StateConnecting)
	spanCtx, endSpan := observability.StartSpan(connectCtx, "session", "connect")
	stream, err := e.connector.Connect(spanCtx, creds)
	endSpan(err)
	if err != nil {
		e.connectFailed(creds, err, connectCtx)
		return
	}

	width, height := stream.Dimensions()
	if err := e.sink.Start(width, height); err != nil {
		stream.Close()
		e.finishWithError(errors.Wrap(errors.KindNotInitialized, "session.connect",
			"start video sink", err))
		return
	}
	e.mu.Lock()
	e.sinkLive = true
	e.mu.Unlock()

	if creds.HostID != "" {
		if err := e.cache.TouchConnected(creds.HostID); err != nil &&
			!errors.IsKind(err, errors.KindNotFound) {
			e.logger.Debug("connect timestamp not recorded", "host_id", creds.HostID, "error", err)
		}
	}
	if err := e.profiles.RecordConnection(creds.IP, true); err != nil {
		e.logger.Debug("connection not recorded in profile", "error", err)
	}

	e.logger.Info("session streaming", "ip", creds.IP, "width", width, "height", height)
	e.setState(StateStreaming)
	e.streamLoop(ctx, stream)
}

func (e *Engine) connectFailed(creds model.Credentials, err error, connectCtx context.Context) {
	e.mu.Lock()
	cancelled := e.stopReq
	e.mu.Unlock()

	switch {
	case cancelled:
		e.finishWithError(errors.New(errors.KindCancelled, "session.connect",
			"connection cancelled"))
	case connectCtx.Err() == context.DeadlineExceeded || errors.IsKind(err, errors.KindTimeout):
		e.finishWithError(errors.New(errors.KindTimeout, "session.connect",
			"connection timed out; the console did not respond in time"))
	case errors.IsKind(err, errors.KindAuthFailed) && creds.Target == console.GenPS5 && e.pairing != nil:
		// Stale PS5 credentials: hand the user to pairing instead of a
		// dead-end error.
		e.logger.Info("credentials rejected, starting re-registration", "ip", creds.IP)
		if perr := e.pairing.Start(regengine.Target{
			IP:         creds.IP,
			HostID:     creds.HostID,
			Nickname:   creds.Nickname,
			Generation: creds.Target,
			AccountID:  creds.AccountID,
		}); perr != nil {
			e.finishWithError(err)
			return
		}
		if e.watcher != nil {
			e.watcher.Resume()
		}
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		e.publishState(StateIdle, nil)
	default:
		e.finishWithError(err)
	}
}

func (e *Engine) streamLoop(ctx context.Context, stream Stream) {
	started := time.Now()
	windowStart := started
	windowFrames := 0
	latencyMS := 0.0
	rehandshaken := false

	for {
		if ctx.Err() != nil {
			e.teardown(stream, started)
			return
		}

		waitStart := time.Now()
		frame, err := stream.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.teardown(stream, started)
				return
			}
			if !rehandshaken && transient(err) {
				e.logger.Warn("stream hiccup, renegotiating in place", "error", err)
				rehCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
				rerr := stream.Rehandshake(rehCtx)
				cancel()
				rehandshaken = true
				if rerr == nil {
					continue
				}
				err = rerr
			}
			stream.Close()
			e.recordStreamingTime(started)
			e.finishWithError(err)
			return
		}

		wait := float64(time.Since(waitStart).Microseconds()) / 1000.0
		if latencyMS == 0 {
			latencyMS = wait
		} else {
			latencyMS = latencyMS*0.9 + wait*0.1
		}

		e.sink.Submit(frame)
		snapshot := e.source()
		if err := stream.SendInput(e.mapper.Encode(snapshot)); err != nil {
			e.logger.Debug("input frame not delivered", "error", err)
		}

		windowFrames++
		e.mu.Lock()
		e.stats.Frames++
		e.mu.Unlock()
		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			e.updateStats(float64(windowFrames)/elapsed.Seconds(), latencyMS)
			windowStart = time.Now()
			windowFrames = 0
		}
	}
}

// teardown is the clean STOPPING path after a user-initiated stop.
func (e *Engine) teardown(stream Stream, started time.Time) {
	e.setState(StateStopping)
	stream.Close()
	e.sink.Stop()
	e.mu.Lock()
	e.sinkLive = false
	e.mu.Unlock()
	e.recordStreamingTime(started)
	if e.watcher != nil {
		e.watcher.Resume()
	}
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
	e.publishState(StateIdle, nil)
	e.logger.Info("session stopped", "ip", e.ipSnapshot())
}

func (e *Engine) recordStreamingTime(started time.Time) {
	minutes := int64(time.Since(started).Minutes())
	if minutes <= 0 {
		return
	}
	if err := e.profiles.AddStreamingTime(minutes); err != nil {
		e.logger.Debug("streaming time not recorded", "error", err)
	}
}

// finishWithError moves to ERROR. The video sink stays alive so an error
// screen can render over the last frame; Acknowledge destroys it.
func (e *Engine) finishWithError(err error) {
	if e.watcher != nil {
		e.watcher.Resume()
	}
	e.toError(err)
}

func (e *Engine) toError(err error) {
	e.mu.Lock()
	e.state = StateError
	e.lastErr = err
	e.mu.Unlock()

	e.logger.Warn("session failed", "ip", e.ipSnapshot(), "error", err)
	e.publishState(StateError, err)
	if e.bus != nil {
		e.bus.Publish(eventbus.EventSessionError, eventbus.SessionEventData{
			SessionID: e.idSnapshot(),
			State:     string(StateError),
			IP:        e.ipSnapshot(),
			ErrorKind: string(errors.KindOf(err)),
			Message:   err.Error(),
			Hint:      errors.UserHintFor(err),
		})
	}
}

// Stop requests teardown. During CONNECTING this cancels into ERROR; during
// STREAMING it runs the clean STOPPING path. Stopping an idle session is a
// no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	switch e.state {
	case StateIdle, StateError, StatePrecheck:
		e.mu.Unlock()
		return
	}
	e.stopReq = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Acknowledge clears a terminal error, destroying the video sink that was
// kept alive for the error screen.
func (e *Engine) Acknowledge() {
	e.mu.Lock()
	if e.state != StateError {
		e.mu.Unlock()
		return
	}
	sinkLive := e.sinkLive
	e.sinkLive = false
	e.state = StateIdle
	e.lastErr = nil
	e.mu.Unlock()

	if sinkLive {
		e.sink.Stop()
	}
	e.publishState(StateIdle, nil)
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
	e.publishState(state, nil)
}

func (e *Engine) updateStats(fps, latencyMS float64) {
	e.mu.Lock()
	e.stats.FPS = fps
	e.stats.LatencyMS = latencyMS
	e.stats.Quality = qualityOf(fps)
	id, ip := e.sessionID, e.ip
	e.mu.Unlock()

	observability.RecordMetric(context.Background(), "session_fps", fps,
		map[string]string{"ip": ip})
	observability.RecordMetric(context.Background(), "session_latency_ms", latencyMS,
		map[string]string{"ip": ip})

	if e.bus != nil {
		e.bus.Publish(eventbus.EventSessionStats, eventbus.SessionEventData{
			SessionID: id,
			State:     string(StateStreaming),
			IP:        ip,
		})
	}
}

// transient reports whether a stream error is worth one in-place
// renegotiation.
func transient(err error) bool {
	return errors.IsKind(err, errors.KindTimeout) ||
		errors.IsKind(err, errors.KindNetwork) ||
		errors.IsKind(err, errors.KindInvalidData)
}

func qualityOf(fps float64) string {
	switch {
	case fps >= 50:
		return "excellent"
	case fps >= 30:
		return "good"
	case fps >= 15:
		return "fair"
	default:
		return "poor"
	}
}

func (e *Engine) publishState(state State, err error) {
	if e.bus == nil {
		return
	}
	data := eventbus.SessionEventData{
		SessionID: e.idSnapshot(),
		State:     string(state),
		IP:        e.ipSnapshot(),
	}
	if err != nil {
		data.ErrorKind = string(errors.KindOf(err))
		data.Message = err.Error()
		data.Hint = errors.UserHintFor(err)
	}
	e.bus.Publish(eventbus.EventSessionState, data)
}

func (e *Engine) routeToPairing(creds model.Credentials, entry console.Entry) {
	if e.pairing == nil {
		return
	}
	target := regengine.Target{
		IP:         creds.IP,
		HostID:     creds.HostID,
		Nickname:   creds.Nickname,
		Generation: creds.Target,
		AccountID:  creds.AccountID,
	}
	if target.HostID == "" {
		target.HostID = entry.HostID
	}
	if err := e.pairing.Start(target); err != nil {
		e.logger.Debug("re-registration not started", "error", err)
	}
}

func (e *Engine) ipSnapshot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ip
}

func (e *Engine) idSnapshot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}
