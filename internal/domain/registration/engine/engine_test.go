package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/registration/store"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/storage"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		ControlPort:  9295,
		StreamPort:   9296,
		SenkushaPort: 9302,
	}
}

func testTarget() Target {
	return Target{
		IP:         "192.168.1.42",
		HostID:     "0123456789AB",
		Nickname:   "Living Room PS5",
		Generation: console.GenPS5,
		AccountID:  "nD1Ho0mY7wY=",
	}
}

func goodResult() PairResult {
	r := PairResult{Nickname: "Living Room PS5", KeyType: "PS5"}
	copy(r.RegistKey[:], "1a2b3c4dSECRETxx")
	copy(r.MorningKey[:], "morningkey123456")
	return r
}

// fakePairer replays a scripted sequence of outcomes, one per attempt.
type fakePairer struct {
	mu       sync.Mutex
	outcomes []error
	result   PairResult
	calls    int
	block    chan struct{} // when set, Pair waits for ctx cancellation
}

func (p *fakePairer) Pair(ctx context.Context, target Target, pin uint32) (PairResult, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	block := p.block
	p.mu.Unlock()

	if block != nil {
		<-ctx.Done()
		return PairResult{}, errors.New(errors.KindCancelled, "fake.pair", "aborted")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if call <= len(p.outcomes) && p.outcomes[call-1] != nil {
		return PairResult{}, p.outcomes[call-1]
	}
	return p.result, nil
}

func (p *fakePairer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func openPorts(ctx context.Context, ip string, port int) error { return nil }

func newEngine(t *testing.T, pairer Pairer, checkPort PortChecker) (*Engine, *store.Store, *console.Cache) {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	backend, err := store.NewSQLite(db)
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	creds := store.New(backend, logging.NewNop(), nil)
	cache, err := console.NewCache(db, logging.NewNop())
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}
	if err := cache.Merge(console.Discovered{
		IP: "192.168.1.42", HostID: "0123456789AB", State: console.StateReady, LastSeen: time.Now(),
	}); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	return NewWithPairer(testSessionConfig(), logging.NewNop(), nil, creds, cache, pairer, checkPort), creds, cache
}

func enterPIN(t *testing.T, e *Engine, pin string) {
	t.Helper()
	for i := 0; i < len(pin); i++ {
		if err := e.SetDigit(i, int(pin[i]-'0')); err != nil {
			t.Fatalf("SetDigit returned error: %v", err)
		}
	}
}

func awaitEvent(t *testing.T, e *Engine, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-e.Events():
			if event.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("event %s never arrived", kind)
		}
	}
}

func TestPINDecoding(t *testing.T) {
	p, err := ParsePIN("01234567")
	if err != nil {
		t.Fatalf("ParsePIN returned error: %v", err)
	}
	v, err := p.Value()
	if err != nil {
		t.Fatalf("Value returned error: %v", err)
	}
	if v != 1234567 {
		t.Fatalf("expected 1234567, got %d", v)
	}
}

func TestPINAllZerosIsValid(t *testing.T) {
	p, err := ParsePIN("00000000")
	if err != nil {
		t.Fatalf("ParsePIN returned error: %v", err)
	}
	if !p.Complete() {
		t.Fatal("all-zero pin should be complete")
	}
	if v, _ := p.Value(); v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
}

func TestPINIncompleteHasNoValue(t *testing.T) {
	p := NewPIN()
	if p.Complete() {
		t.Fatal("empty pin should be incomplete")
	}
	for i := 0; i < PINLength-1; i++ {
		if err := p.SetDigit(i, 5); err != nil {
			t.Fatalf("SetDigit returned error: %v", err)
		}
	}
	if p.Complete() {
		t.Fatal("pin with an empty slot should be incomplete")
	}
	if _, err := p.Value(); !errors.IsKind(err, errors.KindInvalidParam) {
		t.Fatalf("expected invalid_param, got %v", err)
	}

	if err := p.SetDigit(PINLength-1, 9); err != nil {
		t.Fatalf("SetDigit returned error: %v", err)
	}
	if err := p.ClearDigit(3); err != nil {
		t.Fatalf("ClearDigit returned error: %v", err)
	}
	if p.Complete() {
		t.Fatal("cleared slot should make the pin incomplete again")
	}
}

func TestPINRejectsBadInput(t *testing.T) {
	var p PIN
	if err := p.SetDigit(8, 1); err == nil {
		t.Fatal("expected error for out-of-range position")
	}
	if err := p.SetDigit(0, 10); err == nil {
		t.Fatal("expected error for out-of-range digit")
	}
	if _, err := ParsePIN("1234"); err == nil {
		t.Fatal("expected error for short pin")
	}
	if _, err := ParsePIN("1234567x"); err == nil {
		t.Fatal("expected error for non-digit pin")
	}
}

func TestPairingSuccessPersistsCredentials(t *testing.T) {
	pairer := &fakePairer{result: goodResult()}
	e, creds, cache := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	awaitEvent(t, e, EventPinRequest)
	if e.State() != StatePinEntry {
		t.Fatalf("expected PIN_ENTRY, got %s", e.State())
	}

	enterPIN(t, e, "01234567")
	if err := e.SubmitPIN(context.Background()); err != nil {
		t.Fatalf("SubmitPIN returned error: %v", err)
	}

	event := awaitEvent(t, e, EventSuccess)
	if event.Credentials == nil || event.Credentials.RegistHex8 != "1a2b3c4d" {
		t.Fatalf("unexpected success payload: %+v", event.Credentials)
	}
	if e.State() != StateSuccess {
		t.Fatalf("expected SUCCESS, got %s", e.State())
	}

	stored, err := creds.Get(context.Background(), "192.168.1.42")
	if err != nil {
		t.Fatalf("credentials not persisted: %v", err)
	}
	if !stored.Valid || stored.WakeCred != "1a2b3c4d" || stored.AccountID != "nD1Ho0mY7wY=" {
		t.Fatalf("unexpected stored credentials: %+v", stored)
	}

	entry, ok := cache.Get("0123456789AB")
	if !ok || !entry.IsRegistered {
		t.Fatal("console cache should mark the console registered")
	}
}

func TestPairingControlPortFailureIsHard(t *testing.T) {
	pairer := &fakePairer{result: goodResult()}
	e, _, _ := newEngine(t, pairer, func(ctx context.Context, ip string, port int) error {
		if port == 9295 {
			return errors.New(errors.KindNetwork, "test", "refused")
		}
		return nil
	})

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	enterPIN(t, e, "01234567")
	if err := e.SubmitPIN(context.Background()); err != nil {
		t.Fatalf("SubmitPIN returned error: %v", err)
	}

	awaitEvent(t, e, EventFailed)
	if e.State() != StateError {
		t.Fatalf("expected ERROR, got %s", e.State())
	}
	if pairer.callCount() != 0 {
		t.Fatal("handshake should not run when the control port is down")
	}
}

func TestPairingRetriesTransientFailures(t *testing.T) {
	netErr := errors.New(errors.KindNetwork, "test", "flaky link")
	pairer := &fakePairer{outcomes: []error{netErr, netErr, nil}, result: goodResult()}
	e, _, _ := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	enterPIN(t, e, "01234567")
	if err := e.SubmitPIN(context.Background()); err != nil {
		t.Fatalf("SubmitPIN returned error: %v", err)
	}

	event := awaitEvent(t, e, EventSuccess)
	if event.Attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %d", event.Attempts)
	}
}

func TestPairingStopsRetryingOnRejectedPIN(t *testing.T) {
	pairer := &fakePairer{outcomes: []error{
		errors.New(errors.KindAuthFailed, "test", "bad pin"),
	}}
	e, _, _ := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	enterPIN(t, e, "01234567")
	if err := e.SubmitPIN(context.Background()); err != nil {
		t.Fatalf("SubmitPIN returned error: %v", err)
	}

	event := awaitEvent(t, e, EventFailed)
	if event.Attempts != 1 {
		t.Fatalf("pin rejection should not retry, got %d attempts", event.Attempts)
	}
	if pairer.callCount() != 1 {
		t.Fatalf("expected 1 handshake call, got %d", pairer.callCount())
	}
	if !errors.IsKind(e.LastError(), errors.KindAuthFailed) {
		t.Fatalf("expected auth_failed, got %v", e.LastError())
	}
}

func TestPairingExhaustsAttempts(t *testing.T) {
	netErr := errors.New(errors.KindNetwork, "test", "flaky link")
	pairer := &fakePairer{outcomes: []error{netErr, netErr, netErr}}
	e, _, _ := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	enterPIN(t, e, "01234567")
	if err := e.SubmitPIN(context.Background()); err != nil {
		t.Fatalf("SubmitPIN returned error: %v", err)
	}

	event := awaitEvent(t, e, EventFailed)
	if event.Attempts != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, event.Attempts)
	}
	if pairer.callCount() != maxAttempts {
		t.Fatalf("expected %d handshake calls, got %d", maxAttempts, pairer.callCount())
	}
}

func TestPairingCancelDuringHandshake(t *testing.T) {
	pairer := &fakePairer{block: make(chan struct{})}
	e, _, _ := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	enterPIN(t, e, "01234567")
	if err := e.SubmitPIN(context.Background()); err != nil {
		t.Fatalf("SubmitPIN returned error: %v", err)
	}

	e.Cancel()
	awaitEvent(t, e, EventCancelled)
	if e.State() != StateIdle {
		t.Fatalf("expected IDLE after cancel, got %s", e.State())
	}
}

func TestStartWhilePairingFails(t *testing.T) {
	pairer := &fakePairer{result: goodResult()}
	e, _, _ := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := e.Start(testTarget()); !errors.IsKind(err, errors.KindInProgress) {
		t.Fatalf("expected in_progress, got %v", err)
	}
}

func TestSubmitRequiresCompletePIN(t *testing.T) {
	pairer := &fakePairer{result: goodResult()}
	e, _, _ := newEngine(t, pairer, openPorts)

	if err := e.Start(testTarget()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	enterPIN(t, e, "0123")
	if err := e.SubmitPIN(context.Background()); !errors.IsKind(err, errors.KindInvalidParam) {
		t.Fatalf("expected invalid_param, got %v", err)
	}
}
