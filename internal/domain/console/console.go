package console

import (
	"time"
)

// PowerState classifies what a discovery probe learned about a console.
type PowerState string

const (
	StateUnknown PowerState = "UNKNOWN"
	StateReady   PowerState = "READY"
	StateStandby PowerState = "STANDBY"
)

// Generation tags the console family a credential or session targets.
type Generation string

const (
	GenPS4 Generation = "PS4"
	GenPS5 Generation = "PS5"
)

// Discovered is one console seen during a scan, keyed by HostID.
type Discovered struct {
	IP            string
	HostID        string
	Nickname      string
	Generation    Generation
	DiscoveryPort int
	State         PowerState
	IsAwake       bool
	Simulated     bool
	LastSeen      time.Time
}

// Entry is one console-cache record: a discovered console plus the
// bookkeeping the UI needs without re-scanning.
type Entry struct {
	Discovered
	IsRegistered  bool
	LastConnected time.Time
}
