package eventbus

// Event topics published by the client core.
const (
	// Discovery events
	EventDiscoveryFound    = "discovery:found"
	EventDiscoveryComplete = "discovery:complete"

	// Registration events
	EventRegistrationState   = "registration:state"
	EventRegistrationSuccess = "registration:success"
	EventRegistrationError   = "registration:error"

	// Session events
	EventSessionState = "session:state"
	EventSessionStats = "session:stats"
	EventSessionError = "session:error"

	// Wake events
	EventWakeProgress = "wake:progress"

	// Console-cache events
	EventConsoleUpdated = "console:updated"
)

// DiscoveryEventData accompanies discovery:found and discovery:complete.
type DiscoveryEventData struct {
	ScanID   string  `json:"scan_id"`
	HostID   string  `json:"host_id,omitempty"`
	IP       string  `json:"ip,omitempty"`
	Progress float64 `json:"progress"`
	Total    int     `json:"total"`
}

// RegistrationEventData accompanies registration:* topics.
type RegistrationEventData struct {
	AttemptID string `json:"attempt_id"`
	State     string `json:"state"`
	HostID    string `json:"host_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}

// SessionEventData accompanies session:state and session:error.
type SessionEventData struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	IP        string `json:"ip,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// WakeEventData accompanies wake:progress.
type WakeEventData struct {
	IP         string  `json:"ip"`
	Progress   float64 `json:"progress"`
	Message    string  `json:"message"`
	FinalState string  `json:"final_state,omitempty"`
}

// ConsoleEventData accompanies console:updated.
type ConsoleEventData struct {
	HostID string `json:"host_id"`
	IP     string `json:"ip"`
	State  string `json:"state"`
}
