package profile

import (
	"strings"
	"time"
)

// CurrentVersion is the schema version written by this build.
const CurrentVersion = 3

// Field length bounds applied during sanitization.
const (
	maxNameLen     = 64
	maxLanguageLen = 8
	maxUsernameLen = 64
	maxEmailLen    = 128
	maxIPLen       = 45
)

// Document is the versioned on-disk profile. Field names are stable; unknown
// fields in older or newer files are tolerated on read.
type Document struct {
	Version          int    `json:"profile_version"`
	CreatedTimestamp int64  `json:"created_timestamp"`
	LastUpdated      int64  `json:"last_updated"`
	DisplayName      string `json:"display_name"`
	Language         string `json:"preferred_language"`
	EnterButton      string `json:"enter_button_preference"`
	FirstTimeSetup   bool   `json:"first_time_setup"`

	PSNUsername      string `json:"psn_username"`
	PSNEmail         string `json:"psn_email"`
	PSNIDBase64      string `json:"psn_id_base64"`
	PSNAuthenticated bool   `json:"psn_authenticated"`
	PSNRememberCreds bool   `json:"psn_remember_credentials"`
	PSNLastLogin     int64  `json:"psn_last_login"`

	QualityPreset      string `json:"default_quality_preset"`
	HardwareDecode     bool   `json:"hardware_decode_preferred"`
	PerformanceOverlay bool   `json:"show_performance_overlay"`
	AutoConnectLast    bool   `json:"auto_connect_last_console"`
	LastConsoleIP      string `json:"last_connected_console_ip"`

	StreamingMinutes      int64 `json:"total_streaming_time"`
	SuccessfulConnections int64 `json:"successful_connections"`
	ConnectionAttempts    int64 `json:"connection_attempts"`

	SaveCredentials  bool `json:"save_credentials"`
	AnalyticsEnabled bool `json:"analytics_enabled"`
	CrashReporting   bool `json:"crash_reporting_enabled"`

	SystemInfo          SystemInfo `json:"system_info"`
	SystemInfoUpdatedAt int64      `json:"system_info_updated_at"`
}

// SystemInfo is a snapshot of the host device cached alongside the profile so
// the settings screen renders without re-probing hardware.
type SystemInfo struct {
	Hostname     string  `json:"hostname"`
	Platform     string  `json:"platform"`
	OSVersion    string  `json:"os_version"`
	CPUModel     string  `json:"cpu_model"`
	CPUCores     int     `json:"cpu_cores"`
	TotalMemory  uint64  `json:"total_memory_bytes"`
	UsedPercent  float64 `json:"memory_used_percent"`
	UptimeSec    uint64  `json:"uptime_seconds"`
}

// UsageStats is the read form of the profile counters.
type UsageStats struct {
	ConnectionAttempts    int64
	SuccessfulConnections int64
	StreamingMinutes      int64
}

// NewDefault builds the document written on first run.
func NewDefault() *Document {
	now := time.Now().Unix()
	return &Document{
		Version:          CurrentVersion,
		CreatedTimestamp: now,
		LastUpdated:      now,
		DisplayName:      "Player",
		Language:         "en",
		EnterButton:      "cross",
		FirstTimeSetup:   true,
		QualityPreset:    "balanced",
		HardwareDecode:   true,
		SaveCredentials:  true,
		CrashReporting:   true,
	}
}

// sanitize bounds and cleans every string field loaded from disk:
// non-printable ASCII becomes '?', and each field is clipped to its limit.
func (d *Document) sanitize() {
	d.DisplayName = sanitizeString(d.DisplayName, maxNameLen)
	d.Language = sanitizeString(d.Language, maxLanguageLen)
	d.EnterButton = sanitizeString(d.EnterButton, maxLanguageLen)
	d.PSNUsername = sanitizeString(d.PSNUsername, maxUsernameLen)
	d.PSNEmail = sanitizeString(d.PSNEmail, maxEmailLen)
	d.PSNIDBase64 = sanitizeString(d.PSNIDBase64, 16)
	d.QualityPreset = sanitizeString(d.QualityPreset, 16)
	d.LastConsoleIP = sanitizeString(d.LastConsoleIP, maxIPLen)
}

func sanitizeString(s string, max int) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max]
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// migrate upgrades an older document in place. Each step moves one version
// forward so new steps slot in between releases.
func (d *Document) migrate() bool {
	switch {
	case d.Version < 1 || d.Version > CurrentVersion:
		return false
	case d.Version == CurrentVersion:
		return true
	}

	for d.Version < CurrentVersion {
		switch d.Version {
		case 1:
			// v2 introduced quality presets.
			if d.QualityPreset == "" {
				d.QualityPreset = "balanced"
			}
			d.Version = 2
		case 2:
			// v3 introduced privacy flags; crash reporting was implicit before.
			d.CrashReporting = true
			d.Version = 3
		}
	}
	return true
}
