package profile

import (
	"sync"
	"time"

	"vitarp-go/internal/domain/identity"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/persist"
)

// Cached system info is considered fresh within this window.
const systemInfoFreshness = time.Hour

// Store owns the profile document. Every mutator does a read-modify-write of
// the cached document under the store mutex and stamps last_updated on save.
type Store struct {
	runtime *persist.Runtime
	logger  *logging.Logger
	path    string

	mu  sync.Mutex
	doc *Document
}

// NewStore creates a profile store bound to a document path. The document is
// not read until Load.
func NewStore(runtime *persist.Runtime, logger *logging.Logger, path string) *Store {
	return &Store{
		runtime: runtime,
		logger:  logger,
		path:    path,
	}
}

// Load reads the document from disk. A missing file surfaces KindNotFound; a
// malformed or newer-versioned file surfaces KindInvalidData. In both failure
// cases the store falls back to an in-memory default document so the API
// stays usable; the on-disk file is left alone until the caller saves.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc Document
	if err := s.runtime.ReadJSON(s.path, &doc); err != nil {
		s.doc = NewDefault()
		return nil, err
	}

	doc.sanitize()
	if doc.Version > CurrentVersion {
		s.logger.Warn("profile version from the future", "version", doc.Version)
		s.doc = NewDefault()
		return nil, errors.New(errors.KindInvalidData, "profile.load",
			"profile version newer than this build")
	}
	if doc.Version < CurrentVersion {
		old := doc.Version
		if !doc.migrate() {
			s.doc = NewDefault()
			return nil, errors.New(errors.KindInvalidData, "profile.load",
				"unsupported profile version")
		}
		s.logger.Info("migrated profile", "from", old, "to", doc.Version)
	}

	s.doc = &doc
	snapshot := doc
	return &snapshot, nil
}

// Save writes the cached document to disk, refreshing last_updated.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.doc == nil {
		s.doc = NewDefault()
	}
	s.doc.LastUpdated = time.Now().Unix()
	return s.runtime.WriteJSON(s.path, s.doc)
}

// CreateDefault replaces the cached document with a fresh default. It does
// not touch the disk until Save.
func (s *Store) CreateDefault() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = NewDefault()
	snapshot := *s.doc
	return &snapshot
}

// Get returns a copy of the cached document.
func (s *Store) Get() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		s.doc = NewDefault()
	}
	return *s.doc
}

// mutate applies fn to the cached document and persists the result.
func (s *Store) mutate(fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		s.doc = NewDefault()
	}
	fn(s.doc)
	return s.saveLocked()
}

// SetIdentity stores the account id in its base64 form.
func (s *Store) SetIdentity(base64ID string) error {
	if base64ID != "" && !identity.ValidateBase64(base64ID) {
		return errors.New(errors.KindInvalidData, "profile.set_identity",
			"malformed account id")
	}
	return s.mutate(func(d *Document) {
		d.PSNIDBase64 = base64ID
	})
}

// Identity returns the configured account id. An empty or malformed stored
// value yields the unset identity.
func (s *Store) Identity() identity.Identity {
	doc := s.Get()
	if doc.PSNIDBase64 == "" {
		return identity.Identity{}
	}
	id, err := identity.FromBase64(doc.PSNIDBase64)
	if err != nil {
		return identity.Identity{}
	}
	return id
}

// SetPSNCredentials records the signed-in account.
func (s *Store) SetPSNCredentials(username string, remember bool) error {
	return s.mutate(func(d *Document) {
		d.PSNUsername = username
		d.PSNRememberCreds = remember
		d.PSNAuthenticated = username != ""
		if username != "" {
			d.PSNLastLogin = time.Now().Unix()
		}
	})
}

// SetDisplayName updates the local display name.
func (s *Store) SetDisplayName(name string) error {
	return s.mutate(func(d *Document) {
		d.DisplayName = sanitizeString(name, maxNameLen)
	})
}

// SetQualityPreset selects the default streaming quality.
func (s *Store) SetQualityPreset(preset string) error {
	return s.mutate(func(d *Document) {
		d.QualityPreset = preset
	})
}

// SetHardwareDecode toggles the hardware decoder preference.
func (s *Store) SetHardwareDecode(enabled bool) error {
	return s.mutate(func(d *Document) {
		d.HardwareDecode = enabled
	})
}

// SetPerformanceOverlay toggles the stats overlay preference.
func (s *Store) SetPerformanceOverlay(enabled bool) error {
	return s.mutate(func(d *Document) {
		d.PerformanceOverlay = enabled
	})
}

// RecordConnection counts a session attempt against a console.
func (s *Store) RecordConnection(consoleIP string, successful bool) error {
	return s.mutate(func(d *Document) {
		d.ConnectionAttempts++
		if successful {
			d.SuccessfulConnections++
			d.LastConsoleIP = consoleIP
			d.FirstTimeSetup = false
		}
	})
}

// AddStreamingTime accumulates total streaming minutes.
func (s *Store) AddStreamingTime(minutes int64) error {
	if minutes < 0 {
		return errors.New(errors.KindInvalidParam, "profile.add_streaming_time",
			"negative duration")
	}
	return s.mutate(func(d *Document) {
		d.StreamingMinutes += minutes
	})
}

// UsageStats returns the profile counters.
func (s *Store) UsageStats() UsageStats {
	doc := s.Get()
	return UsageStats{
		ConnectionAttempts:    doc.ConnectionAttempts,
		SuccessfulConnections: doc.SuccessfulConnections,
		StreamingMinutes:      doc.StreamingMinutes,
	}
}

// UpdateSystemInfo stores a fresh hardware snapshot.
func (s *Store) UpdateSystemInfo(info SystemInfo) error {
	return s.mutate(func(d *Document) {
		d.SystemInfo = info
		d.SystemInfoUpdatedAt = time.Now().Unix()
	})
}

// CachedSystemInfo returns the stored snapshot and whether it is still
// fresh (updated within the last hour).
func (s *Store) CachedSystemInfo() (SystemInfo, bool) {
	doc := s.Get()
	age := time.Since(time.Unix(doc.SystemInfoUpdatedAt, 0))
	fresh := doc.SystemInfoUpdatedAt > 0 && age < systemInfoFreshness
	return doc.SystemInfo, fresh
}

// Backup copies the document to its sibling backup file.
func (s *Store) Backup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtime.Backup(s.path)
}

// Restore brings the sibling backup back as the live document and reloads it.
func (s *Store) Restore() error {
	s.mu.Lock()
	if err := s.runtime.Restore(s.path); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	_, err := s.Load()
	return err
}

// Exists reports whether a profile document is on disk.
func (s *Store) Exists() bool {
	return s.runtime.Exists(s.path)
}
