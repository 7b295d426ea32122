package store

import (
	"context"
	"sync"
	"time"

	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/platform/clock"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
)

// Backend is the durable credentials map, keyed by host-id with an ip index.
type Backend interface {
	Save(ctx context.Context, creds model.Credentials) error
	GetByIP(ctx context.Context, ip string) (model.Credentials, error)
	DeleteByIP(ctx context.Context, ip string) error
	List(ctx context.Context) ([]model.Credentials, error)
	Close(ctx context.Context) error
}

// Config selects and tunes the durable backend.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options for the redis backend.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Stats counts cache behaviour for diagnostics.
type Stats struct {
	Requests  uint64 `json:"requests"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Entries   int    `json:"entries"`
	Evictions uint64 `json:"evictions"`
}

// Store is the unified read API over the durable backend: a bounded TTL cache
// keyed by ip sits in front of it. Every public operation is serialized by
// the store mutex, which covers both the cache and the backend call, so cached
// answers can never lag a durable write.
type Store struct {
	backend Backend
	logger  *logging.Logger
	clk     clock.Clock

	mu    sync.Mutex
	cache *readCache
}

// New builds a store over an already-constructed backend.
func New(backend Backend, logger *logging.Logger, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.System()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		clk:     clk,
		cache:   newReadCache(clk),
	}
}

// IsRegistered reports whether valid credentials exist for the console at ip.
func (s *Store) IsRegistered(ctx context.Context, ip string) bool {
	creds, err := s.Get(ctx, ip)
	return err == nil && creds.Validate()
}

// Get returns the credentials for ip, consulting the cache first.
func (s *Store) Get(ctx context.Context, ip string) (model.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if creds, ok := s.cache.lookup(ip); ok {
		return creds, nil
	}

	creds, err := s.backend.GetByIP(ctx, ip)
	if err != nil {
		return model.Credentials{}, err
	}
	if !s.cache.insert(ip, creds) {
		s.logger.Debug("registration cache full, serving uncached", "ip", ip)
	}
	return creds, nil
}

// AddOrUpdate persists credentials, durable store first, then drops any
// cached entry for the ip unconditionally.
func (s *Store) AddOrUpdate(ctx context.Context, creds model.Credentials) error {
	if creds.HostID == "" || creds.IP == "" {
		return errors.New(errors.KindInvalidParam, "regstore.add", "host id and ip required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Save(ctx, creds); err != nil {
		return err
	}
	s.cache.invalidate(creds.IP)
	s.logger.Info("stored registration", "host_id", creds.HostID, "ip", creds.IP)
	return nil
}

// Remove deletes the credentials for ip.
func (s *Store) Remove(ctx context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteByIP(ctx, ip); err != nil {
		return err
	}
	s.cache.invalidate(ip)
	s.logger.Info("removed registration", "ip", ip)
	return nil
}

// List returns every stored credential set.
func (s *Store) List(ctx context.Context) ([]model.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.List(ctx)
}

// InvalidateCache drops the cached entry for ip, if any.
func (s *Store) InvalidateCache(ip string) {
	s.mu.Lock()
	s.cache.invalidate(ip)
	s.mu.Unlock()
}

// ClearCache drops every cached entry.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache.clear()
	s.mu.Unlock()
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.stats()
}

// Close releases the backend.
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// cacheCapacity bounds live cache entries; cacheTTL bounds their age.
// Neither is configurable: the handheld talks to a handful of consoles and
// five minutes keeps pairing changes visible quickly.
const (
	cacheCapacity = 32
	cacheTTL      = 5 * time.Minute
)
