package console

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/logging"
	"vitarp-go/internal/platform/storage"
)

// Entries older than this are dropped on reload.
const evictAfter = 30 * 24 * time.Hour

// Cache is the persistent list of consoles the device has seen. Rows live in
// SQLite; an in-memory mirror serves reads so the UI thread never touches the
// database. All mutations go through the cache mutex.
type Cache struct {
	db     *gorm.DB
	logger *logging.Logger

	mu      sync.RWMutex
	entries map[string]*Entry // keyed by host-id
}

// NewCache loads the cache from the database.
func NewCache(db *gorm.DB, logger *logging.Logger) (*Cache, error) {
	c := &Cache{
		db:      db,
		logger:  logger,
		entries: make(map[string]*Entry),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the in-memory mirror with the database contents, evicting
// rows not seen within the retention window.
func (c *Cache) Reload() error {
	var rows []storage.ConsoleEntry
	if err := c.db.Find(&rows).Error; err != nil {
		return errors.Wrap(errors.KindIO, "console.reload", "load console cache", err)
	}

	cutoff := time.Now().Add(-evictAfter)
	entries := make(map[string]*Entry, len(rows))
	for _, row := range rows {
		if row.LastSeen.Before(cutoff) {
			if err := c.db.Delete(&storage.ConsoleEntry{}, row.ID).Error; err == nil {
				c.logger.Debug("evicted stale console", "host_id", row.HostID)
			}
			continue
		}
		entry := fromRow(row)
		entries[row.HostID] = &entry
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Merge folds a discovery result into the cache: new host-ids insert, known
// ones refresh state and timestamps.
func (c *Cache) Merge(found Discovered) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[found.HostID]
	if !ok {
		entry = &Entry{Discovered: found}
		c.entries[found.HostID] = entry
	} else {
		entry.IP = found.IP
		entry.Nickname = found.Nickname
		entry.Generation = found.Generation
		entry.DiscoveryPort = found.DiscoveryPort
		entry.State = found.State
		entry.IsAwake = found.IsAwake
		entry.Simulated = found.Simulated
		entry.LastSeen = found.LastSeen
	}
	return c.persistLocked(entry)
}

// SetState records the watcher's latest power-state reading.
func (c *Cache) SetState(hostID string, state PowerState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hostID]
	if !ok {
		return errors.New(errors.KindNotFound, "console.set_state", "unknown console: "+hostID)
	}
	entry.State = state
	entry.IsAwake = state == StateReady
	entry.LastSeen = time.Now()
	return c.persistLocked(entry)
}

// SetRegistered maintains the is_registered shortcut kept on each row.
func (c *Cache) SetRegistered(hostID string, registered bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hostID]
	if !ok {
		return errors.New(errors.KindNotFound, "console.set_registered", "unknown console: "+hostID)
	}
	entry.IsRegistered = registered
	return c.persistLocked(entry)
}

// TouchConnected stamps a successful session start.
func (c *Cache) TouchConnected(hostID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hostID]
	if !ok {
		return errors.New(errors.KindNotFound, "console.touch", "unknown console: "+hostID)
	}
	entry.LastConnected = time.Now()
	return c.persistLocked(entry)
}

// Get returns a copy of the entry for hostID.
func (c *Cache) Get(hostID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[hostID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// GetByIP returns a copy of the entry with the given address.
func (c *Cache) GetByIP(ip string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entry := range c.entries {
		if entry.IP == ip {
			return *entry, true
		}
	}
	return Entry{}, false
}

// Snapshot returns copies of all entries, most recently seen first.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, *entry)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

func (c *Cache) persistLocked(entry *Entry) error {
	row := toRow(*entry)
	err := c.db.Where("host_id = ?", entry.HostID).
		Assign(map[string]any{
			"ip":             row.IP,
			"nickname":       row.Nickname,
			"generation":     row.Generation,
			"discovery_port": row.DiscoveryPort,
			"state":          row.State,
			"is_awake":       row.IsAwake,
			"is_registered":  row.IsRegistered,
			"simulated":      row.Simulated,
			"last_seen":      row.LastSeen,
			"last_connected": row.LastConnected,
		}).
		FirstOrCreate(&storage.ConsoleEntry{}).Error
	if err != nil {
		return errors.Wrap(errors.KindIO, "console.persist", "store console entry", err)
	}
	return nil
}

func fromRow(row storage.ConsoleEntry) Entry {
	return Entry{
		Discovered: Discovered{
			IP:            row.IP,
			HostID:        row.HostID,
			Nickname:      row.Nickname,
			Generation:    Generation(row.Generation),
			DiscoveryPort: row.DiscoveryPort,
			State:         PowerState(row.State),
			IsAwake:       row.IsAwake,
			Simulated:     row.Simulated,
			LastSeen:      row.LastSeen,
		},
		IsRegistered:  row.IsRegistered,
		LastConnected: row.LastConnected,
	}
}

func toRow(entry Entry) storage.ConsoleEntry {
	return storage.ConsoleEntry{
		HostID:        entry.HostID,
		IP:            entry.IP,
		Nickname:      entry.Nickname,
		Generation:    string(entry.Generation),
		DiscoveryPort: entry.DiscoveryPort,
		State:         string(entry.State),
		IsAwake:       entry.IsAwake,
		IsRegistered:  entry.IsRegistered,
		Simulated:     entry.Simulated,
		LastSeen:      entry.LastSeen,
		LastConnected: entry.LastConnected,
	}
}
