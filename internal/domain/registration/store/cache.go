package store

import (
	"time"

	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/platform/clock"
)

type cacheEntry struct {
	ip         string
	creds      model.Credentials
	insertedAt time.Time
	used       bool
}

// readCache is the fixed-slot TTL cache in front of the durable backend.
// The caller (Store) holds the lock; nothing here is goroutine-safe alone.
type readCache struct {
	clk   clock.Clock
	slots [cacheCapacity]cacheEntry

	requests  uint64
	hits      uint64
	misses    uint64
	evictions uint64
}

func newReadCache(clk clock.Clock) *readCache {
	return &readCache{clk: clk}
}

// lookup returns a cached entry when present and not expired. Expired entries
// are evicted and counted; the caller falls through to the backend.
func (c *readCache) lookup(ip string) (model.Credentials, bool) {
	c.requests++
	for i := range c.slots {
		slot := &c.slots[i]
		if !slot.used || slot.ip != ip {
			continue
		}
		if c.clk.Since(slot.insertedAt) >= cacheTTL {
			slot.used = false
			c.evictions++
			break
		}
		c.hits++
		return slot.creds, true
	}
	c.misses++
	return model.Credentials{}, false
}

// insert places creds into a free slot. When every slot is live the insert is
// skipped; existing entries are never displaced before their TTL.
func (c *readCache) insert(ip string, creds model.Credentials) bool {
	now := c.clk.Now()
	for i := range c.slots {
		slot := &c.slots[i]
		if slot.used && c.clk.Since(slot.insertedAt) >= cacheTTL {
			slot.used = false
			c.evictions++
		}
		if slot.used && slot.ip == ip {
			// Refresh in place.
			slot.creds = creds
			slot.insertedAt = now
			return true
		}
	}
	for i := range c.slots {
		slot := &c.slots[i]
		if !slot.used {
			*slot = cacheEntry{ip: ip, creds: creds, insertedAt: now, used: true}
			return true
		}
	}
	return false
}

func (c *readCache) invalidate(ip string) {
	for i := range c.slots {
		if c.slots[i].used && c.slots[i].ip == ip {
			c.slots[i].used = false
		}
	}
}

func (c *readCache) clear() {
	for i := range c.slots {
		c.slots[i].used = false
	}
}

func (c *readCache) entries() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].used {
			n++
		}
	}
	return n
}

func (c *readCache) stats() Stats {
	return Stats{
		Requests:  c.requests,
		Hits:      c.hits,
		Misses:    c.misses,
		Entries:   c.entries(),
		Evictions: c.evictions,
	}
}
