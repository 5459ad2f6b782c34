package query

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
)

// SnapshotCache is a thread-safe LRU of decoded grids whose entries expire
// ttl after they were stored. Keys carry the store version, so an overwritten
// file is never served from a stale entry.
type SnapshotCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	grid    *domain.Grid
	expires time.Time
	prev    *entry
	next    *entry
}

// NewSnapshotCache creates a cache. A nil clock uses real time.
func NewSnapshotCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *SnapshotCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &SnapshotCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func cacheKey(path, version string) string {
	return path + "@" + version
}

// Get returns the grid stored under key unless it has expired. Cached grids
// are shared and must not be modified.
func (c *SnapshotCache) Get(key string) (*domain.Grid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.grid, true
}

// Put stores g under key, evicting the least recently used entry when full.
func (c *SnapshotCache) Put(key string, g *domain.Grid) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.grid = g
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, grid: g, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SnapshotCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *SnapshotCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *SnapshotCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *SnapshotCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
