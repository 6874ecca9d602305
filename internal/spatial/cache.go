package spatial

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/couchcryptid/station-sentinel/internal/domain"
)

// NeighborCache memoizes neighbor lookups for the duration of a detection
// run. Trend verification calls FindNeighbors once per flagged point, which
// fans out multiplicatively across a batch; the registry is stable within a
// run, so the lookup is cacheable. Thread-safe LRU.
type NeighborCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	head       *cacheEntry // most recently used
	tail       *cacheEntry // least recently used
}

type cacheEntry struct {
	key   string
	value []domain.Station
	prev  *cacheEntry
	next  *cacheEntry
}

// NewNeighborCache creates an LRU neighbor cache holding up to maxEntries
// target stations.
func NewNeighborCache(maxEntries int) *NeighborCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &NeighborCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

// Neighbors returns the cached neighbor set for the target, computing and
// storing it on a miss.
func (c *NeighborCache) Neighbors(target domain.Station, all []domain.Station, maxDistanceKm, maxElevationDiffM float64) []domain.Station {
	key := fmt.Sprintf("%s|%.1f|%.1f|%x", target.ID, maxDistanceKm, maxElevationDiffM, registryFingerprint(all))
	if neighbors, ok := c.get(key); ok {
		return neighbors
	}
	neighbors := FindNeighbors(target, all, maxDistanceKm, maxElevationDiffM)
	c.put(key, neighbors)
	return neighbors
}

// registryFingerprint hashes the registry contents into the cache key, so a
// station swapped or moved between runs invalidates its cached neighbor sets
// even when the station count is unchanged.
func registryFingerprint(all []domain.Station) uint64 {
	h := fnv.New64a()
	for _, s := range all {
		fmt.Fprintf(h, "%s|%.6f|%.6f|%.1f;", s.ID, s.Latitude, s.Longitude, s.Elevation)
	}
	return h.Sum64()
}

func (c *NeighborCache) get(key string) ([]domain.Station, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *NeighborCache) put(key string, value []domain.Station) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *NeighborCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *NeighborCache) addToFront(e *cacheEntry) {
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

func (c *NeighborCache) remove(e *cacheEntry) {
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

func (c *NeighborCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
