package search

import (
	"strings"
	"sync"
	"time"

	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/source"
)

type cacheEntry struct {
	items     []*source.Item
	total     int
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is an in-memory search result cache with a per-entry TTL and a hard
// capacity. When full, the oldest entry by insertion order is evicted.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	order    []string
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewCache builds a cache sized from configuration.
func NewCache() *Cache {
	ttl := time.Duration(viper.GetInt(key.SearchCacheTTLMinutes)) * time.Minute
	capacity := viper.GetInt(key.SearchCacheCapacity)
	return newCache(ttl, capacity)
}

func newCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if capacity < 1 {
		capacity = 50
	}
	return &Cache{
		entries:  make(map[string]*cacheEntry, capacity),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Get returns the cached items and provider-reported total for a query if
// the entry is still fresh.
func (c *Cache) Get(query string) ([]*source.Item, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := normalizeQuery(query)
	entry, ok := c.entries[normalized]
	if !ok {
		return nil, 0, false
	}
	if c.now().After(entry.expiresAt) {
		c.remove(normalized)
		return nil, 0, false
	}
	return entry.items, entry.total, true
}

// Put stores results and their total match count for a query, evicting the
// oldest entry at capacity.
func (c *Cache) Put(query string, items []*source.Item, total int) {
	if len(items) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := normalizeQuery(query)
	if _, exists := c.entries[normalized]; exists {
		c.remove(normalized)
	}

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		c.remove(c.order[0])
	}

	if total < len(items) {
		total = len(items)
	}

	now := c.now()
	c.entries[normalized] = &cacheEntry{
		items:     items,
		total:     total,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
	c.order = append(c.order, normalized)
}

// remove must be called with the lock held.
func (c *Cache) remove(normalized string) {
	delete(c.entries, normalized)
	for i, q := range c.order {
		if q == normalized {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// FindSimilar returns the cached query closest to the given one, considering
// only fresh entries where either query contains the other. Ties break on
// edit distance, then on recency.
func (c *Cache) FindSimilar(query string) (string, []*source.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	normalized := normalizeQuery(query)
	if normalized == "" {
		return "", nil, false
	}

	var (
		bestQuery    string
		bestEntry    *cacheEntry
		bestDistance int
	)

	now := c.now()
	for cached, entry := range c.entries {
		if now.After(entry.expiresAt) {
			continue
		}
		if cached == normalized {
			return cached, entry.items, true
		}
		if !strings.Contains(cached, normalized) && !strings.Contains(normalized, cached) {
			continue
		}

		distance := levenshtein.Distance(cached, normalized)
		if bestEntry == nil ||
			distance < bestDistance ||
			(distance == bestDistance && entry.storedAt.After(bestEntry.storedAt)) {
			bestQuery, bestEntry, bestDistance = cached, entry, distance
		}
	}

	if bestEntry == nil {
		return "", nil, false
	}
	return bestQuery, bestEntry.items, true
}

// Len reports the number of live entries, pruning expired ones first.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, q := range append([]string(nil), c.order...) {
		if entry, ok := c.entries[q]; ok && now.After(entry.expiresAt) {
			c.remove(q)
		}
	}
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, c.capacity)
	c.order = nil
}
