package cache

import (
	"container/list"
	"strconv"
	"sync"
	"time"

	"pubsearch/internal/domain"
)

// QueryCache is an LRU cache of search results with a TTL. Entries are tagged
// with the index generation they were computed against; Invalidate bumps the
// generation so results from a replaced index are never served.
type QueryCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	maxSize  int
	ttl      time.Duration
	indexGen uint64
	now      func() time.Time
}

type cacheEntry struct {
	key       string
	results   []domain.EnrichedResult
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query string, k int) string {
	return strconv.Itoa(k) + "\x00" + query
}

func (c *QueryCache) Get(query string, k int) ([]domain.EnrichedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, k)
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.timestamp) > c.ttl || entry.indexGen != c.indexGen {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}

	c.order.MoveToBack(el)
	return cloneResults(entry.results), true
}

func (c *QueryCache) Put(query string, k int, results []domain.EnrichedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, k)
	entry := &cacheEntry{
		key:       key,
		results:   cloneResults(results),
		timestamp: c.now(),
		indexGen:  c.indexGen,
	}

	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.order.PushBack(entry)
}

// Invalidate drops every entry and starts a new index generation.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneResults(in []domain.EnrichedResult) []domain.EnrichedResult {
	if in == nil {
		return nil
	}
	out := make([]domain.EnrichedResult, len(in))
	copy(out, in)
	return out
}
