package memo

import (
	"container/list"
	"sync"
	"time"

	"github.com/ykarpov/inboxflow/app/taxonomy"
)

const (
	DefaultMaxEntries = 400
	DefaultTTL        = time.Hour
)

type entry struct {
	key       string
	value     taxonomy.ClassificationResult
	expiresAt time.Time
}

// Cache is a content-addressed memoization store for classifier results,
// bounded by entry count and a fixed per-entry TTL. Eviction is
// least-recently-used; the list front is the coldest entry. Operations
// never fail and perform no I/O.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	order      *list.List
	entries    map[string]*list.Element
	now        func() time.Time

	hits   uint64
	misses uint64
}

type Option func(*Cache)

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock overrides the time source. Tests use this to step through TTLs.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{
		maxEntries: DefaultMaxEntries,
		ttl:        DefaultTTL,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached result for key. An expired entry counts as a miss
// and is evicted on the spot. A hit promotes the entry to most recently used.
func (c *Cache) Get(key string) (taxonomy.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return taxonomy.ClassificationResult{}, false
	}

	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeElement(el)
		c.misses++
		return taxonomy.ClassificationResult{}, false
	}

	c.order.MoveToBack(el)
	c.hits++
	return e.value, true
}

// Set stores value under key. Expired entries are pruned from the cold end
// first, then the cache is shrunk to capacity. Updating an existing key
// refreshes its expiry and promotes it.
func (c *Cache) Set(key string, value taxonomy.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneExpired()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToBack(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		front := c.order.Front()
		if front == nil {
			break
		}
		c.removeElement(front)
	}

	el := c.order.PushBack(&entry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[key] = el
}

// Len returns the number of live entries, counting not-yet-evicted expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// pruneExpired drops expired entries from the cold end of the recency order.
// The scan stops at the first live entry. Get promotes an entry without
// refreshing its expiry, so a promoted entry can expire behind a live front
// and outlive the scan; Get evicts such stragglers lazily on lookup.
func (c *Cache) pruneExpired() {
	now := c.now()
	for {
		front := c.order.Front()
		if front == nil || !now.After(front.Value.(*entry).expiresAt) {
			return
		}
		c.removeElement(front)
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}
