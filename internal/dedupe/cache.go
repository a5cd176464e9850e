// ABOUTME: Thread-safe TTL window of recently seen inbound event ids.
// ABOUTME: Drops redelivered events after socket reconnects; bounded by size and age.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an id is remembered.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxSize bounds the number of remembered ids.
	DefaultMaxSize = 10000

	defaultSweepInterval = time.Minute
)

// Config holds the settings for a Cache. Zero values fall back to defaults.
type Config struct {
	TTL           time.Duration
	MaxSize       int
	SweepInterval time.Duration
}

type entry struct {
	key    string
	seenAt time.Time
}

// Cache is a set of ids with per-id expiry. The list is kept in seenAt order
// (oldest at front), so both eviction and sweeping touch only the front.
type Cache struct {
	mu    sync.Mutex
	index map[string]*list.Element
	order *list.List
	cfg   Config
	now   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its background sweeper. Call Close to stop it.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	c := &Cache{
		index: make(map[string]*list.Element),
		order: list.New(),
		cfg:   cfg,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen reports whether key was recorded within the TTL. If it was not, key is
// recorded now. The check and the record happen under one lock.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[key]; ok {
		if now.Sub(el.Value.(*entry).seenAt) < c.cfg.TTL {
			return true
		}
		c.removeLocked(el)
	}

	for len(c.index) >= c.cfg.MaxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Len returns the number of remembered ids, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *Cache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*entry).key)
}

// sweep drops expired ids from the front of the list.
func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Sub(el.Value.(*entry).seenAt) < c.cfg.TTL {
			break
		}
		c.removeLocked(el)
		n++
	}
	return n
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
