// ABOUTME: Tests for the seen-id cache used to drop redelivered inbound events.
// ABOUTME: Validates TTL expiry, size bound, sweeping, and concurrent Seen calls.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, cfg Config) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(cfg)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

// contains reports whether key is remembered, without recording it.
func (c *Cache) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	return ok && c.now().Sub(el.Value.(*entry).seenAt) < c.cfg.TTL
}

func TestCache_SeenRecordsFirstOccurrence(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	assert.False(t, c.Seen("msg-1"), "first occurrence is new")
	assert.True(t, c.Seen("msg-1"), "second occurrence is a duplicate")
	assert.False(t, c.Seen("msg-2"))
	assert.Equal(t, 2, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, Config{TTL: time.Minute})

	assert.False(t, c.Seen("msg-1"))
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("msg-1"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.contains("msg-1"))
	assert.False(t, c.Seen("msg-1"), "expired id is new again")
	assert.True(t, c.Seen("msg-1"))
}

func TestCache_SizeBoundEvictsOldest(t *testing.T) {
	c, _ := newTestCache(t, Config{MaxSize: 3})

	for i := 1; i <= 4; i++ {
		c.Seen(fmt.Sprintf("msg-%d", i))
	}

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.contains("msg-1"), "oldest id evicted")
	assert.True(t, c.contains("msg-4"))
}

func TestCache_SweepDropsOnlyExpired(t *testing.T) {
	c, clock := newTestCache(t, Config{TTL: time.Minute})

	c.Seen("old-1")
	c.Seen("old-2")
	clock.Advance(50 * time.Second)
	c.Seen("fresh")
	clock.Advance(20 * time.Second)

	assert.Equal(t, 2, c.sweep())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.contains("fresh"))
}

func TestCache_ConcurrentSeenReportsNewOnce(t *testing.T) {
	c, _ := newTestCache(t, Config{})

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same-id") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(Config{SweepInterval: time.Millisecond})
	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
}
