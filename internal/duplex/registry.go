// ABOUTME: Ordered pub/sub registry of frame handlers keyed by frame type.
// ABOUTME: Subscriptions return a disposer that removes exactly one handler.

package duplex

import "sync"

// Handler receives a dispatched frame. Handlers run on the channel's read goroutine.
type Handler func(Frame)

type handlerEntry struct {
	id uint64
	fn Handler
}

type registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handlerEntry
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]handlerEntry)}
}

// add appends fn to the handlers for eventType and returns its disposer.
// The disposer is safe to call more than once.
func (r *registry) add(eventType string, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[eventType] = append(r.handlers[eventType], handlerEntry{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(eventType, id) })
	}
}

func (r *registry) remove(eventType string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[eventType]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		kept := make([]handlerEntry, 0, len(entries)-1)
		kept = append(kept, entries[:i]...)
		kept = append(kept, entries[i+1:]...)
		if len(kept) == 0 {
			delete(r.handlers, eventType)
		} else {
			r.handlers[eventType] = kept
		}
		return
	}
}

// snapshot copies the handlers for eventType so dispatch runs without the lock held.
func (r *registry) snapshot(eventType string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.handlers[eventType]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Handler, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}
