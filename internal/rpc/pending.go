// ABOUTME: Pending request table correlating stream responses with waiting callers.
// ABOUTME: Whoever removes an entry settles it, so each request settles exactly once.

package rpc

import "sync"

type outcome struct {
	resp *Response
	err  error
}

// pendingRequests tracks requests awaiting a response, keyed by JSON-RPC id.
type pendingRequests struct {
	mu      sync.Mutex
	waiting map[int64]chan outcome
	closed  error
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{waiting: make(map[int64]chan outcome)}
}

// add registers id and returns the channel its outcome will be delivered on.
// Once the table is closed, add returns the close error instead.
func (p *pendingRequests) add(id int64) (<-chan outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed != nil {
		return nil, p.closed
	}
	ch := make(chan outcome, 1)
	p.waiting[id] = ch
	return ch, nil
}

// settle delivers o to the waiter for id and removes it. It reports false when
// no such request is pending (already settled, timed out, or never sent).
func (p *pendingRequests) settle(id int64, o outcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.waiting[id]
	if !ok {
		return false
	}
	delete(p.waiting, id)
	ch <- o
	return true
}

// remove drops id without delivering anything. It reports whether the entry was
// still present, i.e. whether the caller won the right to settle it.
func (p *pendingRequests) remove(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.waiting[id]
	delete(p.waiting, id)
	return ok
}

// failAll settles every pending request with err and returns how many there were.
func (p *pendingRequests) failAll(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failAllLocked(err)
}

// close fails every pending request and rejects future registrations.
func (p *pendingRequests) close(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = err
	return p.failAllLocked(err)
}

func (p *pendingRequests) failAllLocked(err error) int {
	n := len(p.waiting)
	for id, ch := range p.waiting {
		ch <- outcome{err: err}
		delete(p.waiting, id)
	}
	return n
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}
