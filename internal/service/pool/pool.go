// Package pool provides a bounded non-blocking semaphore.
package pool

// Pool limits concurrent holders of a resource.
type Pool struct {
	sem chan struct{}
}

// New creates a pool with at least one slot and at most 128 slots.
// A pool of size 1 serves as the single-flight guard of a checkout session.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	if size > 128 {
		size = 128
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// TryAcquire reserves a slot without waiting. It reports false when the pool
// is full.
func (p *Pool) TryAcquire() bool {
	select {
	case p.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (p *Pool) Release() {
	<-p.sem
}
