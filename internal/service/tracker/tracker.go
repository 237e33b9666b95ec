// Package tracker counts in-flight collaborator calls.
package tracker

import "sync/atomic"

// Tracker counts running calls using atomics. The zero value is ready to use.
type Tracker struct {
	running atomic.Int64
	total   atomic.Int64
}

// Inc increments the running counter.
func (t *Tracker) Inc() {
	t.running.Add(1)
	t.total.Add(1)
}

// Dec decrements the running counter.
func (t *Tracker) Dec() { t.running.Add(-1) }

// Running returns the current running count.
func (t *Tracker) Running() int64 { return t.running.Load() }

// Total returns how many calls were ever started.
func (t *Tracker) Total() int64 { return t.total.Load() }

// Track runs fn while counted as running. A nil Tracker just runs fn.
func (t *Tracker) Track(fn func() error) error {
	if t == nil {
		return fn()
	}
	t.Inc()
	defer t.Dec()
	return fn()
}
