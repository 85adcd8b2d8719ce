// Package notify implements the change notifier of spec §4.6: observers
// that block in Wait until either a sequence is signaled or their
// timeout elapses, and a Signaler that fans a new sequence number out to
// every registered observer. Grounded on
// original_source/src/change_observer.hpp's ChangeObserver/ChangeSignaler,
// translated from condition_variable_any's wait_for to a sync.Cond paired
// with a timer-driven Broadcast, since Go's Cond has no built-in timeout.
package notify

import (
	"sync"
	"time"
)

const unset = ^uint64(0)

// Observer is woken by its signalers when any non-zero sequence is
// posted, or by a Close, or by its own timeout.
type Observer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	seq    uint64
	closed bool
}

// NewObserver returns an unsignaled observer.
func NewObserver() *Observer {
	o := &Observer{seq: unset}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Signal records sequence if it's earlier than anything already pending
// and wakes any waiter. A sequence of 0 is ignored (never a valid buffer
// sequence).
func (o *Observer) Signal(sequence uint64) {
	o.mu.Lock()
	if sequence != 0 && sequence < o.seq {
		o.seq = sequence
	}
	o.mu.Unlock()
	o.cond.Broadcast()
}

// Wait blocks until WasSignaled would report true, the observer is
// closed, or timeout elapses; it reports whether it woke up signaled.
func (o *Observer) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.seq != unset || o.closed {
		return o.seq != unset
	}

	timer := time.AfterFunc(timeout, o.cond.Broadcast)
	defer timer.Stop()

	for o.seq == unset && !o.closed {
		if !time.Now().Before(deadline) {
			return false
		}
		o.cond.Wait()
	}
	return o.seq != unset
}

// Sequence returns the earliest signaled sequence, or unset if none.
func (o *Observer) Sequence() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}

// WasSignaled reports whether a sequence has been recorded since the
// last Reset.
func (o *Observer) WasSignaled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq != unset
}

// Reset clears the recorded sequence.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq = unset
}

// Close wakes this observer with a permanent cancellation: any pending
// or future Wait returns immediately, reporting false unless a sequence
// was signaled and not yet Reset.
func (o *Observer) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cond.Broadcast()
}

// Signaler fans sequence numbers out to a set of registered observers.
// The sink holds one of these per buffer.
type Signaler struct {
	mu        sync.Mutex
	observers map[*Observer]struct{}
}

// NewSignaler returns an empty signaler.
func NewSignaler() *Signaler {
	return &Signaler{observers: make(map[*Observer]struct{})}
}

// Add registers observer to receive future signals.
func (s *Signaler) Add(o *Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[o] = struct{}{}
}

// Remove unregisters observer; a no-op if it wasn't registered.
func (s *Signaler) Remove(o *Observer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observers[o]; !ok {
		return false
	}
	delete(s.observers, o)
	return true
}

// Has reports whether observer is currently registered.
func (s *Signaler) Has(o *Observer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.observers[o]
	return ok
}

// SignalAll posts sequence to every registered observer.
func (s *Signaler) SignalAll(sequence uint64) {
	s.mu.Lock()
	observers := make([]*Observer, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.Signal(sequence)
	}
}

// Close wakes every registered observer with a cancellation; subsequent
// waits on any of them return immediately.
func (s *Signaler) Close() {
	s.mu.Lock()
	observers := make([]*Observer, 0, len(s.observers))
	for o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.Close()
	}
}
