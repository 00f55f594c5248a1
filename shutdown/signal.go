package shutdown

import (
	"os"
	"sync"
)

// SignalCounter records shutdown signals: the first one starts a graceful
// stop and the forceAfter-th one calls onForce.
type SignalCounter struct {
	mu         sync.Mutex
	first      os.Signal
	count      int
	forceAfter int
	onForce    func(os.Signal)
}

// NewSignalCounter creates a counter. A forceAfter below one never forces
// and onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func(os.Signal)) *SignalCounter {
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Record counts sig and returns the new count. onForce runs with the lock
// held when the count reaches forceAfter.
func (s *SignalCounter) Record(sig os.Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.first == nil {
		s.first = sig
	}
	if s.forceAfter > 0 && s.count >= s.forceAfter && s.onForce != nil {
		s.onForce(sig)
	}
	return s.count
}

// Count returns the number of recorded signals.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// First returns the first recorded signal, or nil.
func (s *SignalCounter) First() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}
