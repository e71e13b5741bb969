package testsupport

import (
	"sync"
	"time"
)

// ManualScheduler is a deterministic stand-in for a ticker. Registered
// callbacks run only when Tick is called.
type ManualScheduler struct {
	mu      sync.Mutex
	nextID  int
	entries map[int]func()
	started int
}

// NewManualScheduler returns an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{entries: make(map[int]func())}
}

// Every registers fn and returns its cancel function.
func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.entries[id] = fn
	s.started++
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.entries, id)
	}
}

// Tick fires every active callback n times.
func (s *ManualScheduler) Tick(n int) {
	for range n {
		s.mu.Lock()
		fns := make([]func(), 0, len(s.entries))
		for _, fn := range s.entries {
			fns = append(fns, fn)
		}
		s.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

// Active returns the number of callbacks not yet cancelled.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Started returns how many callbacks were ever registered.
func (s *ManualScheduler) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
