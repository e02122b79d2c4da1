// Package scheduler implements a single-slot delayed-task primitive: scheduling a
// new task cancels the pending one. It replaces scattered ad hoc timer bookkeeping
// for debounce, buffering escalation, and throttle windows.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler holds at most one pending task.
type Scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// New returns an empty single-slot scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule arms fn to run after d, cancelling any previously pending task.
// fn runs on its own goroutine; a task that has already started cannot be recalled.
func (s *Scheduler) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	s.seq++
	seq := s.seq
	s.timer = time.AfterFunc(d, func() {
		// A stale timer may fire between Stop and rearming; the sequence check drops it.
		s.mu.Lock()
		current := s.seq == seq
		if current {
			s.timer = nil
		}
		s.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel drops the pending task, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

// Pending reports whether a task is currently armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
