// Package debounce coalesces bursts of triggers into one delayed action per
// task id.
package debounce

import (
	"log"
	"sync"
	"time"
)

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler runs keyed, cancellable delayed actions. Scheduling a task id
// that is still pending replaces the pending timer and restarts the delay.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*pending
	gen   uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[string]*pending)}
}

// RunAfter schedules action to run once, delay after this call. Any pending
// action for the same id is canceled.
func (s *Scheduler) RunAfter(id string, delay time.Duration, action func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.tasks[id]; ok {
		p.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.tasks[id] = &pending{
		gen:   gen,
		timer: time.AfterFunc(delay, func() { s.fire(id, gen, action) }),
	}
}

// Cancel removes the pending action for id without running it. It reports
// whether an action was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.tasks[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.tasks, id)
	return true
}

// Pending reports whether an action is scheduled for id.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Stop cancels every pending action.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.tasks {
		p.timer.Stop()
		delete(s.tasks, id)
	}
}

func (s *Scheduler) fire(id string, gen uint64, action func() error) {
	s.mu.Lock()
	p, ok := s.tasks[id]
	// A timer that lost the race with RunAfter or Cancel must not run.
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, id)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Debounce: task '%s' panicked: %v", id, r)
		}
	}()
	if err := action(); err != nil {
		log.Printf("Debounce: task '%s' failed: %v", id, err)
	}
}
