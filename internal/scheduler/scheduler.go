// Package scheduler drives delayed and repeating game logic. The world calls
// Pulse exactly once per tick; every admitted task is advanced by one tick and
// runs its body when its delay expires.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Scheduler holds the active tasks. Pulse must only be called from the tick
// goroutine; Schedule may be called from anywhere.
type Scheduler struct {
	mu      sync.Mutex
	pending []Task
	tasks   []Task

	pulses   uint64
	failures uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule admits a pending task. It returns false, and leaves the task
// alone, if the task was already admitted or has been stopped. Tasks scheduled
// while a pulse is in progress are first pulsed on the following tick.
func (s *Scheduler) Schedule(t Task) bool {
	if !t.admit() {
		log.Warn().
			Str("task", fmt.Sprintf("%T", t)).
			Msg("ignoring task that is already scheduled or stopped")
		return false
	}

	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	return true
}

// Pulse advances every running task by one tick. Stopped tasks are dropped
// without running. A task whose body fails or panics is logged and stopped;
// the rest of the tick is unaffected.
func (s *Scheduler) Pulse() {
	s.mu.Lock()
	s.tasks = append(s.tasks, s.pending...)
	s.pending = s.pending[:0]
	s.mu.Unlock()

	s.pulses++
	active := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.Running() {
			continue
		}
		if err := s.pulseTask(t); err != nil {
			s.failures++
			log.Error().
				Err(err).
				Str("task", fmt.Sprintf("%T", t)).
				Msg("task failed, stopping it")
			t.Stop()
		}
		if t.Running() {
			active = append(active, t)
		}
	}
	clear(s.tasks[len(active):])
	s.tasks = active
}

func (s *Scheduler) pulseTask(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Pulse()
}

// StopAll stops every task, pending or running. Used on shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	all := append(s.tasks, s.pending...)
	s.tasks = nil
	s.pending = nil
	s.mu.Unlock()

	for _, t := range all {
		t.Stop()
	}
	log.Info().Int("tasks", len(all)).Msg("scheduler stopped")
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Active   int    `json:"active"`
	Pending  int    `json:"pending"`
	Pulses   uint64 `json:"pulses"`
	Failures uint64 `json:"failures"`
}

// Stats returns the scheduler counters. Call it from the tick goroutine.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Active:   len(s.tasks),
		Pending:  len(s.pending),
		Pulses:   s.pulses,
		Failures: s.failures,
	}
}
