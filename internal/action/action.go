// Package action implements scheduled tasks owned by a character. A
// character has at most one action at a time; starting another either
// replaces it or, when both describe the same thing, is ignored.
package action

import (
	"sync/atomic"

	"github.com/Rune-Status/aj8/internal/scheduler"
)

// Character is the owner of an action.
type Character interface {
	// CurrentAction returns the action occupying the slot, or nil.
	CurrentAction() *Action
	// SetAction fills the slot.
	SetAction(a *Action)
	// StopAction is called exactly once when a stops. Implementations clear
	// the slot only if a still occupies it.
	StopAction(a *Action)
}

// Scheduler admits tasks. *scheduler.Scheduler satisfies it.
type Scheduler interface {
	Schedule(t scheduler.Task) bool
}

// Action is a task bound to a character.
type Action struct {
	*scheduler.ScheduledTask

	character Character
	key       any
	stopping  atomic.Bool
}

// New creates an action. Two actions with equal non-nil keys are the same
// logical action, so key must be comparable. The body receives the action so
// it can stop it once finished.
func New(delay int, immediate bool, character Character, key any, body func(a *Action) error) *Action {
	a := &Action{character: character, key: key}
	a.ScheduledTask = scheduler.NewTask(delay, immediate, func(*scheduler.ScheduledTask) error {
		if body == nil {
			return nil
		}
		return body(a)
	})
	return a
}

// Character returns the owner.
func (a *Action) Character() Character {
	return a.character
}

// Key returns the identity used by Equals.
func (a *Action) Key() any {
	return a.key
}

// Stop stops the task and notifies the character. Only the first call
// notifies, whichever goroutine makes it.
func (a *Action) Stop() {
	a.ScheduledTask.Stop()
	if a.stopping.CompareAndSwap(false, true) {
		a.character.StopAction(a)
	}
}

// Stopped reports whether Stop has been called.
func (a *Action) Stopped() bool {
	return a.stopping.Load()
}

// Equals reports whether a and o are the same logical action: the same
// pointer, or the same character and equal non-nil keys.
func (a *Action) Equals(o *Action) bool {
	if a == nil || o == nil {
		return false
	}
	if a == o {
		return true
	}
	return a.key != nil && a.character == o.character && a.key == o.key
}

// Start makes a the character's action. If the current action equals a, a is
// discarded and Start returns false. Otherwise the current action is stopped
// before a is scheduled. An action the scheduler refuses, because it is
// stopped or already admitted, never takes the slot.
func Start(s Scheduler, a *Action) bool {
	if a.Stopped() {
		return false
	}
	c := a.character
	if current := c.CurrentAction(); current != nil {
		if current.Equals(a) {
			return false
		}
		current.Stop()
	}
	if !s.Schedule(a) {
		return false
	}
	c.SetAction(a)
	return true
}
