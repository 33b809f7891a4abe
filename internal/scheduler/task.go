package scheduler

import (
	"fmt"
	"sync/atomic"
)

// TaskState is the lifecycle of a task. Transitions only move forward.
type TaskState int32

const (
	// StatePending is a constructed task not yet admitted by a scheduler.
	StatePending TaskState = iota
	// StateRunning is an admitted task that is pulsed every tick.
	StateRunning
	// StateStopped is terminal. The scheduler drops the task on its next pulse.
	StateStopped
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("TaskState(%d)", int32(s))
	}
}

// Task is a unit of delayed, possibly repeating work driven by a Scheduler.
// Implementations embed *ScheduledTask, which supplies the delay bookkeeping
// and admission; they may override Stop to release resources, as long as the
// override calls the embedded Stop.
type Task interface {
	// Pulse advances the task by one tick, running its body when due.
	Pulse() error
	// Stop moves the task to StateStopped. It is safe to call more than once
	// and from any goroutine.
	Stop()
	// Running reports whether the task is admitted and not stopped.
	Running() bool

	admit() bool
}

// ScheduledTask counts down a delay in ticks and runs its body each time the
// count expires. The body runs on the scheduler's goroutine and decides
// whether the task repeats: it keeps running until the body (or anyone else)
// calls Stop.
type ScheduledTask struct {
	delay     int
	remaining int
	immediate bool
	state     atomic.Int32
	body      func(t *ScheduledTask) error
}

// NewTask creates a task that runs body every delay ticks. With immediate set
// the first run happens on the first pulse instead of after the delay. A
// delay of zero runs the body on every pulse.
func NewTask(delay int, immediate bool, body func(t *ScheduledTask) error) *ScheduledTask {
	if delay < 0 {
		panic(fmt.Sprintf("scheduler: negative task delay %d", delay))
	}
	return &ScheduledTask{
		delay:     delay,
		remaining: delay,
		immediate: immediate,
		body:      body,
	}
}

// Delay returns the number of ticks between runs.
func (t *ScheduledTask) Delay() int {
	return t.delay
}

// SetDelay changes the interval. It takes effect when the countdown next
// restarts, which for a body calling it is straight after that run.
func (t *ScheduledTask) SetDelay(delay int) {
	if delay < 0 {
		panic(fmt.Sprintf("scheduler: negative task delay %d", delay))
	}
	t.delay = delay
}

// State returns the current lifecycle state.
func (t *ScheduledTask) State() TaskState {
	return TaskState(t.state.Load())
}

// Running reports whether the task is admitted and not stopped.
func (t *ScheduledTask) Running() bool {
	return t.State() == StateRunning
}

// Stop moves the task to StateStopped.
func (t *ScheduledTask) Stop() {
	t.state.Store(int32(StateStopped))
}

// Pulse advances the countdown and runs the body when it expires.
func (t *ScheduledTask) Pulse() error {
	if !t.Running() {
		return nil
	}
	if t.immediate {
		t.immediate = false
		return t.execute()
	}
	t.remaining--
	if t.remaining > 0 {
		return nil
	}
	return t.execute()
}

func (t *ScheduledTask) execute() error {
	var err error
	if t.body != nil {
		err = t.body(t)
	}
	t.remaining = t.delay
	return err
}

func (t *ScheduledTask) admit() bool {
	return t.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}
