// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Priority orders tasks in the ready queue. Higher values run first.
type Priority int32

// Task priorities.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the string representation of Priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	default:
		return fmt.Sprintf("Priority(%d)", int32(p))
	}
}

// State is the lifecycle state of a Task.
type State int32

// Task states.
//
// A task is Waiting until its first execution starts, then Running until it
// finishes or is canceled. A recurring task stays Running between
// executions. Done and Canceled are terminal until the task is submitted
// again.
const (
	StateWaiting State = iota
	StateRunning
	StateDone
	StateCanceled
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "Waiting"
	case StateRunning:
		return "Running"
	case StateDone:
		return "Done"
	case StateCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Work is the body of a Task.
//
// Run is called on a worker goroutine, once per execution. To finish, Run
// calls t.SetFinished. Returning without finishing requeues the task, so a
// recurring task typically calls t.ScheduleFromNow before returning.
//
// Run must not panic; report failures with t.Fail or t.SetCanceled.
type Work interface {
	Run(t *Task)
}

// TaskFunc adapts a function to Work.
type TaskFunc func(t *Task)

// Run calls f(t).
func (f TaskFunc) Run(t *Task) { f(t) }

// Initializer is implemented by Work that needs setup before its first
// execution. Initialize runs on the worker goroutine.
type Initializer interface {
	Initialize(t *Task)
}

// Finisher is implemented by Work that wants to know when the task is done.
// The task no longer belongs to a scheduler when Finished runs, so Finished
// may submit it again. The exception is a task whose removal is being waited
// on: see Scheduler.RemoveTask.
type Finisher interface {
	Finished(t *Task)
}

// Canceler is implemented by Work that wants to know when the task is
// canceled. Like Finished, it runs after the task left its scheduler.
type Canceler interface {
	Canceled(t *Task)
}

// slot records which scheduler structure holds a task.
type slot uint8

const (
	slotNone slot = iota
	slotReady
	slotDelayed
	slotReserved
	slotRunning
	// slotRemoving holds a task that finished while RemoveTask waited on it,
	// until its hooks have run and the remover is released.
	slotRemoving
)

// Task is a unit of work submitted to a Scheduler.
//
// Priority, schedule, cancellation and state are safe to use from any
// goroutine. A task belongs to at most one scheduler at a time.
type Task struct {
	work Work
	name string

	state       atomic.Int32
	canceled    atomic.Bool
	priority    atomic.Int32
	scheduledAt atomic.Int64 // unix nanoseconds, 0 = as soon as possible
	host        atomic.Pointer[Scheduler]

	errMu sync.Mutex
	err   error

	// Guarded by the host scheduler's mutex.
	slot       slot
	index      int
	seq        uint64
	qprio      Priority
	qat        int64
	reservedBy *worker
	removal    chan struct{}
	removers   int
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithPriority sets the initial priority. The default is PriorityNormal.
func WithPriority(p Priority) TaskOption {
	return func(t *Task) { t.priority.Store(int32(p)) }
}

// WithTaskName names the task for logs and diagnostics.
func WithTaskName(name string) TaskOption {
	return func(t *Task) { t.name = name }
}

// WithDelay makes the task eligible d after creation.
func WithDelay(d time.Duration) TaskOption {
	return func(t *Task) { t.scheduledAt.Store(time.Now().Add(d).UnixNano()) }
}

// NewTask creates a task running work.
func NewTask(work Work, opts ...TaskOption) *Task {
	t := &Task{work: work, index: -1}
	t.priority.Store(int32(PriorityNormal))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the task name, or "" if unnamed.
func (t *Task) Name() string { return t.name }

// Work returns the task body.
func (t *Task) Work() Work { return t.work }

// Priority returns the current priority.
func (t *Task) Priority() Priority { return Priority(t.priority.Load()) }

// SetPriority changes the priority. A queued task is repositioned.
func (t *Task) SetPriority(p Priority) {
	if s := t.host.Load(); s != nil {
		s.SetPriority(t, p)
		return
	}
	t.priority.Store(int32(p))
}

// State returns the lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// IsCanceled reports whether the task has been canceled.
func (t *Task) IsCanceled() bool { return t.canceled.Load() }

// CancellationRequested reports whether Run should return early: the task
// was canceled or its scheduler is shutting down. Long running Work polls
// it between steps.
func (t *Task) CancellationRequested() bool {
	if t.canceled.Load() {
		return true
	}
	s := t.host.Load()
	return s != nil && s.ShuttingDown()
}

// SetCanceled cancels the task. A queued task is skipped when picked and
// its Canceled hook runs; a running task finishes its current Run first.
// Canceling is idempotent.
func (t *Task) SetCanceled() {
	t.canceled.Store(true)
	if t.host.Load() == nil {
		t.markCanceled()
	}
}

// SetFinished marks the task done. Called from Run.
func (t *Task) SetFinished() {
	t.state.Store(int32(StateDone))
}

// Fail records err and marks the task done.
func (t *Task) Fail(err error) {
	t.errMu.Lock()
	t.err = err
	t.errMu.Unlock()
	t.SetFinished()
}

// Err returns the error recorded by Fail, if any.
func (t *Task) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// ScheduleAt makes the task eligible at when. A queued task is
// repositioned and the scheduler re-evaluates its timers.
func (t *Task) ScheduleAt(when time.Time) {
	t.scheduledAt.Store(when.UnixNano())
	if s := t.host.Load(); s != nil {
		s.Reschedule(t)
	}
}

// ScheduleFromNow makes the task eligible d from now.
func (t *Task) ScheduleFromNow(d time.Duration) {
	t.ScheduleAt(time.Now().Add(d))
}

// ScheduledAt returns when the task becomes eligible. The zero time means
// as soon as possible.
func (t *Task) ScheduledAt() time.Time {
	ns := t.scheduledAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SecondsUntilScheduled returns the seconds until the task is eligible.
// Zero or negative means it is ready now.
func (t *Task) SecondsUntilScheduled() float64 {
	ns := t.scheduledAt.Load()
	if ns == 0 {
		return 0
	}
	return time.Duration(ns - time.Now().UnixNano()).Seconds()
}

// Host returns the scheduler the task belongs to, or nil.
func (t *Task) Host() *Scheduler { return t.host.Load() }

func (t *Task) String() string {
	name := t.name
	if name == "" {
		name = fmt.Sprintf("%p", t)
	}
	return fmt.Sprintf("Task(%s, %s, %s)", name, t.Priority(), t.State())
}

// markCanceled moves a task that is not running to the Canceled state.
func (t *Task) markCanceled() {
	for {
		st := t.state.Load()
		if State(st) == StateDone || State(st) == StateCanceled {
			return
		}
		if t.state.CompareAndSwap(st, int32(StateCanceled)) {
			return
		}
	}
}

// cancelRemoved cancels a task that left its scheduler without running to
// completion and runs its Canceled hook.
func (t *Task) cancelRemoved() {
	t.canceled.Store(true)
	t.markCanceled()
	if c, ok := t.work.(Canceler); ok {
		c.Canceled(t)
	}
}
