// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sched runs background tasks on a fixed pool of worker goroutines.
//
// Tasks are ordered by priority and, within a priority, by submission order.
// A task that returns from Run without finishing is requeued at the back of
// its priority band, so recurring tasks of equal priority take turns. Tasks
// may be delayed with ScheduleAt; a task that is eligible now always runs
// before a delayed one, whatever their priorities.
//
// Cancellation is cooperative: SetCanceled and Shutdown set a flag that the
// worker checks before every execution and that Run may poll through
// CancellationRequested. A running task is never interrupted.
//
// Basic usage:
//
//	s := sched.New(sched.WithWorkers(2))
//	defer s.Shutdown()
//
//	t := sched.NewTask(sched.TaskFunc(func(t *sched.Task) {
//		decode()
//		t.SetFinished()
//	}), sched.WithPriority(sched.PriorityHigh))
//	s.AddTask(t)
package sched

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpusync/internal/logging"
)

// worker is the scheduling state of one worker goroutine.
type worker struct {
	id   int
	wake chan struct{}

	// Guarded by the scheduler mutex.
	reserved *Task
	idle     bool
}

func (w *worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Scheduler is a priority task scheduler backed by worker goroutines.
//
// All methods are safe for concurrent use. Hooks and Run are always called
// without the scheduler lock held, so they may call back into the
// scheduler; they must not call Shutdown or wait on their own removal.
type Scheduler struct {
	cfg config

	mu       sync.Mutex
	ready    taskHeap // eligible now, by priority then sequence
	delayed  taskHeap // eligible later, by time
	running  map[*Task]struct{}
	workers  []*worker
	idle     []*worker
	seq      uint64
	executed uint64
	requeued uint64
	canceled uint64

	slow         atomic.Uint64
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	stopped      chan struct{}
}

// New creates a scheduler and starts its workers.
func New(opts ...Option) *Scheduler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Scheduler{
		cfg:     cfg,
		ready:   taskHeap{less: readyLess},
		delayed: taskHeap{less: delayedLess},
		running: make(map[*Task]struct{}),
		stopped: make(chan struct{}),
	}
	for range cfg.workers {
		w := s.newWorker()
		s.wg.Add(1)
		go s.loop(w)
	}
	logging.Logger().Info("sched: started", "scheduler", cfg.name, "workers", cfg.workers)
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.cfg.name }

// ShuttingDown reports whether Shutdown has been called.
func (s *Scheduler) ShuttingDown() bool { return s.shuttingDown.Load() }

// Done returns a channel closed when Shutdown has stopped every worker.
func (s *Scheduler) Done() <-chan struct{} { return s.stopped }

// AddTask submits t. It returns false without queuing when t already
// belongs to a scheduler, has been canceled, or s is shutting down; in the
// last case an unowned t is canceled.
//
// A task that finished earlier is reset to Waiting and runs again.
func (s *Scheduler) AddTask(t *Task) bool {
	if t == nil {
		return false
	}
	s.mu.Lock()
	if s.shuttingDown.Load() {
		s.mu.Unlock()
		if t.host.Load() == nil {
			t.SetCanceled()
		}
		logging.Logger().Debug("sched: task rejected, shutting down", "scheduler", s.cfg.name, "task", t.String())
		return false
	}
	if t.canceled.Load() || !t.host.CompareAndSwap(nil, s) {
		s.mu.Unlock()
		return false
	}
	if t.State() == StateDone {
		t.state.Store(int32(StateWaiting))
	}
	t.seq = s.nextSeq()
	s.insert(t, s.now())
	s.wakeFor(t)
	s.mu.Unlock()
	return true
}

// RemoveTask takes t out of s.
//
// A queued task is removed at once. A running task is only removed when
// wait is true: RemoveTask then blocks until the current execution returns.
// With cancel set, a removed task that had not finished is canceled and its
// Canceled hook runs. RemoveTask reports whether t was removed; it returns
// false if t does not belong to s or is running and wait is false.
//
// A running task removed with wait cannot be resubmitted from its own
// Finished or Canceled hook; AddTask returns false there.
//
// RemoveTask must not be called with wait from the task's own Run.
func (s *Scheduler) RemoveTask(t *Task, cancel, wait bool) bool {
	ok, _ := s.removeTask(context.Background(), t, cancel, wait)
	return ok
}

// RemoveTaskContext is RemoveTask with wait, bounded by ctx. If ctx ends
// first, the task stays scheduled and ctx.Err() is returned.
func (s *Scheduler) RemoveTaskContext(ctx context.Context, t *Task, cancel bool) (bool, error) {
	return s.removeTask(ctx, t, cancel, true)
}

func (s *Scheduler) removeTask(ctx context.Context, t *Task, cancel, wait bool) (bool, error) {
	if t == nil {
		return false, nil
	}
	s.mu.Lock()
	if t.host.Load() != s {
		s.mu.Unlock()
		return false, nil
	}

	switch t.slot {
	case slotReady:
		s.ready.remove(t)
	case slotDelayed:
		s.delayed.remove(t)
	case slotReserved:
		if w := t.reservedBy; w != nil {
			w.reserved = nil
			w.notify()
		}
		t.reservedBy = nil
	case slotRunning:
		if !wait {
			s.mu.Unlock()
			return false, nil
		}
		if t.removal == nil {
			t.removal = make(chan struct{})
		}
		t.removers++
		ch := t.removal
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			s.mu.Lock()
			if t.removal == ch {
				t.removers--
				if t.removers == 0 {
					t.removal = nil
				}
				s.mu.Unlock()
				return false, ctx.Err()
			}
			s.mu.Unlock()
			<-ch
		}
		if cancel {
			s.cancelUnfinished(t)
		}
		return true, nil
	default:
		s.mu.Unlock()
		return false, nil
	}

	t.slot = slotNone
	t.host.Store(nil)
	s.mu.Unlock()
	if cancel {
		s.cancelUnfinished(t)
	}
	return true, nil
}

// cancelUnfinished cancels a removed task unless it already reached a
// terminal state, whose hook has then run.
func (s *Scheduler) cancelUnfinished(t *Task) {
	switch t.State() {
	case StateDone, StateCanceled:
		return
	}
	s.mu.Lock()
	s.canceled++
	s.mu.Unlock()
	t.cancelRemoved()
}

// Reschedule re-evaluates t after its schedule changed. A queued task is
// repositioned; a worker sleeping until t is due wakes up and re-evaluates
// its timer. It reports whether t belongs to s.
func (s *Scheduler) Reschedule(t *Task) bool {
	return s.reposition(t, nil)
}

// RescheduleWithPriority sets t's priority and reschedules it.
func (s *Scheduler) RescheduleWithPriority(t *Task, p Priority) bool {
	return s.reposition(t, &p)
}

// SetPriority sets t's priority and repositions it if queued. A running
// task keeps running and is requeued at the new priority.
func (s *Scheduler) SetPriority(t *Task, p Priority) bool {
	return s.reposition(t, &p)
}

func (s *Scheduler) reposition(t *Task, p *Priority) bool {
	if t == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		t.priority.Store(int32(*p))
	}
	if t.host.Load() != s {
		return false
	}
	switch t.slot {
	case slotReady:
		s.ready.remove(t)
		s.insert(t, s.now())
		s.wakeFor(t)
	case slotDelayed:
		s.delayed.remove(t)
		s.insert(t, s.now())
		s.wakeFor(t)
	case slotReserved:
		t.reservedBy.notify()
	}
	return true
}

// WakeAll wakes every worker so it re-evaluates the queue.
func (s *Scheduler) WakeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		w.notify()
	}
}

// TaskCount returns the number of queued and running tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len() + s.delayed.Len() + s.reservedCount() + len(s.running)
}

// RunningTasks returns the number of tasks being executed.
func (s *Scheduler) RunningTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// OverdueTasks returns the number of queued tasks that are eligible to run
// but have not been picked by a worker. A growing count means the workers
// cannot keep up.
func (s *Scheduler) OverdueTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := s.ready.Len()
	for _, t := range s.delayed.tasks {
		if t.qat <= now {
			n++
		}
	}
	for _, w := range s.workers {
		if t := w.reserved; t != nil && t.qat <= now {
			n++
		}
	}
	return n
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Workers  int
	Ready    int
	Delayed  int
	Reserved int
	Running  int
	Executed uint64
	Requeued uint64
	Canceled uint64
	Slow     uint64
}

var statsPrinter = message.NewPrinter(language.English)

// String returns a human-readable summary of the statistics.
func (st Stats) String() string {
	return statsPrinter.Sprintf("Scheduler[%d workers, %d ready, %d delayed, %d reserved, %d running, %d executed, %d requeued, %d canceled, %d slow]",
		st.Workers, st.Ready, st.Delayed, st.Reserved, st.Running,
		st.Executed, st.Requeued, st.Canceled, st.Slow)
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Workers:  len(s.workers),
		Ready:    s.ready.Len(),
		Delayed:  s.delayed.Len(),
		Reserved: s.reservedCount(),
		Running:  len(s.running),
		Executed: s.executed,
		Requeued: s.requeued,
		Canceled: s.canceled,
		Slow:     s.slow.Load(),
	}
}

// Shutdown stops accepting tasks, cancels every queued and running task
// and waits for the workers to exit. Queued tasks get their Canceled hook;
// running tasks see the cancellation flag and get theirs when Run returns.
// Shutdown is idempotent and must not be called from a task.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.shuttingDown.Store(true)
		pending := append(s.ready.drain(), s.delayed.drain()...)
		for _, w := range s.workers {
			if t := w.reserved; t != nil {
				pending = append(pending, t)
				t.reservedBy = nil
				w.reserved = nil
			}
			w.notify()
		}
		for _, t := range pending {
			t.slot = slotNone
			t.host.Store(nil)
		}
		for t := range s.running {
			t.canceled.Store(true)
		}
		s.idle = nil
		s.canceled += uint64(len(pending))
		running := len(s.running)
		s.mu.Unlock()

		// Hooks may call back into the scheduler.
		for _, t := range pending {
			t.cancelRemoved()
		}
		s.wg.Wait()
		close(s.stopped)
		logging.Logger().Info("sched: stopped", "scheduler", s.cfg.name,
			"canceled", len(pending), "interrupted", running)
	})
}

func (s *Scheduler) newWorker() *worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &worker{id: len(s.workers), wake: make(chan struct{}, 1)}
	s.workers = append(s.workers, w)
	return w
}

func (s *Scheduler) loop(w *worker) {
	defer s.wg.Done()
	for {
		t := s.pickNextTask(w)
		if t == nil {
			return
		}
		s.runTask(t)
	}
}

// pickNextTask blocks until a task is eligible and claims it for w.
// It returns nil once the scheduler shuts down.
//
// Eligible tasks are taken in priority order. When none is eligible, w
// reserves the soonest delayed task nobody else is sleeping on and waits
// until it is due or w is woken; with nothing to reserve it waits idle.
func (s *Scheduler) pickNextTask(w *worker) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.shuttingDown.Load() {
			return nil
		}
		now := s.now()
		s.promoteDue(now)
		if t := s.ready.peek(); t != nil {
			s.ready.pop()
			t.slot = slotRunning
			s.running[t] = struct{}{}
			return t
		}

		var timer *time.Timer
		var due <-chan time.Time
		if t := s.delayed.peek(); t != nil {
			s.delayed.pop()
			t.slot = slotReserved
			t.reservedBy = w
			w.reserved = t
			timer = time.NewTimer(min(time.Duration(t.qat-now), maxWait))
			due = timer.C
		} else {
			w.idle = true
			s.idle = append(s.idle, w)
		}

		s.mu.Unlock()
		select {
		case <-w.wake:
		case <-due:
		}
		if timer != nil {
			timer.Stop()
		}
		s.mu.Lock()

		if w.idle {
			s.removeIdle(w)
		}
		if t := w.reserved; t != nil {
			w.reserved = nil
			if t.slot == slotReserved && t.reservedBy == w {
				s.insert(t, s.now())
			}
		}
	}
}

// runTask executes one turn of t on the calling worker.
func (s *Scheduler) runTask(t *Task) {
	if t.State() == StateWaiting {
		if in, ok := t.work.(Initializer); ok {
			in.Initialize(t)
		}
		t.state.CompareAndSwap(int32(StateWaiting), int32(StateRunning))
	}
	if !t.canceled.Load() {
		s.execute(t)
	}
	s.finish(t)
}

func (s *Scheduler) execute(t *Task) {
	if s.cfg.slowThreshold <= 0 {
		t.work.Run(t)
		return
	}
	start := time.Now()
	watchdog := time.AfterFunc(s.cfg.slowThreshold, func() {
		s.reportSlow(t, start)
	})
	t.work.Run(t)
	if !watchdog.Stop() {
		logging.Logger().Info("sched: slow task returned",
			"scheduler", s.cfg.name, "task", t.String(), "elapsed", time.Since(start))
	}
}

func (s *Scheduler) reportSlow(t *Task, start time.Time) {
	s.slow.Add(1)
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, true)
	logging.Logger().Warn("sched: slow task",
		"scheduler", s.cfg.name,
		"task", t.String(),
		"elapsed", time.Since(start),
		"stack", string(buf[:n]))
}

// finish takes t out of the running set after an execution. A finished or
// canceled task leaves the scheduler before its hook runs, so the hook may
// submit it again, unless a RemoveTask is waiting on it: then t stays held
// until the remover is released and resubmission from the hook fails.
// A task with a pending removal leaves without requeue. Anything else goes
// to the back of its priority band.
func (s *Scheduler) finish(t *Task) {
	s.mu.Lock()
	delete(s.running, t)
	t.slot = slotNone
	s.executed++
	if s.shuttingDown.Load() {
		t.canceled.Store(true)
	}
	canceled := t.canceled.Load()
	done := canceled || t.State() == StateDone
	removal := t.removal
	t.removal = nil
	t.removers = 0

	switch {
	case done:
		if canceled {
			s.canceled++
		}
		if removal != nil {
			t.slot = slotRemoving
		} else {
			t.host.Store(nil)
		}
	case removal != nil:
		t.host.Store(nil)
	default:
		s.requeued++
		t.seq = s.nextSeq()
		s.insert(t, s.now())
	}
	s.mu.Unlock()

	if done {
		if canceled {
			t.markCanceled()
			if c, ok := t.work.(Canceler); ok {
				c.Canceled(t)
			}
		} else if f, ok := t.work.(Finisher); ok {
			f.Finished(t)
		}
	}
	if removal != nil {
		if done {
			s.mu.Lock()
			t.slot = slotNone
			t.host.Store(nil)
			s.mu.Unlock()
		}
		close(removal)
	}
}

// insert queues t by its current priority and schedule. The caller holds
// s.mu and sets t.seq.
func (s *Scheduler) insert(t *Task, now int64) {
	t.qprio = t.Priority()
	t.qat = t.scheduledAt.Load()
	t.reservedBy = nil
	if t.qat <= now {
		t.slot = slotReady
		s.ready.push(t)
		return
	}
	t.slot = slotDelayed
	s.delayed.push(t)
}

// promoteDue moves delayed tasks that are due to the ready queue.
func (s *Scheduler) promoteDue(now int64) {
	for {
		t := s.delayed.peek()
		if t == nil || t.qat > now {
			return
		}
		s.delayed.pop()
		t.slot = slotReady
		s.ready.push(t)
	}
}

// wakeFor wakes a worker that should look at t: an idle one if any,
// otherwise one sleeping on a task due later than t.
func (s *Scheduler) wakeFor(t *Task) {
	if n := len(s.idle); n > 0 {
		w := s.idle[n-1]
		s.idle = s.idle[:n-1]
		w.idle = false
		w.notify()
		return
	}
	for _, w := range s.workers {
		if r := w.reserved; r != nil && (t.slot == slotReady || t.qat < r.qat) {
			w.notify()
			return
		}
	}
}

func (s *Scheduler) removeIdle(w *worker) {
	for i, iw := range s.idle {
		if iw == w {
			s.idle = append(s.idle[:i], s.idle[i+1:]...)
			break
		}
	}
	w.idle = false
}

func (s *Scheduler) reservedCount() int {
	n := 0
	for _, w := range s.workers {
		if w.reserved != nil {
			n++
		}
	}
	return n
}

func (s *Scheduler) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *Scheduler) now() int64 {
	return s.cfg.now().UnixNano()
}
