// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import "container/heap"

// taskHeap is an indexed binary heap of tasks. Each task records its
// position in index so it can be removed or fixed in O(log n).
type taskHeap struct {
	tasks []*Task
	less  func(a, b *Task) bool
}

func (h *taskHeap) Len() int           { return len(h.tasks) }
func (h *taskHeap) Less(i, j int) bool { return h.less(h.tasks[i], h.tasks[j]) }

func (h *taskHeap) Swap(i, j int) {
	h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i]
	h.tasks[i].index = i
	h.tasks[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(h.tasks)
	h.tasks = append(h.tasks, t)
}

func (h *taskHeap) Pop() any {
	n := len(h.tasks) - 1
	t := h.tasks[n]
	h.tasks[n] = nil
	h.tasks = h.tasks[:n]
	t.index = -1
	return t
}

func (h *taskHeap) peek() *Task {
	if len(h.tasks) == 0 {
		return nil
	}
	return h.tasks[0]
}

func (h *taskHeap) push(t *Task) { heap.Push(h, t) }
func (h *taskHeap) pop() *Task   { return heap.Pop(h).(*Task) }

func (h *taskHeap) remove(t *Task) {
	if t.index >= 0 && t.index < len(h.tasks) && h.tasks[t.index] == t {
		heap.Remove(h, t.index)
	}
}

// drain empties the heap and returns its tasks in no particular order.
func (h *taskHeap) drain() []*Task {
	out := h.tasks
	for _, t := range out {
		t.index = -1
	}
	h.tasks = nil
	return out
}

// readyLess orders eligible tasks by priority, then by insertion sequence.
// A requeued task takes a new sequence number and so goes to the back of
// its priority band.
func readyLess(a, b *Task) bool {
	if a.qprio != b.qprio {
		return a.qprio > b.qprio
	}
	return a.seq < b.seq
}

// delayedLess orders future tasks by scheduled time, then like readyLess.
func delayedLess(a, b *Task) bool {
	if a.qat != b.qat {
		return a.qat < b.qat
	}
	return readyLess(a, b)
}
