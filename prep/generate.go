// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package prep

import (
	"time"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/sched"
)

// GenerateFunc writes one step of content into dst. Step counts from 0.
// It returns done when no further steps are needed; a non-nil error ends
// the task and is reported through Task.Err.
type GenerateFunc func(dst *buffer.Buffer, step int) (done bool, err error)

type generator struct {
	dst      *buffer.Buffer
	fn       GenerateFunc
	interval time.Duration
	step     int
}

// Generate returns a recurring task that calls fn every interval until it
// reports done. The first step bumps the generation of dst, so mirrors
// reallocate before the generated bytes arrive. A zero interval requeues the task immediately, behind other
// ready tasks of its priority.
func Generate(dst *buffer.Buffer, interval time.Duration, fn GenerateFunc, opts ...sched.TaskOption) *sched.Task {
	g := &generator{dst: dst, fn: fn, interval: interval}
	opts = append([]sched.TaskOption{sched.WithTaskName("prep.Generate")}, opts...)
	return sched.NewTask(g, opts...)
}

func (g *generator) Run(t *sched.Task) {
	if g.dst == nil {
		t.Fail(ErrNilBuffer)
		return
	}
	if g.step == 0 {
		// Mirrors of a freshly created buffer have nothing allocated yet.
		g.dst.Invalidate()
	}
	done, err := g.fn(g.dst, g.step)
	g.step++
	switch {
	case err != nil:
		t.Fail(err)
	case done:
		t.SetFinished()
	case g.interval > 0:
		t.ScheduleFromNow(g.interval)
	}
}
