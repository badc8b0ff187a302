// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glbuf

import "github.com/gogpu/gpusync/resource"

// State is the render context a Buffer operates in.
//
// FrameTime drives resource expiration; ThreadIndex selects which dirty
// region of a Source this context consumes; GL45 returns nil when the
// extended API is unavailable.
type State interface {
	resource.Clock
	ThreadIndex() int
	GL() Functions
	GL45() Functions45
}

// Context is a State built from a frame clock and a function table.
type Context struct {
	clock  *resource.FrameClock
	thread int
	fn     Functions
	fn45   Functions45
}

// NewContext returns a context for the given thread index.
// If fn also implements Functions45, the extended path is enabled.
func NewContext(clock *resource.FrameClock, thread int, fn Functions) *Context {
	c := &Context{clock: clock, thread: thread, fn: fn}
	if fn45, ok := fn.(Functions45); ok {
		c.fn45 = fn45
	}
	return c
}

// FrameTime returns the clock's current frame time.
func (c *Context) FrameTime() float64 { return c.clock.FrameTime() }

// ThreadIndex returns the dirty-region slot this context consumes.
func (c *Context) ThreadIndex() int { return c.thread }

// GL returns the function table.
func (c *Context) GL() Functions { return c.fn }

// GL45 returns the extended function table, or nil.
func (c *Context) GL45() Functions45 { return c.fn45 }

// Clock returns the frame clock.
func (c *Context) Clock() *resource.FrameClock { return c.clock }

// DisableGL45 hides the extended function table, forcing the mutable
// allocation path.
func (c *Context) DisableGL45() { c.fn45 = nil }
