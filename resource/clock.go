// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"math"
	"sync/atomic"
)

// Clock supplies the current frame time in seconds.
//
// Frame time is a monotonic counter advanced once per rendered frame, not
// wall clock, so every expiration decision made during one frame agrees.
type Clock interface {
	FrameTime() float64
}

// FrameClock is a Clock advanced explicitly by the render loop.
//
// FrameClock is safe for concurrent use.
type FrameClock struct {
	bits atomic.Uint64
}

// NewFrameClock returns a clock starting at t seconds.
func NewFrameClock(t float64) *FrameClock {
	c := &FrameClock{}
	c.bits.Store(math.Float64bits(t))
	return c
}

// FrameTime returns the current frame time.
func (c *FrameClock) FrameTime() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Advance moves the clock forward by dt seconds and returns the new time.
// Negative dt is ignored.
func (c *FrameClock) Advance(dt float64) float64 {
	if dt <= 0 || math.IsNaN(dt) {
		return c.FrameTime()
	}
	for {
		old := c.bits.Load()
		next := math.Float64frombits(old) + dt
		if c.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// Set moves the clock to t. The clock never runs backwards: a t earlier than
// the current frame time is ignored.
func (c *FrameClock) Set(t float64) {
	for {
		old := c.bits.Load()
		if math.IsNaN(t) || t <= math.Float64frombits(old) {
			return
		}
		if c.bits.CompareAndSwap(old, math.Float64bits(t)) {
			return
		}
	}
}
