// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource tracks the lifetime of GPU-resident objects.
//
// A Handle owns one raw GPU object name and records when it was last used.
// A higher-level Cache asks each handle whether it has expired and releases
// the expired ones, reclaiming GPU memory for objects nobody has touched for
// a while.
//
// # Expiration
//
// Expiration is measured in frame time supplied by a Clock, never wall clock.
// A handle with outstanding references (Ref or Pin) never expires.
//
//	clock := resource.NewFrameClock(0)
//	h := resource.NewHandle(id, clock)
//	h.Touch()
//	clock.Advance(5)
//	h.Expired() // true: idle for more than DefaultExpirationSeconds
package resource

import (
	"math"
	"sync/atomic"

	"github.com/gogpu/gpusync/internal/logging"
)

// DefaultExpirationSeconds is the idle time after which an unreferenced
// handle is considered expired.
const DefaultExpirationSeconds = 3.0

// noCopy may be embedded into structs which must not be copied after first
// use. See go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle tracks usage recency and external references of one GPU object.
//
// Exactly one Handle owns a raw GPU name at a time. Use Move to transfer
// ownership; the moved-from handle becomes empty (ID 0).
//
// Touch, Expired, Ref and Unref may be called from any goroutine. Move and
// Release must be serialized by the owner.
type Handle struct {
	_ noCopy

	id    uint32
	clock Clock

	lastUsed   atomic.Uint64 // float64 bits
	expiration atomic.Uint64 // float64 bits
	refs       atomic.Int32
	forced     atomic.Bool
}

// NewHandle returns a handle owning the GPU object id, timed by clock.
// The handle starts touched at the current frame time.
func NewHandle(id uint32, clock Clock) *Handle {
	h := &Handle{id: id, clock: clock}
	h.expiration.Store(math.Float64bits(DefaultExpirationSeconds))
	h.Touch()
	return h
}

// ID returns the raw GPU object name, or 0 for an empty handle.
func (h *Handle) ID() uint32 {
	return h.id
}

// Touch marks the handle as used in the current frame.
func (h *Handle) Touch() {
	h.lastUsed.Store(math.Float64bits(h.now()))
}

// LastUsed returns the frame time of the last Touch.
func (h *Handle) LastUsed() float64 {
	return math.Float64frombits(h.lastUsed.Load())
}

// Expired reports whether the owner may reclaim the GPU object.
//
// A referenced handle is never expired. Otherwise a handle forced with
// SetExpired(true) is expired, and with a positive threshold the handle is
// expired once it has been idle for strictly longer than the threshold.
// A zero threshold disables automatic expiration.
func (h *Handle) Expired() bool {
	if h.refs.Load() > 0 {
		return false
	}
	if h.forced.Load() {
		return true
	}
	threshold := h.ExpirationSeconds()
	if threshold <= 0 {
		return false
	}
	return h.now()-h.LastUsed() > threshold
}

// SetExpired forces the handle expired (or clears the force).
// References still take precedence.
func (h *Handle) SetExpired(expired bool) {
	h.forced.Store(expired)
}

// SetExpirationSeconds sets the idle threshold. Zero or negative disables
// automatic expiration.
func (h *Handle) SetExpirationSeconds(seconds float64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	h.expiration.Store(math.Float64bits(seconds))
}

// ExpirationSeconds returns the idle threshold.
func (h *Handle) ExpirationSeconds() float64 {
	return math.Float64frombits(h.expiration.Load())
}

// Ref adds an external reference. Every Ref must be paired with one Unref;
// prefer Pin, which cannot be left unbalanced.
func (h *Handle) Ref() {
	h.refs.Add(1)
}

// Unref drops an external reference.
func (h *Handle) Unref() {
	if h.refs.Add(-1) < 0 {
		logging.Logger().Error("resource: unbalanced Unref", "id", h.id)
	}
}

// RefCount returns the number of outstanding references.
func (h *Handle) RefCount() int {
	return int(h.refs.Load())
}

// Pin takes a reference and returns the guard that drops it.
func (h *Handle) Pin() *Pin {
	h.Ref()
	return &Pin{h: h}
}

// Move transfers the GPU object, timestamps and settings to a new handle.
// The receiver becomes empty so that its Release is a no-op.
//
// References are not transferred; moving a referenced handle is a lifetime
// bug in the caller and is logged.
func (h *Handle) Move() *Handle {
	if n := h.refs.Load(); n != 0 {
		logging.Logger().Error("resource: handle moved while referenced", "id", h.id, "refs", n)
	}
	dst := &Handle{id: h.id, clock: h.clock}
	dst.lastUsed.Store(h.lastUsed.Load())
	dst.expiration.Store(h.expiration.Load())
	dst.forced.Store(h.forced.Load())
	h.id = 0
	return dst
}

// Release destroys the GPU object through destroy and empties the handle.
// Releasing an empty handle does nothing. Releasing a referenced handle is
// logged but still proceeds.
func (h *Handle) Release(destroy func(id uint32)) {
	if h.id == 0 {
		return
	}
	if n := h.refs.Load(); n != 0 {
		logging.Logger().Error("resource: handle released while referenced", "id", h.id, "refs", n)
	}
	id := h.id
	h.id = 0
	if destroy != nil {
		destroy(id)
	}
}

func (h *Handle) now() float64 {
	if h.clock == nil {
		return 0
	}
	return h.clock.FrameTime()
}
