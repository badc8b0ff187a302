// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "sync/atomic"

// Pin keeps a Handle referenced until Release is called.
//
//	pin := h.Pin()
//	defer pin.Release()
type Pin struct {
	h        *Handle
	released atomic.Bool
}

// Handle returns the pinned handle.
func (p *Pin) Handle() *Handle {
	return p.h
}

// Release drops the reference. Only the first call has an effect.
func (p *Pin) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.h.Unref()
	}
}
