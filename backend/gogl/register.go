// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build cgo && !nogpu

package gogl

import (
	"github.com/gogpu/gpusync/backend"
	"github.com/gogpu/gpusync/glbuf"
)

func init() {
	backend.Register(backend.OpenGL, func() (backend.Backend, error) {
		fn, err := Load()
		if err != nil {
			return nil, err
		}
		return contextBackend{fn: fn}, nil
	})
}

// contextBackend borrows the caller's current GL context, so Close has
// nothing to release.
type contextBackend struct {
	fn glbuf.Functions
}

func (b contextBackend) Name() string               { return backend.OpenGL }
func (b contextBackend) Functions() glbuf.Functions { return b.fn }
func (b contextBackend) Close()                     {}
