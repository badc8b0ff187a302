// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects the glbuf function table a program uploads
// through.
//
// Implementations register a factory from init(), so importing a backend
// package is enough to make it available:
//
//	import _ "github.com/gogpu/gpusync/backend/halgl"
//
// # Backend Selection
//
// Use Open to request a backend by name, or OpenDefault to take the best
// one that initializes:
//
//	b, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	ctx := glbuf.NewContext(clock, 0, b.Functions())
//
// # Available Backends
//
//   - "opengl": go-gl bindings; needs a current GL context (backend/gogl)
//   - "noop": gogpu/wgpu HAL on the noop device (backend/halgl)
package backend
