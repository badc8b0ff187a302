// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpusync keeps GPU buffers in step with CPU data and prepares that
// data in the background.
//
// # Overview
//
// Rendering code mutates CPU-side buffers and, once per frame, asks each
// render context to reconcile its GPU copy. Slow preparation (decoding
// images, reading files, generating geometry) runs on a priority scheduler
// so the render loop never blocks on it.
//
// # Packages
//
//   - resource: GPU resource handles with frame-time expiration, reference
//     pins and an expiring cache
//   - buffer: CPU buffers with a generation counter and per-context dirty
//     regions
//   - glbuf: GPU buffer mirrors that upload only what changed
//   - backend: registry that opens a glbuf function table by name
//   - backend/halgl: glbuf function table over gogpu/wgpu HAL
//   - backend/gogl: glbuf function table over native OpenGL (cgo)
//   - sched: priority task scheduler with delays, cancellation and removal
//   - prep: scheduler tasks that fill buffers (images, files, generators)
//
// # Quick Start
//
//	clock := resource.NewFrameClock(0)
//	b, _ := backend.Open(backend.Noop) // import _ ".../backend/halgl"
//	defer b.Close()
//	ctx := glbuf.NewContext(clock, 0, b.Functions())
//
//	src, _ := buffer.New(buffer.UsageStatic, 0)
//	sched.Default().AddTask(prep.DecodeImageFile(src, "atlas.png"))
//
//	gpu := glbuf.New(ctx)
//	for range frames {
//		clock.Advance(dt)
//		_ = gpu.Upload(src, glbuf.TargetPixelUnpack)
//	}
//
// # Logging
//
// Every package logs through the logger installed with SetLogger. The
// default logger discards everything.
package gpusync

// Version is the current version of the library.
const Version = "0.1.0"
