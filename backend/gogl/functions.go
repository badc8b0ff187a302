// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build cgo && !nogpu

// Package gogl implements the glbuf function table over native OpenGL using
// github.com/go-gl/gl.
//
// Load must be called on the goroutine that owns the current GL context,
// after the context has been made current. The returned table is bound to
// that goroutine; callers typically runtime.LockOSThread first.
package gogl

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.5-core/gl"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
	"github.com/gogpu/gpusync/internal/logging"
)

// ErrInit is returned when the GL entry points cannot be loaded.
var ErrInit = errors.New("gogl: failed to load OpenGL functions")

// Version is an OpenGL context version.
type Version struct {
	Major, Minor int
}

// AtLeast reports whether v is major.minor or newer.
func (v Version) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Functions forwards glbuf.Functions to the current GL context.
type Functions struct {
	version Version
}

// Functions45 adds immutable storage. It is returned by Load only when the
// context supports glBufferStorage (OpenGL 4.4 or newer).
type Functions45 struct {
	Functions
}

var (
	_ glbuf.Functions   = (*Functions)(nil)
	_ glbuf.Functions45 = (*Functions45)(nil)
)

// Load initializes the GL bindings for the current context and returns the
// most capable function table it supports.
func Load() (glbuf.Functions, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	v := Version{Major: int(major), Minor: int(minor)}

	logging.Logger().Info("gogl: context loaded",
		"version", v.String(),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	if v.AtLeast(4, 4) {
		return &Functions45{Functions{version: v}}, nil
	}
	return &Functions{version: v}, nil
}

// Version returns the context version detected by Load.
func (f *Functions) Version() Version { return f.version }

// GenBuffer wraps glGenBuffers.
func (f *Functions) GenBuffer() uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	return id
}

// DeleteBuffer wraps glDeleteBuffers.
func (f *Functions) DeleteBuffer(id uint32) {
	gl.DeleteBuffers(1, &id)
}

// BindBuffer wraps glBindBuffer.
func (f *Functions) BindBuffer(target glbuf.Target, id uint32) {
	gl.BindBuffer(uint32(target), id)
}

// BufferData wraps glBufferData. A nil data allocates uninitialized storage.
func (f *Functions) BufferData(target glbuf.Target, size int, data []byte, usage buffer.Usage) {
	gl.BufferData(uint32(target), size, ptr(data), drawUsage(usage))
}

// BufferSubData wraps glBufferSubData.
func (f *Functions) BufferSubData(target glbuf.Target, offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BufferSubData(uint32(target), offset, len(data), gl.Ptr(data))
}

// MapBufferRange wraps glMapBufferRange. The returned slice aliases driver
// memory and is valid until UnmapBuffer.
func (f *Functions) MapBufferRange(target glbuf.Target, offset, length int, access glbuf.MapAccess) []byte {
	p := gl.MapBufferRange(uint32(target), offset, length, uint32(access))
	if p == nil || length <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), length)
}

// FlushMappedBufferRange wraps glFlushMappedBufferRange.
func (f *Functions) FlushMappedBufferRange(target glbuf.Target, offset, length int) {
	gl.FlushMappedBufferRange(uint32(target), offset, length)
}

// UnmapBuffer wraps glUnmapBuffer.
func (f *Functions) UnmapBuffer(target glbuf.Target) bool {
	return gl.UnmapBuffer(uint32(target))
}

// GetError wraps glGetError.
func (f *Functions) GetError() glbuf.ErrorCode {
	return glbuf.ErrorCode(gl.GetError())
}

// BufferStorage wraps glBufferStorage.
func (f *Functions45) BufferStorage(target glbuf.Target, size int, data []byte, flags glbuf.StorageFlags) {
	gl.BufferStorage(uint32(target), size, ptr(data), uint32(flags))
}

// drawUsage maps a buffer usage hint to the GL *_DRAW enum.
func drawUsage(u buffer.Usage) uint32 {
	switch u {
	case buffer.UsageDynamic:
		return gl.DYNAMIC_DRAW
	case buffer.UsageStream:
		return gl.STREAM_DRAW
	default:
		return gl.STATIC_DRAW
	}
}

func ptr(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return gl.Ptr(data)
}
