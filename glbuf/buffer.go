// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package glbuf keeps GPU buffer objects in sync with CPU-side buffers.
//
// A Buffer mirrors one Source (typically a *buffer.Buffer) inside one render
// context. Each frame the context calls Upload, which compares the Source's
// generation and dirty region against what was last sent and issues the
// cheapest GPU calls that make the two agree:
//
//   - nothing changed: no GPU call at all;
//   - bytes changed: one sub-range write covering the dirty region;
//   - structure changed (new generation): reallocate, or rewrite the
//     populated prefix when size and usage are unchanged.
//
// Several Buffers, one per render context, may mirror the same Source; each
// consumes the dirty region of its own thread index.
//
// Buffer methods must be called from the goroutine that owns the context's
// GPU function table.
package glbuf

import (
	"errors"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/internal/logging"
	"github.com/gogpu/gpusync/resource"
)

// Buffer errors.
var (
	// ErrReleased is returned when operating on a released buffer.
	ErrReleased = errors.New("glbuf: buffer has been released")

	// ErrNilSource is returned when uploading from a nil source.
	ErrNilSource = errors.New("glbuf: source is nil")

	// ErrInvalidRange is returned for negative offsets or lengths.
	ErrInvalidRange = errors.New("glbuf: invalid range")

	// ErrMapRefused is returned when the driver refuses a mapping.
	ErrMapRefused = errors.New("glbuf: mapping refused")
)

// Buffer is the GPU-side mirror of a Source.
type Buffer struct {
	state  State
	handle *resource.Handle

	usage            buffer.Usage
	size             int
	allocatedSize    int
	syncedGeneration uint64
	mapAccess        MapAccess
}

// New creates a GPU buffer name in the given context.
// The buffer starts uninitialized: nothing allocated, synced generation 0.
func New(state State) *Buffer {
	fn := state.GL()
	id := fn.GenBuffer()
	checkError(fn, "GenBuffer")
	return &Buffer{
		state:  state,
		handle: resource.NewHandle(id, state),
	}
}

// Handle returns the resource handle owning the GPU buffer name.
func (b *Buffer) Handle() *resource.Handle { return b.handle }

// ID returns the GPU buffer name, or 0 after Release.
func (b *Buffer) ID() uint32 { return b.handle.ID() }

// Usage returns the usage of the current allocation.
func (b *Buffer) Usage() buffer.Usage { return b.usage }

// Size returns the logical size in bytes.
func (b *Buffer) Size() int { return b.size }

// AllocatedSize returns the size of the GPU allocation in bytes.
func (b *Buffer) AllocatedSize() int { return b.allocatedSize }

// SyncedGeneration returns the Source generation last reconciled.
func (b *Buffer) SyncedGeneration() uint64 { return b.syncedGeneration }

// MapAccess returns the access flags of the active mapping, or 0.
func (b *Buffer) MapAccess() MapAccess { return b.mapAccess }

// Bind binds the buffer to target and touches its handle.
func (b *Buffer) Bind(target Target) {
	b.handle.Touch()
	fn := b.state.GL()
	fn.BindBuffer(target, b.handle.ID())
	checkError(fn, "BindBuffer")
}

// Upload reconciles the GPU buffer with src.
//
// The dirty region of this context's thread index is consumed. When the
// synced generation is behind src the buffer is rebuilt; otherwise only the
// dirty bytes are written, and nothing at all when there are none.
func (b *Buffer) Upload(src Source, target Target) error {
	if b.handle.ID() == 0 {
		return ErrReleased
	}
	if src == nil {
		return ErrNilSource
	}

	b.handle.Touch()
	dirty := src.TakeDirtyRegion(b.state.ThreadIndex())
	generation := src.Generation()
	recreate := b.syncedGeneration < generation

	if !recreate && dirty.Empty() {
		return nil
	}

	fn := b.state.GL()
	fn.BindBuffer(target, b.handle.ID())
	checkError(fn, "BindBuffer")

	if !recreate {
		data := src.Data()
		end := min(dirty.End, len(data))
		if dirty.Begin < end {
			fn.BufferSubData(target, dirty.Begin, data[dirty.Begin:end])
			checkError(fn, "BufferSubData")
		}
		return nil
	}

	bufferSize := src.BufferSize()
	usage := src.Usage()
	data := src.Data()
	dataSize := min(src.DataSize(), len(data), bufferSize)

	reallocate := bufferSize != b.allocatedSize || usage != b.usage
	switch {
	case reallocate && dataSize == bufferSize:
		logging.Logger().Debug("glbuf: reallocate with data",
			"id", b.handle.ID(), "size", bufferSize, "usage", usage)
		fn.BufferData(target, bufferSize, data[:dataSize], usage)
		checkError(fn, "BufferData")
	case reallocate:
		logging.Logger().Debug("glbuf: reallocate and upload prefix",
			"id", b.handle.ID(), "size", bufferSize, "data", dataSize, "usage", usage)
		fn.BufferData(target, bufferSize, nil, usage)
		checkError(fn, "BufferData")
		if dataSize > 0 {
			fn.BufferSubData(target, 0, data[:dataSize])
			checkError(fn, "BufferSubData")
		}
	case dataSize > 0:
		fn.BufferSubData(target, 0, data[:dataSize])
		checkError(fn, "BufferSubData")
	}

	b.syncedGeneration = generation
	b.size = bufferSize
	b.allocatedSize = bufferSize
	b.usage = usage
	return nil
}

// UploadRange writes data at offset, bypassing generation tracking.
// The logical size grows to cover the write and the GPU storage is
// reallocated when it is too small; reallocation discards earlier contents.
//
// Mixing UploadRange with Upload on the same Buffer is not supported.
func (b *Buffer) UploadRange(target Target, offset int, data []byte) error {
	if b.handle.ID() == 0 {
		return ErrReleased
	}
	if offset < 0 {
		return ErrInvalidRange
	}
	if len(data) == 0 {
		return nil
	}

	b.handle.Touch()
	fn := b.state.GL()
	fn.BindBuffer(target, b.handle.ID())
	checkError(fn, "BindBuffer")

	b.grow(target, offset+len(data))
	fn.BufferSubData(target, offset, data)
	checkError(fn, "BufferSubData")
	return nil
}

// Map maps [offset, offset+length) for direct CPU access, growing the
// allocation first if needed. A refused mapping returns a nil slice and
// ErrMapRefused.
func (b *Buffer) Map(target Target, offset, length int, access MapAccess) ([]byte, error) {
	if b.handle.ID() == 0 {
		return nil, ErrReleased
	}
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}

	b.handle.Touch()
	fn := b.state.GL()
	fn.BindBuffer(target, b.handle.ID())
	checkError(fn, "BindBuffer")

	b.grow(target, offset+length)
	ptr := fn.MapBufferRange(target, offset, length, access)
	checkError(fn, "MapBufferRange")
	if ptr == nil {
		logging.Logger().Warn("glbuf: map refused",
			"id", b.handle.ID(), "offset", offset, "length", length, "target", target.String())
		return nil, ErrMapRefused
	}
	b.mapAccess = access
	return ptr, nil
}

// Unmap ends a mapping started by Map. If the mapping was created with
// MapFlushExplicit and length is not WholeRange, [offset, offset+length) of
// the mapping is flushed first.
func (b *Buffer) Unmap(target Target, offset, length int) {
	if b.handle.ID() == 0 {
		return
	}
	fn := b.state.GL()
	fn.BindBuffer(target, b.handle.ID())
	checkError(fn, "BindBuffer")

	if b.mapAccess.Has(MapFlushExplicit) && length != WholeRange {
		fn.FlushMappedBufferRange(target, offset, length)
		checkError(fn, "FlushMappedBufferRange")
	}
	if !fn.UnmapBuffer(target) {
		logging.Logger().Warn("glbuf: buffer contents lost while mapped", "id", b.handle.ID())
	}
	checkError(fn, "UnmapBuffer")
	b.mapAccess = 0
}

// AllocateImmutable allocates immutable storage of size bytes when the
// context exposes the extended API. It returns false, doing nothing, when
// the API is unavailable; the caller then falls back to the mutable path.
func (b *Buffer) AllocateImmutable(target Target, size int, flags StorageFlags) bool {
	fn45 := b.state.GL45()
	if fn45 == nil || b.handle.ID() == 0 || size < 0 {
		return false
	}

	b.handle.Touch()
	fn := b.state.GL()
	fn.BindBuffer(target, b.handle.ID())
	checkError(fn, "BindBuffer")

	fn45.BufferStorage(target, size, nil, flags)
	checkError(fn, "BufferStorage")
	b.allocatedSize = size
	b.size = max(b.size, size)
	return true
}

// Release deletes the GPU buffer name. Releasing while the handle is still
// referenced is logged as a lifetime bug.
func (b *Buffer) Release() {
	fn := b.state.GL()
	b.handle.Release(func(id uint32) {
		fn.DeleteBuffer(id)
		checkError(fn, "DeleteBuffer")
	})
	b.size = 0
	b.allocatedSize = 0
	b.mapAccess = 0
}

// grow extends the logical size to at least n and reallocates the bound
// buffer when the current allocation is smaller.
func (b *Buffer) grow(target Target, n int) {
	b.size = max(b.size, n)
	if b.allocatedSize >= b.size {
		return
	}
	fn := b.state.GL()
	fn.BufferData(target, b.size, nil, b.usage)
	checkError(fn, "BufferData")
	b.allocatedSize = b.size
}
