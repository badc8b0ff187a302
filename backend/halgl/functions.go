// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package halgl implements the glbuf function table on top of gogpu/wgpu HAL.
//
// WebGPU has no bind points, no in-place reallocation and no synchronous
// buffer mapping, so halgl emulates the GL buffer model:
//
//   - each buffer name owns a hal.Buffer plus a CPU shadow copy;
//   - BufferData recreates the hal.Buffer, with usage flags derived from the
//     target it was bound to;
//   - BufferSubData, flushes and unmaps write the shadow through
//     hal.Queue.WriteBuffer, widened to 4-byte alignment;
//   - MapBufferRange hands out a window into the shadow.
//
// Misuse is reported GL-style: the call records an error code that GetError
// returns later, and the call itself does nothing.
package halgl

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
	"github.com/gogpu/gpusync/internal/logging"
)

// Errors returned by constructors.
var (
	// ErrNilDevice is returned when the device or queue is nil.
	ErrNilDevice = errors.New("halgl: device or queue is nil")

	// ErrNoHALAccess is returned when a provider does not expose HAL objects.
	ErrNoHALAccess = errors.New("halgl: provider does not expose hal.Device and hal.Queue")
)

// copyAlignment is the WebGPU alignment for queue buffer writes.
const copyAlignment = 4

// maxPendingErrors bounds the error queue like a GL driver does.
const maxPendingErrors = 32

// object is the state behind one buffer name.
type object struct {
	raw       hal.Buffer
	shadow    []byte // len = logical size, cap = aligned size
	usage     gputypes.BufferUsage
	immutable bool

	mapped    bool
	mapOffset int
	mapLength int
	mapAccess glbuf.MapAccess
}

// Functions implements glbuf.Functions and glbuf.Functions45 over a HAL
// device and queue.
//
// Functions is not safe for concurrent use; it belongs to one render
// goroutine, like a GL context.
type Functions struct {
	device hal.Device
	queue  hal.Queue

	nextID  uint32
	objects map[uint32]*object
	bound   map[glbuf.Target]uint32
	errs    []glbuf.ErrorCode
}

var (
	_ glbuf.Functions   = (*Functions)(nil)
	_ glbuf.Functions45 = (*Functions)(nil)
)

// New creates a function table over device and queue.
func New(device hal.Device, queue hal.Queue) (*Functions, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &Functions{
		device:  device,
		queue:   queue,
		objects: make(map[uint32]*object),
		bound:   make(map[glbuf.Target]uint32),
	}, nil
}

// NewFromProvider creates a function table sharing the provider's device.
// The provider must also expose HalDevice() and HalQueue() returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Functions, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: HalDevice returned %T", ErrNoHALAccess, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: HalQueue returned %T", ErrNoHALAccess, hp.HalQueue())
	}
	return New(device, queue)
}

// GenBuffer creates a buffer name with no storage.
func (f *Functions) GenBuffer() uint32 {
	f.nextID++
	f.objects[f.nextID] = &object{}
	return f.nextID
}

// DeleteBuffer destroys the buffer name and its hal.Buffer.
// Deleting an unknown name is ignored, like glDeleteBuffers.
func (f *Functions) DeleteBuffer(id uint32) {
	o, ok := f.objects[id]
	if !ok {
		return
	}
	f.destroyRaw(o)
	delete(f.objects, id)
	for target, bound := range f.bound {
		if bound == id {
			delete(f.bound, target)
		}
	}
}

// BindBuffer binds id to target.
func (f *Functions) BindBuffer(target glbuf.Target, id uint32) {
	if id == 0 {
		delete(f.bound, target)
		return
	}
	if _, ok := f.objects[id]; !ok {
		f.record(glbuf.ErrorInvalidOperation)
		return
	}
	f.bound[target] = id
}

// BufferData recreates the bound buffer with size bytes.
func (f *Functions) BufferData(target glbuf.Target, size int, data []byte, _ buffer.Usage) {
	o := f.boundObject(target)
	if o == nil {
		return
	}
	if o.immutable {
		f.record(glbuf.ErrorInvalidOperation)
		return
	}
	f.allocate(target, o, size, data)
}

// BufferStorage allocates immutable storage for the bound buffer.
func (f *Functions) BufferStorage(target glbuf.Target, size int, data []byte, _ glbuf.StorageFlags) {
	o := f.boundObject(target)
	if o == nil {
		return
	}
	if o.immutable {
		f.record(glbuf.ErrorInvalidOperation)
		return
	}
	if f.allocate(target, o, size, data) {
		o.immutable = true
	}
}

// BufferSubData writes data at offset into the bound buffer.
func (f *Functions) BufferSubData(target glbuf.Target, offset int, data []byte) {
	o := f.boundObject(target)
	if o == nil {
		return
	}
	if offset < 0 || offset+len(data) > len(o.shadow) {
		f.record(glbuf.ErrorInvalidValue)
		return
	}
	if o.mapped {
		f.record(glbuf.ErrorInvalidOperation)
		return
	}
	copy(o.shadow[offset:], data)
	f.writeThrough(o, offset, len(data))
}

// MapBufferRange returns a window into the shadow of the bound buffer.
func (f *Functions) MapBufferRange(target glbuf.Target, offset, length int, access glbuf.MapAccess) []byte {
	o := f.boundObject(target)
	if o == nil {
		return nil
	}
	switch {
	case o.mapped:
		f.record(glbuf.ErrorInvalidOperation)
		return nil
	case access&(glbuf.MapRead|glbuf.MapWrite) == 0:
		f.record(glbuf.ErrorInvalidOperation)
		return nil
	case offset < 0 || length <= 0 || offset+length > len(o.shadow):
		f.record(glbuf.ErrorInvalidValue)
		return nil
	}
	o.mapped = true
	o.mapOffset = offset
	o.mapLength = length
	o.mapAccess = access
	return o.shadow[offset : offset+length : offset+length]
}

// FlushMappedBufferRange writes a sub-range of an explicitly flushed mapping.
// The offset is relative to the start of the mapping.
func (f *Functions) FlushMappedBufferRange(target glbuf.Target, offset, length int) {
	o := f.boundObject(target)
	if o == nil {
		return
	}
	if !o.mapped || !o.mapAccess.Has(glbuf.MapFlushExplicit) {
		f.record(glbuf.ErrorInvalidOperation)
		return
	}
	if offset < 0 || length < 0 || offset+length > o.mapLength {
		f.record(glbuf.ErrorInvalidValue)
		return
	}
	f.writeThrough(o, o.mapOffset+offset, length)
}

// UnmapBuffer ends the mapping. Writable mappings without explicit flushing
// are written back in full.
func (f *Functions) UnmapBuffer(target glbuf.Target) bool {
	o := f.boundObject(target)
	if o == nil {
		return false
	}
	if !o.mapped {
		f.record(glbuf.ErrorInvalidOperation)
		return false
	}
	if o.mapAccess.Has(glbuf.MapWrite) && !o.mapAccess.Has(glbuf.MapFlushExplicit) {
		f.writeThrough(o, o.mapOffset, o.mapLength)
	}
	o.mapped = false
	o.mapOffset, o.mapLength, o.mapAccess = 0, 0, 0
	return true
}

// GetError returns and clears the oldest recorded error.
func (f *Functions) GetError() glbuf.ErrorCode {
	if len(f.errs) == 0 {
		return glbuf.NoError
	}
	e := f.errs[0]
	f.errs = f.errs[1:]
	return e
}

// Raw returns the hal.Buffer behind a buffer name, for binding in pipelines.
// Returns nil for unknown or unallocated names.
func (f *Functions) Raw(id uint32) hal.Buffer {
	if o, ok := f.objects[id]; ok {
		return o.raw
	}
	return nil
}

// Contents returns the shadow copy of a buffer name.
func (f *Functions) Contents(id uint32) []byte {
	if o, ok := f.objects[id]; ok {
		return o.shadow
	}
	return nil
}

// Usage returns the HAL usage flags of a buffer name's current allocation.
func (f *Functions) Usage(id uint32) gputypes.BufferUsage {
	if o, ok := f.objects[id]; ok {
		return o.usage
	}
	return 0
}

// Close destroys every buffer. The Functions cannot be used afterwards.
func (f *Functions) Close() {
	for id, o := range f.objects {
		f.destroyRaw(o)
		delete(f.objects, id)
	}
	clear(f.bound)
}

func (f *Functions) boundObject(target glbuf.Target) *object {
	id, ok := f.bound[target]
	if !ok {
		f.record(glbuf.ErrorInvalidOperation)
		return nil
	}
	return f.objects[id]
}

// allocate replaces o's storage. Reports whether storage was created.
func (f *Functions) allocate(target glbuf.Target, o *object, size int, data []byte) bool {
	if size < 0 || len(data) > size {
		f.record(glbuf.ErrorInvalidValue)
		return false
	}
	f.destroyRaw(o)
	o.mapped = false

	aligned := alignUp(size)
	o.shadow = make([]byte, size, aligned)
	copy(o.shadow, data)
	o.usage = usageFor(target)
	if size == 0 {
		return true
	}

	raw, err := f.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("halgl-%s", target),
		Size:  uint64(aligned),
		Usage: o.usage,
	})
	if err != nil {
		logging.Logger().Warn("halgl: buffer creation failed", "size", size, "err", err)
		o.shadow = nil
		f.record(glbuf.ErrorOutOfMemory)
		return false
	}
	o.raw = raw
	if data != nil {
		f.writeThrough(o, 0, size)
	}
	return true
}

// writeThrough sends shadow bytes [offset, offset+length) to the GPU,
// widened to copyAlignment.
func (f *Functions) writeThrough(o *object, offset, length int) {
	if o.raw == nil || length <= 0 {
		return
	}
	begin := offset &^ (copyAlignment - 1)
	end := min(alignUp(offset+length), cap(o.shadow))
	full := o.shadow[:cap(o.shadow)]
	f.queue.WriteBuffer(o.raw, uint64(begin), full[begin:end])
}

func (f *Functions) destroyRaw(o *object) {
	if o.raw != nil {
		f.device.DestroyBuffer(o.raw)
		o.raw = nil
	}
}

func (f *Functions) record(code glbuf.ErrorCode) {
	if len(f.errs) < maxPendingErrors {
		f.errs = append(f.errs, code)
	}
}

// usageFor maps a bind target to HAL usage flags. Every buffer is a copy
// source and destination so it can be written by the queue and read back.
func usageFor(target glbuf.Target) gputypes.BufferUsage {
	usage := gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	switch target {
	case glbuf.TargetArray:
		usage |= gputypes.BufferUsageVertex
	case glbuf.TargetElementArray:
		usage |= gputypes.BufferUsageIndex
	case glbuf.TargetUniform:
		usage |= gputypes.BufferUsageUniform
	case glbuf.TargetShaderStorage:
		usage |= gputypes.BufferUsageStorage
	case glbuf.TargetDrawIndirect:
		usage |= gputypes.BufferUsageIndirect
	}
	return usage
}

func alignUp(n int) int {
	return (n + copyAlignment - 1) &^ (copyAlignment - 1)
}
