// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package buffer provides the CPU-side description of a GPU buffer.
//
// A Buffer holds the bytes an application wants on the GPU together with two
// pieces of bookkeeping that let an uploader decide how much work to do:
//
//   - a generation counter, bumped on every structural change (resize, usage
//     change, explicit invalidation), meaning "the GPU copy must be rebuilt";
//   - a dirty region per consuming thread, the byte range written since that
//     thread last took it, meaning "only these bytes must be re-sent".
//
// Several render contexts may mirror one Buffer. Each uses its own thread
// index with TakeDirtyRegion, so one context consuming its dirty region never
// hides changes from another.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Buffer errors.
var (
	// ErrOutOfRange is returned when a write falls outside the buffer.
	ErrOutOfRange = errors.New("buffer: range out of bounds")

	// ErrInvalidSize is returned for negative sizes.
	ErrInvalidSize = errors.New("buffer: invalid size")
)

// DefaultThreadSlots is the number of consuming thread indices a Buffer
// tracks dirty regions for unless WithThreadSlots says otherwise.
const DefaultThreadSlots = 4

// Usage is a hint about how often the buffer contents change.
type Usage int

const (
	// UsageStatic is written once and drawn many times.
	UsageStatic Usage = iota
	// UsageDynamic is rewritten occasionally.
	UsageDynamic
	// UsageStream is rewritten every frame.
	UsageStream
)

// String returns the string representation of Usage.
func (u Usage) String() string {
	switch u {
	case UsageStatic:
		return "Static"
	case UsageDynamic:
		return "Dynamic"
	case UsageStream:
		return "Stream"
	default:
		return fmt.Sprintf("Unknown(%d)", int(u))
	}
}

// Region is a half-open byte range [Begin, End).
// Begin == End means nothing changed.
type Region struct {
	Begin int
	End   int
}

// Empty reports whether the region covers no bytes.
func (r Region) Empty() bool {
	return r.Begin >= r.End
}

// Len returns the number of bytes covered.
func (r Region) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Begin
}

// Union returns the smallest region covering both r and o.
func (r Region) Union(o Region) Region {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Region{Begin: min(r.Begin, o.Begin), End: max(r.End, o.End)}
}

// Option configures a Buffer during creation.
type Option func(*options)

type options struct {
	threadSlots int
	data        []byte
}

// WithThreadSlots sets how many consuming thread indices are tracked.
func WithThreadSlots(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threadSlots = n
		}
	}
}

// WithData sets the initial contents. The slice is copied.
func WithData(p []byte) Option {
	return func(o *options) {
		o.data = p
	}
}

// Buffer is a CPU-side buffer with generation and dirty-region tracking.
//
// Buffer is safe for concurrent use. The slice returned by Data stays valid
// but may observe concurrent writes; uploaders that need a consistent view
// must serialize writers themselves.
type Buffer struct {
	mu sync.RWMutex

	usage      Usage
	size       int
	data       []byte
	generation atomic.Uint64

	// dirty holds one pending region per consuming thread index.
	dirty []Region
}

// New creates a buffer of the given logical size.
// The buffer starts at generation 0 with no populated data unless WithData is
// given, in which case the data is populated and marked dirty.
func New(usage Usage, size int, opts ...Option) (*Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	o := options{threadSlots: DefaultThreadSlots}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.data) > size {
		return nil, fmt.Errorf("%w: %d bytes of data for size %d", ErrOutOfRange, len(o.data), size)
	}

	b := &Buffer{
		usage: usage,
		size:  size,
		data:  make([]byte, len(o.data), size),
		dirty: make([]Region, o.threadSlots),
	}
	copy(b.data, o.data)
	if len(o.data) > 0 {
		b.markDirtyLocked(Region{Begin: 0, End: len(o.data)})
	}
	return b, nil
}

// Usage returns the usage hint.
func (b *Buffer) Usage() Usage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage
}

// BufferSize returns the logical size in bytes.
func (b *Buffer) BufferSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// DataSize returns how many leading bytes are populated.
// DataSize is never larger than BufferSize.
func (b *Buffer) DataSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Data returns the populated bytes.
func (b *Buffer) Data() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// Generation returns the structural generation. It never decreases.
func (b *Buffer) Generation() uint64 {
	return b.generation.Load()
}

// ThreadSlots returns the number of tracked thread indices.
func (b *Buffer) ThreadSlots() int {
	return len(b.dirty)
}

// Write copies p into the buffer at offset and marks the range dirty.
// Writing past the populated prefix extends it; writing past the logical
// size is an error and nothing is written.
func (b *Buffer) Write(offset int, p []byte) error {
	if len(p) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	end := offset + len(p)
	if offset < 0 || end > b.size {
		return fmt.Errorf("%w: [%d, %d) in buffer of %d bytes", ErrOutOfRange, offset, end, b.size)
	}
	if end > len(b.data) {
		b.growDataLocked(end)
	}
	copy(b.data[offset:end], p)
	b.markDirtyLocked(Region{Begin: offset, End: end})
	return nil
}

// SetData replaces the contents with p. If p does not fit the logical size,
// the buffer is resized to len(p), which bumps the generation.
func (b *Buffer) SetData(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) > b.size {
		b.size = len(p)
		b.bumpLocked()
	}
	data := make([]byte, len(p), b.size)
	copy(data, p)
	b.data = data
	if len(p) > 0 {
		b.markDirtyLocked(Region{Begin: 0, End: len(p)})
	}
}

// Resize changes the logical size and bumps the generation.
// Populated data beyond the new size is dropped.
func (b *Buffer) Resize(size int) error {
	if size < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if size == b.size {
		return nil
	}
	n := min(len(b.data), size)
	data := make([]byte, n, size)
	copy(data, b.data)
	b.data = data
	b.size = size
	for i := range b.dirty {
		b.dirty[i] = clampRegion(b.dirty[i], size)
	}
	b.bumpLocked()
	return nil
}

// SetUsage changes the usage hint. A change bumps the generation.
func (b *Buffer) SetUsage(u Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u != b.usage {
		b.usage = u
		b.bumpLocked()
	}
}

// Invalidate bumps the generation without changing size or usage, asking
// every mirror to treat the whole contents as new.
func (b *Buffer) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bumpLocked()
}

// MarkDirty records [begin, end) as modified for every thread index.
// The range is clamped to the buffer.
func (b *Buffer) MarkDirty(begin, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markDirtyLocked(Region{Begin: begin, End: end})
}

// TakeDirtyRegion returns the bytes modified since the previous take for the
// given thread index and resets that index's region. Other indices are not
// affected. An out-of-range thread index returns an empty region.
func (b *Buffer) TakeDirtyRegion(thread int) Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	if thread < 0 || thread >= len(b.dirty) {
		return Region{}
	}
	r := b.dirty[thread]
	b.dirty[thread] = Region{}
	return r
}

func (b *Buffer) markDirtyLocked(r Region) {
	r = clampRegion(r, b.size)
	if r.Empty() {
		return
	}
	for i := range b.dirty {
		b.dirty[i] = b.dirty[i].Union(r)
	}
}

func (b *Buffer) growDataLocked(n int) {
	if n <= cap(b.data) {
		b.data = b.data[:n]
		return
	}
	data := make([]byte, n, b.size)
	copy(data, b.data)
	b.data = data
}

func (b *Buffer) bumpLocked() {
	b.generation.Add(1)
}

func clampRegion(r Region, size int) Region {
	r.Begin = max(r.Begin, 0)
	r.End = min(r.End, size)
	if r.Begin >= r.End {
		return Region{}
	}
	return r
}
