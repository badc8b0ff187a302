// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glbuf

import (
	"fmt"

	"github.com/gogpu/gpusync/buffer"
)

// Target is the binding point a buffer is bound to for an operation.
type Target uint32

// Buffer targets. Values match the OpenGL enums so backends can pass them
// through unchanged.
const (
	TargetArray         Target = 0x8892
	TargetElementArray  Target = 0x8893
	TargetPixelPack     Target = 0x88EB
	TargetPixelUnpack   Target = 0x88EC
	TargetUniform       Target = 0x8A11
	TargetTexture       Target = 0x8C2A
	TargetCopyRead      Target = 0x8F36
	TargetCopyWrite     Target = 0x8F37
	TargetDrawIndirect  Target = 0x8F3F
	TargetShaderStorage Target = 0x90D2
)

// String returns the string representation of Target.
func (t Target) String() string {
	switch t {
	case TargetArray:
		return "Array"
	case TargetElementArray:
		return "ElementArray"
	case TargetPixelPack:
		return "PixelPack"
	case TargetPixelUnpack:
		return "PixelUnpack"
	case TargetUniform:
		return "Uniform"
	case TargetTexture:
		return "Texture"
	case TargetCopyRead:
		return "CopyRead"
	case TargetCopyWrite:
		return "CopyWrite"
	case TargetDrawIndirect:
		return "DrawIndirect"
	case TargetShaderStorage:
		return "ShaderStorage"
	default:
		return fmt.Sprintf("Target(0x%X)", uint32(t))
	}
}

// MapAccess is the access bitfield for MapBufferRange.
type MapAccess uint32

// Map access flags, matching GL_MAP_*_BIT.
const (
	MapRead             MapAccess = 0x0001
	MapWrite            MapAccess = 0x0002
	MapInvalidateRange  MapAccess = 0x0004
	MapInvalidateBuffer MapAccess = 0x0008
	MapFlushExplicit    MapAccess = 0x0010
	MapUnsynchronized   MapAccess = 0x0020
	MapPersistent       MapAccess = 0x0040
	MapCoherent         MapAccess = 0x0080
)

// Has reports whether all bits of f are set.
func (a MapAccess) Has(f MapAccess) bool {
	return a&f == f
}

// StorageFlags is the flag bitfield for immutable buffer storage.
type StorageFlags uint32

// Storage flags, matching GL_*_BIT for glBufferStorage.
const (
	StorageMapRead       StorageFlags = 0x0001
	StorageMapWrite      StorageFlags = 0x0002
	StorageMapPersistent StorageFlags = 0x0040
	StorageMapCoherent   StorageFlags = 0x0080
	StorageDynamic       StorageFlags = 0x0100
	StorageClient        StorageFlags = 0x0200
)

// WholeRange passed as a length to Unmap means "the length is unknown";
// no explicit flush is issued.
const WholeRange = -1

// ErrorCode is a GPU error reported by Functions.GetError.
type ErrorCode uint32

// Error codes, matching the OpenGL enums.
const (
	NoError                   ErrorCode = 0
	ErrorInvalidEnum          ErrorCode = 0x0500
	ErrorInvalidValue         ErrorCode = 0x0501
	ErrorInvalidOperation     ErrorCode = 0x0502
	ErrorOutOfMemory          ErrorCode = 0x0505
	ErrorInvalidFramebufferOp ErrorCode = 0x0506
	ErrorContextLost          ErrorCode = 0x0507
)

// String returns the string representation of ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case NoError:
		return "NoError"
	case ErrorInvalidEnum:
		return "InvalidEnum"
	case ErrorInvalidValue:
		return "InvalidValue"
	case ErrorInvalidOperation:
		return "InvalidOperation"
	case ErrorOutOfMemory:
		return "OutOfMemory"
	case ErrorInvalidFramebufferOp:
		return "InvalidFramebufferOperation"
	case ErrorContextLost:
		return "ContextLost"
	default:
		return fmt.Sprintf("Error(0x%X)", uint32(e))
	}
}

// Functions is the GPU function table a Buffer drives.
//
// Implementations wrap a real API (see backend/gogl and backend/halgl).
// Calls are made from the goroutine that owns the GPU context; Functions
// need not be safe for concurrent use.
type Functions interface {
	// GenBuffer creates a buffer name. Zero means failure.
	GenBuffer() uint32

	// DeleteBuffer releases a buffer name and its storage.
	DeleteBuffer(id uint32)

	// BindBuffer binds id to target. Id 0 unbinds.
	BindBuffer(target Target, id uint32)

	// BufferData (re)allocates the bound buffer with size bytes.
	// A nil data leaves the contents undefined.
	BufferData(target Target, size int, data []byte, usage buffer.Usage)

	// BufferSubData writes data at offset into the bound buffer.
	BufferSubData(target Target, offset int, data []byte)

	// MapBufferRange maps [offset, offset+length) of the bound buffer.
	// Returns nil if the mapping is refused.
	MapBufferRange(target Target, offset, length int, access MapAccess) []byte

	// FlushMappedBufferRange flushes a sub-range of an explicitly flushed
	// mapping. Offset is relative to the start of the mapping.
	FlushMappedBufferRange(target Target, offset, length int)

	// UnmapBuffer ends the mapping of the bound buffer. Returns false if the
	// contents were corrupted while mapped.
	UnmapBuffer(target Target) bool

	// GetError returns and clears the oldest pending error.
	GetError() ErrorCode
}

// Functions45 is the extended function table of GPU APIs that support
// immutable buffer storage.
type Functions45 interface {
	// BufferStorage allocates immutable storage for the bound buffer.
	BufferStorage(target Target, size int, data []byte, flags StorageFlags)
}

// Source is the CPU-side buffer a Buffer mirrors. *buffer.Buffer implements it.
type Source interface {
	Usage() buffer.Usage
	BufferSize() int
	DataSize() int
	Data() []byte
	Generation() uint64
	TakeDirtyRegion(thread int) buffer.Region
}

var _ Source = (*buffer.Buffer)(nil)
