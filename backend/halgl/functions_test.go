// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halgl

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
	"github.com/gogpu/gpusync/resource"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// countingDevice counts buffer creation on top of a real device.
type countingDevice struct {
	hal.Device

	created   int
	destroyed int
	lastDesc  hal.BufferDescriptor
	fail      bool
}

func (d *countingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if d.fail {
		return nil, errors.New("out of device memory")
	}
	d.created++
	d.lastDesc = *desc
	return d.Device.CreateBuffer(desc)
}

func (d *countingDevice) DestroyBuffer(b hal.Buffer) {
	d.destroyed++
	d.Device.DestroyBuffer(b)
}

func newFunctions(t *testing.T) (*Functions, *countingDevice) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	dev := &countingDevice{Device: device}
	f, err := New(dev, queue)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(f.Close)
	return f, dev
}

func drainErrors(f *Functions) []glbuf.ErrorCode {
	var out []glbuf.ErrorCode
	for {
		e := f.GetError()
		if e == glbuf.NoError {
			return out
		}
		out = append(out, e)
	}
}

func TestNewRejectsNil(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNilDevice) {
		t.Errorf("New(nil, nil) error = %v, want ErrNilDevice", err)
	}
}

func TestBufferDataAndSubData(t *testing.T) {
	f, dev := newFunctions(t)
	id := f.GenBuffer()
	f.BindBuffer(glbuf.TargetArray, id)

	f.BufferData(glbuf.TargetArray, 10, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, buffer.UsageStatic)
	if dev.created != 1 {
		t.Fatalf("created = %d, want 1", dev.created)
	}
	if dev.lastDesc.Size != 12 {
		t.Errorf("hal buffer size = %d, want 12 (aligned)", dev.lastDesc.Size)
	}
	if !dev.lastDesc.Usage.Contains(gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst) {
		t.Errorf("usage = %v, want Vertex|CopyDst", dev.lastDesc.Usage)
	}
	if f.Raw(id) == nil {
		t.Error("Raw() = nil after BufferData")
	}

	f.BufferSubData(glbuf.TargetArray, 3, []byte{0xFF, 0xFF})
	want := []byte{1, 2, 3, 0xFF, 0xFF, 6, 7, 8, 9, 10}
	if !bytes.Equal(f.Contents(id), want) {
		t.Errorf("Contents() = %v, want %v", f.Contents(id), want)
	}

	f.BufferData(glbuf.TargetArray, 32, nil, buffer.UsageDynamic)
	if dev.created != 2 || dev.destroyed != 1 {
		t.Errorf("reallocation: created=%d destroyed=%d, want 2/1", dev.created, dev.destroyed)
	}
	if errs := drainErrors(f); len(errs) != 0 {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestUsageFollowsTarget(t *testing.T) {
	tests := []struct {
		target glbuf.Target
		want   gputypes.BufferUsage
	}{
		{glbuf.TargetArray, gputypes.BufferUsageVertex},
		{glbuf.TargetElementArray, gputypes.BufferUsageIndex},
		{glbuf.TargetUniform, gputypes.BufferUsageUniform},
		{glbuf.TargetShaderStorage, gputypes.BufferUsageStorage},
	}
	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			f, _ := newFunctions(t)
			id := f.GenBuffer()
			f.BindBuffer(tt.target, id)
			f.BufferData(tt.target, 16, nil, buffer.UsageStatic)
			if !f.Usage(id).Contains(tt.want) {
				t.Errorf("Usage() = %v, want to contain %v", f.Usage(id), tt.want)
			}
		})
	}
}

func TestErrorsAreRecorded(t *testing.T) {
	f, _ := newFunctions(t)

	f.BufferData(glbuf.TargetArray, 4, nil, buffer.UsageStatic)
	f.BindBuffer(glbuf.TargetArray, 99)

	id := f.GenBuffer()
	f.BindBuffer(glbuf.TargetArray, id)
	f.BufferData(glbuf.TargetArray, 4, nil, buffer.UsageStatic)
	f.BufferSubData(glbuf.TargetArray, 2, []byte{1, 2, 3})
	f.UnmapBuffer(glbuf.TargetArray)

	want := []glbuf.ErrorCode{
		glbuf.ErrorInvalidOperation,
		glbuf.ErrorInvalidOperation,
		glbuf.ErrorInvalidValue,
		glbuf.ErrorInvalidOperation,
	}
	got := drainErrors(f)
	if len(got) != len(want) {
		t.Fatalf("errors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("error[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCreationFailureRecordsOutOfMemory(t *testing.T) {
	f, dev := newFunctions(t)
	dev.fail = true

	id := f.GenBuffer()
	f.BindBuffer(glbuf.TargetArray, id)
	f.BufferData(glbuf.TargetArray, 64, nil, buffer.UsageStatic)

	if got := f.GetError(); got != glbuf.ErrorOutOfMemory {
		t.Errorf("GetError() = %v, want OutOfMemory", got)
	}
	if f.Raw(id) != nil {
		t.Error("failed allocation must not leave a hal buffer")
	}
}

func TestMapFlushUnmap(t *testing.T) {
	f, _ := newFunctions(t)
	id := f.GenBuffer()
	f.BindBuffer(glbuf.TargetUniform, id)
	f.BufferData(glbuf.TargetUniform, 16, nil, buffer.UsageStream)

	m := f.MapBufferRange(glbuf.TargetUniform, 4, 8, glbuf.MapWrite|glbuf.MapFlushExplicit)
	if len(m) != 8 {
		t.Fatalf("mapped %d bytes, want 8", len(m))
	}
	if again := f.MapBufferRange(glbuf.TargetUniform, 0, 4, glbuf.MapWrite); again != nil {
		t.Error("mapping an already mapped buffer must fail")
	}
	copy(m, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	f.FlushMappedBufferRange(glbuf.TargetUniform, 0, 4)
	f.FlushMappedBufferRange(glbuf.TargetUniform, 6, 4)
	if !f.UnmapBuffer(glbuf.TargetUniform) {
		t.Error("UnmapBuffer() = false")
	}

	want := []byte{0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}
	if !bytes.Equal(f.Contents(id), want) {
		t.Errorf("Contents() = %v, want %v", f.Contents(id), want)
	}

	got := drainErrors(f)
	if len(got) != 2 || got[0] != glbuf.ErrorInvalidOperation || got[1] != glbuf.ErrorInvalidValue {
		t.Errorf("errors = %v, want [InvalidOperation InvalidValue]", got)
	}
}

func TestBufferStorageIsImmutable(t *testing.T) {
	f, _ := newFunctions(t)
	id := f.GenBuffer()
	f.BindBuffer(glbuf.TargetShaderStorage, id)

	f.BufferStorage(glbuf.TargetShaderStorage, 64, nil, glbuf.StorageDynamic)
	if f.Raw(id) == nil {
		t.Fatal("BufferStorage did not allocate")
	}
	f.BufferData(glbuf.TargetShaderStorage, 128, nil, buffer.UsageStatic)
	if got := f.GetError(); got != glbuf.ErrorInvalidOperation {
		t.Errorf("BufferData on immutable storage: GetError() = %v, want InvalidOperation", got)
	}
	if len(f.Contents(id)) != 64 {
		t.Errorf("immutable buffer resized to %d", len(f.Contents(id)))
	}
}

func TestDeleteBufferUnbinds(t *testing.T) {
	f, dev := newFunctions(t)
	id := f.GenBuffer()
	f.BindBuffer(glbuf.TargetArray, id)
	f.BufferData(glbuf.TargetArray, 8, nil, buffer.UsageStatic)

	f.DeleteBuffer(id)
	f.DeleteBuffer(id)
	if dev.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", dev.destroyed)
	}
	f.BufferSubData(glbuf.TargetArray, 0, []byte{1})
	if got := f.GetError(); got != glbuf.ErrorInvalidOperation {
		t.Errorf("write after delete: GetError() = %v, want InvalidOperation", got)
	}
}

// TestUploadThroughHAL drives glbuf.Buffer end to end on the noop device.
func TestUploadThroughHAL(t *testing.T) {
	f, dev := newFunctions(t)
	ctx := glbuf.NewContext(resource.NewFrameClock(0), 0, f)
	if ctx.GL45() == nil {
		t.Fatal("halgl should expose the extended function table")
	}

	src, err := buffer.New(buffer.UsageStatic, 64)
	if err != nil {
		t.Fatal(err)
	}
	_ = src.Write(0, bytes.Repeat([]byte{7}, 64))
	src.Invalidate()

	b := glbuf.New(ctx)
	if err := b.Upload(src, glbuf.TargetArray); err != nil {
		t.Fatal(err)
	}
	_ = src.Write(10, []byte{1, 2, 3})
	if err := b.Upload(src, glbuf.TargetArray); err != nil {
		t.Fatal(err)
	}

	if dev.created != 1 {
		t.Errorf("created = %d, want 1 (incremental upload must not reallocate)", dev.created)
	}
	if !bytes.Equal(f.Contents(b.ID()), src.Data()) {
		t.Error("GPU shadow does not match source after uploads")
	}
	if errs := drainErrors(f); len(errs) != 0 {
		t.Errorf("unexpected errors %v", errs)
	}

	b.Release()
	if dev.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", dev.destroyed)
	}
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider for testing.
type mockProvider struct {
	halDevice any
	halQueue  any
}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (m *mockProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

// halMockProvider also exposes HAL objects.
type halMockProvider struct {
	mockProvider
}

func (m *halMockProvider) HalDevice() any { return m.halDevice }
func (m *halMockProvider) HalQueue() any  { return m.halQueue }

func TestNewFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := NewFromProvider(&mockProvider{}); !errors.Is(err, ErrNoHALAccess) {
		t.Errorf("plain provider error = %v, want ErrNoHALAccess", err)
	}
	if _, err := NewFromProvider(&halMockProvider{mockProvider{halDevice: "nope", halQueue: queue}}); !errors.Is(err, ErrNoHALAccess) {
		t.Errorf("wrong device type error = %v, want ErrNoHALAccess", err)
	}

	f, err := NewFromProvider(&halMockProvider{mockProvider{halDevice: device, halQueue: queue}})
	if err != nil {
		t.Fatalf("NewFromProvider() error = %v", err)
	}
	defer f.Close()
	if f.GenBuffer() == 0 {
		t.Error("GenBuffer() = 0")
	}
}
