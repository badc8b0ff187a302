// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halgl

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpusync/backend"
	"github.com/gogpu/gpusync/glbuf"
)

func init() {
	backend.Register(backend.Noop, func() (backend.Backend, error) {
		return OpenNoop()
	})
}

// NoopBackend is a function table on the HAL noop device. It owns the
// instance and device and destroys them on Close.
type NoopBackend struct {
	fn      *Functions
	release func()
}

// OpenNoop creates a noop HAL instance, opens its first adapter and wraps
// the device in a function table.
func OpenNoop() (*NoopBackend, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("halgl: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("halgl: no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgl: open device: %w", err)
	}
	fn, err := New(openDev.Device, openDev.Queue)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	release := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return &NoopBackend{fn: fn, release: release}, nil
}

// Name implements backend.Backend.
func (b *NoopBackend) Name() string { return backend.Noop }

// Functions implements backend.Backend.
func (b *NoopBackend) Functions() glbuf.Functions { return b.fn }

// HAL returns the concrete table, for callers that inspect buffer contents.
func (b *NoopBackend) HAL() *Functions { return b.fn }

// Close destroys every buffer, then the device and instance.
func (b *NoopBackend) Close() {
	b.fn.Close()
	b.release()
}
