// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package halgl

import (
	"bytes"
	"testing"

	"github.com/gogpu/gpusync/backend"
	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
)

func TestNoopRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.Noop) {
		t.Fatal("noop backend should be registered on import")
	}
	b, err := backend.Open(backend.Noop)
	if err != nil {
		t.Fatalf("Open(noop) error = %v", err)
	}
	defer b.Close()
	if b.Name() != backend.Noop {
		t.Errorf("Name() = %q, want %q", b.Name(), backend.Noop)
	}
	if _, ok := b.Functions().(*Functions); !ok {
		t.Errorf("Functions() = %T, want *halgl.Functions", b.Functions())
	}
}

func TestOpenNoopRoundTrip(t *testing.T) {
	b, err := OpenNoop()
	if err != nil {
		t.Fatalf("OpenNoop() error = %v", err)
	}
	defer b.Close()

	fn := b.HAL()
	id := fn.GenBuffer()
	fn.BindBuffer(glbuf.TargetArray, id)
	fn.BufferData(glbuf.TargetArray, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buffer.UsageStatic)
	if code := fn.GetError(); code != glbuf.NoError {
		t.Fatalf("GetError() = %v", code)
	}
	if got := fn.Contents(id); !bytes.Equal(got[:8], []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("Contents() = %v", got)
	}
}
