// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package prep

import (
	"bytes"
	"image/png"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/gpusync/backend/halgl"
	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
	"github.com/gogpu/gpusync/resource"
)

// uploaded mirrors src on a fresh noop device and returns what the GPU
// holds for its populated prefix.
func uploaded(t *testing.T, src *buffer.Buffer) []byte {
	t.Helper()
	b, err := halgl.OpenNoop()
	if err != nil {
		t.Fatalf("OpenNoop() error = %v", err)
	}
	defer b.Close()

	ctx := glbuf.NewContext(resource.NewFrameClock(0), 0, b.Functions())
	mirror := glbuf.New(ctx)
	if err := mirror.Upload(src, glbuf.TargetArray); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if code := b.HAL().GetError(); code != glbuf.NoError {
		t.Fatalf("GetError() = %v after Upload", code)
	}
	if got := mirror.SyncedGeneration(); got != src.Generation() {
		t.Errorf("SyncedGeneration() = %d, want %d", got, src.Generation())
	}
	gpu := b.HAL().Contents(mirror.ID())
	n := min(len(gpu), src.DataSize())
	return bytes.Clone(gpu[:n])
}

func presized(t *testing.T, usage buffer.Usage, size int) *buffer.Buffer {
	t.Helper()
	b, err := buffer.New(usage, size)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPresizedBufferReachesGPU(t *testing.T) {
	img := testImage(4, 2)
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		t.Fatal(err)
	}
	// NRGBA with full alpha converts to identical RGBA bytes.
	pixels := bytes.Clone(img.Pix)

	tests := []struct {
		name string
		size int
		fill func(t *testing.T, dst *buffer.Buffer) error
		want []byte
	}{
		{
			name: "file",
			size: 16,
			fill: func(t *testing.T, dst *buffer.Buffer) error {
				fsys := fstest.MapFS{"mesh.bin": {Data: pattern(16)}}
				task := LoadFile(dst, "mesh.bin", WithFS(fsys), WithChunkSize(5))
				run(t, task)
				return task.Err()
			},
			want: pattern(16),
		},
		{
			name: "image",
			size: len(pixels),
			fill: func(t *testing.T, dst *buffer.Buffer) error {
				task := DecodeImage(dst, opener(encoded.Bytes()))
				run(t, task)
				return task.Err()
			},
			want: pixels,
		},
		{
			name: "generate",
			size: 4,
			fill: func(t *testing.T, dst *buffer.Buffer) error {
				task := Generate(dst, time.Millisecond, func(b *buffer.Buffer, step int) (bool, error) {
					return true, b.Write(0, []byte{9, 8, 7, 6})
				})
				run(t, task)
				return task.Err()
			},
			want: []byte{9, 8, 7, 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := presized(t, buffer.UsageStatic, tt.size)
			if err := tt.fill(t, dst); err != nil {
				t.Fatalf("task error = %v", err)
			}
			if dst.Generation() == 0 {
				t.Fatal("Generation() = 0 after filling a presized buffer")
			}
			if diff := cmp.Diff(tt.want, uploaded(t, dst)); diff != "" {
				t.Errorf("GPU contents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
