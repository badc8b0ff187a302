// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package prep provides scheduler tasks that fill a buffer.Buffer off the
// render goroutine, so that the render goroutine only has to upload.
//
// Each constructor returns a *sched.Task ready for Scheduler.AddTask.
// Failures never escape through the scheduler: they are recorded on the
// task and read back with Task.Err once the task is done.
package prep

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/internal/logging"
	"github.com/gogpu/gpusync/sched"
)

// Errors reported through Task.Err.
var (
	// ErrNilBuffer is reported when a task has no destination buffer.
	ErrNilBuffer = errors.New("prep: destination buffer is nil")

	// ErrEmptyImage is reported for images with no pixels.
	ErrEmptyImage = errors.New("prep: image is empty")
)

// Opener opens the encoded source of an image.
type Opener func() (io.ReadCloser, error)

// ImageOption configures DecodeImage.
type ImageOption func(*imageDecoder)

// WithMaxSize downscales images larger than w x h, keeping the aspect
// ratio. Zero disables the bound for that axis.
func WithMaxSize(w, h int) ImageOption {
	return func(d *imageDecoder) {
		d.maxW, d.maxH = w, h
	}
}

// WithScaler sets the interpolator used for downscaling.
// The default is draw.CatmullRom.
func WithScaler(s draw.Scaler) ImageOption {
	return func(d *imageDecoder) { d.scaler = s }
}

// ImageInfo describes a decoded image.
type ImageInfo struct {
	Width, Height int
	Format        string // "png", "jpeg", "gif", "bmp", "tiff" or "webp"
	Stride        int    // bytes per row in the buffer
}

type imageDecoder struct {
	dst    *buffer.Buffer
	open   Opener
	maxW   int
	maxH   int
	scaler draw.Scaler

	mu   sync.Mutex
	info ImageInfo
}

// DecodeImage returns a task that decodes an image into dst as tightly
// packed RGBA8 rows. dst is resized to fit the pixels and its generation
// bumped, so every mirror reallocates, even when the size already matched.
//
// PNG, JPEG, GIF, BMP, TIFF and WebP are supported.
func DecodeImage(dst *buffer.Buffer, open Opener, opts ...ImageOption) *sched.Task {
	d := &imageDecoder{dst: dst, open: open, scaler: draw.CatmullRom}
	for _, opt := range opts {
		opt(d)
	}
	return sched.NewTask(d, sched.WithTaskName("prep.DecodeImage"))
}

// DecodeImageFile is DecodeImage reading from a file.
func DecodeImageFile(dst *buffer.Buffer, path string, opts ...ImageOption) *sched.Task {
	return DecodeImage(dst, func() (io.ReadCloser, error) { return os.Open(path) }, opts...)
}

// DecodedImage returns what a DecodeImage task produced. It reports false
// if t is not a DecodeImage task or has not finished successfully.
func DecodedImage(t *sched.Task) (ImageInfo, bool) {
	d, ok := t.Work().(*imageDecoder)
	if !ok || t.State() != sched.StateDone || t.Err() != nil {
		return ImageInfo{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info, true
}

func (d *imageDecoder) Run(t *sched.Task) {
	if d.dst == nil {
		t.Fail(ErrNilBuffer)
		return
	}
	rc, err := d.open()
	if err != nil {
		t.Fail(fmt.Errorf("prep: open image: %w", err))
		return
	}
	src, format, err := image.Decode(rc)
	rc.Close()
	if err != nil {
		t.Fail(fmt.Errorf("prep: decode image: %w", err))
		return
	}
	if src.Bounds().Empty() {
		t.Fail(ErrEmptyImage)
		return
	}
	if t.CancellationRequested() {
		t.SetCanceled()
		return
	}

	rgba := d.convert(src)
	if err := refill(d.dst, len(rgba.Pix)); err != nil {
		t.Fail(err)
		return
	}
	d.dst.SetData(rgba.Pix)

	info := ImageInfo{
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
		Format: format,
		Stride: rgba.Stride,
	}
	d.mu.Lock()
	d.info = info
	d.mu.Unlock()

	logging.Logger().Debug("prep: image decoded",
		"format", format, "width", info.Width, "height", info.Height)
	t.SetFinished()
}

// convert returns src as a tightly packed RGBA image, scaled to fit the
// size bound.
func (d *imageDecoder) convert(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), d.maxW, d.maxH)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	d.scaler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// fitSize scales w x h down to fit maxW x maxH, keeping the aspect ratio.
func fitSize(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		scale = min(scale, float64(maxH)/float64(h))
	}
	if scale == 1 {
		return w, h
	}
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}
