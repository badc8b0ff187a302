// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command gpusyncdemo runs a few seconds of frames on a glbuf backend, the
// HAL noop device by default.
// Background tasks fill CPU buffers while the render loop uploads them
// every frame, and GPU mirrors that stop being used expire and are
// collected.
//
// Usage:
//
//	gpusyncdemo [-config demo.toml] [-backend noop] [-frames n] [-workers n] [-v]
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gpusync"
	"github.com/gogpu/gpusync/backend"
	"github.com/gogpu/gpusync/backend/halgl"
	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
	"github.com/gogpu/gpusync/prep"
	"github.com/gogpu/gpusync/resource"
	"github.com/gogpu/gpusync/sched"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML config file")
		backendName = flag.String("backend", "", "glbuf backend (default: best available)")
		frames      = flag.Int("frames", -1, "number of frames (overrides config)")
		workers     = flag.Int("workers", 0, "scheduler workers (overrides config)")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *frames >= 0 {
		cfg.Frames = *frames
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	level, _ := parseLevel(cfg.LogLevel)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpusync.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *backendName, logger); err != nil {
		log.Fatalf("Demo failed: %v", err)
	}
}

// entry is one CPU buffer, the task filling it and its GPU mirror.
type entry struct {
	cfg    BufferConfig
	src    *buffer.Buffer
	target glbuf.Target
	task   *sched.Task
	mirror *glbuf.Buffer

	uploads int
	mirrors int
}

func run(ctx context.Context, cfg Config, backendName string, logger *slog.Logger) error {
	b, err := openBackend(backendName)
	if err != nil {
		return err
	}
	defer b.Close()
	fn := b.Functions()
	logger.Info("backend", "name", b.Name(), "available", backend.Available())

	s := sched.New(
		sched.WithWorkers(cfg.Workers),
		sched.WithSlowTaskThreshold(cfg.slowTask()),
		sched.WithName("gpusyncdemo"),
	)
	defer s.Shutdown()

	cache := resource.NewCache[string]()
	defer cache.Close()

	entries := make([]*entry, 0, len(cfg.Buffers))
	for _, bc := range cfg.Buffers {
		e, err := newEntry(bc)
		if err != nil {
			return err
		}
		if !s.AddTask(e.task) {
			return fmt.Errorf("gpusyncdemo: task for %q rejected", bc.Name)
		}
		entries = append(entries, e)
	}

	clock := resource.NewFrameClock(0)
	glctx := glbuf.NewContext(clock, 0, fn)

	g, gctx := errgroup.WithContext(ctx)
	rendered := make(chan struct{})
	g.Go(func() error {
		defer close(rendered)
		return renderLoop(gctx, cfg, glctx, fn, cache, entries)
	})
	g.Go(func() error {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-rendered:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logger.Info("progress",
					"frame_time", clock.FrameTime(),
					"scheduler", s.Stats().String(),
					"cache", cache.Stats().String())
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, e := range entries {
		attrs := []any{
			"buffer", e.cfg.Name,
			"task", e.task.State().String(),
			"generation", e.src.Generation(),
			"uploads", e.uploads,
			"mirrors", e.mirrors,
		}
		if err := e.task.Err(); err != nil {
			attrs = append(attrs, "err", err)
		}
		if e.mirror != nil && e.mirror.ID() != 0 {
			attrs = append(attrs,
				"gpu_id", e.mirror.ID(),
				"allocated", e.mirror.AllocatedSize())
			if hf, ok := fn.(*halgl.Functions); ok {
				data := e.src.Data()
				gpu := hf.Contents(e.mirror.ID())
				attrs = append(attrs, "in_sync", len(gpu) >= len(data) && bytes.Equal(gpu[:len(data)], data))
			}
		} else {
			attrs = append(attrs, "gpu_id", "collected")
		}
		logger.Info("buffer", attrs...)
	}
	logger.Info("done", "scheduler", s.Stats().String(), "cache", cache.Stats().String())
	return nil
}

func newEntry(bc BufferConfig) (*entry, error) {
	usage, err := parseUsage(bc.Usage)
	if err != nil {
		return nil, err
	}
	target, err := parseTarget(bc.Target)
	if err != nil {
		return nil, err
	}
	src, err := buffer.New(usage, bc.Size)
	if err != nil {
		return nil, err
	}
	// Start at generation 1 so every new mirror does a full upload.
	src.Invalidate()

	var task *sched.Task
	switch bc.Source {
	case "file":
		task = prep.LoadFile(src, bc.Path)
	case "image":
		task = prep.DecodeImageFile(src, bc.Path)
	default:
		interval := time.Duration(bc.Interval) * time.Millisecond
		task = prep.Generate(src, interval, wave(max(bc.Steps, 1)))
	}
	task.SetPriority(parsePriority(bc.Priority))
	return &entry{cfg: bc, src: src, target: target, task: task}, nil
}

// renderLoop is the render goroutine: it owns the GPU function table.
func renderLoop(ctx context.Context, cfg Config, glctx *glbuf.Context, fn glbuf.Functions,
	cache *resource.Cache[string], entries []*entry) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(time.Duration(cfg.FrameTime * float64(time.Second)))
	defer ticker.Stop()

	for frame := range cfg.Frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		glctx.Clock().Advance(cfg.FrameTime)

		for _, e := range entries {
			if e.cfg.UseFrames > 0 && frame >= e.cfg.UseFrames {
				continue
			}
			if err := e.upload(glctx, fn, cache, cfg.Expiration); err != nil {
				return fmt.Errorf("frame %d: buffer %q: %w", frame, e.cfg.Name, err)
			}
		}
		if n := cache.Collect(); n > 0 {
			gpusync.Logger().Info("collected expired buffers", "frame", frame, "count", n)
		}
	}
	return nil
}

// upload brings the entry's GPU mirror up to date, recreating it if the
// cache collected it.
func (e *entry) upload(glctx *glbuf.Context, fn glbuf.Functions, cache *resource.Cache[string], expiration float64) error {
	h, ok := cache.Get(e.cfg.Name)
	if !ok {
		e.mirror = glbuf.New(glctx)
		e.mirrors++
		h = e.mirror.Handle()
		h.SetExpirationSeconds(expiration)
		if err := cache.Put(e.cfg.Name, h, fn.DeleteBuffer); err != nil {
			return err
		}
	}
	pin := h.Pin()
	defer pin.Release()

	if err := e.mirror.Upload(e.src, e.target); err != nil {
		return err
	}
	e.uploads++
	return nil
}

// wave returns a generator that writes a moving sine window.
func wave(steps int) prep.GenerateFunc {
	return func(b *buffer.Buffer, step int) (bool, error) {
		size := b.BufferSize()
		if size == 0 {
			return true, nil
		}
		n := min(64, size)
		offset := (step * n) % (size - n + 1)
		p := make([]byte, n)
		for i := range p {
			p[i] = byte(128 + 127*math.Sin(float64(step+i)/8))
		}
		return step+1 >= steps, b.Write(offset, p)
	}
}

func parsePriority(s string) sched.Priority {
	switch s {
	case "low":
		return sched.PriorityLow
	case "high":
		return sched.PriorityHigh
	default:
		return sched.PriorityNormal
	}
}

// openBackend opens the named backend, or the best available one when
// name is empty.
func openBackend(name string) (backend.Backend, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	return backend.Open(name)
}
