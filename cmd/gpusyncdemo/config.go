// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/glbuf"
)

var errConfig = errors.New("gpusyncdemo: invalid config")

// Config is the demo configuration, read from a TOML file.
type Config struct {
	Frames     int     `toml:"frames"`
	FrameTime  float64 `toml:"frame_time"`
	Workers    int     `toml:"workers"`
	SlowTaskMS int     `toml:"slow_task_ms"`
	Expiration float64 `toml:"expiration"`
	LogLevel   string  `toml:"log_level"`

	Buffers []BufferConfig `toml:"buffers"`
}

// BufferConfig describes one CPU buffer and the task that fills it.
type BufferConfig struct {
	Name   string `toml:"name"`
	Usage  string `toml:"usage"`  // static, dynamic or stream
	Target string `toml:"target"` // vertex, index, uniform or storage
	Size   int    `toml:"size"`

	// Source is "generate", "file" or "image".
	Source   string `toml:"source"`
	Path     string `toml:"path"`
	Steps    int    `toml:"steps"`
	Interval int    `toml:"interval_ms"`
	Priority string `toml:"priority"`

	// UseFrames stops using the buffer after this many frames so that its
	// GPU mirror expires. Zero uses it for the whole run.
	UseFrames int `toml:"use_frames"`
}

func defaultConfig() Config {
	return Config{
		Frames:     180,
		FrameTime:  1.0 / 60,
		Workers:    2,
		SlowTaskMS: 500,
		Expiration: 1,
		LogLevel:   "info",
		Buffers: []BufferConfig{
			{Name: "wave", Usage: "dynamic", Target: "vertex", Size: 4096, Source: "generate", Steps: 60, Interval: 5},
			{Name: "uniforms", Usage: "stream", Target: "uniform", Size: 256, Source: "generate", Steps: 30, Interval: 10, Priority: "high"},
			{Name: "scratch", Usage: "static", Target: "storage", Size: 1024, Source: "generate", Steps: 1, UseFrames: 30},
		},
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults. Unknown keys are an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()
	cfg.Buffers = nil
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Frames < 0 || c.FrameTime <= 0 {
		return fmt.Errorf("%w: frames=%d frame_time=%g", errConfig, c.Frames, c.FrameTime)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i, b := range c.Buffers {
		if b.Name == "" {
			return fmt.Errorf("%w: buffer %d has no name", errConfig, i)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate buffer %q", errConfig, b.Name)
		}
		seen[b.Name] = true
		if b.Size < 0 {
			return fmt.Errorf("%w: buffer %q: negative size", errConfig, b.Name)
		}
		if _, err := parseUsage(b.Usage); err != nil {
			return fmt.Errorf("buffer %q: %w", b.Name, err)
		}
		if _, err := parseTarget(b.Target); err != nil {
			return fmt.Errorf("buffer %q: %w", b.Name, err)
		}
		switch b.Source {
		case "generate":
		case "file", "image":
			if b.Path == "" {
				return fmt.Errorf("%w: buffer %q: source %s needs a path", errConfig, b.Name, b.Source)
			}
		default:
			return fmt.Errorf("%w: buffer %q: unknown source %q", errConfig, b.Name, b.Source)
		}
	}
	return nil
}

func (c *Config) slowTask() time.Duration {
	return time.Duration(c.SlowTaskMS) * time.Millisecond
}

func parseUsage(s string) (buffer.Usage, error) {
	switch s {
	case "", "static":
		return buffer.UsageStatic, nil
	case "dynamic":
		return buffer.UsageDynamic, nil
	case "stream":
		return buffer.UsageStream, nil
	}
	return 0, fmt.Errorf("%w: unknown usage %q", errConfig, s)
}

func parseTarget(s string) (glbuf.Target, error) {
	switch s {
	case "", "vertex":
		return glbuf.TargetArray, nil
	case "index":
		return glbuf.TargetElementArray, nil
	case "uniform":
		return glbuf.TargetUniform, nil
	case "storage":
		return glbuf.TargetShaderStorage, nil
	}
	return 0, fmt.Errorf("%w: unknown target %q", errConfig, s)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("%w: log_level: %v", errConfig, err)
	}
	return l, nil
}
