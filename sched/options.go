// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"runtime"
	"time"
)

// DefaultSlowTaskThreshold is the Run duration after which a warning with
// goroutine stacks is logged.
const DefaultSlowTaskThreshold = 2 * time.Second

// maxWait bounds a single timed wait for a future task.
const maxWait = 24 * time.Hour

// config holds scheduler configuration.
type config struct {
	name          string
	workers       int
	slowThreshold time.Duration
	now           func() time.Time
}

func defaultConfig() config {
	return config{
		name:          "sched",
		workers:       defaultWorkers(),
		slowThreshold: DefaultSlowTaskThreshold,
		now:           time.Now,
	}
}

func defaultWorkers() int {
	return min(runtime.GOMAXPROCS(0), 4)
}

// Option configures a Scheduler.
type Option func(*config)

// WithWorkers sets the number of worker goroutines.
// If n is 0 or negative, GOMAXPROCS is used.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		c.workers = n
	}
}

// WithSlowTaskThreshold sets how long a single Run may take before a
// warning is logged. Zero disables the watchdog.
func WithSlowTaskThreshold(d time.Duration) Option {
	return func(c *config) {
		c.slowThreshold = max(d, 0)
	}
}

// WithName names the scheduler in logs.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}
