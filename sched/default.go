// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import "sync"

var (
	defaultMu    sync.Mutex
	defaultSched *Scheduler
)

// Default returns the process-wide scheduler, creating it on first use.
// Libraries should accept a *Scheduler instead; Default exists for
// applications that want a single shared pool.
func Default() *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSched == nil {
		defaultSched = New(WithName("default"))
	}
	return defaultSched
}

// ShutdownDefault shuts the process-wide scheduler down. A later Default
// call creates a new one.
func ShutdownDefault() {
	defaultMu.Lock()
	s := defaultSched
	defaultSched = nil
	defaultMu.Unlock()
	if s != nil {
		s.Shutdown()
	}
}
