// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusync

import (
	"log/slog"

	"github.com/gogpu/gpusync/internal/logging"
)

// SetLogger configures the logger for gpusync and all its sub-packages.
// By default, gpusync produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gpusync:
//   - [slog.LevelDebug]: upload path decisions, collected handles, finished
//     preparation tasks
//   - [slog.LevelInfo]: lifecycle events (scheduler start and shutdown,
//     GL context loaded)
//   - [slog.LevelWarn]: slow tasks, refused buffer maps, failed allocations
//   - [slog.LevelError]: GPU errors reported by the error-check hook,
//     resource handles released while still referenced
//
// Example:
//
//	gpusync.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by gpusync.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
