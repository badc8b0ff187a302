// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glbuf

import (
	"path/filepath"
	"runtime"

	"github.com/gogpu/gpusync/internal/logging"
)

// maxDrainedErrors bounds how many queued errors one check reports, so a lost
// context that keeps returning errors cannot spin forever.
const maxDrainedErrors = 16

// checkError drains pending GPU errors after op and logs each with the call
// site. Without the gldebug build tag debugChecks is false and the check does
// nothing; GPU errors are observational and never returned.
func checkError(fn Functions, op string) {
	if !debugChecks {
		return
	}
	for range maxDrainedErrors {
		code := fn.GetError()
		if code == NoError {
			return
		}
		file, line := "unknown", 0
		if _, f, l, ok := runtime.Caller(1); ok {
			file, line = filepath.Base(f), l
		}
		logging.Logger().Error("glbuf: GPU error",
			"op", op,
			"error", code.String(),
			"file", file,
			"line", line,
		)
	}
}
