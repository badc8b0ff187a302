// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNopHandlerDiscards(t *testing.T) {
	var h slog.Handler = NopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = true", level)
		}
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.Int("id", 1)}).WithGroup("gpu").(NopHandler); !ok {
		t.Error("derived handler is not a NopHandler")
	}
}

func TestSetNilRestoresDefault(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { Set(orig) })

	Set(slog.Default())
	Set(nil)
	if _, ok := Logger().Handler().(NopHandler); !ok {
		t.Errorf("Logger().Handler() = %T after Set(nil), want NopHandler", Logger().Handler())
	}
}
