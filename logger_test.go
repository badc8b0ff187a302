// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusync

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/gpusync/resource"
	"github.com/gogpu/gpusync/sched"
)

// recorder keeps the messages of every record at or above its level.
type recorder struct {
	level slog.Level

	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Enabled(_ context.Context, l slog.Level) bool { return l >= r.level }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, rec.Level.String()+" "+rec.Message)
	return nil
}

func (r *recorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *recorder) WithGroup(string) slog.Handler      { return r }

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// useLogger installs a recorder for the duration of a test.
func useLogger(t *testing.T, level slog.Level) *recorder {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	r := &recorder{level: level}
	SetLogger(slog.New(r))
	return r
}

func TestSetLoggerReachesSubPackages(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		emit  func()
		want  []string
	}{
		{
			name:  "scheduler lifecycle",
			level: slog.LevelInfo,
			emit:  func() { sched.New(sched.WithWorkers(1), sched.WithName("logs")).Shutdown() },
			want:  []string{"INFO sched: started", "INFO sched: stopped"},
		},
		{
			name:  "lifetime bug",
			level: slog.LevelError,
			emit: func() {
				h := resource.NewHandle(7, nil)
				pin := h.Pin()
				h.Release(nil)
				pin.Release()
			},
			want: []string{"ERROR resource: handle released while referenced"},
		},
		{
			name:  "below level",
			level: slog.LevelWarn,
			emit:  func() { sched.New(sched.WithWorkers(1)).Shutdown() },
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := useLogger(t, tt.level)
			tt.emit()
			if diff := cmp.Diff(tt.want, r.messages()); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetLoggerNilSilences(t *testing.T) {
	r := useLogger(t, slog.LevelDebug)
	SetLogger(nil)

	sched.New(sched.WithWorkers(1)).Shutdown()
	if got := r.messages(); len(got) != 0 {
		t.Errorf("replaced logger still received %v", got)
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelError} {
		if Logger().Enabled(context.Background(), level) {
			t.Errorf("Logger().Enabled(%v) = true after SetLogger(nil)", level)
		}
	}
}

func TestSetLoggerWhileLogging(t *testing.T) {
	useLogger(t, slog.LevelDebug)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if i%2 == 0 {
					SetLogger(slog.New(&recorder{}))
				} else {
					Logger().Debug("upload", "worker", i)
				}
			}
		}()
	}
	wg.Wait()
}
