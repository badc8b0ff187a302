// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package prep

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/gogpu/gpusync/buffer"
	"github.com/gogpu/gpusync/internal/logging"
	"github.com/gogpu/gpusync/sched"
)

// DefaultChunkSize is how many bytes LoadFile reads per execution.
const DefaultChunkSize = 256 << 10

// FileOption configures LoadFile.
type FileOption func(*fileLoader)

// WithChunkSize sets how many bytes are read per execution. Between chunks
// the task goes back to the queue, so other tasks of the same priority get
// a turn. Zero or negative reads the whole file at once.
func WithChunkSize(n int) FileOption {
	return func(l *fileLoader) { l.chunk = n }
}

// WithFS reads from fsys instead of the operating system.
func WithFS(fsys fs.FS) FileOption {
	return func(l *fileLoader) { l.fsys = fsys }
}

type fileLoader struct {
	dst   *buffer.Buffer
	path  string
	fsys  fs.FS
	chunk int

	f      fs.File
	size   int
	offset int
}

// LoadFile returns a task that copies a file into dst. dst is resized to the
// file size during initialization and its generation bumped even when the
// size already matched; the bytes arrive chunk by chunk, each
// marked dirty so a mirror can upload them as they land.
func LoadFile(dst *buffer.Buffer, path string, opts ...FileOption) *sched.Task {
	l := &fileLoader{dst: dst, path: path, chunk: DefaultChunkSize}
	for _, opt := range opts {
		opt(l)
	}
	return sched.NewTask(l, sched.WithTaskName("prep.LoadFile"))
}

func (l *fileLoader) Initialize(t *sched.Task) {
	if l.dst == nil {
		t.Fail(ErrNilBuffer)
		return
	}
	var err error
	if l.fsys != nil {
		l.f, err = l.fsys.Open(l.path)
	} else {
		l.f, err = os.Open(l.path)
	}
	if err != nil {
		t.Fail(fmt.Errorf("prep: open %s: %w", l.path, err))
		return
	}
	st, err := l.f.Stat()
	if err != nil {
		l.close()
		t.Fail(fmt.Errorf("prep: stat %s: %w", l.path, err))
		return
	}
	l.size = int(st.Size())
	l.offset = 0
	if err := refill(l.dst, l.size); err != nil {
		l.close()
		t.Fail(err)
	}
}

func (l *fileLoader) Run(t *sched.Task) {
	if t.Err() != nil {
		// Initialize failed.
		return
	}
	if l.f == nil {
		t.Fail(fmt.Errorf("prep: %s: file not open", l.path))
		return
	}
	n := l.size - l.offset
	if l.chunk > 0 {
		n = min(n, l.chunk)
	}
	if n > 0 {
		p := make([]byte, n)
		read, err := io.ReadFull(l.f, p)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			l.close()
			t.Fail(fmt.Errorf("prep: read %s: %w", l.path, err))
			return
		}
		if err := l.dst.Write(l.offset, p[:read]); err != nil {
			l.close()
			t.Fail(err)
			return
		}
		l.offset += read
		if read < n {
			// The file shrank after Stat.
			l.size = l.offset
		}
	}
	if l.offset >= l.size {
		l.close()
		logging.Logger().Debug("prep: file loaded", "path", l.path, "bytes", l.size)
		t.SetFinished()
	}
}

func (l *fileLoader) Canceled(*sched.Task) {
	l.close()
}

func (l *fileLoader) close() {
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
}

// refill sizes dst for new contents and always moves its generation, so
// every mirror reallocates before the new bytes are uploaded. Resize alone
// leaves the generation untouched when the size already matches.
func refill(dst *buffer.Buffer, size int) error {
	gen := dst.Generation()
	if err := dst.Resize(size); err != nil {
		return err
	}
	if dst.Generation() == gen {
		dst.Invalidate()
	}
	return nil
}
