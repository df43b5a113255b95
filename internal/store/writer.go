// Package store is the durable output side of a run: the append-only JSONL
// result file, its optional template-only side file, and the resume cursor
// derived from the result file.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
	"github.com/OmkarTuptewar/template-generator/internal/core/model"
)

// ErrLocked is returned when another run holds the output file.
var ErrLocked = errors.New("output file is locked by another run")

type Writer struct {
	mu       sync.Mutex
	path     string
	out      *os.File
	lock     *flock.Flock
	sidePath string
	side     *os.File
	logger   *zap.Logger
	written  int
}

type Option func(*Writer)

// WithTemplateSink appends every accepted template to path as a JSON string
// literal followed by ",\n". Failures on this file are logged, never
// returned.
func WithTemplateSink(path string) Option {
	return func(w *Writer) { w.sidePath = path }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// Open takes an exclusive lock next to the output file and opens it for
// appending. Existing records are never truncated.
func Open(path string, opts ...Option) (*Writer, error) {
	w := &Writer{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	w.lock = flock.New(path + ".lock")
	locked, err := w.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring output lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = w.lock.Unlock()
		return nil, fmt.Errorf("failed to open output '%s': %w", path, err)
	}
	w.out = out

	if err := w.repairTail(); err != nil {
		w.Close()
		return nil, err
	}

	if w.sidePath != "" {
		if err := os.MkdirAll(filepath.Dir(w.sidePath), 0o755); err != nil {
			w.logger.Warn("template sink disabled", zap.String("path", w.sidePath), zap.Error(err))
		} else if side, err := os.OpenFile(w.sidePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			w.logger.Warn("template sink disabled", zap.String("path", w.sidePath), zap.Error(err))
		} else {
			w.side = side
		}
	}
	return w, nil
}

// repairTail drops a partial last line left by a crash. That record was
// never counted as flushed, so its query is processed again on resume.
func (w *Writer) repairTail() error {
	info, err := w.out.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat output: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to inspect output: %w", err)
	}
	defer f.Close()

	keep, err := completeLength(f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to inspect output: %w", err)
	}
	if keep == info.Size() {
		return nil
	}
	w.logger.Warn("dropping partial last record",
		zap.String("path", w.path),
		zap.Int64("bytes", info.Size()-keep))
	if err := w.out.Truncate(keep); err != nil {
		return fmt.Errorf("failed to repair output tail: %w", err)
	}
	return nil
}

// completeLength is the offset just past the last '\n' in the first size
// bytes of f, or 0 when there is none.
func completeLength(f io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// Append writes one record as a single JSON line. The write goes straight
// to the file with no user-space buffering.
func (w *Writer) Append(rec model.OutputRecord) error {
	line, err := common.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(line); err != nil {
		return fmt.Errorf("failed to append to '%s': %w", w.path, err)
	}
	w.written++

	if w.side != nil && !rec.Ignore && rec.Template != "" {
		w.appendTemplate(rec.Template)
	}
	return nil
}

func (w *Writer) appendTemplate(template string) {
	lit, err := common.Marshal(template)
	if err == nil {
		_, err = w.side.Write(append(lit, ",\n"...))
	}
	if err != nil {
		w.logger.Warn("template sink write failed", zap.String("path", w.sidePath), zap.Error(err))
	}
}

// Written is the number of records appended by this writer.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) Close() error {
	var errs []error
	if w.side != nil {
		errs = append(errs, w.side.Close())
	}
	if w.out != nil {
		errs = append(errs, w.out.Close())
	}
	if w.lock != nil {
		errs = append(errs, w.lock.Unlock())
	}
	return errors.Join(errs...)
}

// CountRecords returns the number of newline-terminated lines in the output
// file. A partial last line is not a flushed record and is not counted. A
// missing file counts as zero.
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open output '%s': %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	count := 0
	for {
		n, err := f.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read output '%s': %w", path, err)
		}
	}
	return count, nil
}
