package calllog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
)

// LogWriteError means the log could not be made durable. A batch that hits it
// must stop: continuing would place calls that are never recorded.
type LogWriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *LogWriteError) Error() string {
	return fmt.Sprintf("calllog: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LogWriteError) Unwrap() error { return e.Err }

// Appender is anything that durably records entries.
type Appender interface {
	Append(e Entry) error
}

// Writer appends rows to a CSV log file.
//
// Guarantees:
//   - The header is written once, when the file is empty.
//   - Each row is encoded completely, written with one Write call and
//     fsynced before Append returns.
//   - A torn trailing line from a crash is cut off at Open. Complete rows
//     are never rewritten.
//
// One Writer per file. There is no cross-process file locking.
type Writer struct {
	mu     sync.Mutex
	path   string
	schema Schema
	f      *os.File
}

// Open opens (creating if needed) the log in append mode and repairs a torn
// tail.
func Open(path string, schema Schema) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &LogWriteError{Path: path, Op: "open", Err: err}
	}
	w := &Writer{path: path, schema: schema, f: f}
	if err := w.repairTail(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Path() string   { return w.path }
func (w *Writer) Schema() Schema { return w.schema }

// repairTail truncates anything after the last newline.
func (w *Writer) repairTail() error {
	st, err := w.f.Stat()
	if err != nil {
		return &LogWriteError{Path: w.path, Op: "stat", Err: err}
	}
	size := st.Size()
	if size == 0 {
		return nil
	}

	keep, err := lastNewlineEnd(w.f, size)
	if err != nil {
		return &LogWriteError{Path: w.path, Op: "repair", Err: err}
	}
	if keep == size {
		return nil
	}
	if err := w.f.Truncate(keep); err != nil {
		return &LogWriteError{Path: w.path, Op: "repair", Err: err}
	}
	if err := w.f.Sync(); err != nil {
		return &LogWriteError{Path: w.path, Op: "sync", Err: err}
	}
	return nil
}

// lastNewlineEnd returns the offset just past the last '\n', or 0.
func lastNewlineEnd(r io.ReaderAt, size int64) (int64, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := max(end-chunk, 0)
		n, err := r.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// EnsureHeader writes the header if the file is empty, and otherwise checks
// the existing header matches the schema.
func (w *Writer) EnsureHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.f.Stat()
	if err != nil {
		return &LogWriteError{Path: w.path, Op: "stat", Err: err}
	}
	if st.Size() == 0 {
		return w.writeRow(w.schema.Columns(), "header")
	}

	header, err := readHeader(io.NewSectionReader(w.f, 0, st.Size()))
	if err != nil {
		return &LogWriteError{Path: w.path, Op: "header", Err: err}
	}
	if !slices.Equal(header, w.schema.Columns()) {
		return &LogWriteError{
			Path: w.path,
			Op:   "header",
			Err:  fmt.Errorf("existing header does not match %s schema: %s", w.schema, strings.Join(header, ",")),
		}
	}
	return nil
}

// Append writes one row and fsyncs it.
func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeRow(e.Row(w.schema), "append")
}

func (w *Writer) writeRow(cells []string, op string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(cells); err != nil {
		return &LogWriteError{Path: w.path, Op: op, Err: err}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &LogWriteError{Path: w.path, Op: op, Err: err}
	}

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return &LogWriteError{Path: w.path, Op: op, Err: err}
	}
	if err := w.f.Sync(); err != nil {
		return &LogWriteError{Path: w.path, Op: "sync", Err: err}
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func readHeader(r io.Reader) ([]string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cells, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return nil, err
	}
	return cells, nil
}
