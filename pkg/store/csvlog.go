// Package store appends raw process samples to a CSV log.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/srodi/memtop/pkg/types"
)

// TimestampLayout is ISO-8601 local time truncated to seconds.
const TimestampLayout = "2006-01-02T15:04:05"

// Header is written once at the top of an empty log.
var Header = []string{"timestamp", "elapsed_sec", "container", "pid", "rss_kb", "pmem", "nlwp", "cmdline"}

var (
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("sample log closed")
	// ErrLocked means another process already appends to the same log.
	ErrLocked = errors.New("sample log locked by another process")
)

// Log is an append-only CSV sample log. Rows are flushed once per WriteTick.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	rows   int64
	closed bool
}

// Open opens or creates path for appending. An existing non-empty log keeps its
// content and header; an empty one receives the header.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening sample log: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	l := &Log{path: path, file: f, writer: csv.NewWriter(f)}
	if err := l.bootstrap(); err != nil {
		l.file.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) bootstrap() error {
	stat, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat sample log: %w", err)
	}
	if stat.Size() == 0 {
		if err := l.writer.Write(Header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		l.writer.Flush()
		return l.writer.Error()
	}

	// a crash mid-row leaves no trailing newline; start the next row on a fresh line
	var last [1]byte
	if _, err := l.file.ReadAt(last[:], stat.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading sample log tail: %w", err)
	}
	if last[0] != '\n' {
		if _, err := l.file.Write([]byte("\n")); err != nil {
			return fmt.Errorf("repairing sample log tail: %w", err)
		}
	}
	return nil
}

// Path returns the log location.
func (l *Log) Path() string {
	return l.path
}

// Rows is the number of sample rows written by this handle.
func (l *Log) Rows() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// WriteTick appends samples in order and flushes them to the file.
func (l *Log) WriteTick(samples []types.ProcessSample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	for _, s := range samples {
		if err := l.writer.Write(Row(s)); err != nil {
			return fmt.Errorf("writing sample row: %w", err)
		}
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flushing sample log: %w", err)
	}
	l.rows += int64(len(samples))
	return nil
}

// Close flushes pending rows, releases the lock and closes the file. It is safe to
// call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.writer.Flush()
	err := l.writer.Error()
	err = errors.Join(err, unlockFile(l.file))
	return errors.Join(err, l.file.Close())
}

// Row renders one sample in Header column order.
func Row(s types.ProcessSample) []string {
	return []string{
		s.Timestamp.Format(TimestampLayout),
		strconv.FormatFloat(s.ElapsedSeconds, 'f', 1, 64),
		s.Container,
		s.PID,
		strconv.FormatUint(s.RSSKB, 10),
		formatDecimal(s.MemPercent),
		strconv.Itoa(s.Threads),
		s.Cmdline,
	}
}

func formatDecimal(v float64) string {
	out := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}
