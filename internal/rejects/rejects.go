// Package rejects defines the reject-sink contract and ships one concrete,
// file-backed implementation. The core depends only on the Sink interface,
// so callers may supply their own (a database table, a message queue,
// anything).
package rejects

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Sink receives rejected rows: a short reason (or list of short reasons)
// and the caller-supplied original input line. RejectLog exposes a
// human-readable location for the persisted rejects, for use in log
// messages.
type Sink interface {
	Log(reason any, originalInputLine []byte)
	RejectLog() string
}

// FileSink appends rejected rows to a flat file, one line per reject: the
// reason(s), joined by ": ", then a literal " | ", then the original input
// line.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink opens (creating if necessary) a reject log at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open reject log %s: %w", path, err)
	}
	return &FileSink{path: path, f: f}, nil
}

// Log implements Sink.
func (s *FileSink) Log(reason any, originalInputLine []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasonStr := formatReason(reason)
	line := string(originalInputLine)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	fmt.Fprintf(s.f, "%s | %s", reasonStr, line)
}

// RejectLog implements Sink.
func (s *FileSink) RejectLog() string {
	return s.path
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

func formatReason(reason any) string {
	switch r := reason.(type) {
	case string:
		return r
	case []string:
		return strings.Join(r, ": ")
	case error:
		return r.Error()
	default:
		return fmt.Sprintf("%v", r)
	}
}
