package loader

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeDriver is a pgconn.Driver test double that fails a COPY whenever the
// buffer it's given contains one of a configured set of "bad" substrings,
// close enough to a real server's per-row validation to exercise Recover's
// dichotomy without a live PostgreSQL connection.
type fakeDriver struct {
	mu sync.Mutex

	badMarkers   []string
	copyAttempts int
	commits      int
	rollbacks    int
	execCalls    []string
	execErr      error
}

func newFakeDriver(badMarkers ...string) *fakeDriver {
	return &fakeDriver{badMarkers: badMarkers}
}

func (f *fakeDriver) CopyFrom(ctx context.Context, targetExpr string, data []byte, sep byte) (int64, error) {
	f.mu.Lock()
	f.copyAttempts++
	f.mu.Unlock()

	s := string(data)
	for _, marker := range f.badMarkers {
		if marker != "" && strings.Contains(s, marker) {
			return 0, fmt.Errorf("simulated COPY failure: row matched %q", marker)
		}
	}
	return int64(strings.Count(s, "\n")), nil
}

func (f *fakeDriver) Commit(ctx context.Context) error {
	f.mu.Lock()
	f.commits++
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) Rollback(ctx context.Context) error {
	f.mu.Lock()
	f.rollbacks++
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) Exec(ctx context.Context, sql string, args ...any) error {
	f.mu.Lock()
	f.execCalls = append(f.execCalls, sql)
	f.mu.Unlock()
	return f.execErr
}

// fakeSink collects rejected rows in memory for assertions.
type fakeSink struct {
	mu      sync.Mutex
	reasons []any
	lines   [][]byte
}

func (s *fakeSink) Log(reason any, originalInputLine []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	s.lines = append(s.lines, append([]byte(nil), originalInputLine...))
}

func (s *fakeSink) RejectLog() string { return "memory" }
