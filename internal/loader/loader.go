package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/withobsrvr/pgbulkload/internal/batch"
	"github.com/withobsrvr/pgbulkload/internal/config"
	"github.com/withobsrvr/pgbulkload/internal/encoding"
	"github.com/withobsrvr/pgbulkload/internal/metrics"
	"github.com/withobsrvr/pgbulkload/internal/pgconn"
	"github.com/withobsrvr/pgbulkload/internal/rejects"
)

// Loader accepts rows from upstream, appends them to a batch buffer,
// triggers a COPY when the batch fills or on end-of-stream, updates
// Statistics, and hands failures to Recover.
//
// A Loader owns exactly one Connection and must not be called re-entrantly.
type Loader struct {
	conn    pgconn.Driver
	loadCfg config.LoadConfig
	verbose bool
	encoder *encoding.Encoder
	stats   *Statistics
	log     *logrus.Entry

	table      string
	columns    []string
	targetExpr string

	buf *batch.Buffer

	savedBufferToFile bool
}

// New constructs a Loader bound to one Connection and configuration. The
// column list is fixed for the duration of the load; callers must pass the
// same list on every AddRow call for a given Loader instance. verbose
// enables proactively saving each COPY buffer to a temp file before it is
// sent, mirroring a high client_min_messages setting.
func New(conn pgconn.Driver, loadCfg config.LoadConfig, verbose bool, log *logrus.Entry, m *metrics.Collectors) *Loader {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loader{
		conn:    conn,
		loadCfg: loadCfg,
		verbose: verbose,
		encoder: &encoding.Encoder{
			CopySep:       loadCfg.CopySepByte(),
			NullMarker:    loadCfg.NullMarker,
			EmptyMarker:   loadCfg.EmptyMarker,
			InputEncoding: loadCfg.InputEncoding,
		},
		stats: NewStatistics(loadCfg.Vacuum, m),
		log:   log,
	}
}

// Statistics returns the Loader's running statistics.
func (l *Loader) Statistics() *Statistics {
	return l.stats
}

// AddRow encodes and buffers one row, then flushes the batch if it just
// filled up or this is the last row. It returns ok=true unless Recover
// rejected at least one row from a flush triggered by this call (the
// overall load loop continues regardless).
func (l *Loader) AddRow(ctx context.Context, table string, columns []string, values []string, originalInputLine []byte, sink rejects.Sink, eof bool) (bool, error) {
	l.stats.CopyInvoked = true
	l.setTarget(table, columns)

	if l.buf == nil {
		l.buf = batch.New()
		l.savedBufferToFile = false
	}

	var encodedOK bool
	func() {
		var tmp bytes.Buffer
		encodedOK = l.encoder.EncodeRow(&tmp, values, originalInputLine, func(reason any, line []byte) {
			sink.Log(reason, line)
			l.stats.Errors++
		})
		if encodedOK {
			l.buf.AppendRow(tmp.Bytes())
		}
	}()

	if encodedOK {
		l.stats.RunningCommands++
	}

	ok := true
	shouldFlush := eof || l.stats.RunningCommands == int64(l.loadCfg.CopyEvery)
	if shouldFlush {
		var err error
		ok, err = l.flush(ctx, sink)
		if err != nil {
			return false, err
		}
	}

	return ok, nil
}

// setTarget composes "target (col1, ..., coln)" once per table/column list.
func (l *Loader) setTarget(table string, columns []string) {
	if l.table == table && l.columns != nil && sameColumns(l.columns, columns) {
		return
	}
	l.table = table
	l.columns = columns
	l.targetExpr = fmt.Sprintf("%s (%s)", table, strings.Join(columns, ", "))
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// flush attempts a COPY FROM of the current buffer.
func (l *Loader) flush(ctx context.Context, sink rejects.Sink) (bool, error) {
	if l.buf == nil {
		return true, nil
	}

	rowCount := l.buf.Len()
	if rowCount == 0 {
		return true, nil
	}

	l.saveBufferIfVerbose()

	l.stats.RecordCopyAttempt()
	start := time.Now()

	_, err := l.conn.CopyFrom(ctx, l.targetExpr, l.buf.Bytes(), l.loadCfg.CopySepByte())
	if err == nil {
		if cerr := l.conn.Commit(ctx); cerr != nil {
			return false, &pgconn.LoaderError{Kind: pgconn.KindInterrupt, Err: fmt.Errorf("commit after COPY failed: %w", cerr)}
		}

		duration := time.Since(start)
		l.stats.RecordCommit(int64(rowCount), duration)
		l.log.WithFields(logrus.Fields{
			"table":    l.table,
			"rows":     rowCount,
			"duration": duration,
		}).Info("COPY committed")

		l.buf.Close()
		l.buf = nil
		l.stats.RunningCommands = 0
		return true, nil
	}

	// Statement-level error: roll back, persist the buffer if not already
	// saved, then hand off to Recover.
	if rerr := l.conn.Rollback(ctx); rerr != nil {
		l.log.WithError(rerr).Warn("rollback after failed COPY failed")
	}

	path, saveErr := l.maybeSaveBuffer()
	if saveErr != nil {
		l.log.WithError(saveErr).Warn("failed to persist COPY buffer to temp file")
	} else if path != "" {
		l.log.Warnf("COPY data buffer saved in %s", path)
	}

	l.log.WithError(err).Warn("COPY error, trying to find which line")

	commits, okRows, koRows := Recover(ctx, l.conn, l.targetExpr, l.loadCfg.CopySepByte(), l.buf, rowCount, sink, l.log, l.stats.RecordCopyAttempt)
	l.stats.RecordRecovery(commits, okRows, koRows)

	if cerr := l.conn.Commit(ctx); cerr != nil {
		l.log.WithError(cerr).Warn("final outer commit after recovery failed")
	}

	l.buf = nil
	l.stats.RunningCommands = 0

	l.log.Warnf("COPY error recovery done (%d/%d)", koRows, okRows)
	return koRows == 0, nil
}

// maybeSaveBuffer persists the current buffer to a temp file. It is a
// no-op if the buffer was already saved proactively by saveBufferIfVerbose.
func (l *Loader) maybeSaveBuffer() (string, error) {
	if l.savedBufferToFile {
		return "", nil
	}
	return l.saveBuffer()
}

func (l *Loader) saveBuffer() (string, error) {
	name := fmt.Sprintf("%s-pgbulkload-%s.copy", l.table, uuid.NewString())
	path := filepath.Join(os.TempDir(), name)

	if err := os.WriteFile(path, l.buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to save COPY buffer: %w", err)
	}
	l.savedBufferToFile = true
	return path, nil
}

// saveBufferIfVerbose proactively persists the current buffer to a temp
// file before it is sent, when the Loader was configured verbose.
func (l *Loader) saveBufferIfVerbose() {
	if !l.verbose || l.buf == nil || l.buf.Len() == 0 {
		return
	}
	if path, err := l.saveBuffer(); err != nil {
		l.log.WithError(err).Warn("failed to proactively save COPY buffer")
	} else {
		l.log.Debugf("COPY data buffer saved in %s", path)
	}
}

// Interrupt handles a user cancellation mid-batch: it attempts one final
// commit of already-sent work, then returns a fatal error. No further rows
// may be consumed by this Loader afterward.
func (l *Loader) Interrupt(ctx context.Context) error {
	if err := l.conn.Commit(ctx); err != nil {
		return &pgconn.LoaderError{Kind: pgconn.KindInterrupt, Err: fmt.Errorf("commit on interrupt failed: %w", err)}
	}
	return &pgconn.LoaderError{Kind: pgconn.KindInterrupt, Err: fmt.Errorf("aborting on user demand (interrupt)")}
}
