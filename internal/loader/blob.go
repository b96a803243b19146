package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/withobsrvr/pgbulkload/internal/rejects"
)

// BlobKind distinguishes the two large-object binding strategies.
type BlobKind int

const (
	// BlobKindCLOB binds textual large-object data with legacy
	// Informix-style single-quote escaping.
	BlobKindCLOB BlobKind = iota
	// BlobKindBLOB binds binary large-object data with a ::bytea cast.
	BlobKindBLOB
)

// InsertBlob performs the row-by-row BLOB update: it builds an
// UPDATE ... SET blobColumn = ? WHERE key1=? AND key2=? ... statement,
// commits on the configured commit_every cadence, and rejects the row on
// error without aborting the load.
//
// indexCols and rowidValues must be the same length and in corresponding
// order; they form the WHERE clause's key predicates.
func (l *Loader) InsertBlob(ctx context.Context, table string, indexCols []string, rowidValues []any, blobColumn string, data []byte, kind BlobKind, originalInputLine []byte, sink rejects.Sink) bool {
	sql, args := buildBlobUpdate(table, indexCols, rowidValues, blobColumn, data, kind)

	if err := l.conn.Exec(ctx, sql, args...); err != nil {
		// Commit the enclosing transaction to unwedge before rejecting.
		if cerr := l.conn.Commit(ctx); cerr != nil {
			l.log.WithError(cerr).Warn("commit to unwedge after failed BLOB update failed")
		}

		// Running total is derived as commits*commit_every + running_commands
		// rather than tracked separately.
		runningTotal := l.stats.Commits*int64(l.loadCfg.CommitEvery) + l.stats.RunningCommands
		l.log.Warnf("update %d rejected: committing (read log file %s)", runningTotal, sink.RejectLog())

		sink.Log(err.Error(), originalInputLine)
		l.stats.Errors++
		return false
	}

	// Only count the row toward running_commands once Exec has succeeded.
	l.stats.RunningCommands++

	if l.stats.RunningCommands == int64(l.loadCfg.CommitEvery) {
		if err := l.conn.Commit(ctx); err != nil {
			l.log.WithError(err).Warn("commit on commit_every cadence failed")
			return false
		}
		l.stats.Commits++
		l.stats.CommittedRows += l.stats.RunningCommands
		l.log.Infof("commit %d: %d updates", l.stats.Commits, l.stats.RunningCommands)

		// The row that triggered this commit already counts toward the
		// next window, so running_commands resets to 1, not 0.
		l.stats.RunningCommands = 1
	}

	return true
}

func buildBlobUpdate(table string, indexCols []string, rowidValues []any, blobColumn string, data []byte, kind BlobKind) (string, []any) {
	var sb strings.Builder
	var args []any

	switch kind {
	case BlobKindCLOB:
		escaped := strings.ReplaceAll(string(data), "'", `\'`)
		sb.WriteString(fmt.Sprintf("UPDATE %s SET %s = $1 WHERE ", table, blobColumn))
		args = append(args, escaped)
	case BlobKindBLOB:
		sb.WriteString(fmt.Sprintf("UPDATE %s SET %s = $1::bytea WHERE ", table, blobColumn))
		args = append(args, data)
	}

	for i, col := range indexCols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(fmt.Sprintf("%s = $%d", col, i+2))
		args = append(args, rowidValues[i])
	}
	sb.WriteString(";")

	return sb.String(), args
}
