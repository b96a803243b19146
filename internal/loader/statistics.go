// Package loader implements the Loader orchestrator, the dichotomic
// Recover procedure, Statistics accounting, and the row-by-row BLOB update
// path.
package loader

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/withobsrvr/pgbulkload/internal/metrics"
)

// Statistics tracks commit counts, committed row counts, and error counts
// across both the happy path and arbitrary recovery depth.
type Statistics struct {
	Commits         int64
	CommittedRows   int64
	RunningCommands int64
	Errors          int64
	CopyInvoked     bool

	FirstCommitTime time.Time
	LastCommitTime  time.Time

	// BatchDurations records one entry per batch COPY committed through
	// RecordCommit; recovery sub-COPYs are not recorded here.
	BatchDurations []time.Duration

	// VacuumWillRun mirrors the "vacuum" configuration option so
	// PrintStats can advise the operator correctly.
	VacuumWillRun bool

	metrics *metrics.Collectors
}

// NewStatistics returns a zero-valued Statistics with FirstCommitTime
// stamped at construction, so elapsed time is measured from session
// start rather than from the first commit.
func NewStatistics(vacuumWillRun bool, m *metrics.Collectors) *Statistics {
	now := time.Now()
	return &Statistics{
		FirstCommitTime: now,
		LastCommitTime:  now,
		VacuumWillRun:   vacuumWillRun,
		metrics:         m,
	}
}

// RecordCommit folds one successful COPY/commit into the statistics:
// commits += 1, committed_rows += rows, timing updated.
func (s *Statistics) RecordCommit(rows int64, duration time.Duration) {
	s.Commits++
	s.CommittedRows += rows
	s.LastCommitTime = time.Now()
	s.BatchDurations = append(s.BatchDurations, duration)

	if s.metrics != nil {
		s.metrics.Commits.Inc()
		s.metrics.CommittedRows.Add(float64(rows))
		s.metrics.BatchDuration.Observe(duration.Seconds())
	}
}

// RecordRecovery folds a Recover pass's (commits, ok, ko) into the
// statistics.
func (s *Statistics) RecordRecovery(commits, ok, ko int64) {
	s.Commits += commits
	s.CommittedRows += ok
	s.Errors += ko
	s.LastCommitTime = time.Now()

	if s.metrics != nil {
		s.metrics.Commits.Add(float64(commits))
		s.metrics.CommittedRows.Add(float64(ok))
		s.metrics.Errors.Add(float64(ko))
	}
}

// RecordCopyAttempt increments the copy_attempts metric. It does not
// affect any of the row/commit/error counters.
func (s *Statistics) RecordCopyAttempt() {
	if s.metrics != nil {
		s.metrics.CopyAttempts.Inc()
	}
}

// PrintStats reports committed_rows, commits, and elapsed time since
// session start, then an error/vacuum advisory or a clean-run message.
func (s *Statistics) PrintStats(log *logrus.Entry) {
	elapsed := time.Since(s.FirstCommitTime)
	log.Infof("%d updates in %d commits took %5.3f seconds", s.CommittedRows, s.Commits, elapsed.Seconds())

	switch {
	case s.Errors > 0:
		log.Errorf("%d database errors occurred", s.Errors)
		if s.CopyInvoked && !s.VacuumWillRun {
			log.Info("Please VACUUM your database to recover space")
		}
	case s.CommittedRows > 0:
		log.Info("No database error occurred")
	}
}

// DurationSummary renders min/max/avg across BatchDurations.
func (s *Statistics) DurationSummary() string {
	if len(s.BatchDurations) == 0 {
		return "no batches committed"
	}

	min, max, total := s.BatchDurations[0], s.BatchDurations[0], time.Duration(0)
	for _, d := range s.BatchDurations {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		total += d
	}
	avg := total / time.Duration(len(s.BatchDurations))
	return fmt.Sprintf("min=%s max=%s avg=%s n=%d", min, max, avg, len(s.BatchDurations))
}
