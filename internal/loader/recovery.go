package loader

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/withobsrvr/pgbulkload/internal/batch"
	"github.com/withobsrvr/pgbulkload/internal/pgconn"
	"github.com/withobsrvr/pgbulkload/internal/rejects"
)

// recoveryCtx bundles the arguments threaded through every recursive call
// of the dichotomy so the recursive helper's signature stays small.
type recoveryCtx struct {
	ctx        context.Context
	conn       pgconn.Driver
	targetExpr string
	sep        byte
	sink       rejects.Sink
	log        *logrus.Entry
	onAttempt  func()
}

// Recover implements dichotomic recovery: given a failed buffer of count
// encoded rows, it splits into halves, attempts each as a fresh COPY,
// recurses on halves that still fail, and rejects individually any
// single-row buffer that fails. It returns the accumulated
// (commits, ok, ko); ok+ko always equals count.
//
// Recursion depth is bounded by ceil(log2(count)), so plain recursion is
// used rather than an explicit work stack; recursion also makes the
// first-half-then-second-half commit ordering immediate from the call
// structure.
func Recover(ctx context.Context, conn pgconn.Driver, targetExpr string, sep byte, buf *batch.Buffer, count int, sink rejects.Sink, log *logrus.Entry, onAttempt func()) (commits, ok, ko int64) {
	rc := &recoveryCtx{ctx: ctx, conn: conn, targetExpr: targetExpr, sep: sep, sink: sink, log: log, onAttempt: onAttempt}
	return rc.recover(buf, count)
}

func (rc *recoveryCtx) recover(buf *batch.Buffer, count int) (commits, ok, ko int64) {
	if count == 1 {
		rc.sink.Log("COPY error on this line", buf.Bytes())
		buf.Close()
		return 0, 0, 1
	}

	half := count / 2
	a, b := buf.SplitAt(half)

	for _, part := range []struct {
		buf   *batch.Buffer
		count int
	}{{a, half}, {b, count - half}} {
		c, o, k := rc.attempt(part.buf, part.count)
		commits += c
		ok += o
		ko += k
	}

	return commits, ok, ko
}

// attempt tries one COPY of buf (count rows); on success it accounts for
// one commit and returns; on failure it either rejects the single
// remaining row or recurses into the next level of the dichotomy.
func (rc *recoveryCtx) attempt(buf *batch.Buffer, count int) (commits, ok, ko int64) {
	if rc.onAttempt != nil {
		rc.onAttempt()
	}

	_, err := rc.conn.CopyFrom(rc.ctx, rc.targetExpr, buf.Bytes(), rc.sep)
	if err == nil {
		if cerr := rc.conn.Commit(rc.ctx); cerr != nil {
			rc.log.WithError(cerr).Warn("commit after recovery sub-COPY failed")
		}
		buf.Close()
		// ok is accounted as count (the number of rows sent), not the
		// server's row tally.
		return 1, int64(count), 0
	}

	// Release the failing transaction's locks before deciding whether to
	// reject or recurse further.
	if cerr := rc.conn.Commit(rc.ctx); cerr != nil {
		rc.log.WithError(cerr).Warn("commit to release failed sub-COPY transaction failed")
	}

	if count == 1 {
		rc.sink.Log(fmt.Sprintf("COPY error: %s", err), buf.Bytes())
		buf.Close()
		return 0, 0, 1
	}

	return rc.recover(buf, count)
}
