package pgconn

import "context"

// Driver is the narrow set of operations Loader and Recover need from a
// database session: execute, copy_from, commit, rollback. Any
// implementation must give statement-level error isolation: the session
// survives one failed COPY rather than being poisoned by it.
//
// *Connection is the only production implementation; the interface exists
// so Loader and Recover can be exercised in tests against a fake without a
// live PostgreSQL server.
type Driver interface {
	CopyFrom(ctx context.Context, targetExpr string, data []byte, sep byte) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) error
}

var _ Driver = (*Connection)(nil)
