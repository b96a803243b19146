// Package pgconn owns one pgx session against the target database, applies
// session-level settings, and exposes the execute/commit/rollback/copy
// primitives the Loader needs.
package pgconn

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/withobsrvr/pgbulkload/internal/config"
)

// Connection wraps one leased pgx.Conn and the session-level settings that
// must be (re)applied whenever the session is (re)established. Only one
// in-flight COPY is permitted per Connection, and a Connection is not safe
// for concurrent use.
type Connection struct {
	pool   *pgxpool.Pool
	conn   *pgxpool.Conn
	pg     *pgx.Conn
	pgCfg  config.PostgresConfig
	loadCfg config.LoadConfig
	log    *logrus.Entry

	// tx is the currently open transaction, if any. Exec and CopyFrom run
	// inside one; maintenance statements do not.
	tx pgx.Tx
}

// New acquires one connection from pool and returns a Connection wrapper
// around it. Call Reset to apply session settings before first use.
func New(pool *pgxpool.Pool, pgCfg config.PostgresConfig, loadCfg config.LoadConfig, log *logrus.Entry) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Connection{pool: pool, pgCfg: pgCfg, loadCfg: loadCfg, log: log}
}

// Reset closes any prior underlying session and opens a new one against the
// configured descriptor, then applies client_encoding, datestyle (if
// configured), and lc_messages (if configured), in that order. Session
// setting failures are fatal.
func (c *Connection) Reset(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Release()
		c.conn = nil
		c.pg = nil
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return &LoaderError{Kind: KindSession, Err: fmt.Errorf("failed to acquire connection: %w", err)}
	}
	c.conn = conn
	c.pg = conn.Conn()

	if _, err := c.pg.Exec(ctx, "SET SESSION client_encoding TO $1", c.pgCfg.ClientEncoding); err != nil {
		return &LoaderError{Kind: KindSession, Err: fmt.Errorf("failed to set client_encoding: %w", err)}
	}
	if c.pgCfg.DateStyle != "" {
		if _, err := c.pg.Exec(ctx, "SET SESSION datestyle TO $1", c.pgCfg.DateStyle); err != nil {
			return &LoaderError{Kind: KindSession, Err: fmt.Errorf("failed to set datestyle: %w", err)}
		}
	}
	if c.pgCfg.LCMessages != "" {
		if _, err := c.pg.Exec(ctx, "SET SESSION lc_messages TO $1", c.pgCfg.LCMessages); err != nil {
			return &LoaderError{Kind: KindSession, Err: fmt.Errorf("failed to set lc_messages: %w", err)}
		}
	}

	c.log.WithFields(logrus.Fields{
		"client_encoding": c.pgCfg.ClientEncoding,
		"datestyle":       c.pgCfg.DateStyle,
	}).Debug("session established")
	return nil
}

// Close releases the underlying connection back to the pool, first
// committing any pending row-by-row work.
func (c *Connection) Close(ctx context.Context) error {
	var err error
	if c.tx != nil {
		err = c.tx.Commit(ctx)
		c.tx = nil
	}
	if c.conn != nil {
		c.conn.Release()
		c.conn = nil
		c.pg = nil
	}
	return err
}

// Begin opens a new transaction if one is not already open.
func (c *Connection) Begin(ctx context.Context) error {
	if c.tx != nil {
		return nil
	}
	tx, err := c.pg.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction, if any.
func (c *Connection) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit(ctx)
	c.tx = nil
	return err
}

// Rollback rolls back the open transaction, if any.
func (c *Connection) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback(ctx)
	c.tx = nil
	return err
}

// Exec runs sql inside the current transaction (opening one if necessary).
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) error {
	if err := c.Begin(ctx); err != nil {
		return err
	}
	_, err := c.tx.Exec(ctx, sql, args...)
	return err
}

// CopyFrom streams data (already in COPY text format) into
// "<table> (<col1>, ...)" using delimiter sep, inside the current
// transaction. It returns the number of rows the server reports as copied.
func (c *Connection) CopyFrom(ctx context.Context, targetExpr string, data []byte, sep byte) (int64, error) {
	if err := c.Begin(ctx); err != nil {
		return 0, err
	}

	sql := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT text, DELIMITER '%c')", targetExpr, sep)
	tag, err := c.tx.Conn().PgConn().CopyFrom(ctx, newByteReader(data), sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsNull reports whether v equals the configured null marker.
func (c *Connection) IsNull(v string) bool {
	return v == c.loadCfg.NullMarker
}

// IsEmpty reports whether v equals the configured empty marker.
func (c *Connection) IsEmpty(v string) bool {
	return v == c.loadCfg.EmptyMarker
}

// Truncate issues TRUNCATE TABLE followed by a commit. Dry-run is a no-op.
func (c *Connection) Truncate(ctx context.Context, table string) error {
	return c.maintenanceStatement(ctx, fmt.Sprintf("TRUNCATE TABLE %s;", table), "TRUNCATE", table)
}

// Vacuum issues VACUUM ANALYZE followed by a commit. Dry-run is a no-op.
func (c *Connection) Vacuum(ctx context.Context, table string) error {
	return c.maintenanceStatement(ctx, fmt.Sprintf("VACUUM ANALYZE %s;", table), "VACUUM ANALYZE", table)
}

// DisableTriggers issues ALTER TABLE ... DISABLE TRIGGER ALL. Dry-run is a no-op.
func (c *Connection) DisableTriggers(ctx context.Context, table string) error {
	return c.maintenanceStatement(ctx, fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER ALL;", table), "DISABLE TRIGGER", table)
}

// EnableTriggers issues ALTER TABLE ... ENABLE TRIGGER ALL. Dry-run is a no-op.
func (c *Connection) EnableTriggers(ctx context.Context, table string) error {
	return c.maintenanceStatement(ctx, fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER ALL;", table), "ENABLE TRIGGER", table)
}

func (c *Connection) maintenanceStatement(ctx context.Context, sql, verb, table string) error {
	if c.loadCfg.DryRun {
		c.log.WithFields(logrus.Fields{"verb": verb, "table": table}).Info("dry-run: skipping maintenance statement")
		return nil
	}

	c.log.WithField("sql", sql).Info(verb)

	// Maintenance statements run outside any row-load transaction, each in
	// its own implicitly-committed statement.
	if _, err := c.pg.Exec(ctx, sql); err != nil {
		return &LoaderError{Kind: KindMaintenance, Err: fmt.Errorf("couldn't %s table %s: %w", verb, table, err)}
	}
	return nil
}
