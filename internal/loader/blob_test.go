package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withobsrvr/pgbulkload/internal/config"
)

func TestInsertBlob_HappyPathNoCommitBeforeThreshold(t *testing.T) {
	driver := newFakeDriver()
	sink := &fakeSink{}
	ld := newTestLoader(driver, config.LoadConfig{CommitEvery: 3})

	ok := ld.InsertBlob(context.Background(), "docs", []string{"id"}, []any{1}, "body", []byte("hello"), BlobKindBLOB, []byte("1\thello\n"), sink)

	assert.True(t, ok)
	assert.Equal(t, int64(1), ld.Statistics().RunningCommands)
	assert.Equal(t, 0, driver.commits)
	assert.Empty(t, sink.lines)
}

func TestInsertBlob_CommitsOnCommitEveryAndResetsRunningCommandsToOne(t *testing.T) {
	// After a threshold commit, running_commands resets to 1 (the
	// triggering row already counts toward the next window), not 0.
	driver := newFakeDriver()
	sink := &fakeSink{}
	ld := newTestLoader(driver, config.LoadConfig{CommitEvery: 2})

	for i := 0; i < 2; i++ {
		ok := ld.InsertBlob(context.Background(), "docs", []string{"id"}, []any{i}, "body", []byte("x"), BlobKindBLOB, []byte("row\n"), sink)
		require.True(t, ok)
	}

	stats := ld.Statistics()
	assert.Equal(t, 1, driver.commits)
	assert.Equal(t, int64(1), stats.Commits)
	assert.Equal(t, int64(2), stats.CommittedRows)
	assert.Equal(t, int64(1), stats.RunningCommands)
}

func TestInsertBlob_ExecErrorRejectsWithoutCountingRunningCommand(t *testing.T) {
	driver := newFakeDriver()
	driver.execErr = assertError{"constraint violation"}
	sink := &fakeSink{}
	ld := newTestLoader(driver, config.LoadConfig{CommitEvery: 5})

	ok := ld.InsertBlob(context.Background(), "docs", []string{"id"}, []any{1}, "body", []byte("x"), BlobKindBLOB, []byte("1\tx\n"), sink)

	assert.False(t, ok)
	stats := ld.Statistics()
	assert.Equal(t, int64(0), stats.RunningCommands)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, 1, driver.commits, "must commit to unwedge the transaction after a failed Exec")
	require.Len(t, sink.lines, 1)
	assert.Equal(t, []byte("1\tx\n"), sink.lines[0])
}

func TestBuildBlobUpdate_CLOBEscapesSingleQuotes(t *testing.T) {
	sql, args := buildBlobUpdate("docs", []string{"id"}, []any{7}, "body", []byte(`it's here`), BlobKindCLOB)

	assert.Equal(t, "UPDATE docs SET body = $1 WHERE id = $2;", sql)
	require.Len(t, args, 2)
	assert.Equal(t, `it\'s here`, args[0])
	assert.Equal(t, 7, args[1])
}

func TestBuildBlobUpdate_BLOBUsesByteaCastAndRawBytes(t *testing.T) {
	data := []byte{0x00, 0xff, 'a'}
	sql, args := buildBlobUpdate("docs", []string{"id"}, []any{7}, "body", data, BlobKindBLOB)

	assert.Equal(t, "UPDATE docs SET body = $1::bytea WHERE id = $2;", sql)
	require.Len(t, args, 2)
	assert.Equal(t, data, args[0])
}

func TestBuildBlobUpdate_MultipleIndexColumnsJoinedByAnd(t *testing.T) {
	sql, args := buildBlobUpdate("docs", []string{"tenant", "id"}, []any{"acme", 7}, "body", []byte("x"), BlobKindBLOB)

	assert.Equal(t, "UPDATE docs SET body = $1::bytea WHERE tenant = $2 AND id = $3;", sql)
	require.Len(t, args, 3)
	assert.Equal(t, "acme", args[1])
	assert.Equal(t, 7, args[2])
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
