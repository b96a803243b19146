package rejects

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_LogAppendsReasonAndLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	sink.Log("COPY error on this line", []byte("2\tBAD\n"))
	require.NoError(t, sink.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "COPY error on this line | 2\tBAD\n", string(contents))
}

func TestFileSink_RejectLogReturnsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, path, sink.RejectLog())
}

func TestFileSink_AppendsAcrossMultipleLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	sink.Log("first", []byte("a\n"))
	sink.Log("second", []byte("b\n"))
	require.NoError(t, sink.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")
}

func TestFileSink_ConcurrentLogIsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sink.Log("concurrent reject", []byte("row\n"))
		}(i)
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	assert.Len(t, lines, 50)
}

func TestFormatReason_String(t *testing.T) {
	assert.Equal(t, "boom", formatReason("boom"))
}

func TestFormatReason_StringSlice(t *testing.T) {
	assert.Equal(t, "Codec error: invalid byte", formatReason([]string{"Codec error", "invalid byte"}))
}

func TestFormatReason_Error(t *testing.T) {
	assert.Equal(t, "boom", formatReason(errors.New("boom")))
}

func TestFormatReason_Fallback(t *testing.T) {
	assert.Equal(t, "42", formatReason(42))
}
