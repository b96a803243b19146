package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendAndLen(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.Len())

	b.AppendRow([]byte("1\ta\n"))
	b.AppendRow([]byte("2\tb\n"))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, "1\ta\n2\tb\n", string(b.Bytes()))
}

func TestBuffer_Close_ResetsState(t *testing.T) {
	b := New()
	b.AppendRow([]byte("1\ta\n"))
	b.Close()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "", string(b.Bytes()))
}

func TestBuffer_SplitAt_EvenCount(t *testing.T) {
	b := New()
	rows := []string{"1\ta\n", "2\tb\n", "3\tc\n", "4\td\n"}
	for _, r := range rows {
		b.AppendRow([]byte(r))
	}

	first, second := b.SplitAt(2)

	require.Equal(t, 2, first.Len())
	require.Equal(t, 2, second.Len())
	assert.Equal(t, "1\ta\n2\tb\n", string(first.Bytes()))
	assert.Equal(t, "3\tc\n4\td\n", string(second.Bytes()))
}

func TestBuffer_SplitAt_OddCount_ExtraRowGoesToSecondHalf(t *testing.T) {
	// Spec §4.5's tie-break: half = count/2 (floor), so a 5-row buffer split
	// at half=2 leaves 3 rows in the second half.
	b := New()
	rows := []string{"1\n", "2\n", "3\n", "4\n", "5\n"}
	for _, r := range rows {
		b.AppendRow([]byte(r))
	}

	half := 5 / 2
	first, second := b.SplitAt(half)

	assert.Equal(t, 2, first.Len())
	assert.Equal(t, 3, second.Len())
	assert.Equal(t, "1\n2\n", string(first.Bytes()))
	assert.Equal(t, "3\n4\n5\n", string(second.Bytes()))
}

func TestBuffer_SplitAt_ClosesReceiver(t *testing.T) {
	b := New()
	b.AppendRow([]byte("1\n"))
	b.AppendRow([]byte("2\n"))

	b.SplitAt(1)

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "", string(b.Bytes()))
}

func TestBuffer_SplitAt_PreservesOrderWithinHalves(t *testing.T) {
	b := New()
	for _, r := range []string{"1\n", "2\n", "3\n", "4\n", "5\n", "6\n"} {
		b.AppendRow([]byte(r))
	}

	first, second := b.SplitAt(3)
	assert.Equal(t, []byte("1\n2\n3\n"), first.Bytes())
	assert.Equal(t, []byte("4\n5\n6\n"), second.Bytes())
}
