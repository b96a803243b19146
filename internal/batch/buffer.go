// Package batch implements the append-only in-memory row buffer that feeds
// one COPY invocation.
package batch

import "bytes"

// Buffer is a growable byte sequence of COPY-formatted rows plus a row
// count. It is created lazily on the first row of a batch and replaced
// (never truncated in place) after a successful COPY or after Recover
// drains it; stale cursor state must never survive into the next batch.
type Buffer struct {
	buf      bytes.Buffer
	rowCount int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// AppendRow appends one already-encoded, newline-terminated row and
// increments the row count.
func (b *Buffer) AppendRow(row []byte) {
	b.buf.Write(row)
	b.rowCount++
}

// Len returns the number of newline-terminated rows currently buffered.
func (b *Buffer) Len() int {
	return b.rowCount
}

// Bytes returns the full buffered content, in input order.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Close releases the buffer's backing storage. Buffer is not reusable after
// Close; callers must allocate a new one via New.
func (b *Buffer) Close() {
	b.buf.Reset()
	b.rowCount = 0
}

// SplitAt splits the buffer's rows line-by-line into two new buffers, the
// first holding the first n rows and the second holding the rest, and
// closes the receiver. Row order within each half is preserved. On an odd
// split the extra row goes to the second half (n == count/2).
func (b *Buffer) SplitAt(n int) (first, second *Buffer) {
	first, second = New(), New()

	lines := bytes.SplitAfter(b.buf.Bytes(), []byte("\n"))
	// bytes.SplitAfter on a buffer ending in "\n" yields a trailing empty
	// element; drop it so row counts line up exactly with b.rowCount.
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	for i, line := range lines {
		if i < n {
			first.AppendRow(line)
		} else {
			second.AppendRow(line)
		}
	}

	b.Close()
	return first, second
}
