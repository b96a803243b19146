package pgconn

import "bytes"

// newByteReader adapts an in-memory byte slice to an io.Reader for
// PgConn.CopyFrom, which streams from an io.Reader rather than accepting a
// slice directly.
func newByteReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
