// Package encoding implements the COPY text-format row encoder: the
// null/empty sentinel handling, the ordered escape map, and the optional
// transcoding step.
package encoding

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/htmlindex"
)

// escapePairs maps each byte with a fixed escape to its two-character form.
// escape looks every input byte up once, so the backslashes it writes are
// never examined again and cannot be escaped a second time.
var escapePairs = []struct {
	from byte
	to   string
}{
	{'\\', `\\`},
	// copy_sep is handled separately below, since it is configurable.
	{'\b', `\b`},
	{'\f', `\f`},
	{'\n', `\n`},
	{'\r', `\r`},
	{'\t', `\t`},
	{'\v', `\v`},
}

// Encoder converts field values into COPY text-format rows and appends them
// to a destination buffer.
type Encoder struct {
	CopySep     byte
	NullMarker  string
	EmptyMarker string

	// InputEncoding, if non-empty, names a source-side encoding (per
	// golang.org/x/text/encoding/htmlindex, e.g. "windows-1252",
	// "iso-8859-1") that field values are transcoded from before COPY
	// escaping is applied.
	InputEncoding string
}

// RejectFunc reports a row-local failure to the reject sink; reason is
// either a short string or a list of short strings.
type RejectFunc func(reason any, originalInputLine []byte)

// EncodeRow appends one COPY-formatted row (fields joined by CopySep,
// terminated by a single '\n') to dst. It returns false, without having
// written anything to dst, if a field failed to transcode; the row has then
// already been reported through reject, and the caller skips it.
func (e *Encoder) EncodeRow(dst *bytes.Buffer, values []string, originalInputLine []byte, reject RejectFunc) bool {
	var row bytes.Buffer

	for i, v := range values {
		if i > 0 {
			row.WriteByte(e.CopySep)
		}

		switch {
		case v == e.NullMarker:
			row.WriteString(`\N`)
		case v == e.EmptyMarker:
			// zero bytes
		default:
			encoded, ok := e.encodeField(v, originalInputLine, reject)
			if !ok {
				return false
			}
			row.WriteString(encoded)
		}
	}
	row.WriteByte('\n')

	dst.Write(row.Bytes())
	return true
}

// encodeField transcodes (if configured) and escapes a single non-null,
// non-empty field value.
func (e *Encoder) encodeField(v string, originalInputLine []byte, reject RejectFunc) (string, bool) {
	if e.InputEncoding != "" {
		transcoded, err := transcode(v, e.InputEncoding)
		if err != nil {
			reject([]string{"Codec error", err.Error()}, originalInputLine)
			return "", false
		}
		v = transcoded
	}

	return e.escape(v), true
}

// escape applies the ordered substitution list: a backslash is always
// escaped to "\\"; the six named control characters always take their
// canonical two-character form (so a default tab separator reads as
// "\t"); any other separator byte (one not already in that set, e.g. ','
// or '|') falls back to a literal "\" followed by the raw byte, since it
// has no canonical letter form of its own.
func (e *Encoder) escape(v string) string {
	var out bytes.Buffer
	for i := 0; i < len(v); i++ {
		c := v[i]

		if pair, ok := escapeFor(c); ok {
			out.WriteString(pair)
			continue
		}

		if c == e.CopySep {
			out.WriteByte('\\')
			out.WriteByte(c)
			continue
		}

		out.WriteByte(c)
	}
	return out.String()
}

func escapeFor(c byte) (string, bool) {
	for _, pair := range escapePairs {
		if c == pair.from {
			return pair.to, true
		}
	}
	return "", false
}

// transcode decodes v, whose bytes are in the named source encoding, into
// UTF-8. A failure surfaces as a rejected row rather than mojibake
// committed to the database.
func transcode(v string, encodingName string) (string, error) {
	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return "", fmt.Errorf("unknown input encoding %q: %w", encodingName, err)
	}
	out, err := enc.NewDecoder().String(v)
	if err != nil {
		return "", fmt.Errorf("transcoding from %q failed: %w", encodingName, err)
	}
	return out, nil
}
