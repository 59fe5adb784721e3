package types

import (
	"bytes"
	"encoding/json"
)

// MarshalCanonical encodes v as compact JSON the way event ids are
// hashed: HTML characters and U+2028/U+2029 are written raw, no trailing
// newline.
func MarshalCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return RestoreLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// RestoreLineSeparators rewrites the \u2028 and \u2029 escapes that
// encoding/json always emits back into the raw characters. Escaped
// backslashes followed by the same text are left alone.
func RestoreLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' || i+1 >= len(b) {
			out = append(out, c)
			continue
		}
		if i+6 <= len(b) && string(b[i+1:i+5]) == "u202" && (b[i+5] == '8' || b[i+5] == '9') {
			if b[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, c, b[i+1])
		i++
	}
	return out
}
