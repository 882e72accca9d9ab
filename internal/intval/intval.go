// Package intval implements the integer fast path shared by engines whose
// store has a native counter primitive: integer values are stored as plain
// decimal text, never through the generic codec, so INCRBY-style operations
// keep working on them.
package intval

import "strconv"

// Coerce widens any Go integer value to int64.
func Coerce(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Encode formats n as decimal text.
func Encode(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// Decode parses b as decimal text. Safe to probe on arbitrary payloads:
// engines encode integers themselves, so a payload that parses fully as a
// decimal integer is either the fast path or a JSON integer - identical
// either way. msgpack and CBOR blobs are never pure ASCII digits.
func Decode(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
