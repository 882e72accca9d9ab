// Package codec defines how engines serialize cache values.
//
// Engine values are dynamically typed (any), so codecs here are not generic:
// Unmarshal returns whatever shape the format naturally decodes to. Msgpack
// is the default everywhere; it round-trips integers as int64 and nested
// structures as map[string]any without surprises. JSON decodes all numbers
// as float64 - fine for blobs, wrong for counters; engines bypass the codec
// for integer values regardless.
package codec

// Codec encodes/decodes cache values to []byte for storage.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte) (any, error)
}
