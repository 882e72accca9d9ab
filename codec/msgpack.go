package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes values using vmihailenco/msgpack/v5. The zero value is
// ready to use. This is the default codec: compact, fast, and nested
// structures come back as map[string]any.
//
// Decoding is "loose": integers widen to int64 (uint64 above math.MaxInt64)
// so numeric values look the same no matter which engine stored them.
type Msgpack struct{}

var _ Codec = Msgpack{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(b []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	err := dec.Decode(&v)
	return v, err
}
