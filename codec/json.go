package codec

import "encoding/json"

// JSON serializes values as JSON. Human-readable on the wire, but all
// numbers decode as float64.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(b []byte) (any, error) {
	var v any
	err := json.Unmarshal(b, &v)
	return v, err
}
