package codec

import "fmt"

// Raw is an identity codec for values that are already bytes (or strings).
// Unmarshal returns []byte. Useful when the caller owns serialization and
// only needs the engine's key composition and TTL handling.
type Raw struct{}

var _ Codec = Raw{}

func (Raw) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("codec: raw codec requires []byte or string, got %T", v)
	}
}

func (Raw) Unmarshal(b []byte) (any, error) { return b, nil }
