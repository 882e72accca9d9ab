package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto.Message values. Because engine values are
// dynamically typed, decoding needs a constructor for the concrete message
// (e.g. func() proto.Message { return &mypb.User{} }); Unmarshal returns
// the populated message as any.
type Protobuf struct {
	new func() proto.Message
}

var _ Codec = Protobuf{}

func NewProtobuf(ctor func() proto.Message) Protobuf {
	return Protobuf{new: ctor}
}

func (c Protobuf) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: protobuf codec requires proto.Message, got %T", v)
	}
	return proto.Marshal(m)
}

func (c Protobuf) Unmarshal(b []byte) (any, error) {
	m := c.new()
	if err := proto.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}
