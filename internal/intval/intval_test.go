package intval

import (
	"math"
	"testing"
)

func TestCoerce(t *testing.T) {
	for _, c := range []struct {
		in   any
		want int64
	}{
		{int(7), 7},
		{int8(-3), -3},
		{int16(300), 300},
		{int32(-70000), -70000},
		{int64(1 << 40), 1 << 40},
		{uint(9), 9},
		{uint8(255), 255},
		{uint16(65535), 65535},
		{uint32(4000000000), 4000000000},
		{uint64(12), 12},
	} {
		got, ok := Coerce(c.in)
		if !ok || got != c.want {
			t.Fatalf("Coerce(%v) = %d, %v; want %d, true", c.in, got, ok, c.want)
		}
	}

	for _, v := range []any{"7", 3.14, true, nil, []byte("1")} {
		if _, ok := Coerce(v); ok {
			t.Fatalf("Coerce(%v) accepted a non-integer", v)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, math.MaxInt64, math.MinInt64} {
		got, ok := Decode(Encode(n))
		if !ok || got != n {
			t.Fatalf("Decode(Encode(%d)) = %d, %v", n, got, ok)
		}
	}
}

func TestDecodeRejectsNonIntegers(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{},
		[]byte("abc"),
		[]byte("1.5"),
		[]byte("12x"),
		[]byte("999999999999999999999"), // 21 digits, over int64
		{0x93, 0x01, 0x02, 0x03},        // msgpack array
	} {
		if _, ok := Decode(b); ok {
			t.Fatalf("Decode(%q) accepted a non-integer payload", b)
		}
	}
}
