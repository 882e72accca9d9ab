package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestMsgpackIntegersWidenToInt64(t *testing.T) {
	c := Msgpack{}
	for _, v := range []any{0, 1, -1, 127, 128, int16(300), int32(70000), int64(1 << 40)} {
		b, err := c.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		got, err := c.Unmarshal(b)
		if err != nil {
			t.Fatalf("Unmarshal(%v): %v", v, err)
		}
		if _, ok := got.(int64); !ok {
			t.Fatalf("Unmarshal(%v) = %v (%T), want int64", v, got, got)
		}
	}
}

func TestMsgpackNested(t *testing.T) {
	c := Msgpack{}
	in := map[string]any{
		"name":  "Ada",
		"count": 3,
		"tags":  []any{"x", "y"},
	}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("decoded as %T, want map[string]any", got)
	}
	if m["name"] != "Ada" || m["count"] != int64(3) {
		t.Fatalf("decoded %#v", m)
	}
}

func TestJSONNumbersAreFloat64(t *testing.T) {
	c := JSON{}
	b, err := c.Marshal(map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.(map[string]any)["n"] != float64(3) {
		t.Fatalf("decoded %#v, want float64 number", got)
	}
}

func TestCBORMapsDecodeAsStringKeyed(t *testing.T) {
	c := MustCBOR(false)
	b, err := c.Marshal(map[string]any{"k": "v", "n": 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("decoded as %T, want map[string]any", got)
	}
	if m["k"] != "v" {
		t.Fatalf("decoded %#v", m)
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR(true)
	in := map[string]any{"b": 2, "a": 1, "c": 3}
	first, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("deterministic encoding varied between calls")
		}
	}
}

func TestCBORTimeRFC3339(t *testing.T) {
	c := MustCBOR(false)
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	b, err := c.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	s, ok := got.(string)
	if !ok || !strings.HasPrefix(s, "2024-06-01T12:30:00") {
		t.Fatalf("time decoded as %v (%T)", got, got)
	}
}

func TestRaw(t *testing.T) {
	c := Raw{}
	b, err := c.Marshal("payload")
	if err != nil || string(b) != "payload" {
		t.Fatalf("Marshal string: b=%q err=%v", b, err)
	}
	b, err = c.Marshal([]byte{1, 2, 3})
	if err != nil || len(b) != 3 {
		t.Fatalf("Marshal bytes: b=%v err=%v", b, err)
	}
	if _, err := c.Marshal(42); err == nil {
		t.Fatalf("Marshal non-bytes must fail")
	}

	got, err := c.Unmarshal([]byte("x"))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if bs, ok := got.([]byte); !ok || string(bs) != "x" {
		t.Fatalf("Unmarshal = %v (%T)", got, got)
	}
}

func TestLimit(t *testing.T) {
	c := Limit{Inner: Msgpack{}, MaxDecode: 8}

	small, err := c.Marshal("ok")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := c.Unmarshal(small); err != nil {
		t.Fatalf("Unmarshal small: %v", err)
	}

	big, err := c.Marshal(strings.Repeat("x", 100))
	if err != nil {
		t.Fatalf("Marshal big: %v", err)
	}
	if _, err := c.Unmarshal(big); err == nil {
		t.Fatalf("Unmarshal over MaxDecode must fail")
	}

	// disabled limit passes everything through
	c.MaxDecode = 0
	if _, err := c.Unmarshal(big); err != nil {
		t.Fatalf("Unmarshal with disabled limit: %v", err)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() proto.Message { return &wrapperspb.StringValue{} })

	b, err := c.Marshal(wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sv, ok := got.(*wrapperspb.StringValue)
	if !ok || sv.GetValue() != "hello" {
		t.Fatalf("Unmarshal = %v (%T)", got, got)
	}

	if _, err := c.Marshal("not a message"); err == nil {
		t.Fatalf("Marshal non-message must fail")
	}
}
