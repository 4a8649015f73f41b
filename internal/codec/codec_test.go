package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/xtxerr/depot/internal/errors"
)

func TestParseFieldType(t *testing.T) {
	for ft := TypeI8; ft <= TypeBool; ft++ {
		got, err := ParseFieldType(ft.String())
		if err != nil {
			t.Errorf("ParseFieldType(%q): %v", ft.String(), err)
			continue
		}
		if got != ft {
			t.Errorf("ParseFieldType(%q) = %v, want %v", ft.String(), got, ft)
		}
	}
	if _, err := ParseFieldType("int32"); !errors.Is(err, errors.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := ParseFieldType("null"); err == nil {
		t.Error("null is not a declarable field type")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	types := []FieldType{TypeI8, TypeI16, TypeI32, TypeI64, TypeU8, TypeU16,
		TypeU32, TypeU64, TypeF32, TypeF64, TypeChar, TypeBool}
	values := []Value{
		I8(-5), I16(-300), I32(-70000), I64(-5_000_000_000),
		U8(200), U16(60000), U32(4_000_000_000), U64(math.MaxUint64),
		F32(1.5), F64(math.Pi), Char('x'), Bool(true),
	}

	blob := Pack(values)
	if len(blob) != PayloadSize(types) {
		t.Fatalf("packed %d bytes, want %d", len(blob), PayloadSize(types))
	}

	got := Unpack(blob, types)
	if len(got) != len(values) {
		t.Fatalf("unpacked %d values, want %d", len(got), len(values))
	}
	for i, v := range got {
		if v != values[i] {
			t.Errorf("field %d: got %+v, want %+v", i, v, values[i])
		}
	}
}

func TestPackBigEndian(t *testing.T) {
	blob := Pack([]Value{U16(0x0102), U32(0x03040506)})
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if !bytes.Equal(blob, want) {
		t.Errorf("got % x, want % x", blob, want)
	}
}

func TestUnpackShortPayload(t *testing.T) {
	types := []FieldType{TypeU32, TypeF64, TypeU16}
	full := Pack([]Value{U32(7), F64(2.5), U16(9)})

	// Only the first field survives truncation.
	got := Unpack(full[:4], types)
	if got[0] != U32(7) {
		t.Errorf("field 0: got %+v", got[0])
	}
	if !got[1].IsNull() || !got[2].IsNull() {
		t.Errorf("truncated fields must decode as null, got %+v %+v", got[1], got[2])
	}

	// A field cut mid-width is also null.
	got = Unpack(full[:6], types)
	if !got[1].IsNull() {
		t.Errorf("partially present field must decode as null, got %+v", got[1])
	}

	got = Unpack(nil, types)
	for i, v := range got {
		if !v.IsNull() {
			t.Errorf("field %d of empty payload: got %+v, want null", i, v)
		}
	}
}

func TestValueConversions(t *testing.T) {
	if got := I16(-300).Int64(); got != -300 {
		t.Errorf("I16 sign extension: got %d", got)
	}
	if got := U8(200).Int64(); got != 200 {
		t.Errorf("U8 Int64: got %d", got)
	}
	if got := I32(-7).Float64(); got != -7.0 {
		t.Errorf("I32 Float64: got %v", got)
	}
	if got := F32(1.5).Float64(); got != 1.5 {
		t.Errorf("F32 Float64: got %v", got)
	}
	if !Bool(true).Bool() || Bool(false).Bool() {
		t.Error("Bool round trip broken")
	}
	if Char('q').Char() != 'q' {
		t.Error("Char round trip broken")
	}
	if !Null.IsNull() || Null.Type.Size() != 0 {
		t.Error("Null must be zero-width")
	}
}

func TestPayloadSize(t *testing.T) {
	if n := PayloadSize(nil); n != 0 {
		t.Errorf("empty field list: got %d", n)
	}
	if n := PayloadSize([]FieldType{TypeU32, TypeF64, TypeBool}); n != 13 {
		t.Errorf("got %d, want 13", n)
	}
}
