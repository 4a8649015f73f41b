// Package codec packs and unpacks sample payloads.
//
// A sample's payload is an opaque byte blob whose structure is described
// by the owning model's ordered list of typed fields. Fields are encoded
// big-endian at fixed widths and concatenated without padding. A payload
// shorter than the field list decodes the missing fields as null rather
// than failing; gateways occasionally truncate trailing fields.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xtxerr/depot/internal/errors"
)

// =============================================================================
// Field Types
// =============================================================================

// FieldType identifies the wire type of one payload field.
type FieldType int

const (
	TypeNull FieldType = iota
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeF32
	TypeF64
	TypeChar
	TypeBool
)

// String returns the canonical string form of the field type.
func (t FieldType) String() string {
	switch t {
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeU8:
		return "u8"
	case TypeU16:
		return "u16"
	case TypeU32:
		return "u32"
	case TypeU64:
		return "u64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeChar:
		return "char"
	case TypeBool:
		return "bool"
	default:
		return "null"
	}
}

// ParseFieldType parses the string form of a field type.
func ParseFieldType(s string) (FieldType, error) {
	for t := TypeI8; t <= TypeBool; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return TypeNull, fmt.Errorf("field type %q: %w", s, errors.ErrInvalidPayload)
}

// Size returns the encoded width of the field type in bytes.
func (t FieldType) Size() int {
	switch t {
	case TypeI8, TypeU8, TypeChar, TypeBool:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeU32, TypeF32:
		return 4
	case TypeI64, TypeU64, TypeF64:
		return 8
	default:
		return 0
	}
}

// =============================================================================
// Values
// =============================================================================

// Value is one decoded payload field. The zero value is null.
type Value struct {
	Type FieldType
	bits uint64
}

// Null is the null value.
var Null = Value{}

func I8(v int8) Value    { return Value{TypeI8, uint64(uint8(v))} }
func I16(v int16) Value  { return Value{TypeI16, uint64(uint16(v))} }
func I32(v int32) Value  { return Value{TypeI32, uint64(uint32(v))} }
func I64(v int64) Value  { return Value{TypeI64, uint64(v)} }
func U8(v uint8) Value   { return Value{TypeU8, uint64(v)} }
func U16(v uint16) Value { return Value{TypeU16, uint64(v)} }
func U32(v uint32) Value { return Value{TypeU32, uint64(v)} }
func U64(v uint64) Value { return Value{TypeU64, v} }
func F32(v float32) Value {
	return Value{TypeF32, uint64(math.Float32bits(v))}
}
func F64(v float64) Value {
	return Value{TypeF64, math.Float64bits(v)}
}
func Char(v byte) Value { return Value{TypeChar, uint64(v)} }
func Bool(v bool) Value {
	var b uint64
	if v {
		b = 1
	}
	return Value{TypeBool, b}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Type == TypeNull }

// Int64 returns the value as a signed integer. Sign extension follows
// the declared width.
func (v Value) Int64() int64 {
	switch v.Type {
	case TypeI8:
		return int64(int8(v.bits))
	case TypeI16:
		return int64(int16(v.bits))
	case TypeI32:
		return int64(int32(v.bits))
	default:
		return int64(v.bits)
	}
}

// Uint64 returns the value as an unsigned integer.
func (v Value) Uint64() uint64 { return v.bits }

// Float64 returns the value as a float. Integer values are converted.
func (v Value) Float64() float64 {
	switch v.Type {
	case TypeF32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case TypeF64:
		return math.Float64frombits(v.bits)
	case TypeI8, TypeI16, TypeI32, TypeI64:
		return float64(v.Int64())
	default:
		return float64(v.bits)
	}
}

// Bool returns the value as a boolean.
func (v Value) Bool() bool { return v.bits != 0 }

// Char returns the value as a byte.
func (v Value) Char() byte { return byte(v.bits) }

// =============================================================================
// Encoding
// =============================================================================

// AppendTo appends the big-endian encoding of v to dst.
func (v Value) AppendTo(dst []byte) []byte {
	switch v.Type.Size() {
	case 1:
		return append(dst, byte(v.bits))
	case 2:
		return binary.BigEndian.AppendUint16(dst, uint16(v.bits))
	case 4:
		return binary.BigEndian.AppendUint32(dst, uint32(v.bits))
	case 8:
		return binary.BigEndian.AppendUint64(dst, v.bits)
	default:
		return dst
	}
}

// Pack encodes a list of values into one payload blob.
func Pack(values []Value) []byte {
	n := 0
	for _, v := range values {
		n += v.Type.Size()
	}
	out := make([]byte, 0, n)
	for _, v := range values {
		out = v.AppendTo(out)
	}
	return out
}

// Unpack decodes a payload blob against a model's field list. Fields
// past the end of the blob decode as null.
func Unpack(b []byte, types []FieldType) []Value {
	values := make([]Value, 0, len(types))
	off := 0
	for _, t := range types {
		size := t.Size()
		if off+size > len(b) {
			values = append(values, Null)
			continue
		}
		var bits uint64
		switch size {
		case 1:
			bits = uint64(b[off])
		case 2:
			bits = uint64(binary.BigEndian.Uint16(b[off : off+2]))
		case 4:
			bits = uint64(binary.BigEndian.Uint32(b[off : off+4]))
		case 8:
			bits = binary.BigEndian.Uint64(b[off : off+8])
		}
		values = append(values, Value{Type: t, bits: bits})
		off += size
	}
	return values
}

// PayloadSize returns the expected payload width for a field list.
func PayloadSize(types []FieldType) int {
	n := 0
	for _, t := range types {
		n += t.Size()
	}
	return n
}
