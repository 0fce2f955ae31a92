// Package dtype implements the fixed data-type set, schema/attribute
// model, and little-endian field/tuple codec that every stored record and
// in-flight tuple is built from.
//
// What: Type enum, Attribute/Schema, Field value, and tuple encode/decode.
// How: grounded on the teacher's internal/storage/db.go ColType enum shape
// (restructured down to the closed set spec.md §3 names — a full SQL type
// system is explicitly out of scope) and internal/storage/decimal.go's
// DecimalFromAny/DecimalAdd numeric-promotion rules, restructured from
// *big.Rat free-form arithmetic onto the fixed (int64 mantissa, int32
// scale) encoding spec.md requires.
package dtype

import (
	"encoding/binary"

	"github.com/crustylabs/crustydb/internal/dberr"
)

// Type enumerates the closed set of supported column data types.
type Type int

const (
	Int64 Type = iota
	Int32
	Int16
	Char   // fixed-length, Attribute.Len runes, zero-padded
	VarString
	Decimal
	Date // days since 1970-01-01, stored as int64
	Bool
	Null
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "INT64"
	case Int32:
		return "INT32"
	case Int16:
		return "INT16"
	case Char:
		return "CHAR"
	case VarString:
		return "VARSTRING"
	case Decimal:
		return "DECIMAL"
	case Date:
		return "DATE"
	case Bool:
		return "BOOL"
	case Null:
		return "NULL"
	default:
		return "UNKNOWN"
	}
}

// Constraint tags an attribute with an optional integrity constraint.
type Constraint int

const (
	ConstraintNone Constraint = iota
	ConstraintPrimaryKey
)

// Attribute describes one column: its name, dtype, and (for Char/Decimal)
// declared width.
type Attribute struct {
	Name       string
	Type       Type
	Len        int // rune count for Char
	Precision  int // declared precision for Decimal, informational
	Scale      int32
	Constraint Constraint
}

// Schema is an ordered list of attributes; position is the column offset.
type Schema struct {
	Attrs []Attribute
}

// ColOffset returns the position of name within the schema.
func (s Schema) ColOffset(name string) (int, bool) {
	for i, a := range s.Attrs {
		if a.Name == name {
			return i, true
		}
	}
	return 0, false
}

// FixedWidth returns the encoded width of the type for a given attribute,
// or (0, false) if the type is variable-width (VarString).
func FixedWidth(a Attribute) (int, bool) {
	switch a.Type {
	case Int64:
		return 8, true
	case Int32:
		return 4, true
	case Int16:
		return 2, true
	case Char:
		return 4 * a.Len, true
	case Decimal:
		return 12, true // 8-byte mantissa + 4-byte scale
	case Date:
		return 8, true
	case Bool:
		return 1, true
	case Null:
		return 0, true
	default:
		return 0, false
	}
}

// Field is a typed value. IsNull takes precedence over Type's declared
// payload — "null" is itself one of the data-type variants (spec.md §3),
// so a field can be null independent of its attribute's declared type.
type Field struct {
	Type   Type
	IsNull bool
	I64    int64 // Int64/Int32/Int16 (sign-extended)/Date (day offset)/Bool (0 or 1)
	Str    string
	Dec    Decimal
}

// NullField returns a null field of the given declared type.
func NullField(t Type) Field { return Field{Type: t, IsNull: true} }

// EncodedLen returns the number of bytes Encode will write for f under
// attribute a, including the 1-byte null flag.
func EncodedLen(f Field, a Attribute) int {
	if f.IsNull {
		return 1
	}
	switch a.Type {
	case VarString:
		return 1 + 4 + len(f.Str)
	default:
		w, _ := FixedWidth(a)
		return 1 + w
	}
}

// Encode writes f's on-the-wire bytes (null flag plus payload) for
// attribute a to dst, returning the number of bytes written.
func Encode(dst []byte, f Field, a Attribute) (int, error) {
	if f.IsNull {
		dst[0] = 0
		return 1, nil
	}
	dst[0] = 1
	body := dst[1:]
	switch a.Type {
	case Int64:
		binary.LittleEndian.PutUint64(body, uint64(f.I64))
		return 9, nil
	case Int32:
		binary.LittleEndian.PutUint32(body, uint32(int32(f.I64)))
		return 5, nil
	case Int16:
		binary.LittleEndian.PutUint16(body, uint16(int16(f.I64)))
		return 3, nil
	case Bool:
		if f.I64 != 0 {
			body[0] = 1
		} else {
			body[0] = 0
		}
		return 2, nil
	case Date:
		binary.LittleEndian.PutUint64(body, uint64(f.I64))
		return 9, nil
	case Char:
		runes := []rune(f.Str)
		if len(runes) > a.Len {
			return 0, dberr.New(dberr.KindValidation, "char value exceeds declared length")
		}
		want := 4 * a.Len
		for i := 0; i < want; i++ {
			body[i] = 0
		}
		for i, r := range runes {
			binary.LittleEndian.PutUint32(body[i*4:], uint32(r))
		}
		return 1 + want, nil
	case VarString:
		b := []byte(f.Str)
		binary.LittleEndian.PutUint32(body, uint32(len(b)))
		copy(body[4:], b)
		return 1 + 4 + len(b), nil
	case Decimal:
		binary.LittleEndian.PutUint64(body, uint64(f.Dec.Mantissa))
		binary.LittleEndian.PutUint32(body[8:], uint32(f.Dec.Scale))
		return 1 + 12, nil
	default:
		return 0, dberr.New(dberr.KindValidation, "unsupported dtype for encode")
	}
}

// Decode reads one field for attribute a from src, returning the value and
// the number of bytes consumed.
func Decode(src []byte, a Attribute) (Field, int, error) {
	if len(src) < 1 {
		return Field{}, 0, dberr.New(dberr.KindValidation, "truncated field: missing null flag")
	}
	if src[0] == 0 {
		return NullField(a.Type), 1, nil
	}
	body := src[1:]
	switch a.Type {
	case Int64:
		if len(body) < 8 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated int64")
		}
		return Field{Type: Int64, I64: int64(binary.LittleEndian.Uint64(body))}, 9, nil
	case Int32:
		if len(body) < 4 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated int32")
		}
		return Field{Type: Int32, I64: int64(int32(binary.LittleEndian.Uint32(body)))}, 5, nil
	case Int16:
		if len(body) < 2 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated int16")
		}
		return Field{Type: Int16, I64: int64(int16(binary.LittleEndian.Uint16(body)))}, 3, nil
	case Bool:
		if len(body) < 1 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated bool")
		}
		v := int64(0)
		if body[0] != 0 {
			v = 1
		}
		return Field{Type: Bool, I64: v}, 2, nil
	case Date:
		if len(body) < 8 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated date")
		}
		return Field{Type: Date, I64: int64(binary.LittleEndian.Uint64(body))}, 9, nil
	case Char:
		want := 4 * a.Len
		if len(body) < want {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated char")
		}
		runes := make([]rune, 0, a.Len)
		for i := 0; i < want; i += 4 {
			r := rune(binary.LittleEndian.Uint32(body[i:]))
			if r == 0 {
				break
			}
			runes = append(runes, r)
		}
		return Field{Type: Char, Str: string(runes)}, 1 + want, nil
	case VarString:
		if len(body) < 4 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated varstring length")
		}
		n := int(binary.LittleEndian.Uint32(body))
		if len(body) < 4+n {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated varstring body")
		}
		return Field{Type: VarString, Str: string(body[4 : 4+n])}, 1 + 4 + n, nil
	case Decimal:
		if len(body) < 12 {
			return Field{}, 0, dberr.New(dberr.KindValidation, "truncated decimal")
		}
		m := int64(binary.LittleEndian.Uint64(body))
		s := int32(binary.LittleEndian.Uint32(body[8:]))
		return Field{Type: Decimal, Dec: Decimal{Mantissa: m, Scale: s}}, 1 + 12, nil
	default:
		return Field{}, 0, dberr.New(dberr.KindValidation, "unsupported dtype for decode")
	}
}

// Tuple is an ordered sequence of fields matching a Schema.
type Tuple struct {
	Fields []Field
}

// EncodeTuple serialises every field in order.
func EncodeTuple(schema Schema, t Tuple) ([]byte, error) {
	total := 0
	for i, f := range t.Fields {
		total += EncodedLen(f, schema.Attrs[i])
	}
	out := make([]byte, total)
	off := 0
	for i, f := range t.Fields {
		n, err := Encode(out[off:], f, schema.Attrs[i])
		if err != nil {
			return nil, err
		}
		off += n
	}
	return out, nil
}

// DecodeTuple deserialises a tuple matching schema from src.
func DecodeTuple(schema Schema, src []byte) (Tuple, error) {
	fields := make([]Field, len(schema.Attrs))
	off := 0
	for i, a := range schema.Attrs {
		f, n, err := Decode(src[off:], a)
		if err != nil {
			return Tuple{}, err
		}
		fields[i] = f
		off += n
	}
	return Tuple{Fields: fields}, nil
}
