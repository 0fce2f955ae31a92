package dtype

import "testing"

func intField(t Type, v int64) Field { return Field{Type: t, I64: v} }

func TestFieldCodecRoundTripAllTypes(t *testing.T) {
	cases := []struct {
		name string
		attr Attribute
		f    Field
	}{
		{"int64", Attribute{Type: Int64}, intField(Int64, -123456789)},
		{"int32", Attribute{Type: Int32}, intField(Int32, -4242)},
		{"int16", Attribute{Type: Int16}, intField(Int16, -7)},
		{"bool_true", Attribute{Type: Bool}, intField(Bool, 1)},
		{"bool_false", Attribute{Type: Bool}, intField(Bool, 0)},
		{"date", Attribute{Type: Date}, intField(Date, 19723)},
		{"char", Attribute{Type: Char, Len: 8}, Field{Type: Char, Str: "hi"}},
		{"varstring", Attribute{Type: VarString}, Field{Type: VarString, Str: "hello, world"}},
		{"decimal", Attribute{Type: Decimal}, Field{Type: Decimal, Dec: Decimal{Mantissa: 12345, Scale: 2}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := make([]byte, EncodedLen(c.f, c.attr))
			n, err := Encode(buf, c.f, c.attr)
			if err != nil {
				t.Fatal(err)
			}
			if n != len(buf) {
				t.Fatalf("Encode wrote %d bytes, EncodedLen said %d", n, len(buf))
			}
			got, consumed, err := Decode(buf, c.attr)
			if err != nil {
				t.Fatal(err)
			}
			if consumed != n {
				t.Fatalf("Decode consumed %d, want %d", consumed, n)
			}
			switch c.attr.Type {
			case VarString, Char:
				if got.Str != c.f.Str {
					t.Fatalf("got %q want %q", got.Str, c.f.Str)
				}
			case Decimal:
				if got.Dec != c.f.Dec {
					t.Fatalf("got %+v want %+v", got.Dec, c.f.Dec)
				}
			default:
				if got.I64 != c.f.I64 {
					t.Fatalf("got %d want %d", got.I64, c.f.I64)
				}
			}
		})
	}
}

func TestFieldCodecNullRoundTrip(t *testing.T) {
	attr := Attribute{Type: Int64}
	f := NullField(Int64)
	buf := make([]byte, EncodedLen(f, attr))
	n, err := Encode(buf, f, attr)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("null encoding should be 1 byte, got %d", n)
	}
	got, consumed, err := Decode(buf, attr)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsNull || consumed != 1 {
		t.Fatalf("got %+v consumed=%d", got, consumed)
	}
}

func TestCharPadsAndTruncatesZero(t *testing.T) {
	attr := Attribute{Type: Char, Len: 4}
	f := Field{Type: Char, Str: "ab"}
	buf := make([]byte, EncodedLen(f, attr))
	if _, err := Encode(buf, f, attr); err != nil {
		t.Fatal(err)
	}
	if len(buf) != 1+4*4 {
		t.Fatalf("expected 1+4*N bytes, got %d", len(buf))
	}
	got, _, err := Decode(buf, attr)
	if err != nil {
		t.Fatal(err)
	}
	if got.Str != "ab" {
		t.Fatalf("got %q", got.Str)
	}
}

func TestCharOverLengthRejected(t *testing.T) {
	attr := Attribute{Type: Char, Len: 2}
	f := Field{Type: Char, Str: "toolong"}
	buf := make([]byte, EncodedLen(f, attr))
	if _, err := Encode(buf, f, attr); err == nil {
		t.Fatal("expected error for char value exceeding declared length")
	}
}

func TestTupleRoundTrip(t *testing.T) {
	schema := Schema{Attrs: []Attribute{
		{Name: "id", Type: Int64},
		{Name: "name", Type: VarString},
		{Name: "active", Type: Bool},
	}}
	tup := Tuple{Fields: []Field{
		intField(Int64, 42),
		{Type: VarString, Str: "alice"},
		intField(Bool, 1),
	}}
	b, err := EncodeTuple(schema, tup)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTuple(schema, b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields[0].I64 != 42 || got.Fields[1].Str != "alice" || got.Fields[2].I64 != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSchemaColOffset(t *testing.T) {
	schema := Schema{Attrs: []Attribute{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	if off, ok := schema.ColOffset("b"); !ok || off != 1 {
		t.Fatalf("got %d, %v", off, ok)
	}
	if _, ok := schema.ColOffset("z"); ok {
		t.Fatal("expected not-found for missing column")
	}
}
