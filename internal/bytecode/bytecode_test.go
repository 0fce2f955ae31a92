package bytecode

import (
	"testing"

	"github.com/crustylabs/crustydb/internal/dtype"
)

func tupleOf(fields ...dtype.Field) dtype.Tuple { return dtype.Tuple{Fields: fields} }

func TestPushFieldAndArithmetic(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushField, Arg: 0},
		{Op: PushField, Arg: 1},
		{Op: Add},
	}}
	tup := tupleOf(
		dtype.Field{Type: dtype.Int64, I64: 3},
		dtype.Field{Type: dtype.Int64, I64: 4},
	)
	got, err := Eval(p, tup)
	if err != nil {
		t.Fatal(err)
	}
	if got.I64 != 7 {
		t.Fatalf("got %d, want 7", got.I64)
	}
}

func TestPushLitAndComparison(t *testing.T) {
	p := Program{
		Instrs: []Instr{
			{Op: PushField, Arg: 0},
			{Op: PushLit, Arg: 0},
			{Op: Gt},
		},
		Literals: []dtype.Field{{Type: dtype.Int64, I64: 10}},
	}
	tup := tupleOf(dtype.Field{Type: dtype.Int64, I64: 20})
	got, err := Eval(p, tup)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != dtype.Bool || got.I64 != 1 {
		t.Fatalf("got %+v, want true", got)
	}
}

func TestIntDecimalPromotion(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushField, Arg: 0},
		{Op: PushField, Arg: 1},
		{Op: Add},
	}}
	tup := tupleOf(
		dtype.Field{Type: dtype.Int64, I64: 2},
		dtype.Field{Type: dtype.Decimal, Dec: dtype.Decimal{Mantissa: 150, Scale: 2}}, // 1.50
	)
	got, err := Eval(p, tup)
	if err != nil {
		t.Fatal(err)
	}
	want := dtype.Decimal{Mantissa: 350, Scale: 2} // 3.50
	if got.Type != dtype.Decimal || got.Dec != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestDivisionByZeroFails(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushField, Arg: 0},
		{Op: PushField, Arg: 1},
		{Op: Div},
	}}
	tup := tupleOf(
		dtype.Field{Type: dtype.Int64, I64: 10},
		dtype.Field{Type: dtype.Int64, I64: 0},
	)
	if _, err := Eval(p, tup); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestAndOrShortOperands(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushLit, Arg: 0},
		{Op: PushLit, Arg: 1},
		{Op: And},
	}, Literals: []dtype.Field{
		{Type: dtype.Bool, I64: 1},
		{Type: dtype.Bool, I64: 0},
	}}
	got, err := Eval(p, dtype.Tuple{})
	if err != nil {
		t.Fatal(err)
	}
	if got.I64 != 0 {
		t.Fatal("expected true AND false = false")
	}
}

func TestAndRequiresBooleanOperands(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushLit, Arg: 0},
		{Op: PushLit, Arg: 1},
		{Op: And},
	}, Literals: []dtype.Field{
		{Type: dtype.Int64, I64: 1},
		{Type: dtype.Bool, I64: 1},
	}}
	if _, err := Eval(p, dtype.Tuple{}); err == nil {
		t.Fatal("expected type error for non-boolean AND operand")
	}
}

func TestTypeMismatchArithmeticFails(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushLit, Arg: 0},
		{Op: PushLit, Arg: 1},
		{Op: Add},
	}, Literals: []dtype.Field{
		{Type: dtype.VarString, Str: "x"},
		{Type: dtype.Int64, I64: 1},
	}}
	if _, err := Eval(p, dtype.Tuple{}); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestNullPropagatesThroughArithmetic(t *testing.T) {
	p := Program{Instrs: []Instr{
		{Op: PushLit, Arg: 0},
		{Op: PushLit, Arg: 1},
		{Op: Add},
	}, Literals: []dtype.Field{
		dtype.NullField(dtype.Int64),
		{Type: dtype.Int64, I64: 5},
	}}
	got, err := Eval(p, dtype.Tuple{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsNull {
		t.Fatal("expected null propagation")
	}
}
