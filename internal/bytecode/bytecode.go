// Package bytecode implements the compiled scalar-expression stack
// machine: a flat opcode vector plus a literal side table, evaluated
// directly against a tuple's fields with no tree-walking.
//
// What/how: opcode set and stack-machine evaluation loop are grounded on
// spec.md §4.5; the numeric promotion and comparison RULES applied by the
// arithmetic/comparison opcodes are carried over from the teacher's
// internal/engine/exec.go evalArithmeticBinary/evalComparisonBinary/
// compare family, restructured from tree-walking any-typed values onto
// dtype.Field and the flat-opcode contract.
package bytecode

import (
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
)

// Op is a bytecode opcode.
type Op int

const (
	PushLit Op = iota
	PushField
	Add
	Sub
	Mul
	Div
	Eq
	Neq
	Lt
	Le
	Gt
	Ge
	And
	Or

	// Jump unconditionally sets the program counter to Arg. JumpIfFalse
	// pops the top value and sets the program counter to Arg when it is
	// null or false, otherwise falls through to the next instruction.
	// These back CASE expression compilation (internal/planner.CompileExpr),
	// the only construct that needs control flow rather than a pure
	// expression tree.
	Jump
	JumpIfFalse
)

// Instr is one bytecode instruction. Arg indexes into Literals for PushLit,
// into the evaluated tuple's fields for PushField, and is the target
// instruction index for Jump and JumpIfFalse; it is unused by every other
// opcode.
type Instr struct {
	Op  Op
	Arg int
}

// Program is a compiled scalar expression: a flat instruction vector plus
// its literal side table.
type Program struct {
	Instrs   []Instr
	Literals []dtype.Field
}

// Eval runs program as a pure stack machine over tuple, returning the
// single value left on the stack.
func Eval(p Program, tuple dtype.Tuple) (dtype.Field, error) {
	var stack []dtype.Field
	push := func(f dtype.Field) { stack = append(stack, f) }
	pop := func() dtype.Field {
		n := len(stack) - 1
		f := stack[n]
		stack = stack[:n]
		return f
	}

	for pc := 0; pc < len(p.Instrs); pc++ {
		ins := p.Instrs[pc]
		switch ins.Op {
		case PushLit:
			if ins.Arg < 0 || ins.Arg >= len(p.Literals) {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "literal index out of range")
			}
			push(p.Literals[ins.Arg])
		case PushField:
			if ins.Arg < 0 || ins.Arg >= len(tuple.Fields) {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "field index out of range")
			}
			push(tuple.Fields[ins.Arg])
		case Add, Sub, Mul, Div:
			if len(stack) < 2 {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "stack underflow in arithmetic op")
			}
			r := pop()
			l := pop()
			res, err := arith(ins.Op, l, r)
			if err != nil {
				return dtype.Field{}, err
			}
			push(res)
		case Eq, Neq, Lt, Le, Gt, Ge:
			if len(stack) < 2 {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "stack underflow in comparison op")
			}
			r := pop()
			l := pop()
			res, err := compareOp(ins.Op, l, r)
			if err != nil {
				return dtype.Field{}, err
			}
			push(res)
		case And, Or:
			if len(stack) < 2 {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "stack underflow in boolean op")
			}
			r := pop()
			l := pop()
			res, err := boolOp(ins.Op, l, r)
			if err != nil {
				return dtype.Field{}, err
			}
			push(res)
		case Jump:
			if ins.Arg < 0 || ins.Arg > len(p.Instrs) {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "jump target out of range")
			}
			pc = ins.Arg - 1
		case JumpIfFalse:
			if len(stack) < 1 {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "stack underflow in conditional jump")
			}
			if ins.Arg < 0 || ins.Arg > len(p.Instrs) {
				return dtype.Field{}, dberr.New(dberr.KindExecution, "jump target out of range")
			}
			cond := pop()
			if cond.IsNull || cond.Type != dtype.Bool || cond.I64 == 0 {
				pc = ins.Arg - 1
			}
		default:
			return dtype.Field{}, dberr.New(dberr.KindExecution, "unknown opcode")
		}
	}

	if len(stack) != 1 {
		return dtype.Field{}, dberr.New(dberr.KindExecution, "program did not leave exactly one value on the stack")
	}
	return stack[0], nil
}

func isInt(t dtype.Type) bool {
	return t == dtype.Int64 || t == dtype.Int32 || t == dtype.Int16
}

func boolField(v bool) dtype.Field {
	i := int64(0)
	if v {
		i = 1
	}
	return dtype.Field{Type: dtype.Bool, I64: i}
}

func intField(v int64) dtype.Field { return dtype.Field{Type: dtype.Int64, I64: v} }

func decField(d dtype.Decimal) dtype.Field { return dtype.Field{Type: dtype.Decimal, Dec: d} }

// arith applies spec.md §4.5's numeric promotion rules: int op int yields
// int; int op decimal promotes the int to the decimal's scale; decimal op
// decimal reconciles scales per dtype.DecimalAdd/Sub/Mul/Div.
func arith(op Op, l, r dtype.Field) (dtype.Field, error) {
	if l.IsNull || r.IsNull {
		return dtype.Field{IsNull: true}, nil
	}

	switch {
	case isInt(l.Type) && isInt(r.Type):
		return intArith(op, l.I64, r.I64)
	case isInt(l.Type) && r.Type == dtype.Decimal:
		return decArith(op, dtype.IntToDecimal(l.I64, r.Dec.Scale), r.Dec)
	case l.Type == dtype.Decimal && isInt(r.Type):
		return decArith(op, l.Dec, dtype.IntToDecimal(r.I64, l.Dec.Scale))
	case l.Type == dtype.Decimal && r.Type == dtype.Decimal:
		return decArith(op, l.Dec, r.Dec)
	default:
		return dtype.Field{}, dberr.New(dberr.KindExecution, "type mismatch in arithmetic operator")
	}
}

func intArith(op Op, a, b int64) (dtype.Field, error) {
	switch op {
	case Add:
		return intField(a + b), nil
	case Sub:
		return intField(a - b), nil
	case Mul:
		return intField(a * b), nil
	case Div:
		if b == 0 {
			return dtype.Field{}, dberr.New(dberr.KindExecution, "division by zero")
		}
		return intField(a / b), nil
	}
	return dtype.Field{}, dberr.New(dberr.KindExecution, "unsupported arithmetic opcode")
}

func decArith(op Op, a, b dtype.Decimal) (dtype.Field, error) {
	var d dtype.Decimal
	var err error
	switch op {
	case Add:
		d, err = dtype.DecimalAdd(a, b)
	case Sub:
		d, err = dtype.DecimalSub(a, b)
	case Mul:
		d, err = dtype.DecimalMul(a, b)
	case Div:
		d, err = dtype.DecimalDiv(a, b)
	default:
		return dtype.Field{}, dberr.New(dberr.KindExecution, "unsupported arithmetic opcode")
	}
	if err != nil {
		return dtype.Field{}, err
	}
	return decField(d), nil
}

func compareOp(op Op, l, r dtype.Field) (dtype.Field, error) {
	if l.IsNull || r.IsNull {
		return dtype.Field{IsNull: true, Type: dtype.Bool}, nil
	}

	var c int
	switch {
	case isInt(l.Type) && isInt(r.Type):
		c = cmpInt64(l.I64, r.I64)
	case isInt(l.Type) && r.Type == dtype.Decimal:
		c = dtype.DecimalCompare(dtype.IntToDecimal(l.I64, r.Dec.Scale), r.Dec)
	case l.Type == dtype.Decimal && isInt(r.Type):
		c = dtype.DecimalCompare(l.Dec, dtype.IntToDecimal(r.I64, l.Dec.Scale))
	case l.Type == dtype.Decimal && r.Type == dtype.Decimal:
		c = dtype.DecimalCompare(l.Dec, r.Dec)
	case l.Type == dtype.VarString && r.Type == dtype.VarString,
		l.Type == dtype.Char && r.Type == dtype.Char:
		c = cmpString(l.Str, r.Str)
	case l.Type == dtype.Bool && r.Type == dtype.Bool:
		c = cmpInt64(l.I64, r.I64)
	case l.Type == dtype.Date && r.Type == dtype.Date:
		c = cmpInt64(l.I64, r.I64)
	default:
		return dtype.Field{}, dberr.New(dberr.KindExecution, "type mismatch in comparison operator")
	}

	switch op {
	case Eq:
		return boolField(c == 0), nil
	case Neq:
		return boolField(c != 0), nil
	case Lt:
		return boolField(c < 0), nil
	case Le:
		return boolField(c <= 0), nil
	case Gt:
		return boolField(c > 0), nil
	case Ge:
		return boolField(c >= 0), nil
	}
	return dtype.Field{}, dberr.New(dberr.KindExecution, "unsupported comparison opcode")
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolOp(op Op, l, r dtype.Field) (dtype.Field, error) {
	if l.Type != dtype.Bool || r.Type != dtype.Bool {
		return dtype.Field{}, dberr.New(dberr.KindExecution, "and/or require boolean operands")
	}
	if l.IsNull || r.IsNull {
		return dtype.Field{IsNull: true, Type: dtype.Bool}, nil
	}
	lv := l.I64 != 0
	rv := r.I64 != 0
	switch op {
	case And:
		return boolField(lv && rv), nil
	case Or:
		return boolField(lv || rv), nil
	}
	return dtype.Field{}, dberr.New(dberr.KindExecution, "unsupported boolean opcode")
}
