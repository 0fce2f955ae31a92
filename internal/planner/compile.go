package planner

import (
	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

// CompileExpr flattens a plan.Expr tree into a bytecode.Program,
// resolving each ColRef to its position within schema (spec.md §4.9:
// "the field-extraction bytecode pushes each declared column in turn").
// cat is only consulted when e embeds a plan.SubqueryExpr, which is
// evaluated once here rather than carried into the bytecode machine.
func CompileExpr(cat *catalog.Catalog, e plan.Expr, schema []plan.ColID) (bytecode.Program, error) {
	c := &compiler{cat: cat, schema: schema}
	if err := c.emit(e); err != nil {
		return bytecode.Program{}, err
	}
	return bytecode.Program{Instrs: c.instrs, Literals: c.literals}, nil
}

type compiler struct {
	cat      *catalog.Catalog
	schema   []plan.ColID
	instrs   []bytecode.Instr
	literals []dtype.Field
}

func (c *compiler) emit(e plan.Expr) error {
	switch v := e.(type) {
	case plan.ColRef:
		pos, ok := colPosOf(c.schema, v.Col)
		if !ok {
			return dberr.New(dberr.KindPlanning, "column reference not present in input schema")
		}
		c.instrs = append(c.instrs, bytecode.Instr{Op: bytecode.PushField, Arg: pos})
		return nil
	case plan.Lit:
		c.emitLit(v.Val)
		return nil
	case plan.BinExpr:
		if err := c.emit(v.Left); err != nil {
			return err
		}
		if err := c.emit(v.Right); err != nil {
			return err
		}
		op, ok := opMap[v.Op]
		if !ok {
			return dberr.New(dberr.KindPlanning, "unsupported expression operator")
		}
		c.instrs = append(c.instrs, bytecode.Instr{Op: op})
		return nil
	case plan.CaseExpr:
		return c.emitCase(v)
	case plan.SubqueryExpr:
		val, err := c.evalSubquery(v)
		if err != nil {
			return err
		}
		c.emitLit(val)
		return nil
	}
	return dberr.New(dberr.KindPlanning, "unsupported expression kind")
}

func (c *compiler) emitLit(f dtype.Field) {
	idx := len(c.literals)
	c.literals = append(c.literals, f)
	c.instrs = append(c.instrs, bytecode.Instr{Op: bytecode.PushLit, Arg: idx})
}

// emitCase compiles a CASE expression into a chain of JumpIfFalse/Jump
// instructions: each When's condition (compared against Scrutinee for a
// simple CASE, evaluated directly for a searched CASE) guards its Result,
// falling through to Else (or NULL) when no When matches.
func (c *compiler) emitCase(v plan.CaseExpr) error {
	var endJumps []int
	for _, w := range v.Whens {
		if v.Scrutinee != nil {
			if err := c.emit(v.Scrutinee); err != nil {
				return err
			}
			if err := c.emit(w.Cond); err != nil {
				return err
			}
			c.instrs = append(c.instrs, bytecode.Instr{Op: bytecode.Eq})
		} else {
			if err := c.emit(w.Cond); err != nil {
				return err
			}
		}
		jifIdx := len(c.instrs)
		c.instrs = append(c.instrs, bytecode.Instr{Op: bytecode.JumpIfFalse})
		if err := c.emit(w.Result); err != nil {
			return err
		}
		jmpIdx := len(c.instrs)
		c.instrs = append(c.instrs, bytecode.Instr{Op: bytecode.Jump})
		endJumps = append(endJumps, jmpIdx)
		c.instrs[jifIdx].Arg = len(c.instrs)
	}
	if v.Else != nil {
		if err := c.emit(v.Else); err != nil {
			return err
		}
	} else {
		c.emitLit(dtype.Field{IsNull: true})
	}
	end := len(c.instrs)
	for _, idx := range endJumps {
		c.instrs[idx].Arg = end
	}
	return nil
}

// evalSubquery runs v.Plan to completion and returns its single output
// value. Subqueries supported by this engine are non-correlated (no free
// variables referencing the enclosing query), so the result can be
// computed once here at compile time rather than needing a per-row
// plan-execution capability inside the bytecode machine itself.
func (c *compiler) evalSubquery(v plan.SubqueryExpr) (dtype.Field, error) {
	phys := plan.ToPhysical(v.Plan)
	it, err := Build(c.cat, phys)
	if err != nil {
		return dtype.Field{}, err
	}
	if err := it.Configure(false); err != nil {
		return dtype.Field{}, err
	}
	if err := it.Open(); err != nil {
		return dtype.Field{}, err
	}
	defer it.Close()
	row, ok, err := it.Next()
	if err != nil {
		return dtype.Field{}, err
	}
	if !ok {
		return dtype.Field{IsNull: true}, nil
	}
	if len(row.Fields) != 1 {
		return dtype.Field{}, dberr.New(dberr.KindPlanning, "scalar subquery must produce exactly one column")
	}
	return row.Fields[0], nil
}

var opMap = map[plan.ExprOp]bytecode.Op{
	plan.OpAdd: bytecode.Add, plan.OpSub: bytecode.Sub,
	plan.OpMul: bytecode.Mul, plan.OpDiv: bytecode.Div,
	plan.OpEq: bytecode.Eq, plan.OpNeq: bytecode.Neq,
	plan.OpLt: bytecode.Lt, plan.OpLe: bytecode.Le,
	plan.OpGt: bytecode.Gt, plan.OpGe: bytecode.Ge,
	plan.OpAnd: bytecode.And, plan.OpOr: bytecode.Or,
}

func colPosOf(schema []plan.ColID, col plan.ColID) (int, bool) {
	for i, c := range schema {
		if c == col {
			return i, true
		}
	}
	return 0, false
}
