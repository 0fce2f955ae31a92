package plan

import (
	"sort"

	"github.com/crustylabs/crustydb/internal/dtype"
)

// ExprOp names a scalar expression operator, shared with internal/bytecode's
// Op set so internal/planner can compile one directly into the other.
type ExprOp int

const (
	OpAdd ExprOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

// Expr is a scalar expression tree used in predicates, projections, and
// map expressions prior to bytecode compilation (internal/planner). This
// stays a small tree (rather than being pre-compiled to bytecode here)
// because free()/hash/replace_variables all need to walk column
// references structurally, which a flat instruction stream obscures.
type Expr interface {
	isExpr()
}

// ColRef references a column by its globally unique id.
type ColRef struct{ Col ColID }

// Lit is a constant value.
type Lit struct{ Val dtype.Field }

// BinExpr applies an operator to two subexpressions.
type BinExpr struct {
	Op    ExprOp
	Left  Expr
	Right Expr
}

// WhenClause is one arm of a CaseExpr: Result is returned when Cond holds.
type WhenClause struct {
	Cond   Expr
	Result Expr
}

// CaseExpr evaluates its Whens in order and returns the first matching
// arm's Result, or Else when none match (NULL if Else is nil). When
// Scrutinee is non-nil each When's Cond is compared against it for
// equality (simple CASE); when Scrutinee is nil each Cond is evaluated
// directly as a boolean (searched CASE WHEN ... THEN ...), per spec.md
// §3's Case{scrutinee, whens, else} expression variant.
type CaseExpr struct {
	Scrutinee Expr
	Whens     []WhenClause
	Else      Expr
}

// SubqueryExpr embeds a non-correlated scalar subquery: Plan is expected
// to produce exactly one row with exactly one column, whose value stands
// in for this expression. Grounded on spec.md §3's Subquery{plan}
// variant and §4.8's translation rule for scalar subqueries and EXISTS.
type SubqueryExpr struct {
	Plan *Node
}

func (ColRef) isExpr()       {}
func (Lit) isExpr()          {}
func (BinExpr) isExpr()      {}
func (CaseExpr) isExpr()     {}
func (SubqueryExpr) isExpr() {}

func exprFree(e Expr) map[ColID]bool {
	switch v := e.(type) {
	case ColRef:
		return colSet(v.Col)
	case Lit:
		return map[ColID]bool{}
	case BinExpr:
		return union(exprFree(v.Left), exprFree(v.Right))
	case CaseExpr:
		free := map[ColID]bool{}
		if v.Scrutinee != nil {
			free = union(free, exprFree(v.Scrutinee))
		}
		for _, w := range v.Whens {
			free = union(free, exprFree(w.Cond))
			free = union(free, exprFree(w.Result))
		}
		if v.Else != nil {
			free = union(free, exprFree(v.Else))
		}
		return free
	case SubqueryExpr:
		if v.Plan == nil {
			return map[ColID]bool{}
		}
		return v.Plan.Free()
	}
	return map[ColID]bool{}
}

func exprsFree(exprs []Expr) map[ColID]bool {
	out := map[ColID]bool{}
	for _, e := range exprs {
		out = union(out, exprFree(e))
	}
	return out
}

func exprReplace(e Expr, rewrite map[ColID]ColID) Expr {
	switch v := e.(type) {
	case ColRef:
		if d, ok := rewrite[v.Col]; ok {
			return ColRef{Col: d}
		}
		return v
	case Lit:
		return v
	case BinExpr:
		v.Left = exprReplace(v.Left, rewrite)
		v.Right = exprReplace(v.Right, rewrite)
		return v
	case CaseExpr:
		if v.Scrutinee != nil {
			v.Scrutinee = exprReplace(v.Scrutinee, rewrite)
		}
		whens := make([]WhenClause, len(v.Whens))
		for i, w := range v.Whens {
			whens[i] = WhenClause{Cond: exprReplace(w.Cond, rewrite), Result: exprReplace(w.Result, rewrite)}
		}
		v.Whens = whens
		if v.Else != nil {
			v.Else = exprReplace(v.Else, rewrite)
		}
		return v
	case SubqueryExpr:
		// Non-correlated: the subquery's own column ids are disjoint from
		// any outer rewrite map (catalog.Catalog.NextColID is a single
		// global counter), so recursing here only matters if a future
		// correlated subquery introduces shared ids.
		if v.Plan != nil {
			v.Plan.ReplaceVariables(rewrite)
		}
		return v
	}
	return e
}

func applyRenames(e Expr, renames map[ColID]ColID) Expr {
	if len(renames) == 0 {
		return e
	}
	return exprReplace(e, renames)
}

func hashLit(f dtype.Field) uint64 {
	vals := []uint64{uint64(f.Type)}
	if f.IsNull {
		vals = append(vals, 1)
	} else {
		vals = append(vals, uint64(f.I64), hashString(f.Str), uint64(f.Dec.Mantissa), uint64(f.Dec.Scale))
	}
	return hashUint64s(vals...)
}

// hashExpr computes a structural (not commutative) hash of a scalar
// expression: column refs and literals are leaves, BinExpr combines its
// operator tag with its ordered children, except for commutative
// operators (Add, Mul, Eq, Neq, And, Or) whose two child hashes are
// order-independent, matching §4.7's "join predicates hash the same
// regardless of operand order for commutative comparators."
func hashExpr(e Expr) uint64 {
	switch v := e.(type) {
	case ColRef:
		return hashUint64s(100, uint64(v.Col))
	case Lit:
		return hashUint64s(200, hashLit(v.Val))
	case BinExpr:
		lh := hashExpr(v.Left)
		rh := hashExpr(v.Right)
		if isCommutative(v.Op) {
			pair := []uint64{lh, rh}
			sort.Slice(pair, func(i, j int) bool { return pair[i] < pair[j] })
			return hashUint64s(300, uint64(v.Op)) ^ hashUint64s(pair...)
		}
		return hashUint64s(300, uint64(v.Op), lh, rh)
	case CaseExpr:
		h := hashUint64s(400)
		if v.Scrutinee != nil {
			h ^= hashUint64s(1) ^ hashExpr(v.Scrutinee)
		}
		for _, w := range v.Whens {
			h ^= hashUint64s(2) ^ hashExpr(w.Cond) ^ hashExpr(w.Result)
		}
		if v.Else != nil {
			h ^= hashUint64s(3) ^ hashExpr(v.Else)
		}
		return h
	case SubqueryExpr:
		if v.Plan == nil {
			return hashUint64s(500)
		}
		return hashUint64s(500) ^ HashPlan(v.Plan, nil)
	}
	return 0
}

func isCommutative(op ExprOp) bool {
	switch op {
	case OpAdd, OpMul, OpEq, OpNeq, OpAnd, OpOr:
		return true
	}
	return false
}
