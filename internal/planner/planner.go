// Package planner walks a physical internal/plan tree and produces an
// internal/iterator tree plus, for each scalar expression the plan
// carries, a compiled internal/bytecode program — the "physical plan to
// iterator tree with bytecode compilation" step of spec.md §4.9.
//
// Grounded on original queryexe/src/query/planner.rs: Scan becomes a
// sequential heap-file scan that decodes each record against the table
// schema,
// Select becomes one Filter per conjunct (spec.md §4.9: "a chain of
// filter operators, one per conjunct" short-circuits on the most
// selective predicate placed first by the caller), Rename is a no-op on
// the iterator side, and HashJoin/SortMergeJoin are only introduced when
// the physical node's join predicate shape actually supports them
// (a single Eq predicate over simple column references); anything else
// planning a HashJoin/SortMergeJoin node reports a Planning error per
// spec.md §7 ("unsupported physical construct, e.g. a non-equality
// predicate in a hash-join slot").
package planner

import (
	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/iterator"
	"github.com/crustylabs/crustydb/internal/plan"
)

// Build compiles a physical plan tree into a ready-to-Open iterator.
func Build(cat *catalog.Catalog, n *plan.Node) (iterator.Iterator, error) {
	if n == nil {
		return nil, dberr.New(dberr.KindPlanning, "nil plan node")
	}
	switch n.Kind {
	case plan.KindScan:
		t, err := cat.Lookup(n.Table)
		if err != nil {
			return nil, err
		}
		return iterator.NewSeqScan(t), nil

	case plan.KindSelect:
		child, err := Build(cat, n.Src)
		if err != nil {
			return nil, err
		}
		cur := child
		schema := child.Schema()
		for _, pred := range n.Preds {
			prog, err := CompileExpr(cat, pred, schema)
			if err != nil {
				return nil, err
			}
			cur = iterator.NewFilter(cur, prog)
		}
		return cur, nil

	case plan.KindProject:
		child, err := Build(cat, n.Src)
		if err != nil {
			return nil, err
		}
		return iterator.NewProject(child, n.Cols)

	case plan.KindMap:
		child, err := Build(cat, n.Input)
		if err != nil {
			return nil, err
		}
		schema := child.Schema()
		progs := make([]bytecode.Program, len(n.NewCols))
		dests := make([]plan.ColID, len(n.NewCols))
		for i, m := range n.NewCols {
			prog, err := CompileExpr(cat, m.Expr, schema)
			if err != nil {
				return nil, err
			}
			progs[i] = prog
			dests[i] = m.Dest
		}
		return iterator.NewMap(child, dests, progs), nil

	case plan.KindRename:
		child, err := Build(cat, n.Src)
		if err != nil {
			return nil, err
		}
		out := renameSchema(child.Schema(), n.RenameMap)
		return iterator.NewRename(child, out), nil

	case plan.KindAggregate:
		child, err := Build(cat, n.Src)
		if err != nil {
			return nil, err
		}
		ops := make([]plan.AggOp, len(n.Aggregates))
		srcCols := make([]plan.ColID, len(n.Aggregates))
		isStar := make([]bool, len(n.Aggregates))
		dest := make([]plan.ColID, len(n.Aggregates))
		for i, a := range n.Aggregates {
			ops[i] = a.Op
			srcCols[i] = a.Src
			isStar[i] = a.Src == 0
			dest[i] = a.Dest
		}
		return iterator.NewAggregate(child, n.GroupBy, ops, srcCols, isStar, dest)

	case plan.KindCrossJoin:
		left, err := Build(cat, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(cat, n.Right)
		if err != nil {
			return nil, err
		}
		cur := iterator.Iterator(iterator.NewCrossJoin(left, right))
		if len(n.Preds) > 0 {
			schema := cur.Schema()
			for _, pred := range n.Preds {
				prog, err := CompileExpr(cat, pred, schema)
				if err != nil {
					return nil, err
				}
				cur = iterator.NewFilter(cur, prog)
			}
		}
		return cur, nil

	case plan.KindNestedLoopJoin, plan.KindJoin:
		left, err := Build(cat, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(cat, n.Right)
		if err != nil {
			return nil, err
		}
		if len(n.Preds) == 0 {
			return iterator.NewCrossJoin(left, right), nil
		}
		schema := append(append([]plan.ColID{}, left.Schema()...), right.Schema()...)
		prog, err := CompileExpr(cat, andAll(n.Preds), schema)
		if err != nil {
			return nil, err
		}
		return iterator.NewNestedLoopJoin(left, right, prog, n.JoinType), nil

	case plan.KindHashJoin:
		left, err := Build(cat, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(cat, n.Right)
		if err != nil {
			return nil, err
		}
		leftPos, rightPos, err := singleEqPredicate(n.Preds, left.Schema(), right.Schema())
		if err != nil {
			return nil, err
		}
		return iterator.NewHashEqJoin(left, right, leftPos, rightPos), nil

	case plan.KindSortMergeJoin:
		left, err := Build(cat, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(cat, n.Right)
		if err != nil {
			return nil, err
		}
		leftPos, rightPos, err := eqPredicates(n.Preds, left.Schema(), right.Schema())
		if err != nil {
			return nil, err
		}
		return iterator.NewSortMergeJoin(left, right, leftPos, rightPos), nil
	}
	return nil, dberr.New(dberr.KindPlanning, "unsupported physical plan node")
}

// andAll folds preds into a single conjunction, since NestedLoopJoin
// evaluates one predicate over the concatenated child schemas.
func andAll(preds []plan.Expr) plan.Expr {
	if len(preds) == 1 {
		return preds[0]
	}
	cur := preds[0]
	for _, p := range preds[1:] {
		cur = plan.BinExpr{Op: plan.OpAnd, Left: cur, Right: p}
	}
	return cur
}

// singleEqPredicate requires preds to be exactly one Eq comparison
// between a column from leftSchema and a column from rightSchema,
// returning their positions within each side. Anything else is a
// Planning error (spec.md §7: "a non-equality predicate in a hash-join
// slot").
func singleEqPredicate(preds []plan.Expr, leftSchema, rightSchema []plan.ColID) (int, int, error) {
	if len(preds) != 1 {
		return 0, 0, dberr.New(dberr.KindPlanning, "hash join requires exactly one equi-join predicate")
	}
	return eqPredicatePositions(preds[0], leftSchema, rightSchema)
}

func eqPredicatePositions(pred plan.Expr, leftSchema, rightSchema []plan.ColID) (int, int, error) {
	bin, ok := pred.(plan.BinExpr)
	if !ok || bin.Op != plan.OpEq {
		return 0, 0, dberr.New(dberr.KindPlanning, "join predicate is not a simple equality")
	}
	lref, lok := bin.Left.(plan.ColRef)
	rref, rok := bin.Right.(plan.ColRef)
	if !lok || !rok {
		return 0, 0, dberr.New(dberr.KindPlanning, "equi-join predicate must compare two column references")
	}
	if lp, ok := iterator.ColPos(leftSchema, lref.Col); ok {
		if rp, ok := iterator.ColPos(rightSchema, rref.Col); ok {
			return lp, rp, nil
		}
	}
	if lp, ok := iterator.ColPos(leftSchema, rref.Col); ok {
		if rp, ok := iterator.ColPos(rightSchema, lref.Col); ok {
			return lp, rp, nil
		}
	}
	return 0, 0, dberr.New(dberr.KindPlanning, "equi-join predicate does not reference one column from each side")
}

// eqPredicates resolves one or more Eq predicates into parallel
// left/right key-position lists for SortMergeJoin's composite sort key.
func eqPredicates(preds []plan.Expr, leftSchema, rightSchema []plan.ColID) ([]int, []int, error) {
	if len(preds) == 0 {
		return nil, nil, dberr.New(dberr.KindPlanning, "sort-merge join requires at least one equi-join predicate")
	}
	leftPos := make([]int, len(preds))
	rightPos := make([]int, len(preds))
	for i, p := range preds {
		lp, rp, err := eqPredicatePositions(p, leftSchema, rightSchema)
		if err != nil {
			return nil, nil, err
		}
		leftPos[i] = lp
		rightPos[i] = rp
	}
	return leftPos, rightPos, nil
}

func renameSchema(schema []plan.ColID, renameMap map[plan.ColID]plan.ColID) []plan.ColID {
	out := make([]plan.ColID, len(schema))
	for i, c := range schema {
		if d, ok := renameMap[c]; ok {
			out[i] = d
		} else {
			out[i] = c
		}
	}
	return out
}
