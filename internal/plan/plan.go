// Package plan implements the logical and physical relational algebra:
// tagged plan nodes, free()/att() column analysis, replace_variables
// substitution, canonical bottom-up plan hashing, and subplan overlap
// matching for a plan cache.
//
// What: grounded on spec.md §4.6/§4.7. No teacher IR equivalent exists —
// the teacher's internal/engine executes directly off its AST — so the
// node shapes and hash-invariance rules (rename-invisibility, commutative
// join hashing via XOR) are grounded on
// original_source/src/.../logical_rel_expr.rs and
// physical_rel_expr_hashing_tests.rs. The LRU plan cache keyed by hash
// (cache.go) reuses the teacher's internal/engine/compile.go
// QueryCache container/list LRU mechanics.
package plan

import (
	"hash/fnv"
	"sort"
)

// ColID is a globally unique column identifier. internal/translate draws
// every id from catalog.Catalog.NextColID, a single counter shared by all
// queries; ids are not allocated or reset per query.
type ColID uint64

// JoinType names a logical join kind; physical join algorithms are
// introduced during planning (internal/planner).
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

// Kind tags a plan node's variant.
type Kind int

const (
	KindScan Kind = iota
	KindSelect
	KindJoin
	KindProject
	KindOrderBy
	KindAggregate
	KindMap
	KindFlatMap
	KindRename

	// Physical-only join variants, introduced by the optimiser/planner.
	KindCrossJoin
	KindNestedLoopJoin
	KindHashJoin
	KindSortMergeJoin
)

// AggSpec describes one aggregate output: an op tag, its input column, and
// its destination column id.
type AggOp int

const (
	AggCount AggOp = iota
	AggSum
	AggAvg
	AggMax
	AggMin
)

type AggSpec struct {
	Op   AggOp
	Src  ColID
	Dest ColID
}

// SortKey pairs a column with its ordering direction.
type SortKey struct {
	Col          ColID
	Descending   bool
	NullsFirst   bool
}

// MapExpr names a destination column produced by evaluating Expr.
type MapExpr struct {
	Dest ColID
	Expr Expr
}

// Node is a logical or physical plan node. Only the fields relevant to
// Kind are populated; this mirrors a tagged union more than idiomatic Go,
// but matches the algebra's own description of a small closed node set
// better than an interface-per-variant hierarchy would for a tree this
// shallow and this uniformly walked (hash, free, att, rewrite all visit
// every variant).
type Node struct {
	Kind Kind

	// Hash is the optional 64-bit canonical hash, valid only when HashSet
	// is true. Populated bottom-up by HashPlan.
	Hash    uint64
	HashSet bool

	// Scan
	CID     uint16
	Table   string
	Cols    []ColID

	// Select / Join predicates
	Preds []Expr

	// Join
	JoinType JoinType
	Left     *Node
	Right    *Node

	// Project / generic single-child
	Src *Node

	// OrderBy
	SortKeys []SortKey

	// Aggregate
	GroupBy    []ColID
	Aggregates []AggSpec

	// Map
	Input   *Node
	NewCols []MapExpr

	// FlatMap
	Func Expr

	// Rename: src → dest
	RenameMap map[ColID]ColID
}

func colSet(cols ...ColID) map[ColID]bool {
	m := make(map[ColID]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

func union(sets ...map[ColID]bool) map[ColID]bool {
	out := map[ColID]bool{}
	for _, s := range sets {
		for c := range s {
			out[c] = true
		}
	}
	return out
}

func diff(a, b map[ColID]bool) map[ColID]bool {
	out := map[ColID]bool{}
	for c := range a {
		if !b[c] {
			out[c] = true
		}
	}
	return out
}

func sortedCols(set map[ColID]bool) []ColID {
	out := make([]ColID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Att returns the set of columns this subtree produces.
func (n *Node) Att() map[ColID]bool {
	switch n.Kind {
	case KindScan:
		return colSet(n.Cols...)
	case KindSelect:
		return n.Src.Att()
	case KindProject:
		return colSet(n.Cols...)
	case KindJoin, KindCrossJoin, KindNestedLoopJoin, KindHashJoin, KindSortMergeJoin:
		return union(n.Left.Att(), n.Right.Att())
	case KindOrderBy:
		return n.Src.Att()
	case KindAggregate:
		dests := make([]ColID, 0, len(n.Aggregates))
		for _, a := range n.Aggregates {
			dests = append(dests, a.Dest)
		}
		return union(colSet(n.GroupBy...), colSet(dests...))
	case KindMap:
		dests := make([]ColID, 0, len(n.NewCols))
		for _, m := range n.NewCols {
			dests = append(dests, m.Dest)
		}
		return union(n.Input.Att(), colSet(dests...))
	case KindFlatMap:
		return n.Input.Att()
	case KindRename:
		src := n.Src.Att()
		out := map[ColID]bool{}
		for c := range src {
			if d, ok := n.RenameMap[c]; ok {
				out[d] = true
			} else {
				out[c] = true
			}
		}
		return out
	}
	return map[ColID]bool{}
}

// Free returns columns referenced but not produced by this subtree.
func (n *Node) Free() map[ColID]bool {
	switch n.Kind {
	case KindScan:
		return map[ColID]bool{}
	case KindSelect:
		needed := union(n.Src.Free(), exprsFree(n.Preds))
		return diff(needed, n.Src.Att())
	case KindProject:
		return diff(union(n.Src.Free(), colSet(n.Cols...)), n.Src.Att()) // cols must be subset of src.att; no new free refs
	case KindJoin, KindCrossJoin, KindNestedLoopJoin, KindHashJoin, KindSortMergeJoin:
		produced := union(n.Left.Att(), n.Right.Att())
		needed := union(n.Left.Free(), n.Right.Free(), exprsFree(n.Preds))
		return diff(needed, produced)
	case KindOrderBy:
		cols := make([]ColID, 0, len(n.SortKeys))
		for _, k := range n.SortKeys {
			cols = append(cols, k.Col)
		}
		return diff(union(n.Src.Free(), colSet(cols...)), n.Src.Att())
	case KindAggregate:
		srcs := make([]ColID, 0, len(n.Aggregates))
		for _, a := range n.Aggregates {
			srcs = append(srcs, a.Src)
		}
		needed := union(n.Src.Free(), colSet(n.GroupBy...), colSet(srcs...))
		return diff(needed, n.Src.Att())
	case KindMap:
		exprs := make([]Expr, 0, len(n.NewCols))
		for _, m := range n.NewCols {
			exprs = append(exprs, m.Expr)
		}
		needed := union(n.Input.Free(), exprsFree(exprs))
		return diff(needed, n.Input.Att())
	case KindFlatMap:
		needed := union(n.Input.Free(), exprFree(n.Func))
		return diff(needed, n.Input.Att())
	case KindRename:
		return n.Src.Free()
	}
	return map[ColID]bool{}
}

func (n *Node) child() *Node {
	if n.Src != nil {
		return n.Src
	}
	return n.Input
}

// ReplaceVariables substitutes every column id reachable under n per
// rewrite, recursing through subquery expressions.
func (n *Node) ReplaceVariables(rewrite map[ColID]ColID) {
	rw := func(c ColID) ColID {
		if d, ok := rewrite[c]; ok {
			return d
		}
		return c
	}
	for i := range n.Cols {
		n.Cols[i] = rw(n.Cols[i])
	}
	for i := range n.Preds {
		n.Preds[i] = exprReplace(n.Preds[i], rewrite)
	}
	for i := range n.GroupBy {
		n.GroupBy[i] = rw(n.GroupBy[i])
	}
	for i := range n.Aggregates {
		n.Aggregates[i].Src = rw(n.Aggregates[i].Src)
		n.Aggregates[i].Dest = rw(n.Aggregates[i].Dest)
	}
	for i := range n.NewCols {
		n.NewCols[i].Dest = rw(n.NewCols[i].Dest)
		n.NewCols[i].Expr = exprReplace(n.NewCols[i].Expr, rewrite)
	}
	for i := range n.SortKeys {
		n.SortKeys[i].Col = rw(n.SortKeys[i].Col)
	}
	if n.Func != nil {
		n.Func = exprReplace(n.Func, rewrite)
	}
	if n.Left != nil {
		n.Left.ReplaceVariables(rewrite)
	}
	if n.Right != nil {
		n.Right.ReplaceVariables(rewrite)
	}
	if n.Src != nil {
		n.Src.ReplaceVariables(rewrite)
	}
	if n.Input != nil {
		n.Input.ReplaceVariables(rewrite)
	}
	if n.RenameMap != nil {
		newMap := make(map[ColID]ColID, len(n.RenameMap))
		for k, v := range n.RenameMap {
			newMap[rw(k)] = rw(v)
		}
		n.RenameMap = newMap
	}
}

// ToPhysical converts a logical plan to its physical shape: Join becomes
// NestedLoopJoin (the default; the optimiser introduces other algorithms
// later), every other kind is preserved.
func ToPhysical(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Left = ToPhysical(n.Left)
	out.Right = ToPhysical(n.Right)
	out.Src = ToPhysical(n.Src)
	out.Input = ToPhysical(n.Input)
	if out.Kind == KindJoin {
		out.Kind = KindNestedLoopJoin
		// The iterator runtime only implements the outer-unmatched pass
		// on its left side (Left/FullJoin); a RightJoin is the same
		// relation with sides swapped, so fold it into LeftJoin here
		// rather than teach NestedLoopJoin a second unmatched-row walk.
		if out.JoinType == RightJoin {
			out.Left, out.Right = out.Right, out.Left
			out.JoinType = LeftJoin
		}
	}
	return &out
}

// hashUint64s hashes a sequence of already-ordered uint64s with FNV-1a.
func hashUint64s(vals ...uint64) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, v := range vals {
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf)
	}
	return h.Sum64()
}

func hashCols(cols []ColID) uint64 {
	vals := make([]uint64, len(cols))
	for i, c := range cols {
		vals[i] = uint64(c)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	return hashUint64s(vals...)
}

func hashColsOrdered(cols []ColID) uint64 {
	vals := make([]uint64, len(cols))
	for i, c := range cols {
		vals[i] = uint64(c)
	}
	return hashUint64s(vals...)
}

func hashExprs(exprs []Expr, renames map[ColID]ColID) uint64 {
	hashes := make([]uint64, len(exprs))
	for i, e := range exprs {
		hashes[i] = hashExpr(applyRenames(e, renames))
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashUint64s(hashes...)
}

// HashPlan populates Hash on every node bottom-up, threading a rolling
// rename map contributed by Rename nodes (destination→source, per
// spec.md §4.7) down to Scan/predicate hashing.
func HashPlan(n *Node, renames map[ColID]ColID) uint64 {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindScan:
		renamed := renameCols(n.Cols, renames)
		sort.Slice(renamed, func(i, j int) bool { return renamed[i] < renamed[j] })
		h := hashUint64s(uint64(n.CID)) ^ hashString(n.Table) ^ hashColsOrdered(renamed)
		n.Hash, n.HashSet = h, true
		return h
	case KindSelect:
		srcHash := HashPlan(n.Src, renames)
		h := srcHash ^ hashExprs(n.Preds, renames)
		n.Hash, n.HashSet = h, true
		return h
	case KindJoin, KindCrossJoin, KindNestedLoopJoin, KindHashJoin, KindSortMergeJoin:
		lh := HashPlan(n.Left, renames)
		rh := HashPlan(n.Right, renames)
		h := lh ^ rh ^ hashExprs(n.Preds, renames) ^ hashUint64s(uint64(n.JoinType), uint64(n.Kind))
		n.Hash, n.HashSet = h, true
		return h
	case KindProject:
		srcHash := HashPlan(n.Src, renames)
		renamed := renameCols(n.Cols, renames)
		sort.Slice(renamed, func(i, j int) bool { return renamed[i] < renamed[j] })
		h := srcHash ^ hashColsOrdered(renamed)
		n.Hash, n.HashSet = h, true
		return h
	case KindOrderBy:
		srcHash := HashPlan(n.Src, renames)
		cols := make([]ColID, len(n.SortKeys))
		for i, k := range n.SortKeys {
			cols[i] = k.Col
		}
		h := srcHash ^ hashColsOrdered(renameCols(cols, renames))
		n.Hash, n.HashSet = h, true
		return h
	case KindAggregate:
		srcHash := HashPlan(n.Src, renames)
		gb := renameCols(n.GroupBy, renames)
		sort.Slice(gb, func(i, j int) bool { return gb[i] < gb[j] })
		aggVals := make([]uint64, 0, len(n.Aggregates)*2)
		for _, a := range n.Aggregates {
			aggVals = append(aggVals, uint64(a.Op), uint64(renameCol(a.Src, renames)))
		}
		h := srcHash ^ hashColsOrdered(gb) ^ hashUint64s(aggVals...)
		n.Hash, n.HashSet = h, true
		return h
	case KindMap:
		inputHash := HashPlan(n.Input, renames)
		exprs := make([]Expr, len(n.NewCols))
		for i, m := range n.NewCols {
			exprs[i] = m.Expr
		}
		h := inputHash ^ hashExprs(exprs, renames)
		n.Hash, n.HashSet = h, true
		return h
	case KindFlatMap:
		inputHash := HashPlan(n.Input, renames)
		h := inputHash ^ hashExpr(applyRenames(n.Func, renames))
		n.Hash, n.HashSet = h, true
		return h
	case KindRename:
		childRenames := mergeRenames(renames, n.RenameMap)
		h := HashPlan(n.Src, childRenames)
		n.Hash, n.HashSet = h, true
		return h
	}
	return 0
}

func renameCol(c ColID, renames map[ColID]ColID) ColID {
	if renames == nil {
		return c
	}
	if d, ok := renames[c]; ok {
		return d
	}
	return c
}

func renameCols(cols []ColID, renames map[ColID]ColID) []ColID {
	out := make([]ColID, len(cols))
	for i, c := range cols {
		out[i] = renameCol(c, renames)
	}
	return out
}

// mergeRenames layers a Rename node's dest→source map underneath the
// current ancestor rename map; a rename node's map is dest→source per
// spec.md's rename-node shape, so a lookup for dest here should resolve
// through to source before any ancestor rename is applied again.
func mergeRenames(outer, inner map[ColID]ColID) map[ColID]ColID {
	if len(inner) == 0 {
		return outer
	}
	merged := make(map[ColID]ColID, len(outer)+len(inner))
	for k, v := range outer {
		merged[k] = v
	}
	for dest, src := range inner {
		merged[dest] = renameCol(src, outer)
	}
	return merged
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
