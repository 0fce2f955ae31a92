package plan

import (
	"testing"

	"github.com/crustylabs/crustydb/internal/dtype"
)

func scan(cid uint16, table string, cols ...ColID) *Node {
	return &Node{Kind: KindScan, CID: cid, Table: table, Cols: cols}
}

func TestAttAndFreeScan(t *testing.T) {
	n := scan(1, "t", 1, 2, 3)
	att := n.Att()
	if len(att) != 3 || !att[1] || !att[2] || !att[3] {
		t.Fatalf("unexpected att: %v", att)
	}
	if len(n.Free()) != 0 {
		t.Fatalf("scan should have no free columns, got %v", n.Free())
	}
}

func TestFreeSelectIncludesPredicateColumns(t *testing.T) {
	s := scan(1, "t", 1, 2)
	sel := &Node{Kind: KindSelect, Src: s, Preds: []Expr{
		BinExpr{Op: OpGt, Left: ColRef{Col: 1}, Right: Lit{Val: dtype.Field{Type: dtype.Int64, I64: 5}}},
	}}
	if len(sel.Free()) != 0 {
		t.Fatalf("predicate column 1 is produced by scan, should not be free: %v", sel.Free())
	}

	// Reference a column the scan does not produce: now it's free.
	sel2 := &Node{Kind: KindSelect, Src: s, Preds: []Expr{
		BinExpr{Op: OpGt, Left: ColRef{Col: 99}, Right: Lit{Val: dtype.Field{Type: dtype.Int64, I64: 5}}},
	}}
	free := sel2.Free()
	if !free[99] {
		t.Fatalf("expected column 99 free, got %v", free)
	}
}

func TestHashPlanStableAcrossRename(t *testing.T) {
	base := scan(1, "t", 1, 2)
	h1 := HashPlan(base, nil)

	renamed := &Node{Kind: KindRename, Src: scan(1, "t", 1, 2), RenameMap: map[ColID]ColID{10: 1, 20: 2}}
	// Att of renamed uses dest ids 10/20, but the underlying scan identity
	// (table+cid+renamed-back-to-source cols) should still hash equal.
	h2 := HashPlan(renamed, nil)
	if h1 != h2 {
		t.Fatalf("expected rename-invisible hash, got %x vs %x", h1, h2)
	}
}

func TestHashPlanCommutativeJoin(t *testing.T) {
	left := scan(1, "a", 1)
	right := scan(2, "b", 2)
	j1 := &Node{Kind: KindJoin, Left: left, Right: right, Preds: []Expr{
		BinExpr{Op: OpEq, Left: ColRef{Col: 1}, Right: ColRef{Col: 2}},
	}}
	j2 := &Node{Kind: KindJoin, Left: scan(2, "b", 2), Right: scan(1, "a", 1), Preds: []Expr{
		BinExpr{Op: OpEq, Left: ColRef{Col: 2}, Right: ColRef{Col: 1}},
	}}
	h1 := HashPlan(j1, nil)
	h2 := HashPlan(j2, nil)
	if h1 != h2 {
		t.Fatalf("expected commutative join hash, got %x vs %x", h1, h2)
	}
}

func TestReplaceVariables(t *testing.T) {
	n := &Node{Kind: KindProject, Src: scan(1, "t", 1, 2), Cols: []ColID{1, 2}}
	n.ReplaceVariables(map[ColID]ColID{1: 100})
	if n.Cols[0] != 100 {
		t.Fatalf("expected col 1 rewritten to 100, got %v", n.Cols)
	}
	if n.Src.Cols[0] != 100 {
		t.Fatalf("expected rewrite to propagate into child scan, got %v", n.Src.Cols)
	}
}

func TestToPhysicalConvertsJoin(t *testing.T) {
	logical := &Node{Kind: KindJoin, Left: scan(1, "a", 1), Right: scan(2, "b", 2)}
	phys := ToPhysical(logical)
	if phys.Kind != KindNestedLoopJoin {
		t.Fatalf("expected KindNestedLoopJoin, got %v", phys.Kind)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Put(1, "a")
	c.Put(2, "b")
	c.Get(1) // promote 1
	c.Put(3, "c")
	if _, ok := c.Get(2); ok {
		t.Fatal("expected hash 2 evicted as least recently used")
	}
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatal("expected hash 1 still cached")
	}
	if v, ok := c.Get(3); !ok || v != "c" {
		t.Fatal("expected hash 3 cached")
	}
}

func TestFindSubplanMatch(t *testing.T) {
	inner := scan(1, "t", 1, 2)
	HashPlan(inner, nil)
	outer := &Node{Kind: KindSelect, Src: scan(1, "t", 1, 2)}
	HashPlan(outer, nil)

	match := FindSubplanMatch(outer, inner.Hash)
	if match == nil {
		t.Fatal("expected a subplan match for the embedded scan")
	}
	if match.Kind != KindScan || match.Table != "t" {
		t.Fatalf("unexpected match node: %+v", match)
	}
}
