package iterator

import (
	"sort"
	"testing"

	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

const (
	colLeftID  plan.ColID = 1
	colLeftVal plan.ColID = 2
	colRightID plan.ColID = 3
	colRightV  plan.ColID = 4
)

func intField(v int64) dtype.Field { return dtype.Field{Type: dtype.Int64, I64: v} }

func leftFixture() *TupleBuffer {
	schema := []plan.ColID{colLeftID, colLeftVal}
	rows := []Row{
		{Fields: []dtype.Field{intField(1), intField(100)}},
		{Fields: []dtype.Field{intField(2), intField(200)}},
		{Fields: []dtype.Field{intField(3), intField(300)}},
	}
	return NewTupleBuffer(schema, rows)
}

func rightFixture() *TupleBuffer {
	schema := []plan.ColID{colRightID, colRightV}
	rows := []Row{
		{Fields: []dtype.Field{intField(2), intField(20)}},
		{Fields: []dtype.Field{intField(3), intField(30)}},
		{Fields: []dtype.Field{intField(4), intField(40)}},
	}
	return NewTupleBuffer(schema, rows)
}

// eqProgram compiles "left == right" over the concatenated left+right
// schema at the given positions.
func eqProgram(t *testing.T, leftPos, rightPos int) bytecode.Program {
	t.Helper()
	return bytecode.Program{
		Instrs: []bytecode.Instr{
			{Op: bytecode.PushField, Arg: leftPos},
			{Op: bytecode.PushField, Arg: rightPos},
			{Op: bytecode.Eq},
		},
	}
}

func drainAll(t *testing.T, it Iterator) []Row {
	t.Helper()
	if err := it.Configure(false); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := it.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer it.Close()
	var out []Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, row)
	}
	return out
}

func pairKeys(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, keyOf(r))
	}
	sort.Strings(out)
	return out
}

func keyOf(r Row) string {
	s := ""
	for _, f := range r.Fields {
		if f.IsNull {
			s += "N,"
			continue
		}
		s += itoa(f.I64) + ","
	}
	return s
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestCrossJoinProducesFullCartesianProduct(t *testing.T) {
	cj := NewCrossJoin(leftFixture(), rightFixture())
	rows := drainAll(t, cj)
	if len(rows) != 9 {
		t.Fatalf("expected 9 rows (3x3), got %d", len(rows))
	}
}

func TestNestedLoopJoinInner(t *testing.T) {
	prog := eqProgram(t, 0, 2) // left.id == right.id
	nlj := NewNestedLoopJoin(leftFixture(), rightFixture(), prog, plan.InnerJoin)
	rows := drainAll(t, nlj)
	if len(rows) != 2 {
		t.Fatalf("expected 2 matches (id 2 and 3), got %d: %v", len(rows), pairKeys(rows))
	}
}

func TestNestedLoopJoinLeftEmitsUnmatched(t *testing.T) {
	prog := eqProgram(t, 0, 2)
	nlj := NewNestedLoopJoin(leftFixture(), rightFixture(), prog, plan.LeftJoin)
	rows := drainAll(t, nlj)
	// id=1 has no right match -> emitted once with right padded null;
	// id=2, id=3 each match exactly one right row.
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), pairKeys(rows))
	}
	foundUnmatched := false
	for _, r := range rows {
		if r.Fields[0].I64 == 1 {
			if !r.Fields[2].IsNull {
				t.Fatalf("expected right side null-padded for unmatched left row, got %+v", r)
			}
			foundUnmatched = true
		}
	}
	if !foundUnmatched {
		t.Fatalf("expected an unmatched left row (id=1) in output")
	}
}

func TestNestedLoopJoinFullEmitsBothUnmatchedSides(t *testing.T) {
	prog := eqProgram(t, 0, 2)
	nlj := NewNestedLoopJoin(leftFixture(), rightFixture(), prog, plan.FullJoin)
	rows := drainAll(t, nlj)
	// id=1 unmatched-left, id=2/id=3 matched, id=4 unmatched-right = 4 rows.
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %v", len(rows), pairKeys(rows))
	}
	var unmatchedLeft, unmatchedRight int
	for _, r := range rows {
		if r.Fields[0].IsNull {
			unmatchedRight++
		}
		if r.Fields[2].IsNull {
			unmatchedLeft++
		}
	}
	if unmatchedLeft != 1 || unmatchedRight != 1 {
		t.Fatalf("expected exactly one unmatched-left and one unmatched-right row, got left=%d right=%d", unmatchedLeft, unmatchedRight)
	}
}

func TestRightJoinFoldsToLeftJoinWithSwappedChildren(t *testing.T) {
	logical := &plan.Node{
		Kind:     plan.KindJoin,
		Left:     &plan.Node{Kind: plan.KindScan, Table: "l", Cols: []plan.ColID{colLeftID, colLeftVal}},
		Right:    &plan.Node{Kind: plan.KindScan, Table: "r", Cols: []plan.ColID{colRightID, colRightV}},
		JoinType: plan.RightJoin,
	}
	phys := plan.ToPhysical(logical)
	if phys.Kind != plan.KindNestedLoopJoin {
		t.Fatalf("expected NestedLoopJoin, got %v", phys.Kind)
	}
	if phys.JoinType != plan.LeftJoin {
		t.Fatalf("expected RightJoin to fold into LeftJoin, got %v", phys.JoinType)
	}
	if phys.Left.Table != "r" || phys.Right.Table != "l" {
		t.Fatalf("expected children swapped so the original right side drives as the outer loop, got left=%s right=%s", phys.Left.Table, phys.Right.Table)
	}
}

func TestHashEqJoinMatchesOnKey(t *testing.T) {
	hj := NewHashEqJoin(leftFixture(), rightFixture(), 0, 0)
	rows := drainAll(t, hj)
	if len(rows) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Fields[0].I64 != r.Fields[2].I64 {
			t.Fatalf("join key mismatch in output row %+v", r)
		}
	}
}
