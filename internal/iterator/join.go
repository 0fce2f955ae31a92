package iterator

import (
	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

// CrossJoin pulls every pair of (left, right) rows with no predicate,
// rewinding the right child once per left row. Grounded on original
// queryexe/src/opiterator/nested_loop_join.rs's outer-pins-one-row
// discipline, specialized to the predicate-free case.
type CrossJoin struct {
	left, right Iterator
	schema      []plan.ColID

	curLeft   Row
	haveLeft  bool
	rightDone bool
}

// NewCrossJoin builds the unconditional Cartesian product of left and
// right.
func NewCrossJoin(left, right Iterator) *CrossJoin {
	return &CrossJoin{left: left, right: right, schema: concatSchema(left.Schema(), right.Schema())}
}

func (c *CrossJoin) Schema() []plan.ColID { return c.schema }

// Configure always asks the right (inner) child to support Rewind,
// since CrossJoin/NestedLoopJoin rewind it once per outer row regardless
// of whether the parent rewinds the join itself (spec.md §4.10:
// "NestedLoopJoin always calls true on its inner side").
func (c *CrossJoin) Configure(willRewind bool) error {
	if err := c.left.Configure(willRewind); err != nil {
		return err
	}
	return c.right.Configure(true)
}

func (c *CrossJoin) Open() error {
	if err := c.left.Open(); err != nil {
		return err
	}
	if err := c.right.Open(); err != nil {
		return err
	}
	c.haveLeft = false
	c.rightDone = true
	return nil
}

func (c *CrossJoin) Close() error {
	if err := c.left.Close(); err != nil {
		return err
	}
	return c.right.Close()
}

func (c *CrossJoin) Rewind() error {
	if err := c.left.Rewind(); err != nil {
		return err
	}
	if err := c.right.Rewind(); err != nil {
		return err
	}
	c.haveLeft = false
	c.rightDone = true
	return nil
}

func (c *CrossJoin) Next() (Row, bool, error) {
	for {
		if !c.haveLeft {
			row, ok, err := c.left.Next()
			if err != nil || !ok {
				return Row{}, false, err
			}
			c.curLeft = row
			c.haveLeft = true
			if err := c.right.Rewind(); err != nil {
				return Row{}, false, err
			}
			c.rightDone = false
		}
		rrow, ok, err := c.right.Next()
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			c.haveLeft = false
			continue
		}
		return concatRow(c.curLeft, rrow), true, nil
	}
}

// NestedLoopJoin evaluates a predicate over every (left, right) pair.
// For an InnerJoin only matches are emitted; LeftJoin/FullJoin
// additionally emit the unmatched left row padded with nulls on the
// right, per spec.md §4.8's OUTER JOIN support. plan.ToPhysical folds a
// RightJoin into a LeftJoin with its children swapped, so this operator
// never needs to implement a second, mirrored unmatched-row walk.
// Grounded on original queryexe/src/opiterator/nested_loop_join.rs for
// the inner-match walk, generalized to outer semantics since that
// reference has no outer-join operator of its own.
type NestedLoopJoin struct {
	left, right Iterator
	joinType    plan.JoinType
	prog        bytecode.Program
	leftWidth   int
	rightWidth  int
	schema      []plan.ColID

	curLeft     Row
	haveLeft    bool
	leftMatched bool
	rightSeen   map[int]bool // right row index -> matched, only tracked for FullJoin
	rightRows   []Row        // only materialized for FullJoin's unmatched-right pass
	rightIdx    int
	fullPhase   bool
}

// NewNestedLoopJoin builds a join evaluating prog (compiled over the
// concatenated left+right schema) per candidate pair, with outer-join
// behavior selected by joinType.
func NewNestedLoopJoin(left, right Iterator, prog bytecode.Program, joinType plan.JoinType) *NestedLoopJoin {
	return &NestedLoopJoin{
		left: left, right: right, prog: prog, joinType: joinType,
		leftWidth:  len(left.Schema()),
		rightWidth: len(right.Schema()),
		schema:     concatSchema(left.Schema(), right.Schema()),
	}
}

func (n *NestedLoopJoin) Schema() []plan.ColID { return n.schema }

func (n *NestedLoopJoin) Configure(willRewind bool) error {
	if err := n.left.Configure(willRewind); err != nil {
		return err
	}
	// LeftJoin/FullJoin need every right row replayed per left row, so
	// the inner side always supports rewind regardless of the parent's
	// own rewind need.
	return n.right.Configure(true)
}

func (n *NestedLoopJoin) Open() error {
	if err := n.left.Open(); err != nil {
		return err
	}
	if err := n.right.Open(); err != nil {
		return err
	}
	return n.reset()
}

func (n *NestedLoopJoin) reset() error {
	n.haveLeft = false
	n.fullPhase = false
	n.rightIdx = 0
	if n.joinType == plan.FullJoin {
		n.rightRows = nil
		if err := n.right.Rewind(); err != nil {
			return err
		}
		for {
			row, ok, err := n.right.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			n.rightRows = append(n.rightRows, row)
		}
		n.rightSeen = make(map[int]bool, len(n.rightRows))
	}
	return nil
}

func (n *NestedLoopJoin) Close() error {
	if err := n.left.Close(); err != nil {
		return err
	}
	return n.right.Close()
}

func (n *NestedLoopJoin) Rewind() error {
	if err := n.left.Rewind(); err != nil {
		return err
	}
	if err := n.right.Rewind(); err != nil {
		return err
	}
	return n.reset()
}

func (n *NestedLoopJoin) nullRow(width int) Row {
	fields := make([]dtype.Field, width)
	for i := range fields {
		fields[i] = dtype.Field{IsNull: true}
	}
	return Row{Fields: fields}
}

func (n *NestedLoopJoin) matches(row Row) (bool, error) {
	v, err := bytecode.Eval(n.prog, dtype.Tuple{Fields: row.Fields})
	if err != nil {
		return false, err
	}
	return v.Type == dtype.Bool && !v.IsNull && v.I64 != 0, nil
}

func (n *NestedLoopJoin) Next() (Row, bool, error) {
	for {
		if n.fullPhase {
			for n.rightIdx < len(n.rightRows) {
				idx := n.rightIdx
				n.rightIdx++
				if !n.rightSeen[idx] {
					return concatRow(n.nullRow(n.leftWidth), n.rightRows[idx]), true, nil
				}
			}
			return Row{}, false, nil
		}

		if !n.haveLeft {
			row, ok, err := n.left.Next()
			if err != nil || !ok {
				if !ok && err == nil && n.joinType == plan.FullJoin {
					n.fullPhase = true
					n.rightIdx = 0
					continue
				}
				return Row{}, false, err
			}
			n.curLeft = row
			n.haveLeft = true
			n.leftMatched = false
			if err := n.right.Rewind(); err != nil {
				return Row{}, false, err
			}
			n.rightIdx = 0
		}

		rrow, ok, err := n.right.Next()
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			unmatched := !n.leftMatched
			n.haveLeft = false
			if unmatched && (n.joinType == plan.LeftJoin || n.joinType == plan.FullJoin) {
				return concatRow(n.curLeft, n.nullRow(n.rightWidth)), true, nil
			}
			continue
		}
		n.rightIdx++
		combined := concatRow(n.curLeft, rrow)
		ok, err = n.matches(combined)
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			continue
		}
		n.leftMatched = true
		if n.joinType == plan.FullJoin {
			n.rightSeen[n.rightIdx-1] = true
		}
		return combined, true, nil
	}
}

// fieldKey derives a comparable Go value from a field to use as a hash
// join bucket key. Decimal/Int/Bool/Date fields compare by value via
// their Go-native representation; strings compare by content.
func fieldKey(f dtype.Field) any {
	if f.IsNull {
		return nil
	}
	switch f.Type {
	case dtype.Int64, dtype.Int32, dtype.Int16, dtype.Bool, dtype.Date:
		return f.I64
	case dtype.Decimal:
		return f.Dec
	default:
		return f.Str
	}
}

// HashEqJoin builds an in-memory hash table over the left child keyed
// by its equi-join columns (left is always the build side, per the
// open-question decision in DESIGN.md), then probes it with each right
// row. Grounded on original queryexe/src/opiterator/hash_join.rs.
type HashEqJoin struct {
	left, right          Iterator
	leftKeyPos, rightKey int
	schema               []plan.ColID

	buckets map[any][]Row
	probe   []Row
	idx     int
	curR    Row
}

// NewHashEqJoin builds a single-column equi-join between left and right
// keyed at the given positions within each side's schema.
func NewHashEqJoin(left, right Iterator, leftKeyPos, rightKeyPos int) *HashEqJoin {
	return &HashEqJoin{
		left: left, right: right,
		leftKeyPos: leftKeyPos, rightKey: rightKeyPos,
		schema: concatSchema(left.Schema(), right.Schema()),
	}
}

func (h *HashEqJoin) Schema() []plan.ColID { return h.schema }

// Configure calls false unconditionally on the build side (left), since
// HashEqJoin fully materializes it into buckets on every Open regardless
// of whether the parent rewinds the join, and forwards willRewind to the
// probe side (right) per spec.md §4.10.
func (h *HashEqJoin) Configure(willRewind bool) error {
	if err := h.left.Configure(false); err != nil {
		return err
	}
	return h.right.Configure(willRewind)
}

func (h *HashEqJoin) Open() error {
	if err := h.left.Open(); err != nil {
		return err
	}
	if err := h.right.Open(); err != nil {
		return err
	}
	return h.buildAndReset()
}

func (h *HashEqJoin) buildAndReset() error {
	h.buckets = make(map[any][]Row)
	for {
		row, ok, err := h.left.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key := fieldKey(row.Fields[h.leftKeyPos])
		h.buckets[key] = append(h.buckets[key], row)
	}
	h.probe = nil
	h.idx = 0
	return nil
}

func (h *HashEqJoin) Close() error {
	if err := h.left.Close(); err != nil {
		return err
	}
	return h.right.Close()
}

func (h *HashEqJoin) Rewind() error {
	if err := h.left.Rewind(); err != nil {
		return err
	}
	if err := h.right.Rewind(); err != nil {
		return err
	}
	return h.buildAndReset()
}

func (h *HashEqJoin) Next() (Row, bool, error) {
	for {
		if h.idx < len(h.probe) {
			row := concatRow(h.probe[h.idx], h.curR)
			h.idx++
			return row, true, nil
		}
		rrow, ok, err := h.right.Next()
		if err != nil || !ok {
			return Row{}, false, err
		}
		key := fieldKey(rrow.Fields[h.rightKey])
		h.curR = rrow
		h.probe = h.buckets[key]
		h.idx = 0
	}
}
