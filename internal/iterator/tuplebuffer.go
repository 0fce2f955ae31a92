package iterator

import "github.com/crustylabs/crustydb/internal/plan"

// TupleBuffer is the in-memory iterator variant named in spec.md §9's
// dynamic-dispatch capability set: a fixed, already-materialized row
// slice replayed through the standard Configure/Open/Next/Close/Rewind
// contract. No operator in this package builds one internally (Aggregate
// keeps its own group maps); it stands in for a leaf scan in tests that
// want fixture rows without a backing heap file.
type TupleBuffer struct {
	schema []plan.ColID
	rows   []Row
	idx    int
}

// NewTupleBuffer wraps rows (not copied) for replay under the iterator
// contract, reporting schema as its output column ids.
func NewTupleBuffer(schema []plan.ColID, rows []Row) *TupleBuffer {
	return &TupleBuffer{schema: schema, rows: rows}
}

func (b *TupleBuffer) Schema() []plan.ColID { return b.schema }

// Configure is a no-op: a TupleBuffer has no child to propagate to, and
// rewinding it is always supported regardless of what the parent asks.
func (b *TupleBuffer) Configure(willRewind bool) error { return nil }

func (b *TupleBuffer) Open() error {
	b.idx = 0
	return nil
}

func (b *TupleBuffer) Next() (Row, bool, error) {
	if b.idx >= len(b.rows) {
		return Row{}, false, nil
	}
	row := b.rows[b.idx]
	b.idx++
	return row, true, nil
}

func (b *TupleBuffer) Close() error { return nil }

func (b *TupleBuffer) Rewind() error {
	b.idx = 0
	return nil
}
