// Package iterator implements the pull-based operator tree: every
// operator exposes Configure/Open/Next/Close/Rewind and a positional
// output schema, and pulls rows from its children one at a time rather
// than materializing intermediate results (spec.md §4.10).
//
// Grounded on original queryexe/src/opiterator/{hash_join,
// nested_loop_join}.rs and queryexe-fairy/src/opiterator/
// {aggregate,sort_merge_join}.rs for per-operator algorithms: nested
// loop join's build-outer/probe-inner loop, hash join's left-is-always-
// build-side convention (recorded as an open-question decision in
// DESIGN.md), sort-merge join's dual-cursor advance-the-smaller-key
// walk, and hash aggregate's group-key-to-accumulator map.
package iterator

import (
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

// Row is one tuple flowing through the iterator tree. It carries only the
// field values; the column id at each position comes from the producing
// operator's Schema, against which ColRef expressions are resolved
// positionally.
type Row struct {
	Fields []dtype.Field
}

// Iterator is the pull-based operator contract. Configure is the
// declaration phase: a parent calls it top-down, before Open, to announce
// whether it intends to Rewind this operator; buffering operators (sort,
// aggregate) always pass false down to their child regardless of what
// they were told, since they fully consume the child once on Open
// irrespective of how many times the parent rewinds them. Open prepares
// state (for buffering operators, by fully draining the child); Next
// returns (row, true, nil) per tuple and (Row{}, false, nil) at end of
// stream, and must be idempotent once exhausted; Close tears down state
// and is idempotent; Rewind is valid only when Configure(true) was called
// and restarts the stream without a fresh Open.
type Iterator interface {
	Configure(willRewind bool) error
	Open() error
	Next() (Row, bool, error)
	Close() error
	Rewind() error
	Schema() []plan.ColID
}

func colPos(schema []plan.ColID, col plan.ColID) (int, bool) {
	for i, c := range schema {
		if c == col {
			return i, true
		}
	}
	return 0, false
}

// ColPos exposes colPos to internal/planner, which needs to resolve a
// join predicate's column ids to positions within a child schema to
// decide whether a predicate is eligible for HashEqJoin/SortMergeJoin.
func ColPos(schema []plan.ColID, col plan.ColID) (int, bool) { return colPos(schema, col) }

// Rename is a no-op on the data path: it passes every row through
// unchanged and only relabels the column ids reported by Schema, per
// spec.md §4.9 ("Rename is a no-op on the iterator side; it only
// rewrites the column map").
type Rename struct {
	child  Iterator
	schema []plan.ColID
}

// NewRename wraps child, reporting outSchema (child's schema with
// RenameMap applied) instead of child's own schema.
func NewRename(child Iterator, outSchema []plan.ColID) *Rename {
	return &Rename{child: child, schema: outSchema}
}

func (r *Rename) Schema() []plan.ColID            { return r.schema }
func (r *Rename) Configure(willRewind bool) error { return r.child.Configure(willRewind) }
func (r *Rename) Open() error                     { return r.child.Open() }
func (r *Rename) Next() (Row, bool, error)        { return r.child.Next() }
func (r *Rename) Close() error                    { return r.child.Close() }
func (r *Rename) Rewind() error                   { return r.child.Rewind() }

// concatSchema appends b after a, used by join operators to build their
// output schema from their two children's schemas.
func concatSchema(a, b []plan.ColID) []plan.ColID {
	out := make([]plan.ColID, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func concatRow(a, b Row) Row {
	fields := make([]dtype.Field, 0, len(a.Fields)+len(b.Fields))
	fields = append(fields, a.Fields...)
	fields = append(fields, b.Fields...)
	return Row{Fields: fields}
}
