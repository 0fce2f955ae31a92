package iterator

import (
	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

// Filter pulls rows from child and emits only those for which prog
// evaluates to a non-null true, implementing a Select node's predicate
// chain (spec.md §4.9: "Select becomes a Filter chain, one per
// conjunct, to cheaply short-circuit on the most selective predicate
// first").
type Filter struct {
	child Iterator
	prog  bytecode.Program
}

// NewFilter wraps child with a predicate compiled against child's schema.
func NewFilter(child Iterator, prog bytecode.Program) *Filter {
	return &Filter{child: child, prog: prog}
}

func (f *Filter) Schema() []plan.ColID { return f.child.Schema() }
func (f *Filter) Configure(willRewind bool) error { return f.child.Configure(willRewind) }
func (f *Filter) Open() error          { return f.child.Open() }
func (f *Filter) Close() error         { return f.child.Close() }
func (f *Filter) Rewind() error        { return f.child.Rewind() }

func (f *Filter) Next() (Row, bool, error) {
	for {
		row, ok, err := f.child.Next()
		if err != nil || !ok {
			return Row{}, false, err
		}
		v, err := bytecode.Eval(f.prog, dtype.Tuple{Fields: row.Fields})
		if err != nil {
			return Row{}, false, err
		}
		if v.Type != dtype.Bool {
			return Row{}, false, dberr.New(dberr.KindExecution, "filter predicate did not evaluate to boolean")
		}
		if !v.IsNull && v.I64 != 0 {
			return row, true, nil
		}
	}
}

// Project pulls a row from child and emits it reordered/restricted to
// positions, one per output column.
type Project struct {
	child     Iterator
	outCols   []plan.ColID
	positions []int
}

// NewProject builds a projection from child's schema to outCols, each of
// which must already be present in child's schema (computed expressions
// go through a Map node ahead of Project, per spec.md §4.9).
func NewProject(child Iterator, outCols []plan.ColID) (*Project, error) {
	childSchema := child.Schema()
	positions := make([]int, len(outCols))
	for i, c := range outCols {
		pos, ok := colPos(childSchema, c)
		if !ok {
			return nil, dberr.New(dberr.KindPlanning, "projected column not present in child schema")
		}
		positions[i] = pos
	}
	return &Project{child: child, outCols: outCols, positions: positions}, nil
}

func (p *Project) Schema() []plan.ColID { return p.outCols }
func (p *Project) Configure(willRewind bool) error { return p.child.Configure(willRewind) }
func (p *Project) Open() error          { return p.child.Open() }
func (p *Project) Close() error         { return p.child.Close() }
func (p *Project) Rewind() error        { return p.child.Rewind() }

func (p *Project) Next() (Row, bool, error) {
	row, ok, err := p.child.Next()
	if err != nil || !ok {
		return Row{}, false, err
	}
	fields := make([]dtype.Field, len(p.positions))
	for i, pos := range p.positions {
		fields[i] = row.Fields[pos]
	}
	return Row{Fields: fields}, true, nil
}

// Map pulls a row from child and appends one or more computed fields
// evaluated against bytecode programs compiled over child's schema,
// implementing a logical Map node (spec.md §4.6: WHERE/SELECT subquery
// scalar results are materialized via Map before the outer Select).
type Map struct {
	child   Iterator
	newCols []plan.ColID
	progs   []bytecode.Program
	schema  []plan.ColID
}

// NewMap appends newCols to child's schema, each computed by the
// correspondingly indexed bytecode program.
func NewMap(child Iterator, newCols []plan.ColID, progs []bytecode.Program) *Map {
	return &Map{child: child, newCols: newCols, progs: progs, schema: concatSchema(child.Schema(), newCols)}
}

func (m *Map) Schema() []plan.ColID { return m.schema }
func (m *Map) Configure(willRewind bool) error { return m.child.Configure(willRewind) }
func (m *Map) Open() error          { return m.child.Open() }
func (m *Map) Close() error         { return m.child.Close() }
func (m *Map) Rewind() error        { return m.child.Rewind() }

func (m *Map) Next() (Row, bool, error) {
	row, ok, err := m.child.Next()
	if err != nil || !ok {
		return Row{}, false, err
	}
	fields := append([]dtype.Field{}, row.Fields...)
	for _, prog := range m.progs {
		v, err := bytecode.Eval(prog, dtype.Tuple{Fields: row.Fields})
		if err != nil {
			return Row{}, false, err
		}
		fields = append(fields, v)
	}
	return Row{Fields: fields}, true, nil
}
