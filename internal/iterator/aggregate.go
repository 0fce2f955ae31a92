package iterator

import (
	"fmt"
	"strings"

	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
)

// aggAccum carries one group's running accumulator state. Count/Sum/Avg
// carry their running total in I64 or Dec depending on which type the
// first non-null input value established; Max/Min hold the current
// extreme value directly.
type aggAccum struct {
	op       plan.AggOp
	count    int64
	haveVal  bool
	isDec    bool
	sumI64   int64
	sumDec   dtype.Decimal
	extreme  dtype.Field
}

func newAccum(op plan.AggOp) *aggAccum { return &aggAccum{op: op} }

func (a *aggAccum) add(v dtype.Field) error {
	switch a.op {
	case plan.AggCount:
		if !v.IsNull {
			a.count++
		}
		return nil
	case plan.AggSum, plan.AggAvg:
		if v.IsNull {
			return nil
		}
		if !a.haveVal {
			a.isDec = v.Type == dtype.Decimal
			a.haveVal = true
		}
		switch v.Type {
		case dtype.Decimal:
			if !a.isDec {
				return dberr.New(dberr.KindExecution, "aggregation over mismatched numeric types")
			}
			sum, err := dtype.DecimalAdd(a.sumDec, v.Dec)
			if err != nil {
				return err
			}
			a.sumDec = sum
		case dtype.Int64, dtype.Int32, dtype.Int16:
			if a.isDec {
				return dberr.New(dberr.KindExecution, "aggregation over mismatched numeric types")
			}
			a.sumI64 += v.I64
		default:
			return dberr.New(dberr.KindExecution, "aggregation over non-numeric value")
		}
		a.count++
		return nil
	case plan.AggMax, plan.AggMin:
		if v.IsNull {
			return nil
		}
		if !a.haveVal {
			a.extreme = v
			a.haveVal = true
			return nil
		}
		c, err := fieldCompare(a.extreme, v)
		if err != nil {
			return err
		}
		if (a.op == plan.AggMax && c < 0) || (a.op == plan.AggMin && c > 0) {
			a.extreme = v
		}
		return nil
	}
	return dberr.New(dberr.KindExecution, "unsupported aggregate op")
}

func (a *aggAccum) finish() (dtype.Field, error) {
	switch a.op {
	case plan.AggCount:
		return dtype.Field{Type: dtype.Int64, I64: a.count}, nil
	case plan.AggSum:
		if !a.haveVal {
			return dtype.NullField(dtype.Int64), nil
		}
		if a.isDec {
			return dtype.Field{Type: dtype.Decimal, Dec: a.sumDec}, nil
		}
		return dtype.Field{Type: dtype.Int64, I64: a.sumI64}, nil
	case plan.AggAvg:
		if !a.haveVal || a.count == 0 {
			return dtype.NullField(dtype.Decimal), nil
		}
		if a.isDec {
			avg, err := dtype.DecimalDiv(a.sumDec, dtype.IntToDecimal(a.count, 0))
			if err != nil {
				return dtype.Field{}, err
			}
			return dtype.Field{Type: dtype.Decimal, Dec: avg}, nil
		}
		avg, err := dtype.DecimalDiv(dtype.IntToDecimal(a.sumI64, 0), dtype.IntToDecimal(a.count, 0))
		if err != nil {
			return dtype.Field{}, err
		}
		return dtype.Field{Type: dtype.Decimal, Dec: avg}, nil
	case plan.AggMax, plan.AggMin:
		if !a.haveVal {
			return dtype.NullField(dtype.Int64), nil
		}
		return a.extreme, nil
	}
	return dtype.Field{}, dberr.New(dberr.KindExecution, "unsupported aggregate op")
}

// fieldCompare orders two non-null fields of the same comparable family,
// reusing the same type-pairing rules internal/bytecode's comparison
// opcode applies.
func fieldCompare(l, r dtype.Field) (int, error) {
	switch {
	case isNumeric(l.Type) && isNumeric(r.Type):
		ld, rd := asDecimal(l), asDecimal(r)
		return dtype.DecimalCompare(ld, rd), nil
	case l.Type == dtype.VarString || l.Type == dtype.Char:
		return strings.Compare(l.Str, r.Str), nil
	case l.Type == dtype.Bool || l.Type == dtype.Date:
		switch {
		case l.I64 < r.I64:
			return -1, nil
		case l.I64 > r.I64:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, dberr.New(dberr.KindExecution, "type mismatch comparing aggregate extremes")
}

func isNumeric(t dtype.Type) bool {
	return t == dtype.Int64 || t == dtype.Int32 || t == dtype.Int16 || t == dtype.Decimal
}

func asDecimal(f dtype.Field) dtype.Decimal {
	if f.Type == dtype.Decimal {
		return f.Dec
	}
	return dtype.IntToDecimal(f.I64, 0)
}

// groupKey renders a row's group-by fields to a stable string key, since
// Go map keys must be comparable and dtype.Field carries a Decimal
// struct plus a string, not a slice-free comparable shape once boxed
// into []dtype.Field.
func groupKey(fields []dtype.Field) string {
	var b strings.Builder
	for _, f := range fields {
		if f.IsNull {
			b.WriteString("N;")
			continue
		}
		fmt.Fprintf(&b, "%d|%d|%s|%d|%d;", f.Type, f.I64, f.Str, f.Dec.Mantissa, f.Dec.Scale)
	}
	return b.String()
}

// Aggregate implements a hash-based group-by: Open fully consumes its
// child (it always Configures it with willRewind=false, since it buffers
// all groups regardless of what its own parent asked for), evaluates the
// group-by key and each aggregate's input expression per input row, and
// updates per-group accumulators. Output group order is unspecified
// (spec.md §4.10).
type Aggregate struct {
	child      Iterator
	groupPos   []int // positions of group-by columns in child's schema
	aggInputs  []int // -1 for COUNT(*), else position in child's schema
	aggOps     []plan.AggOp
	schema     []plan.ColID

	order []string
	groups map[string][]dtype.Field // group key -> materialized group-by values
	accums map[string][]*aggAccum
	idx    int
}

// NewAggregate builds a group-by aggregate over child, grouping on
// groupCols and computing aggOps over aggSrcCols (aggIsStar[i] == true
// meaning COUNT(*), with aggSrcCols[i] ignored) into destCols.
func NewAggregate(child Iterator, groupCols []plan.ColID, aggOps []plan.AggOp, aggSrcCols []plan.ColID, aggIsStar []bool, destCols []plan.ColID) (*Aggregate, error) {
	schema := child.Schema()
	groupPos := make([]int, len(groupCols))
	for i, c := range groupCols {
		pos, ok := colPos(schema, c)
		if !ok {
			return nil, dberr.New(dberr.KindPlanning, "group-by column not present in child schema")
		}
		groupPos[i] = pos
	}
	aggInputs := make([]int, len(aggOps))
	for i := range aggOps {
		if aggIsStar[i] {
			aggInputs[i] = -1
			continue
		}
		pos, ok := colPos(schema, aggSrcCols[i])
		if !ok {
			return nil, dberr.New(dberr.KindPlanning, "aggregate input column not present in child schema")
		}
		aggInputs[i] = pos
	}
	outSchema := append([]plan.ColID{}, groupCols...)
	outSchema = append(outSchema, destCols...)
	return &Aggregate{child: child, groupPos: groupPos, aggInputs: aggInputs, aggOps: aggOps, schema: outSchema}, nil
}

func (a *Aggregate) Schema() []plan.ColID { return a.schema }

func (a *Aggregate) Configure(willRewind bool) error { return a.child.Configure(false) }

func (a *Aggregate) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	return a.consume()
}

func (a *Aggregate) consume() error {
	a.groups = make(map[string][]dtype.Field)
	a.accums = make(map[string][]*aggAccum)
	a.order = nil
	for {
		row, ok, err := a.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key := groupKey(pickFields(row.Fields, a.groupPos))
		accs, seen := a.accums[key]
		if !seen {
			accs = make([]*aggAccum, len(a.aggOps))
			for i, op := range a.aggOps {
				accs[i] = newAccum(op)
			}
			a.accums[key] = accs
			a.groups[key] = pickFields(row.Fields, a.groupPos)
			a.order = append(a.order, key)
		}
		for i, pos := range a.aggInputs {
			var v dtype.Field
			if pos < 0 {
				v = dtype.Field{Type: dtype.Int64, I64: 1}
			} else {
				v = row.Fields[pos]
			}
			if err := accs[i].add(v); err != nil {
				return err
			}
		}
	}
	a.idx = 0
	return nil
}

func pickFields(fields []dtype.Field, positions []int) []dtype.Field {
	out := make([]dtype.Field, len(positions))
	for i, p := range positions {
		out[i] = fields[p]
	}
	return out
}

func (a *Aggregate) Next() (Row, bool, error) {
	if a.idx >= len(a.order) {
		return Row{}, false, nil
	}
	key := a.order[a.idx]
	a.idx++
	fields := append([]dtype.Field{}, a.groups[key]...)
	for _, acc := range a.accums[key] {
		v, err := acc.finish()
		if err != nil {
			return Row{}, false, err
		}
		fields = append(fields, v)
	}
	return Row{Fields: fields}, true, nil
}

func (a *Aggregate) Close() error { return a.child.Close() }

func (a *Aggregate) Rewind() error {
	a.idx = 0
	return nil
}
