// Package translate turns a parsed sqlfront AST into a logical
// internal/plan tree, resolving every column reference to a globally
// unique plan.ColID via the catalog's per-query environment.
//
// Grounded on original queryexe-fairy/src/query/translate_and_validate.rs
// (WHERE becomes a Select over the FROM source, GROUP BY/HAVING becomes
// Aggregate followed by a Select filtering on the aggregate output) and
// common/src/ids.rs for the per-query monotonic column id generation
// pattern, here delegated to catalog.Catalog.NextColID so ids stay
// globally unique across the whole running server rather than reset
// per statement.
package translate

import (
	"fmt"

	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
	"github.com/crustylabs/crustydb/internal/sqlfront"
)

// sqlTypeToDType maps a parsed column type keyword to the storage dtype.
func sqlTypeToDType(name string) (dtype.Type, bool) {
	switch name {
	case "INT64":
		return dtype.Int64, true
	case "INT32":
		return dtype.Int32, true
	case "INT16":
		return dtype.Int16, true
	case "CHAR":
		return dtype.Char, true
	case "VARCHAR":
		return dtype.VarString, true
	case "DECIMAL":
		return dtype.Decimal, true
	case "DATE":
		return dtype.Date, true
	case "BOOL":
		return dtype.Bool, true
	}
	return 0, false
}

// TranslateCreateTable builds the dtype.Schema for a CREATE TABLE
// statement.
func TranslateCreateTable(stmt sqlfront.CreateTableStmt) (dtype.Schema, error) {
	schema := dtype.Schema{Attrs: make([]dtype.Attribute, len(stmt.Columns))}
	for i, c := range stmt.Columns {
		t, ok := sqlTypeToDType(c.Type)
		if !ok {
			return dtype.Schema{}, dberr.New(dberr.KindTranslation, "unknown column type: "+c.Type)
		}
		constraint := dtype.ConstraintNone
		if c.PrimaryKey {
			constraint = dtype.ConstraintPrimaryKey
		}
		schema.Attrs[i] = dtype.Attribute{
			Name:       c.Name,
			Type:       t,
			Len:        int(c.Len),
			Precision:  int(c.Len),
			Scale:      c.Scale,
			Constraint: constraint,
		}
	}
	return schema, nil
}

// env maps a resolvable name to a column id within one translation.
type env struct {
	// byQualified is keyed by "table.col"; byBare is keyed by "col" and
	// only populated when the name is unambiguous across all sources.
	byQualified map[string]plan.ColID
	byBare      map[string]plan.ColID
	ambiguous   map[string]bool
}

func newEnv() *env {
	return &env{
		byQualified: map[string]plan.ColID{},
		byBare:      map[string]plan.ColID{},
		ambiguous:   map[string]bool{},
	}
}

func (e *env) add(table, col string, id plan.ColID) {
	e.byQualified[table+"."+col] = id
	if e.ambiguous[col] {
		return
	}
	if _, exists := e.byBare[col]; exists {
		delete(e.byBare, col)
		e.ambiguous[col] = true
		return
	}
	e.byBare[col] = id
}

func (e *env) resolve(ref sqlfront.ColumnRef) (plan.ColID, error) {
	if ref.Table != "" {
		if id, ok := e.byQualified[ref.Table+"."+ref.Name]; ok {
			return id, nil
		}
		return 0, dberr.New(dberr.KindTranslation, fmt.Sprintf("unknown column %s.%s", ref.Table, ref.Name))
	}
	if e.ambiguous[ref.Name] {
		return 0, dberr.New(dberr.KindTranslation, "ambiguous column reference: "+ref.Name)
	}
	if id, ok := e.byBare[ref.Name]; ok {
		return id, nil
	}
	return 0, dberr.New(dberr.KindTranslation, "unknown column: "+ref.Name)
}

// Result carries the logical plan together with the output schema names
// a caller needs to label result rows.
type Result struct {
	Plan        *plan.Node
	OutputNames []string
	OutputCols  []plan.ColID
	OutputTypes []dtype.Attribute
}

// sourceInfo records the ordered output columns a FROM/JOIN source
// contributes to the environment, so a later bare `*` can be expanded in
// source order whether the source is a base table or a derived table.
type sourceInfo struct {
	Names []string
	Cols  []plan.ColID
}

// TranslateSelect builds a logical plan for stmt, resolving every table
// and column reference against cat.
func TranslateSelect(cat *catalog.Catalog, stmt sqlfront.SelectStmt) (*Result, error) {
	e := newEnv()

	base, baseInfo, err := resolveSource(cat, e, stmt.Table, stmt.FromSub, stmt.Alias)
	if err != nil {
		return nil, err
	}
	cur := base
	sources := []sourceInfo{baseInfo}

	for _, j := range stmt.Joins {
		rhs, rhsInfo, err := resolveSource(cat, e, j.Table, j.Sub, j.Alias)
		if err != nil {
			return nil, err
		}
		sources = append(sources, rhsInfo)
		if j.Kind == "CROSS" {
			cur = &plan.Node{Kind: plan.KindCrossJoin, Left: cur, Right: rhs}
			continue
		}
		onExpr, err := translateExpr(cat, e, j.On)
		if err != nil {
			return nil, err
		}
		cur = &plan.Node{
			Kind:     plan.KindJoin,
			Left:     cur,
			Right:    rhs,
			Preds:    []plan.Expr{onExpr},
			JoinType: joinTypeOf(j.Kind),
		}
	}

	if stmt.Where != nil {
		w, err := translateExpr(cat, e, stmt.Where)
		if err != nil {
			return nil, err
		}
		cur = &plan.Node{Kind: plan.KindSelect, Src: cur, Preds: []plan.Expr{w}}
	}

	hasAgg := false
	for _, item := range stmt.Items {
		if _, ok := item.Expr.(sqlfront.AggExpr); ok {
			hasAgg = true
		}
	}

	if hasAgg || len(stmt.GroupBy) > 0 {
		return translateAggregate(cat, e, stmt, cur)
	}

	return translateProject(cat, e, stmt, cur, sources)
}

// joinTypeOf maps a parsed join keyword to the logical JoinType, defaulting
// unrecognized/empty kinds to an inner join.
func joinTypeOf(kind string) plan.JoinType {
	switch kind {
	case "LEFT":
		return plan.LeftJoin
	case "RIGHT":
		return plan.RightJoin
	case "FULL":
		return plan.FullJoin
	default:
		return plan.InnerJoin
	}
}

func scanTable(cat *catalog.Catalog, e *env, table, alias string) (*plan.Node, error) {
	t, err := cat.Lookup(table)
	if err != nil {
		return nil, err
	}
	if alias == "" {
		alias = table
	}
	for i, a := range t.Schema.Attrs {
		e.add(alias, a.Name, t.ColIDs[i])
	}
	return &plan.Node{Kind: plan.KindScan, CID: uint16(t.CID), Table: table, Cols: append([]plan.ColID{}, t.ColIDs...)}, nil
}

// resolveSource binds one FROM/JOIN source into e, returning the plan
// subtree that produces it and the ordered (name, column) list it
// contributes so a later `*` can be expanded positionally. sub, when
// non-nil, is a derived table: it is translated recursively and its own
// output columns (already globally unique ids, per catalog.Catalog's
// single monotonic counter) are registered under alias rather than
// re-scanned from the catalog.
func resolveSource(cat *catalog.Catalog, e *env, table string, sub *sqlfront.SelectStmt, alias string) (*plan.Node, sourceInfo, error) {
	if sub != nil {
		if alias == "" {
			return nil, sourceInfo{}, dberr.New(dberr.KindTranslation, "derived table requires an alias")
		}
		inner, err := TranslateSelect(cat, *sub)
		if err != nil {
			return nil, sourceInfo{}, err
		}
		for i, name := range inner.OutputNames {
			e.add(alias, name, inner.OutputCols[i])
		}
		return inner.Plan, sourceInfo{Names: inner.OutputNames, Cols: inner.OutputCols}, nil
	}
	node, err := scanTable(cat, e, table, alias)
	if err != nil {
		return nil, sourceInfo{}, err
	}
	t, err := cat.Lookup(table)
	if err != nil {
		return nil, sourceInfo{}, err
	}
	names := make([]string, len(t.Schema.Attrs))
	for i, a := range t.Schema.Attrs {
		names[i] = a.Name
	}
	return node, sourceInfo{Names: names, Cols: append([]plan.ColID{}, t.ColIDs...)}, nil
}

func translateExpr(cat *catalog.Catalog, e *env, ex sqlfront.Expr) (plan.Expr, error) {
	switch v := ex.(type) {
	case sqlfront.ColumnRef:
		id, err := e.resolve(v)
		if err != nil {
			return nil, err
		}
		return plan.ColRef{Col: id}, nil
	case sqlfront.NumberLit:
		return plan.Lit{Val: parseNumberLit(v.Text)}, nil
	case sqlfront.StringLit:
		return plan.Lit{Val: dtype.Field{Type: dtype.VarString, Str: v.Val}}, nil
	case sqlfront.BoolLit:
		b := int64(0)
		if v.Val {
			b = 1
		}
		return plan.Lit{Val: dtype.Field{Type: dtype.Bool, I64: b}}, nil
	case sqlfront.NullLit:
		return plan.Lit{Val: dtype.NullField(dtype.Int64)}, nil
	case sqlfront.BinOpExpr:
		left, err := translateExpr(cat, e, v.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(cat, e, v.Right)
		if err != nil {
			return nil, err
		}
		op, ok := binOpMap[v.Op]
		if !ok {
			return nil, dberr.New(dberr.KindTranslation, "unsupported operator: "+v.Op)
		}
		return plan.BinExpr{Op: op, Left: left, Right: right}, nil
	case sqlfront.AggExpr:
		return nil, dberr.New(dberr.KindTranslation, "aggregate expression used outside SELECT/HAVING list")
	case sqlfront.CaseExpr:
		return translateCase(cat, e, v)
	case sqlfront.ExistsExpr:
		return translateExists(cat, v)
	case sqlfront.SubqueryExpr:
		return translateScalarSubquery(cat, v)
	}
	return nil, dberr.New(dberr.KindTranslation, "unsupported expression")
}

// translateCase translates a CASE expression arm by arm into plan.CaseExpr,
// per spec.md §3's Case{scrutinee, whens, else} variant.
func translateCase(cat *catalog.Catalog, e *env, v sqlfront.CaseExpr) (plan.Expr, error) {
	var scrutinee plan.Expr
	if v.Scrutinee != nil {
		var err error
		scrutinee, err = translateExpr(cat, e, v.Scrutinee)
		if err != nil {
			return nil, err
		}
	}
	whens := make([]plan.WhenClause, len(v.Whens))
	for i, w := range v.Whens {
		cond, err := translateExpr(cat, e, w.Cond)
		if err != nil {
			return nil, err
		}
		result, err := translateExpr(cat, e, w.Result)
		if err != nil {
			return nil, err
		}
		whens[i] = plan.WhenClause{Cond: cond, Result: result}
	}
	var elseExpr plan.Expr
	if v.Else != nil {
		var err error
		elseExpr, err = translateExpr(cat, e, v.Else)
		if err != nil {
			return nil, err
		}
	}
	return plan.CaseExpr{Scrutinee: scrutinee, Whens: whens, Else: elseExpr}, nil
}

// translateExists implements spec.md §4.8's rule that EXISTS becomes an
// aggregated count(*) > 0 projection wrapped as a subquery: the inner
// query is translated in full, wrapped in an Aggregate computing
// count(*), and the resulting single column is compared against zero.
func translateExists(cat *catalog.Catalog, v sqlfront.ExistsExpr) (plan.Expr, error) {
	inner, err := TranslateSelect(cat, *v.Query)
	if err != nil {
		return nil, err
	}
	countCol := cat.NextColID()
	aggNode := &plan.Node{
		Kind:       plan.KindAggregate,
		Src:        inner.Plan,
		Aggregates: []plan.AggSpec{{Op: plan.AggCount, Dest: countCol}},
	}
	subPlan := &plan.Node{Kind: plan.KindProject, Src: aggNode, Cols: []plan.ColID{countCol}}
	return plan.BinExpr{
		Op:    plan.OpGt,
		Left:  plan.SubqueryExpr{Plan: subPlan},
		Right: plan.Lit{Val: dtype.Field{Type: dtype.Int64, I64: 0}},
	}, nil
}

// translateScalarSubquery implements spec.md §4.8's rule that a scalar
// subquery becomes a Subquery expression: the inner query must project
// exactly one column, whose value stands in for the expression.
func translateScalarSubquery(cat *catalog.Catalog, v sqlfront.SubqueryExpr) (plan.Expr, error) {
	inner, err := TranslateSelect(cat, *v.Query)
	if err != nil {
		return nil, err
	}
	if len(inner.OutputCols) != 1 {
		return nil, dberr.New(dberr.KindTranslation, "scalar subquery must produce exactly one column")
	}
	return plan.SubqueryExpr{Plan: inner.Plan}, nil
}

var binOpMap = map[string]plan.ExprOp{
	"+": plan.OpAdd, "-": plan.OpSub, "*": plan.OpMul, "/": plan.OpDiv,
	"=": plan.OpEq, "!=": plan.OpNeq, "<": plan.OpLt, "<=": plan.OpLe,
	">": plan.OpGt, ">=": plan.OpGe, "AND": plan.OpAnd, "OR": plan.OpOr,
}

// parseNumberLit decodes a lexed numeric literal as either an Int64 or a
// Decimal field depending on whether it carries a fractional part.
func parseNumberLit(text string) dtype.Field {
	intPart := int64(0)
	scale := int32(0)
	seenDot := false
	for _, r := range text {
		if r == '.' {
			seenDot = true
			continue
		}
		intPart = intPart*10 + int64(r-'0')
		if seenDot {
			scale++
		}
	}
	if !seenDot {
		return dtype.Field{Type: dtype.Int64, I64: intPart}
	}
	return dtype.Field{Type: dtype.Decimal, Dec: dtype.Decimal{Mantissa: intPart, Scale: scale}}
}

func translateAggregate(cat *catalog.Catalog, e *env, stmt sqlfront.SelectStmt, src *plan.Node) (*Result, error) {
	var groupBy []plan.ColID
	for _, g := range stmt.GroupBy {
		ref, ok := g.(sqlfront.ColumnRef)
		if !ok {
			return nil, dberr.New(dberr.KindTranslation, "GROUP BY expressions must be simple column references")
		}
		id, err := e.resolve(ref)
		if err != nil {
			return nil, err
		}
		groupBy = append(groupBy, id)
	}

	var aggs []plan.AggSpec
	var names []string
	var cols []plan.ColID

	for _, item := range stmt.Items {
		agg, ok := item.Expr.(sqlfront.AggExpr)
		if !ok {
			ref, ok := item.Expr.(sqlfront.ColumnRef)
			if !ok {
				return nil, dberr.New(dberr.KindTranslation, "non-aggregated expression in GROUP BY query must be a grouping column")
			}
			id, err := e.resolve(ref)
			if err != nil {
				return nil, err
			}
			cols = append(cols, id)
			names = append(names, labelFor(item, ref.Name))
			continue
		}
		op, srcCol, err := translateAggFunc(e, agg)
		if err != nil {
			return nil, err
		}
		dest := cat.NextColID()
		aggs = append(aggs, plan.AggSpec{Op: op, Src: srcCol, Dest: dest})
		cols = append(cols, dest)
		names = append(names, labelFor(item, agg.Func))
	}

	aggNode := &plan.Node{Kind: plan.KindAggregate, Src: src, GroupBy: groupBy, Aggregates: aggs}

	result := aggNode
	if stmt.Having != nil {
		havingEnv := newEnv()
		for i, gcol := range groupBy {
			havingEnv.byBare[groupByLabel(stmt.GroupBy[i])] = gcol
		}
		h, err := translateHavingExpr(cat, havingEnv, aggs, stmt.Having)
		if err != nil {
			return nil, err
		}
		result = &plan.Node{Kind: plan.KindSelect, Src: aggNode, Preds: []plan.Expr{h}}
	}

	return &Result{Plan: result, OutputNames: names, OutputCols: cols}, nil
}

func groupByLabel(e sqlfront.Expr) string {
	if ref, ok := e.(sqlfront.ColumnRef); ok {
		return ref.Name
	}
	return ""
}

func translateAggFunc(e *env, agg sqlfront.AggExpr) (plan.AggOp, plan.ColID, error) {
	var op plan.AggOp
	switch agg.Func {
	case "COUNT":
		op = plan.AggCount
	case "SUM":
		op = plan.AggSum
	case "AVG":
		op = plan.AggAvg
	case "MIN":
		op = plan.AggMin
	case "MAX":
		op = plan.AggMax
	default:
		return 0, 0, dberr.New(dberr.KindTranslation, "unsupported aggregate function: "+agg.Func)
	}
	if agg.Star {
		return op, 0, nil
	}
	ref, ok := agg.Arg.(sqlfront.ColumnRef)
	if !ok {
		return 0, 0, dberr.New(dberr.KindTranslation, "aggregate argument must be a simple column reference")
	}
	id, err := e.resolve(ref)
	if err != nil {
		return 0, 0, err
	}
	return op, id, nil
}

// translateHavingExpr translates a HAVING predicate, resolving any bare
// aggregate-function call against the already-computed aggregate output
// columns instead of re-deriving a fresh AggSpec.
func translateHavingExpr(cat *catalog.Catalog, e *env, aggs []plan.AggSpec, ex sqlfront.Expr) (plan.Expr, error) {
	if agg, ok := ex.(sqlfront.AggExpr); ok {
		opName := agg.Func
		var srcCol plan.ColID
		if !agg.Star {
			ref, ok := agg.Arg.(sqlfront.ColumnRef)
			if !ok {
				return nil, dberr.New(dberr.KindTranslation, "aggregate argument must be a simple column reference")
			}
			var err error
			srcCol, err = e.resolve(ref)
			if err != nil {
				return nil, err
			}
		}
		op, ok := aggOpByName(opName)
		if !ok {
			return nil, dberr.New(dberr.KindTranslation, "unsupported aggregate function: "+opName)
		}
		for _, a := range aggs {
			if a.Op == op && (agg.Star || a.Src == srcCol) {
				return plan.ColRef{Col: a.Dest}, nil
			}
		}
		return nil, dberr.New(dberr.KindTranslation, "HAVING references an aggregate not present in the SELECT list")
	}
	if v, ok := ex.(sqlfront.BinOpExpr); ok {
		left, err := translateHavingExpr(cat, e, aggs, v.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateHavingExpr(cat, e, aggs, v.Right)
		if err != nil {
			return nil, err
		}
		op, ok := binOpMap[v.Op]
		if !ok {
			return nil, dberr.New(dberr.KindTranslation, "unsupported operator: "+v.Op)
		}
		return plan.BinExpr{Op: op, Left: left, Right: right}, nil
	}
	return translateExpr(cat, e, ex)
}

func aggOpByName(name string) (plan.AggOp, bool) {
	switch name {
	case "COUNT":
		return plan.AggCount, true
	case "SUM":
		return plan.AggSum, true
	case "AVG":
		return plan.AggAvg, true
	case "MIN":
		return plan.AggMin, true
	case "MAX":
		return plan.AggMax, true
	}
	return 0, false
}

// translateProject builds the final Project over src, routing any
// computed (non-ColRef) item — e.g. a CASE expression — through a Map
// node that evaluates it into a fresh column first, since Project can
// only select existing columns.
func translateProject(cat *catalog.Catalog, e *env, stmt sqlfront.SelectStmt, src *plan.Node, sources []sourceInfo) (*Result, error) {
	var cols []plan.ColID
	var names []string
	var types []dtype.Attribute
	var mapExprs []plan.MapExpr

	for _, item := range stmt.Items {
		if item.Star {
			starCols, starNames := expandStar(sources)
			cols = append(cols, starCols...)
			names = append(names, starNames...)
			continue
		}
		pe, err := translateExpr(cat, e, item.Expr)
		if err != nil {
			return nil, err
		}
		ref, isRef := pe.(plan.ColRef)
		var col plan.ColID
		if isRef {
			col = ref.Col
		} else {
			col = cat.NextColID()
			mapExprs = append(mapExprs, plan.MapExpr{Dest: col, Expr: pe})
		}
		cols = append(cols, col)
		label := item.Alias
		if label == "" {
			if cr, ok := item.Expr.(sqlfront.ColumnRef); ok {
				label = cr.Name
			}
		}
		names = append(names, label)
	}

	if len(mapExprs) > 0 {
		src = &plan.Node{Kind: plan.KindMap, Input: src, NewCols: mapExprs}
	}

	node := &plan.Node{Kind: plan.KindProject, Src: src, Cols: cols}
	return &Result{Plan: node, OutputNames: names, OutputCols: cols, OutputTypes: types}, nil
}

func labelFor(item sqlfront.SelectItem, fallback string) string {
	if item.Alias != "" {
		return item.Alias
	}
	return fallback
}

// expandStar flattens the ordered per-source column lists collected while
// resolving the FROM/JOIN clause, so `*` expands in source order whether
// a source is a base table or a derived table.
func expandStar(sources []sourceInfo) ([]plan.ColID, []string) {
	var cols []plan.ColID
	var names []string
	for _, s := range sources {
		cols = append(cols, s.Cols...)
		names = append(names, s.Names...)
	}
	return cols, names
}
