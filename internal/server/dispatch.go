package server

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/csvimport"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/heapfile"
	"github.com/crustylabs/crustydb/internal/iterator"
	"github.com/crustylabs/crustydb/internal/plan"
	"github.com/crustylabs/crustydb/internal/planner"
	"github.com/crustylabs/crustydb/internal/sqlfront"
	"github.com/crustylabs/crustydb/internal/translate"
	"github.com/crustylabs/crustydb/internal/wire"
)

// defaultPartialRows bounds "\runPartial" when the caller does not supply
// its own limit, since this engine keeps no per-row change history to
// diff against (see DESIGN.md's open-question decision narrowing
// runPartial from a temporal diff to a bounded row prefix).
const defaultPartialRows = 100

// Dispatch executes one parsed command against the server's shared
// catalog manager and returns the response to frame back to the client.
func (s *Server) Dispatch(ctx context.Context, session *Session, cmd wire.Command) wire.Response {
	switch cmd.Command {
	case "h":
		return wire.SystemMsg(GenHelp())
	case "r", "c":
		return wire.SystemMsg("single implicit database: multi-tenancy is out of scope")
	case "reset":
		session.Quiet = false
		return wire.Ok()
	case "shutdown":
		return wire.Shutdown(true)
	case "close":
		return wire.Shutdown(false)
	case "quiet":
		session.Quiet = true
		return wire.Ok()
	case "l":
		return wire.SystemMsg("databases: default")
	case "t":
		return wire.Ok()
	case "sql":
		if len(cmd.Args) != 1 {
			return wire.SystemErr("\\sql requires exactly one argument")
		}
		return s.execSQL(cmd.Args[0])
	case "dt":
		return s.showTables()
	case "dq":
		return s.showQueries()
	case "register":
		if len(cmd.Args) != 2 {
			return wire.SystemErr("\\register requires a name and a query")
		}
		s.registerQuery(cmd.Args[0], cmd.Args[1])
		return wire.Ok()
	case "runFull":
		if len(cmd.Args) != 1 {
			return wire.SystemErr("\\runFull requires a registered query name")
		}
		return s.runRegistered(cmd.Args[0], -1)
	case "runPartial":
		if len(cmd.Args) != 1 {
			return wire.SystemErr("\\runPartial requires a registered query name")
		}
		name, limit := splitNameAndLimit(cmd.Args[0], defaultPartialRows)
		return s.runRegistered(name, limit)
	case "convert":
		if len(cmd.Args) != 2 {
			return wire.SystemErr("\\convert requires a path and a query")
		}
		return s.convertQuery(cmd.Args[0], cmd.Args[1])
	case "generate":
		if len(cmd.Args) != 2 {
			return wire.SystemErr("\\generate requires a source table and a target path")
		}
		return s.generateCSV(cmd.Args[0], cmd.Args[1])
	case "i":
		if len(cmd.Args) != 2 {
			return wire.SystemErr("\\i requires a path and a table name")
		}
		return s.importCSV(cmd.Args[0], cmd.Args[1])
	case "commit":
		t := s.Mgr.Txn.Begin()
		s.Mgr.Txn.Commit(t)
		return wire.Ok()
	}
	return wire.SystemErr("unknown command: " + cmd.Command)
}

// splitNameAndLimit splits "name" or "name N" (the remainder folded onto
// the single runPartial argument by ParseLine) into a query name and row
// limit.
func splitNameAndLimit(arg string, fallback int) (string, int) {
	parts := strings.SplitN(arg, " ", 2)
	if len(parts) == 1 {
		return parts[0], fallback
	}
	if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && n >= 0 {
		return parts[0], n
	}
	return parts[0], fallback
}

func (s *Server) registerQuery(name, query string) {
	s.queriesMu.Lock()
	defer s.queriesMu.Unlock()
	s.queries[name] = query
}

func (s *Server) showQueries() wire.Response {
	s.queriesMu.RLock()
	defer s.queriesMu.RUnlock()
	names := make([]string, 0, len(s.queries))
	for n := range s.queries {
		names = append(names, n)
	}
	return wire.QueryResultResp(wire.QueryResult{Columns: []string{"name"}, Rows: rowsOfOne(names)})
}

func (s *Server) runRegistered(name string, limit int) wire.Response {
	s.queriesMu.RLock()
	query, ok := s.queries[name]
	s.queriesMu.RUnlock()
	if !ok {
		return wire.QueryExecutionError("no registered query named " + name)
	}
	resp := s.execSQL(query)
	if limit < 0 || resp.Kind != wire.KindQueryResult || resp.Result == nil {
		return resp
	}
	if len(resp.Result.Rows) > limit {
		truncated := *resp.Result
		truncated.Rows = truncated.Rows[:limit]
		return wire.QueryResultResp(truncated)
	}
	return resp
}

func (s *Server) showTables() wire.Response {
	names := s.Mgr.Catalog.Tables()
	return wire.QueryResultResp(wire.QueryResult{Columns: []string{"table"}, Rows: rowsOfOne(names)})
}

func rowsOfOne(vals []string) [][]string {
	rows := make([][]string, len(vals))
	for i, v := range vals {
		rows[i] = []string{v}
	}
	return rows
}

// execSQL parses and runs one SQL statement against the catalog,
// dispatching on statement kind.
func (s *Server) execSQL(text string) wire.Response {
	stmt, err := sqlfront.Parse(text)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	switch st := stmt.(type) {
	case sqlfront.CreateTableStmt:
		return s.execCreateTable(st)
	case sqlfront.InsertStmt:
		return s.execInsert(st)
	case sqlfront.SelectStmt:
		return s.execSelect(st)
	}
	return wire.QueryExecutionError("unsupported statement")
}

func (s *Server) execCreateTable(st sqlfront.CreateTableStmt) wire.Response {
	schema, err := translate.TranslateCreateTable(st)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	backing, err := s.openBacking(st.Table)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	if _, err := s.Mgr.Catalog.CreateTable(s.Pool, st.Table, schema, backing); err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	return wire.QueryResultResp(wire.QueryResult{Message: "table " + st.Table + " created"})
}

// openBacking opens a disk-backed container file under the configured
// data directory, or an in-memory arena when no data directory is
// configured (":memory:" or empty).
func (s *Server) openBacking(tableName string) (container.File, error) {
	if s.Cfg.DataDir == "" || s.Cfg.DataDir == ":memory:" {
		return container.NewMemFile(), nil
	}
	if err := os.MkdirAll(s.Cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return container.OpenDiskFile(s.Cfg.DataDir + "/" + tableName + ".tbl")
}

func (s *Server) execInsert(st sqlfront.InsertStmt) wire.Response {
	table, err := s.Mgr.Catalog.Lookup(st.Table)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	encoded, err := translate.EncodeInsertRows(table.Schema, st)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	ids, err := table.Heap.AddVals(encoded)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	for _, buf := range encoded {
		tuple, err := dtype.DecodeTuple(table.Schema, buf)
		if err == nil {
			s.Mgr.Stats.AddSample(table.CID, tuple)
		}
	}
	return wire.QueryResultResp(wire.QueryResult{RowsAffected: int64(len(ids))})
}

func (s *Server) execSelect(st sqlfront.SelectStmt) wire.Response {
	result, err := translate.TranslateSelect(s.Mgr.Catalog, st)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}

	phys := s.physicalPlanFor(result.Plan)

	it, err := planner.Build(s.Mgr.Catalog, phys)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	if err := it.Configure(false); err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	if err := it.Open(); err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	defer it.Close()

	var rows [][]string
	for {
		row, ok, err := it.Next()
		if err != nil {
			return wire.QueryExecutionError(err.Error())
		}
		if !ok {
			break
		}
		rows = append(rows, formatRow(row))
	}

	return wire.QueryResultResp(wire.QueryResult{Columns: result.OutputNames, Rows: rows})
}

// physicalPlanFor converts a logical plan to physical, reusing a cached
// physical tree when an equivalent plan (per canonical hashing) has
// already been planned, per spec.md §4.9's plan cache. When the whole
// plan is new, it still checks every previously cached plan for a
// matching subtree (spec.md §4.7's subplan overlap matching) and splices
// in the existing fragment in place of a freshly planned one that hashes
// the same.
func (s *Server) physicalPlanFor(logical *plan.Node) *plan.Node {
	phys := plan.ToPhysical(logical)
	hash := plan.HashPlan(phys, nil)
	if cached, ok := s.Mgr.PlanCache.Get(hash); ok {
		if cachedPlan, ok := cached.(*plan.Node); ok {
			return cachedPlan
		}
	}
	s.reuseSubplans(phys)
	s.Mgr.PlanCache.Put(hash, phys)
	return phys
}

// reuseSubplans walks phys looking for any child subtree whose hash
// matches a subtree already present in a previously cached plan, splicing
// the cached fragment in over the freshly planned one so repeated
// join/scan shapes embedded in different queries share structure instead
// of being replanned from scratch each time.
func (s *Server) reuseSubplans(phys *plan.Node) {
	for _, cached := range s.Mgr.PlanCache.Values() {
		cachedPlan, ok := cached.(*plan.Node)
		if !ok || cachedPlan == nil {
			continue
		}
		spliceMatchingSubplans(phys, cachedPlan)
	}
}

// spliceMatchingSubplans replaces any of n's child subtrees with an
// equivalent subtree found in cachedRoot (per plan.FindSubplanMatch),
// recursing into a child only when no match was found for it directly.
func spliceMatchingSubplans(n, cachedRoot *plan.Node) {
	if n == nil {
		return
	}
	trySplice := func(child **plan.Node) {
		c := *child
		if c == nil || !c.HashSet {
			return
		}
		if match := plan.FindSubplanMatch(cachedRoot, c.Hash); match != nil && match != c {
			*child = match
			return
		}
		spliceMatchingSubplans(c, cachedRoot)
	}
	trySplice(&n.Left)
	trySplice(&n.Right)
	trySplice(&n.Src)
	trySplice(&n.Input)
}

func formatRow(row iterator.Row) []string {
	out := make([]string, len(row.Fields))
	for i, f := range row.Fields {
		out[i] = formatField(f)
	}
	return out
}

func formatField(f dtype.Field) string {
	if f.IsNull {
		return "NULL"
	}
	switch f.Type {
	case dtype.Int64, dtype.Int32, dtype.Int16, dtype.Date:
		return strconv.FormatInt(f.I64, 10)
	case dtype.Bool:
		return strconv.FormatBool(f.I64 != 0)
	case dtype.Decimal:
		return formatDecimal(f.Dec)
	default:
		return f.Str
	}
}

func formatDecimal(d dtype.Decimal) string {
	neg := d.Mantissa < 0
	m := d.Mantissa
	if neg {
		m = -m
	}
	digits := strconv.FormatInt(m, 10)
	if d.Scale <= 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	for int32(len(digits)) <= d.Scale {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-int(d.Scale)]
	fracPart := digits[len(digits)-int(d.Scale):]
	s := intPart + "." + fracPart
	if neg {
		s = "-" + s
	}
	return s
}

// convertQuery translates query into a physical plan and writes its CBOR
// encoding to path, the same serialization codec used for the wire
// protocol rather than introducing a second one just for this debug
// command.
func (s *Server) convertQuery(path, query string) wire.Response {
	stmt, err := sqlfront.Parse(query)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	sel, ok := stmt.(sqlfront.SelectStmt)
	if !ok {
		return wire.QueryExecutionError("\\convert only supports SELECT queries")
	}
	result, err := translate.TranslateSelect(s.Mgr.Catalog, sel)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	phys := plan.ToPhysical(result.Plan)
	encoded, err := cbor.Marshal(describePlan(phys))
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	return wire.QueryResultResp(wire.QueryResult{Message: "plan written to " + path})
}

// planDescription is a serialization-friendly mirror of plan.Node, since
// plan.Node's Expr-interface fields are not directly CBOR-marshalable.
type planDescription struct {
	Kind     string            `cbor:"kind"`
	Table    string            `cbor:"table,omitempty"`
	Children []planDescription `cbor:"children,omitempty"`
}

func describePlan(n *plan.Node) planDescription {
	if n == nil {
		return planDescription{}
	}
	d := planDescription{Kind: fmt.Sprintf("%d", n.Kind), Table: n.Table}
	for _, child := range []*plan.Node{n.Src, n.Input, n.Left, n.Right} {
		if child != nil {
			d.Children = append(d.Children, describePlan(child))
		}
	}
	return d
}

// generateCSV exports every row of tableName to path as CSV with a
// header row, the inverse of \i.
func (s *Server) generateCSV(tableName, path string) wire.Response {
	table, err := s.Mgr.Catalog.Lookup(tableName)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	f, err := os.Create(path)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := make([]string, len(table.Schema.Attrs))
	for i, a := range table.Schema.Attrs {
		header[i] = a.Name
	}
	if err := w.Write(header); err != nil {
		return wire.QueryExecutionError(err.Error())
	}

	it, err := table.Heap.Iter()
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	var rowCount int64
	var iterErr error
	it(func(_ heapfile.ValueID, data []byte) bool {
		tuple, err := dtype.DecodeTuple(table.Schema, data)
		if err != nil {
			iterErr = err
			return false
		}
		record := make([]string, len(tuple.Fields))
		for i, f := range tuple.Fields {
			record[i] = formatField(f)
		}
		if err := w.Write(record); err != nil {
			iterErr = err
			return false
		}
		rowCount++
		return true
	})
	if iterErr != nil {
		return wire.QueryExecutionError(iterErr.Error())
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	return wire.QueryResultResp(wire.QueryResult{Message: fmt.Sprintf("exported %d rows to %s", rowCount, path), RowsAffected: rowCount})
}

func (s *Server) importCSV(path, tableName string) wire.Response {
	f, err := os.Open(path)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	defer f.Close()
	res, err := csvimport.Import(s.Pool, s.Mgr, tableName, f, nil)
	if err != nil {
		return wire.QueryExecutionError(err.Error())
	}
	return wire.QueryResultResp(wire.QueryResult{
		Message:      fmt.Sprintf("imported %d rows into %s", res.RowsInserted, tableName),
		RowsAffected: res.RowsInserted,
	})
}
