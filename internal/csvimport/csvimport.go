// Package csvimport loads delimited text data directly into a catalog
// table: detect delimiter/header, infer a column type per field, create
// the table if requested, and stream batched inserts through the heap
// file.
//
// Grounded on teacher internal/importer/csv.go's ImportCSV pipeline
// (delimiter auto-detection by per-line field-count variance, header
// heuristic by numeric-vs-non-numeric column majority, streaming batched
// inserts), narrowed from that package's auto-detected multi-encoding/
// gzip/JSON/XML surface down to the closed dtype.Type set spec.md §3
// defines — there is no TEXT/FLOAT/JSON/TIME type to infer into here,
// only Int64/Decimal/Bool/VarString.
package csvimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
)

// Options configures one import. A zero Options uses auto-detection for
// delimiter and header, and creates the destination table if it does not
// already exist.
type Options struct {
	// Delimiter forces a specific field separator; 0 triggers
	// auto-detection among DelimiterCandidates.
	Delimiter rune
	// DelimiterCandidates are tried during auto-detection. Defaults to
	// comma, semicolon, tab, pipe.
	DelimiterCandidates []rune
	// HeaderMode is "auto" (default), "present", or "absent".
	HeaderMode string
	// BatchSize caps how many rows are buffered before a heap-file
	// flush (default 1000).
	BatchSize int
	// SampleRecords caps how many rows are scanned for type inference
	// (default 500).
	SampleRecords int
	// SkipCreate disables creating tableName with inferred types when it
	// is not already registered; by default a missing table is created.
	SkipCreate bool
}

// Result reports what an import did.
type Result struct {
	RowsInserted int64
	Delimiter    rune
	HadHeader    bool
	ColumnNames  []string
	ColumnTypes  []dtype.Type
}

func applyDefaults(o *Options) {
	if len(o.DelimiterCandidates) == 0 {
		o.DelimiterCandidates = []rune{',', ';', '\t', '|'}
	}
	if o.HeaderMode == "" {
		o.HeaderMode = "auto"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.SampleRecords <= 0 {
		o.SampleRecords = 500
	}
}

// Import reads delimited data from src and inserts it into tableName,
// creating the table with inferred column types if it does not already
// exist in cat.
func Import(pool *bufferpool.Pool, mgr *catalog.Manager, tableName string, src io.Reader, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	o := *opts
	applyDefaults(&o)

	br := bufio.NewReader(src)
	sample, _ := br.Peek(64 * 1024)
	lines := splitLines(string(sample))

	delim := o.Delimiter
	if delim == 0 {
		delim = detectDelimiter(lines, o.DelimiterCandidates)
	}

	records := parseSampleRecords(lines, delim, o.SampleRecords)
	hasHeader := decideHeader(records, o.HeaderMode)

	csvr := csv.NewReader(br)
	csvr.Comma = delim
	csvr.FieldsPerRecord = -1
	csvr.TrimLeadingSpace = true

	first, err := csvr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, dberr.New(dberr.KindValidation, "empty CSV input")
		}
		return nil, dberr.Wrap(dberr.KindValidation, "read first CSV record", err)
	}

	var colNames []string
	var firstDataRow []string
	if hasHeader {
		colNames = sanitizeColumnNames(first)
	} else {
		colNames = generateColumnNames(len(first))
		firstDataRow = first
	}

	all := make([][]string, 0, len(records))
	if firstDataRow != nil {
		all = append(all, firstDataRow)
	}
	for {
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dberr.Wrap(dberr.KindValidation, "read CSV record", err)
		}
		all = append(all, rec)
	}

	colTypes := inferColumnTypes(all, len(colNames), o.SampleRecords)

	table, err := mgr.Catalog.Lookup(tableName)
	if err != nil {
		if o.SkipCreate {
			return nil, err
		}
		table, err = createTable(pool, mgr, tableName, colNames, colTypes)
		if err != nil {
			return nil, err
		}
	}

	inserted, err := insertAll(table, all, colNames, o)
	if err != nil {
		return nil, err
	}

	return &Result{
		RowsInserted: inserted,
		Delimiter:    delim,
		HadHeader:    hasHeader,
		ColumnNames:  colNames,
		ColumnTypes:  colTypes,
	}, nil
}

func createTable(pool *bufferpool.Pool, mgr *catalog.Manager, tableName string, names []string, types []dtype.Type) (*catalog.Table, error) {
	attrs := make([]dtype.Attribute, len(names))
	for i, n := range names {
		a := dtype.Attribute{Name: n, Type: types[i]}
		if types[i] == dtype.VarString {
			a.Len = 255
		}
		if types[i] == dtype.Decimal {
			a.Scale = 2
		}
		attrs[i] = a
	}
	schema := dtype.Schema{Attrs: attrs}
	return mgr.Catalog.CreateTable(pool, tableName, schema, container.NewMemFile())
}

func insertAll(table *catalog.Table, rows [][]string, colNames []string, o Options) (int64, error) {
	var inserted int64
	batch := make([][]byte, 0, o.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := table.Heap.AddVals(batch); err != nil {
			return err
		}
		inserted += int64(len(batch))
		batch = batch[:0]
		return nil
	}
	for _, row := range rows {
		fields := make([]dtype.Field, len(table.Schema.Attrs))
		for i, attr := range table.Schema.Attrs {
			var raw string
			if i < len(row) {
				raw = row[i]
			}
			f, err := parseField(raw, attr)
			if err != nil {
				return inserted, err
			}
			fields[i] = f
		}
		total := 0
		for i, f := range fields {
			total += dtype.EncodedLen(f, table.Schema.Attrs[i])
		}
		buf := make([]byte, total)
		off := 0
		for i, f := range fields {
			n, err := dtype.Encode(buf[off:], f, table.Schema.Attrs[i])
			if err != nil {
				return inserted, err
			}
			off += n
		}
		batch = append(batch, buf)
		if len(batch) >= o.BatchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func parseField(raw string, attr dtype.Attribute) (dtype.Field, error) {
	if isNullLiteral(raw) {
		return dtype.NullField(attr.Type), nil
	}
	switch attr.Type {
	case dtype.Int64, dtype.Int32, dtype.Int16:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return dtype.Field{}, dberr.Wrap(dberr.KindValidation, "parse integer field", err)
		}
		return dtype.Field{Type: attr.Type, I64: v}, nil
	case dtype.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return dtype.Field{}, dberr.Wrap(dberr.KindValidation, "parse boolean field", err)
		}
		i := int64(0)
		if v {
			i = 1
		}
		return dtype.Field{Type: dtype.Bool, I64: i}, nil
	case dtype.Decimal:
		d, err := parseDecimal(raw, attr.Scale)
		if err != nil {
			return dtype.Field{}, err
		}
		return dtype.Field{Type: dtype.Decimal, Dec: d}, nil
	default:
		return dtype.Field{Type: attr.Type, Str: raw}, nil
	}
}

func parseDecimal(raw string, scale int32) (dtype.Decimal, error) {
	neg := strings.HasPrefix(raw, "-")
	if neg {
		raw = raw[1:]
	}
	intPart, fracPart, _ := strings.Cut(raw, ".")
	digits := intPart + fracPart
	if digits == "" {
		return dtype.Decimal{}, dberr.New(dberr.KindValidation, "malformed decimal field")
	}
	m, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return dtype.Decimal{}, dberr.Wrap(dberr.KindValidation, "parse decimal field", err)
	}
	if neg {
		m = -m
	}
	d := dtype.Decimal{Mantissa: m, Scale: int32(len(fracPart))}
	return dtype.DecimalRescale(d, scale)
}

func isNullLiteral(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "na", "n/a", "none":
		return true
	}
	return false
}

func inferColumnTypes(rows [][]string, numCols, sampleRecords int) []dtype.Type {
	n := len(rows)
	if n > sampleRecords {
		n = sampleRecords
	}
	types := make([]dtype.Type, numCols)
	for c := 0; c < numCols; c++ {
		types[c] = inferColumn(rows[:n], c)
	}
	return types
}

func inferColumn(rows [][]string, col int) dtype.Type {
	allInt, allDec, allBool, any := true, true, true, false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if isNullLiteral(v) {
			continue
		}
		any = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allDec = false
		}
		if _, err := strconv.ParseBool(v); err != nil {
			allBool = false
		}
	}
	if !any {
		return dtype.VarString
	}
	if allInt {
		return dtype.Int64
	}
	if allDec {
		return dtype.Decimal
	}
	if allBool {
		return dtype.Bool
	}
	return dtype.VarString
}

func splitLines(s string) []string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func parseSampleRecords(lines []string, delim rune, max int) [][]string {
	var out [][]string
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		out = append(out, strings.Split(ln, string(delim)))
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// detectDelimiter picks the candidate whose per-line field count is most
// consistent across the sample, matching teacher csv.go's
// lowest-standard-deviation heuristic. Candidates that occur in no sampled
// line are skipped; ',' is returned when none occurs.
func detectDelimiter(lines []string, candidates []rune) rune {
	type scored struct {
		delim rune
		stdev float64
		ok    bool
	}
	best := scored{delim: ',', stdev: 1e18}
	for _, cand := range candidates {
		counts := make([]int, 0, len(lines))
		seen := false
		for _, ln := range lines {
			if strings.TrimSpace(ln) == "" {
				continue
			}
			n := strings.Count(ln, string(cand))
			if n > 0 {
				seen = true
			}
			counts = append(counts, n+1)
		}
		if len(counts) == 0 || !seen {
			continue
		}
		sd := stddev(counts)
		if !best.ok || sd < best.stdev {
			best = scored{delim: cand, stdev: sd, ok: true}
		}
	}
	return best.delim
}

func stddev(vals []int) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += float64(v)
	}
	mean := sum / float64(len(vals))
	ss := 0.0
	for _, v := range vals {
		d := float64(v) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}

// decideHeader implements the same numeric-majority heuristic as teacher
// csv.go's decideHeader: a header row is assumed when most columns look
// non-numeric in the first row but numeric in the rows beneath it.
func decideHeader(records [][]string, mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "present":
		return true
	case "absent":
		return false
	}
	if len(records) < 2 {
		return false
	}
	first := records[0]
	body := records[1:]
	headerish := 0
	for c := range first {
		headNum := looksNumeric(first[c])
		dataNum, rows := 0, 0
		for _, r := range body {
			if c >= len(r) {
				continue
			}
			if looksNumeric(r[c]) {
				dataNum++
			}
			rows++
		}
		if rows > 0 && !headNum && float64(dataNum)/float64(rows) > 0.6 {
			headerish++
		}
	}
	return len(first) > 0 && float64(headerish)/float64(len(first)) >= 0.5
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func sanitizeColumnNames(h []string) []string {
	out := make([]string, len(h))
	for i, s := range h {
		s = strings.TrimSpace(s)
		if s == "" {
			s = fmt.Sprintf("col_%d", i+1)
		}
		out[i] = strings.Map(func(r rune) rune {
			switch {
			case r == ' ' || r == '-' || r == '.' || r == '/':
				return '_'
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return out
}

func generateColumnNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("col_%d", i+1)
	}
	return out
}
