package translate

import (
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/sqlfront"
)

// EncodeInsertRows evaluates stmt's literal value rows against schema and
// encodes each resulting tuple to its on-disk byte representation, ready
// for HeapFile.AddVals. Only literal expressions are valid in an INSERT
// values list; anything else (a column reference, a subquery) is
// reported as unsupported, matching spec.md §6's "INSERT with value
// lists."
func EncodeInsertRows(schema dtype.Schema, stmt sqlfront.InsertStmt) ([][]byte, error) {
	positions, err := insertColumnPositions(schema, stmt.Columns)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(stmt.Rows))
	for _, row := range stmt.Rows {
		if len(row) != len(positions) {
			return nil, dberr.New(dberr.KindValidation, "INSERT value count does not match column count")
		}
		fields := make([]dtype.Field, len(schema.Attrs))
		present := make([]bool, len(schema.Attrs))
		for i, valExpr := range row {
			pos := positions[i]
			attr := schema.Attrs[pos]
			f, err := literalToField(valExpr, attr)
			if err != nil {
				return nil, err
			}
			fields[pos] = f
			present[pos] = true
		}
		for i, ok := range present {
			if !ok {
				fields[i] = dtype.NullField(schema.Attrs[i].Type)
			}
		}

		total := 0
		for i, f := range fields {
			total += dtype.EncodedLen(f, schema.Attrs[i])
		}
		buf := make([]byte, total)
		off := 0
		for i, f := range fields {
			n, err := dtype.Encode(buf[off:], f, schema.Attrs[i])
			if err != nil {
				return nil, err
			}
			off += n
		}
		out = append(out, buf)
	}
	return out, nil
}

// insertColumnPositions resolves an explicit column list (or, if empty,
// every schema column in declaration order) to schema positions.
func insertColumnPositions(schema dtype.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		positions := make([]int, len(schema.Attrs))
		for i := range schema.Attrs {
			positions[i] = i
		}
		return positions, nil
	}
	positions := make([]int, len(columns))
	for i, name := range columns {
		pos, ok := schema.ColOffset(name)
		if !ok {
			return nil, dberr.New(dberr.KindTranslation, "unknown column in INSERT column list: "+name)
		}
		positions[i] = pos
	}
	return positions, nil
}

// literalToField converts a parsed literal expression to a dtype.Field
// typed and, where necessary (decimal scale, fixed char width), shaped
// for attr.
func literalToField(e sqlfront.Expr, attr dtype.Attribute) (dtype.Field, error) {
	switch v := e.(type) {
	case sqlfront.NullLit:
		return dtype.NullField(attr.Type), nil
	case sqlfront.StringLit:
		switch attr.Type {
		case dtype.VarString, dtype.Char:
			return dtype.Field{Type: attr.Type, Str: v.Val}, nil
		}
		return dtype.Field{}, dberr.New(dberr.KindValidation, "string literal does not match column type for "+attr.Name)
	case sqlfront.BoolLit:
		if attr.Type != dtype.Bool {
			return dtype.Field{}, dberr.New(dberr.KindValidation, "boolean literal does not match column type for "+attr.Name)
		}
		i := int64(0)
		if v.Val {
			i = 1
		}
		return dtype.Field{Type: dtype.Bool, I64: i}, nil
	case sqlfront.NumberLit:
		return numberLiteralToField(v.Text, attr)
	}
	return dtype.Field{}, dberr.New(dberr.KindValidation, "unsupported literal expression in INSERT values")
}

func numberLiteralToField(text string, attr dtype.Attribute) (dtype.Field, error) {
	intPart := int64(0)
	scale := int32(0)
	seenDot := false
	neg := false
	for i, r := range text {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r == '.' {
			seenDot = true
			continue
		}
		if r < '0' || r > '9' {
			return dtype.Field{}, dberr.New(dberr.KindValidation, "malformed numeric literal")
		}
		intPart = intPart*10 + int64(r-'0')
		if seenDot {
			scale++
		}
	}
	if neg {
		intPart = -intPart
	}

	switch attr.Type {
	case dtype.Int64, dtype.Int32, dtype.Int16:
		if seenDot {
			return dtype.Field{}, dberr.New(dberr.KindValidation, "decimal literal assigned to integer column "+attr.Name)
		}
		return dtype.Field{Type: attr.Type, I64: intPart}, nil
	case dtype.Date:
		return dtype.Field{Type: dtype.Date, I64: intPart}, nil
	case dtype.Decimal:
		d := dtype.Decimal{Mantissa: intPart, Scale: scale}
		rescaled, err := dtype.DecimalRescale(d, attr.Scale)
		if err != nil {
			return dtype.Field{}, err
		}
		return dtype.Field{Type: dtype.Decimal, Dec: rescaled}, nil
	}
	return dtype.Field{}, dberr.New(dberr.KindValidation, "numeric literal does not match column type for "+attr.Name)
}
