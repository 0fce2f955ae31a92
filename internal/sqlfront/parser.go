package sqlfront

import "fmt"

type parser struct {
	lx   *lexer
	cur  token
	peek token
}

func newParser(sql string) *parser {
	p := &parser{lx: newLexer(sql)}
	p.next()
	p.next()
	return p
}

func (p *parser) next() { p.cur, p.peek = p.peek, p.lx.nextToken() }

func (p *parser) errf(format string, a ...any) error {
	return fmt.Errorf("sqlfront: "+format+" (near pos %d)", append(a, p.cur.Pos)...)
}

func (p *parser) expectSymbol(sym string) error {
	if p.cur.Typ != tSymbol || p.cur.Val != sym {
		return p.errf("expected %q, got %q", sym, p.cur.Val)
	}
	p.next()
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	if p.cur.Typ != tKeyword || p.cur.Val != kw {
		return p.errf("expected keyword %s, got %q", kw, p.cur.Val)
	}
	p.next()
	return nil
}

func (p *parser) isKeyword(kw string) bool { return p.cur.Typ == tKeyword && p.cur.Val == kw }
func (p *parser) isSymbol(sym string) bool { return p.cur.Typ == tSymbol && p.cur.Val == sym }

func (p *parser) expectIdent() (string, error) {
	if p.cur.Typ != tIdent {
		return "", p.errf("expected identifier, got %q", p.cur.Val)
	}
	v := p.cur.Val
	p.next()
	return v, nil
}

// Parse parses a single SQL statement.
func Parse(sql string) (Stmt, error) {
	p := newParser(sql)
	var stmt Stmt
	var err error
	switch {
	case p.isKeyword("CREATE"):
		stmt, err = p.parseCreateTable()
	case p.isKeyword("INSERT"):
		stmt, err = p.parseInsert()
	case p.isKeyword("SELECT"):
		stmt, err = p.parseSelect()
	default:
		return nil, p.errf("expected CREATE, INSERT, or SELECT, got %q", p.cur.Val)
	}
	if err != nil {
		return nil, err
	}
	if p.isSymbol(";") {
		p.next()
	}
	if p.cur.Typ != tEOF {
		return nil, p.errf("unexpected trailing input %q", p.cur.Val)
	}
	return stmt, nil
}

func (p *parser) parseCreateTable() (Stmt, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.isSymbol(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return CreateTableStmt{Table: table, Columns: cols}, nil
}

func (p *parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	if p.cur.Typ != tKeyword {
		return ColumnDef{}, p.errf("expected a type keyword, got %q", p.cur.Val)
	}
	typ := p.cur.Val
	p.next()
	col := ColumnDef{Name: name, Type: typ, Len: 1}
	if p.isSymbol("(") {
		p.next()
		n, err := p.expectNumber()
		if err != nil {
			return ColumnDef{}, err
		}
		col.Len = int32(n)
		if p.isSymbol(",") {
			p.next()
			s, err := p.expectNumber()
			if err != nil {
				return ColumnDef{}, err
			}
			col.Scale = int32(s)
		}
		if err := p.expectSymbol(")"); err != nil {
			return ColumnDef{}, err
		}
	}
	if p.isKeyword("PRIMARY") {
		p.next()
		if err := p.expectKeyword("KEY"); err != nil {
			return ColumnDef{}, err
		}
		col.PrimaryKey = true
	}
	return col, nil
}

func (p *parser) expectNumber() (int64, error) {
	if p.cur.Typ != tNumber {
		return 0, p.errf("expected number, got %q", p.cur.Val)
	}
	var n int64
	for _, r := range p.cur.Val {
		if r < '0' || r > '9' {
			return 0, p.errf("expected integer, got %q", p.cur.Val)
		}
		n = n*10 + int64(r-'0')
	}
	p.next()
	return n, nil
}

func (p *parser) parseInsert() (Stmt, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := InsertStmt{Table: table}
	if p.isSymbol("(") {
		p.next()
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, name)
			if p.isSymbol(",") {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.isSymbol(",") {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.isSymbol(",") {
			p.next()
			continue
		}
		break
	}
	return stmt, nil
}

func (p *parser) parseSelect() (Stmt, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	var sel SelectStmt
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, item)
		if p.isSymbol(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, sub, err := p.parseTableOrSubquery()
	if err != nil {
		return nil, err
	}
	sel.Table = table
	sel.FromSub = sub
	sel.Alias = table
	if p.isKeyword("AS") {
		p.next()
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		sel.Alias = alias
	} else if p.cur.Typ == tIdent {
		sel.Alias = p.cur.Val
		p.next()
	}

	for p.isKeyword("JOIN") || p.isKeyword("INNER") || p.isKeyword("LEFT") ||
		p.isKeyword("RIGHT") || p.isKeyword("FULL") || p.isKeyword("CROSS") {
		kind := "INNER"
		switch {
		case p.isKeyword("INNER"):
			p.next()
		case p.isKeyword("LEFT"):
			kind = "LEFT"
			p.next()
		case p.isKeyword("RIGHT"):
			kind = "RIGHT"
			p.next()
		case p.isKeyword("FULL"):
			kind = "FULL"
			p.next()
		case p.isKeyword("CROSS"):
			kind = "CROSS"
			p.next()
		}
		if p.isKeyword("OUTER") {
			p.next()
		}
		if err := p.expectKeyword("JOIN"); err != nil {
			return nil, err
		}
		jt, jsub, err := p.parseTableOrSubquery()
		if err != nil {
			return nil, err
		}
		jc := JoinClause{Table: jt, Sub: jsub, Alias: jt, Kind: kind}
		if p.isKeyword("AS") {
			p.next()
			alias, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			jc.Alias = alias
		} else if p.cur.Typ == tIdent {
			jc.Alias = p.cur.Val
			p.next()
		}
		if kind == "CROSS" {
			sel.Joins = append(sel.Joins, jc)
			continue
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		on, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		jc.On = on
		sel.Joins = append(sel.Joins, jc)
	}

	if p.isKeyword("WHERE") {
		p.next()
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}
	if p.isKeyword("GROUP") {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
			if p.isSymbol(",") {
				p.next()
				continue
			}
			break
		}
	}
	if p.isKeyword("HAVING") {
		p.next()
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = h
	}
	return sel, nil
}

// parseTableOrSubquery parses either a bare table name or a parenthesized
// derived table `(SELECT ...)`, used for both the FROM clause and each
// JOIN source.
func (p *parser) parseTableOrSubquery() (string, *SelectStmt, error) {
	if p.isSymbol("(") {
		p.next()
		stmt, err := p.parseSelect()
		if err != nil {
			return "", nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return "", nil, err
		}
		sel := stmt.(SelectStmt)
		return "", &sel, nil
	}
	name, err := p.expectIdent()
	if err != nil {
		return "", nil, err
	}
	return name, nil, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.isSymbol("*") {
		p.next()
		return SelectItem{Star: true}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.isKeyword("AS") {
		p.next()
		alias, err := p.expectIdent()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
	} else if p.cur.Typ == tIdent {
		item.Alias = p.cur.Val
		p.next()
	}
	return item, nil
}

// Expression grammar, precedence climbing low to high:
// or -> and -> cmp -> addsub -> muldiv -> primary

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinOpExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.next()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = BinOpExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseCmp() (Expr, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ == tSymbol {
		switch p.cur.Val {
		case "=", "!=", "<", "<=", ">", ">=":
			op := p.cur.Val
			p.next()
			right, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			return BinOpExpr{Op: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAddSub() (Expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		op := p.cur.Val
		p.next()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = BinOpExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMulDiv() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "*" || p.cur.Val == "/") {
		op := p.cur.Val
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = BinOpExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.Typ {
	case tNumber:
		v := p.cur.Val
		p.next()
		return NumberLit{Text: v}, nil
	case tString:
		v := p.cur.Val
		p.next()
		return StringLit{Val: v}, nil
	case tKeyword:
		switch p.cur.Val {
		case "TRUE":
			p.next()
			return BoolLit{Val: true}, nil
		case "FALSE":
			p.next()
			return BoolLit{Val: false}, nil
		case "NULL":
			p.next()
			return NullLit{}, nil
		case "COUNT", "SUM", "AVG", "MIN", "MAX":
			return p.parseAggExpr()
		case "CASE":
			return p.parseCase()
		case "EXISTS":
			return p.parseExists()
		}
		return nil, p.errf("unexpected keyword %q in expression", p.cur.Val)
	case tIdent:
		return p.parseColumnRef()
	case tSymbol:
		if p.cur.Val == "(" {
			p.next()
			if p.isKeyword("SELECT") {
				stmt, err := p.parseSelect()
				if err != nil {
					return nil, err
				}
				if err := p.expectSymbol(")"); err != nil {
					return nil, err
				}
				sel := stmt.(SelectStmt)
				return SubqueryExpr{Query: &sel}, nil
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, p.errf("unexpected token %q in expression", p.cur.Val)
}

func (p *parser) parseAggExpr() (Expr, error) {
	fn := p.cur.Val
	p.next()
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	if fn == "COUNT" && p.isSymbol("*") {
		p.next()
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return AggExpr{Func: fn, Star: true}, nil
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return AggExpr{Func: fn, Arg: arg}, nil
}

// parseCase parses `CASE [scrutinee] WHEN cond THEN result ... [ELSE
// else] END`; scrutinee is absent (a searched CASE) whenever WHEN follows
// CASE directly.
func (p *parser) parseCase() (Expr, error) {
	if err := p.expectKeyword("CASE"); err != nil {
		return nil, err
	}
	var scrutinee Expr
	if !p.isKeyword("WHEN") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		scrutinee = e
	}
	var whens []WhenClause
	for p.isKeyword("WHEN") {
		p.next()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		whens = append(whens, WhenClause{Cond: cond, Result: result})
	}
	if len(whens) == 0 {
		return nil, p.errf("CASE requires at least one WHEN clause")
	}
	var elseExpr Expr
	if p.isKeyword("ELSE") {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elseExpr = e
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return CaseExpr{Scrutinee: scrutinee, Whens: whens, Else: elseExpr}, nil
}

// parseExists parses `EXISTS (subquery)`.
func (p *parser) parseExists() (Expr, error) {
	if err := p.expectKeyword("EXISTS"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	stmt, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	sel := stmt.(SelectStmt)
	return ExistsExpr{Query: &sel}, nil
}

func (p *parser) parseColumnRef() (Expr, error) {
	first, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.isSymbol(".") {
		p.next()
		second, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return ColumnRef{Table: first, Name: second}, nil
	}
	return ColumnRef{Name: first}, nil
}
