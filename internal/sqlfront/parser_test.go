package sqlfront

import "testing"

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE users (id INT64 PRIMARY KEY, name VARCHAR(32))")
	if err != nil {
		t.Fatal(err)
	}
	ct, ok := stmt.(CreateTableStmt)
	if !ok {
		t.Fatalf("expected CreateTableStmt, got %T", stmt)
	}
	if ct.Table != "users" || len(ct.Columns) != 2 {
		t.Fatalf("unexpected statement: %+v", ct)
	}
	if !ct.Columns[0].PrimaryKey {
		t.Fatal("expected id to be primary key")
	}
	if ct.Columns[1].Len != 32 {
		t.Fatalf("expected varchar length 32, got %d", ct.Columns[1].Len)
	}
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (id, name) VALUES (1, 'alice'), (2, 'bob')")
	if err != nil {
		t.Fatal(err)
	}
	ins, ok := stmt.(InsertStmt)
	if !ok {
		t.Fatalf("expected InsertStmt, got %T", stmt)
	}
	if len(ins.Rows) != 2 || len(ins.Rows[0]) != 2 {
		t.Fatalf("unexpected rows: %+v", ins.Rows)
	}
}

func TestParseSelectWithWhereAndGroupBy(t *testing.T) {
	stmt, err := Parse("SELECT name, COUNT(*) FROM users WHERE id > 1 GROUP BY name HAVING COUNT(*) > 0")
	if err != nil {
		t.Fatal(err)
	}
	sel, ok := stmt.(SelectStmt)
	if !ok {
		t.Fatalf("expected SelectStmt, got %T", stmt)
	}
	if len(sel.Items) != 2 || sel.Where == nil || len(sel.GroupBy) != 1 || sel.Having == nil {
		t.Fatalf("unexpected select: %+v", sel)
	}
}

func TestParseSelectJoin(t *testing.T) {
	stmt, err := Parse("SELECT u.name FROM users u JOIN orders o ON u.id = o.user_id")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.(SelectStmt)
	if len(sel.Joins) != 1 || sel.Joins[0].Table != "orders" {
		t.Fatalf("unexpected joins: %+v", sel.Joins)
	}
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.(SelectStmt)
	if len(sel.Items) != 1 || !sel.Items[0].Star {
		t.Fatalf("expected single star item, got %+v", sel.Items)
	}
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	if _, err := Parse("SELECT * FROM users; garbage"); err == nil {
		t.Fatal("expected error for trailing input")
	}
}

func TestOperatorPrecedence(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users WHERE id = 1 + 2 * 3")
	if err != nil {
		t.Fatal(err)
	}
	sel := stmt.(SelectStmt)
	cmp, ok := sel.Where.(BinOpExpr)
	if !ok || cmp.Op != "=" {
		t.Fatalf("expected top-level =, got %+v", sel.Where)
	}
	add, ok := cmp.Right.(BinOpExpr)
	if !ok || add.Op != "+" {
		t.Fatalf("expected addition nested under =, got %+v", cmp.Right)
	}
	mul, ok := add.Right.(BinOpExpr)
	if !ok || mul.Op != "*" {
		t.Fatalf("expected multiplication binding tighter than addition, got %+v", add.Right)
	}
}
