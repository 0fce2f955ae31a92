package translate

import (
	"testing"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/plan"
	"github.com/crustylabs/crustydb/internal/sqlfront"
)

func setup(t *testing.T) (*catalog.Catalog, *bufferpool.Pool) {
	t.Helper()
	cc := container.NewCatalog()
	pool := bufferpool.New(cc, 64)
	cat := catalog.New()
	schema := dtype.Schema{Attrs: []dtype.Attribute{
		{Name: "id", Type: dtype.Int64},
		{Name: "name", Type: dtype.VarString},
	}}
	if _, err := cat.CreateTable(pool, "users", schema, container.NewMemFile()); err != nil {
		t.Fatal(err)
	}
	orderSchema := dtype.Schema{Attrs: []dtype.Attribute{
		{Name: "id", Type: dtype.Int64},
		{Name: "user_id", Type: dtype.Int64},
	}}
	if _, err := cat.CreateTable(pool, "orders", orderSchema, container.NewMemFile()); err != nil {
		t.Fatal(err)
	}
	return cat, pool
}

func mustParse(t *testing.T, sql string) sqlfront.SelectStmt {
	t.Helper()
	stmt, err := sqlfront.Parse(sql)
	if err != nil {
		t.Fatal(err)
	}
	return stmt.(sqlfront.SelectStmt)
}

func TestTranslateCreateTable(t *testing.T) {
	stmt, err := sqlfront.Parse("CREATE TABLE t (id INT64 PRIMARY KEY, name VARCHAR(10))")
	if err != nil {
		t.Fatal(err)
	}
	schema, err := TranslateCreateTable(stmt.(sqlfront.CreateTableStmt))
	if err != nil {
		t.Fatal(err)
	}
	if len(schema.Attrs) != 2 || schema.Attrs[0].Constraint != dtype.ConstraintPrimaryKey {
		t.Fatalf("unexpected schema: %+v", schema)
	}
}

func TestTranslateSimpleSelect(t *testing.T) {
	cat, _ := setup(t)
	sel := mustParse(t, "SELECT name FROM users WHERE id = 1")
	res, err := TranslateSelect(cat, sel)
	if err != nil {
		t.Fatal(err)
	}
	if res.Plan.Kind != plan.KindProject {
		t.Fatalf("expected top-level Project, got %v", res.Plan.Kind)
	}
	if res.Plan.Src.Kind != plan.KindSelect {
		t.Fatalf("expected Select under Project for WHERE clause, got %v", res.Plan.Src.Kind)
	}
	if len(res.OutputNames) != 1 || res.OutputNames[0] != "name" {
		t.Fatalf("unexpected output names: %v", res.OutputNames)
	}
}

func TestTranslateJoin(t *testing.T) {
	cat, _ := setup(t)
	sel := mustParse(t, "SELECT u.name FROM users u JOIN orders o ON u.id = o.user_id")
	res, err := TranslateSelect(cat, sel)
	if err != nil {
		t.Fatal(err)
	}
	if res.Plan.Src.Kind != plan.KindJoin {
		t.Fatalf("expected Join beneath Project, got %v", res.Plan.Src.Kind)
	}
}

func TestTranslateAggregateWithGroupByAndHaving(t *testing.T) {
	cat, _ := setup(t)
	sel := mustParse(t, "SELECT name, COUNT(*) FROM users GROUP BY name HAVING COUNT(*) > 1")
	res, err := TranslateSelect(cat, sel)
	if err != nil {
		t.Fatal(err)
	}
	if res.Plan.Kind != plan.KindSelect {
		t.Fatalf("expected HAVING to wrap aggregate in a Select, got %v", res.Plan.Kind)
	}
	if res.Plan.Src.Kind != plan.KindAggregate {
		t.Fatalf("expected Aggregate beneath HAVING Select, got %v", res.Plan.Src.Kind)
	}
	if len(res.OutputNames) != 2 {
		t.Fatalf("expected 2 output columns, got %v", res.OutputNames)
	}
}

func TestTranslateUnknownTableFails(t *testing.T) {
	cat, _ := setup(t)
	sel := mustParse(t, "SELECT * FROM nope")
	if _, err := TranslateSelect(cat, sel); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestTranslateStarExpandsAllColumns(t *testing.T) {
	cat, _ := setup(t)
	sel := mustParse(t, "SELECT * FROM users")
	res, err := TranslateSelect(cat, sel)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.OutputNames) != 2 {
		t.Fatalf("expected 2 output columns from star, got %v", res.OutputNames)
	}
}
