package csvimport

import (
	"strings"
	"testing"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dtype"
	"github.com/crustylabs/crustydb/internal/heapfile"
)

func setup(t *testing.T) (*bufferpool.Pool, *catalog.Manager) {
	t.Helper()
	cc := container.NewCatalog()
	pool := bufferpool.New(cc, 64)
	mgr := catalog.NewManager(pool, 64, 16)
	return pool, mgr
}

func TestImportCreatesTableWithInferredTypes(t *testing.T) {
	pool, mgr := setup(t)
	csv := "id,name,active\n1,alice,true\n2,bob,false\n3,carol,true\n"
	res, err := Import(pool, mgr, "people", strings.NewReader(csv), nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.RowsInserted != 3 {
		t.Fatalf("expected 3 rows inserted, got %d", res.RowsInserted)
	}
	if !res.HadHeader {
		t.Fatal("expected header to be detected")
	}
	if res.ColumnTypes[0] != dtype.Int64 || res.ColumnTypes[2] != dtype.Bool {
		t.Fatalf("unexpected inferred types: %+v", res.ColumnTypes)
	}

	table, err := mgr.Catalog.Lookup("people")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	count := 0
	it, err := table.Heap.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	it(func(id heapfile.ValueID, data []byte) bool {
		count++
		return true
	})
	if count != 3 {
		t.Fatalf("expected 3 stored rows, got %d", count)
	}
}

func TestImportIntoExistingTableSkipsCreate(t *testing.T) {
	pool, mgr := setup(t)
	schema := dtype.Schema{Attrs: []dtype.Attribute{
		{Name: "id", Type: dtype.Int64},
		{Name: "amount", Type: dtype.Decimal, Scale: 2},
	}}
	if _, err := mgr.Catalog.CreateTable(pool, "txns", schema, container.NewMemFile()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	csv := "id,amount\n1,10.50\n2,-3.25\n"
	res, err := Import(pool, mgr, "txns", strings.NewReader(csv), &Options{HeaderMode: "present"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.RowsInserted != 2 {
		t.Fatalf("expected 2 rows inserted, got %d", res.RowsInserted)
	}
}

func TestDetectDelimiterPrefersSemicolon(t *testing.T) {
	lines := []string{"a;b;c", "1;2;3", "4;5;6"}
	got := detectDelimiter(lines, []rune{',', ';', '\t', '|'})
	if got != ';' {
		t.Fatalf("expected semicolon delimiter, got %q", got)
	}
}

func TestNullLiteralRecognition(t *testing.T) {
	for _, s := range []string{"", "NULL", "na", "N/A", "none"} {
		if !isNullLiteral(s) {
			t.Errorf("expected %q to be recognized as null", s)
		}
	}
	if isNullLiteral("0") {
		t.Error("expected \"0\" not to be recognized as null")
	}
}
