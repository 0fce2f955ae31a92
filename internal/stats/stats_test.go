package stats

import (
	"path/filepath"
	"testing"

	"github.com/crustylabs/crustydb/internal/bytecode"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dtype"
)

func TestAddSampleFillsReservoirThenReplaces(t *testing.T) {
	m := NewManager()
	cid := container.ID(1)
	for i := 0; i < SampleSize+500; i++ {
		m.AddSample(cid, dtype.Tuple{Fields: []dtype.Field{{Type: dtype.Int64, I64: int64(i)}}})
	}
	if got := m.RecordCount(cid); got != int64(SampleSize+500) {
		t.Fatalf("expected record count %d, got %d", SampleSize+500, got)
	}
	m.mu.Lock()
	n := len(m.byCID[cid].Samples)
	m.mu.Unlock()
	if n != SampleSize {
		t.Fatalf("expected reservoir capped at %d, got %d", SampleSize, n)
	}
}

func TestEstimateCountAndSelectivity(t *testing.T) {
	m := NewManager()
	cid := container.ID(1)
	for i := 0; i < 200; i++ {
		m.AddSample(cid, dtype.Tuple{Fields: []dtype.Field{{Type: dtype.Int64, I64: int64(i)}}})
	}
	pred := bytecode.Program{Instrs: []bytecode.Instr{
		{Op: bytecode.PushField, Arg: 0},
		{Op: bytecode.PushLit, Arg: 0},
		{Op: bytecode.Lt},
	}, Literals: []dtype.Field{{Type: dtype.Int64, I64: 100}}}

	count, sel, err := m.EstimateCountAndSelectivity(cid, pred)
	if err != nil {
		t.Fatal(err)
	}
	if sel <= 0 || sel >= 1 {
		t.Fatalf("expected selectivity strictly between 0 and 1, got %f", sel)
	}
	if count <= 0 || count >= 200 {
		t.Fatalf("expected partial estimated count, got %d", count)
	}
}

func TestEstimateWithNoSamplesAssumesFullSelectivity(t *testing.T) {
	m := NewManager()
	pred := bytecode.Program{Instrs: []bytecode.Instr{{Op: bytecode.PushLit, Arg: 0}}, Literals: []dtype.Field{{Type: dtype.Bool, I64: 1}}}
	count, sel, err := m.EstimateCountAndSelectivity(container.ID(99), pred)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || sel != 1.0 {
		t.Fatalf("expected (0, 1.0) for unknown container, got (%d, %f)", count, sel)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m := NewManager()
	cid := container.ID(7)
	m.AddSample(cid, dtype.Tuple{Fields: []dtype.Field{{Type: dtype.Int64, I64: 42}}})

	path := filepath.Join(t.TempDir(), "stats.json")
	if err := m.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager()
	if err := m2.LoadFromFile(path); err != nil {
		t.Fatal(err)
	}
	if got := m2.RecordCount(cid); got != 1 {
		t.Fatalf("expected record count 1 after reload, got %d", got)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	m := NewManager()
	if err := m.LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatal(err)
	}
}

func TestDeletedRecordDecrementsCount(t *testing.T) {
	m := NewManager()
	cid := container.ID(3)
	m.AddSample(cid, dtype.Tuple{Fields: []dtype.Field{{Type: dtype.Int64, I64: 1}}})
	m.AddSample(cid, dtype.Tuple{Fields: []dtype.Field{{Type: dtype.Int64, I64: 2}}})
	m.DeletedRecord(cid)
	if got := m.RecordCount(cid); got != 1 {
		t.Fatalf("expected record count 1 after delete, got %d", got)
	}
}
