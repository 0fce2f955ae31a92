package txn

import "testing"

func TestBeginAssignsMonotonicIDs(t *testing.T) {
	m := NewManager()
	a := m.Begin()
	b := m.Begin()
	if a.ID == 0 || b.ID <= a.ID {
		t.Fatalf("expected strictly increasing nonzero ids, got %d then %d", a.ID, b.ID)
	}
}

func TestCommitAndAbortTrackActiveCount(t *testing.T) {
	m := NewManager()
	a := m.Begin()
	b := m.Begin()
	if m.ActiveCount() != 2 {
		t.Fatalf("expected 2 active, got %d", m.ActiveCount())
	}
	m.Commit(a)
	if a.State != Committed {
		t.Fatal("expected committed state")
	}
	m.Abort(b)
	if b.State != Aborted {
		t.Fatal("expected aborted state")
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("expected 0 active after commit+abort, got %d", m.ActiveCount())
	}
}
