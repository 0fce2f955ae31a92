package page

import (
	"bytes"
	"testing"
)

func TestHeapAddGetRoundTrip(t *testing.T) {
	h := NewHeap(1)
	s1, err := h.AddValue([]byte("alpha"))
	if err != nil {
		t.Fatal(err)
	}
	s2, err := h.AddValue([]byte("beta"))
	if err != nil {
		t.Fatal(err)
	}
	if s1 != 0 || s2 != 1 {
		t.Fatalf("expected slots 0,1 got %d,%d", s1, s2)
	}
	v1, err := h.GetValue(s1)
	if err != nil || string(v1) != "alpha" {
		t.Fatalf("GetValue(s1) = %q, %v", v1, err)
	}
	v2, err := h.GetValue(s2)
	if err != nil || string(v2) != "beta" {
		t.Fatalf("GetValue(s2) = %q, %v", v2, err)
	}
}

func TestHeapSlotIdsIncreaseWithoutDeletes(t *testing.T) {
	h := NewHeap(1)
	for i := 0; i < 10; i++ {
		slot, err := h.AddValue([]byte{byte(i)})
		if err != nil {
			t.Fatal(err)
		}
		if int(slot) != i {
			t.Fatalf("slot %d, want %d", slot, i)
		}
	}
}

func TestHeapDeleteThenAddReusesLowestSlot(t *testing.T) {
	h := NewHeap(1)
	for i := 0; i < 3; i++ {
		if _, err := h.AddValue(bytes.Repeat([]byte{'x'}, 45)); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.DeleteValue(1); err != nil {
		t.Fatal(err)
	}
	slot, err := h.AddValue(bytes.Repeat([]byte{'y'}, 45))
	if err != nil {
		t.Fatal(err)
	}
	if slot != 1 {
		t.Fatalf("expected reused slot 1, got %d", slot)
	}
	slot2, err := h.AddValue([]byte("short"))
	if err != nil {
		t.Fatal(err)
	}
	if slot2 != 3 {
		t.Fatalf("expected fresh slot 3, got %d", slot2)
	}
}

func TestHeapGetAfterDeleteFails(t *testing.T) {
	h := NewHeap(1)
	s, _ := h.AddValue([]byte("x"))
	if err := h.DeleteValue(s); err != nil {
		t.Fatal(err)
	}
	if _, err := h.GetValue(s); err == nil {
		t.Fatal("expected error reading deleted slot")
	}
}

func TestHeapUpdateInPlaceAndRelocate(t *testing.T) {
	h := NewHeap(1)
	s, _ := h.AddValue([]byte("0123456789"))
	if err := h.UpdateValue(s, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	v, _ := h.GetValue(s)
	if string(v) != "abc" {
		t.Fatalf("got %q", v)
	}
	big := bytes.Repeat([]byte{'z'}, 200)
	if err := h.UpdateValue(s, big); err != nil {
		t.Fatal(err)
	}
	v2, _ := h.GetValue(s)
	if !bytes.Equal(v2, big) {
		t.Fatal("relocated update mismatch")
	}
}

func TestHeapInvariantByteBudget(t *testing.T) {
	h := NewHeap(1)
	for i := 0; i < 5; i++ {
		if _, err := h.AddValue(bytes.Repeat([]byte{'a'}, 30)); err != nil {
			t.Fatal(err)
		}
	}
	used := 0
	for _, r := range h.Iter() {
		used += len(r.Data)
	}
	dirBytes := h.SlotCount() * slotEntrySize
	total := used + dirBytes + h.RemainingFree()
	if total != usableAfterMeta {
		t.Fatalf("byte budget mismatch: used=%d dir=%d free=%d total=%d want=%d",
			used, dirBytes, h.RemainingFree(), total, usableAfterMeta)
	}
}

func TestHeapOutOfSpaceDoesNotMutate(t *testing.T) {
	h := NewHeap(1)
	before := append([]byte(nil), h.Page().Bytes()...)
	huge := bytes.Repeat([]byte{'q'}, Size)
	if _, err := h.AddValue(huge); err == nil {
		t.Fatal("expected out-of-space error")
	}
	if !bytes.Equal(before, h.Page().Bytes()) {
		t.Fatal("failed insert mutated the page")
	}
}

func TestHeapCompactionDeterministic(t *testing.T) {
	h := NewHeap(1)
	for i := 0; i < 4; i++ {
		h.AddValue(bytes.Repeat([]byte{byte('a' + i)}, 40))
	}
	h.DeleteValue(1)
	h.Compact()
	b1 := append([]byte(nil), h.Page().Bytes()...)
	h.Compact()
	b2 := h.Page().Bytes()
	if !bytes.Equal(b1, b2) {
		t.Fatal("repeated compaction is not idempotent/deterministic")
	}
}

func TestHeapIterSkipsTombstones(t *testing.T) {
	h := NewHeap(1)
	h.AddValue([]byte("a"))
	h.AddValue([]byte("b"))
	h.AddValue([]byte("c"))
	h.DeleteValue(1)
	recs := h.Iter()
	if len(recs) != 2 {
		t.Fatalf("expected 2 live records, got %d", len(recs))
	}
	if recs[0].Slot != 0 || recs[1].Slot != 2 {
		t.Fatalf("unexpected slot order: %+v", recs)
	}
}
