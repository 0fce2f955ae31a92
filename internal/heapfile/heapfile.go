// Package heapfile implements the per-container record store: append-style
// insertion against an allocation hint, value-id addressed reads, deletes,
// and updates, and a pinned-one-page-at-a-time iterator.
//
// What: the glue between internal/bufferpool's page frames and
// internal/page's slotted heap-page layout, keyed by container id. No
// teacher package offers an equivalent (the teacher's pager is B+Tree
// oriented, not heap-file oriented); this is grounded on
// original_source/src/storage/heapstore/src/heap_file.rs, with the
// one-page-pinned-at-a-time iteration discipline carried over from the
// teacher's B+Tree scan pattern in internal/storage/pager/btree.go.
package heapfile

import (
	"sync/atomic"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/page"
)

// ValueID addresses a single record within a container's heap file.
type ValueID struct {
	CID  container.ID
	Page uint32
	Slot uint16
}

// HeapFile is the record store for one container.
type HeapFile struct {
	pool *bufferpool.Pool
	cid  container.ID
	hint atomic.Uint32 // last page id successfully inserted into
}

// Open returns a heap file view over an already-registered container. Data
// pages start at id 1 (page 0 is the reserved header page), so the hint
// starts there.
func Open(pool *bufferpool.Pool, cid container.ID) *HeapFile {
	hf := &HeapFile{pool: pool, cid: cid}
	hf.hint.Store(1)
	return hf
}

// AddVal inserts bytes, trying the allocation-hint page first and falling
// back to a freshly allocated page on failure.
func (hf *HeapFile) AddVal(data []byte) (ValueID, error) {
	hintPID := hf.hint.Load()
	key := bufferpool.Key{CID: hf.cid, PID: hintPID}
	wg, err := hf.pool.GetPageForWrite(key)
	if err == nil {
		h := page.WrapHeap(wg.Page())
		slot, addErr := h.AddValue(data)
		if addErr == nil {
			wg.MarkDirty()
			wg.Release()
			hf.hint.Store(hintPID)
			return ValueID{CID: hf.cid, Page: hintPID, Slot: slot}, nil
		}
		wg.Release()
	}

	// Hint page is full, missing, or never allocated — get a fresh page.
	wg2, pid, err := hf.pool.CreateNewPage(hf.cid)
	if err != nil {
		return ValueID{}, err
	}
	h := page.InitHeap(wg2.Page())
	slot, err := h.AddValue(data)
	if err != nil {
		wg2.Release()
		return ValueID{}, dberr.Wrap(dberr.KindStorage, "insert into fresh page", err)
	}
	wg2.MarkDirty()
	wg2.Release()
	hf.hint.Store(pid)
	return ValueID{CID: hf.cid, Page: pid, Slot: slot}, nil
}

// AddVals inserts each item in sequence, stopping at the first failure.
func (hf *HeapFile) AddVals(items [][]byte) ([]ValueID, error) {
	ids := make([]ValueID, 0, len(items))
	for _, it := range items {
		id, err := hf.AddVal(it)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetVal reads the record at id.
func (hf *HeapFile) GetVal(id ValueID) ([]byte, error) {
	rg, err := hf.pool.GetPageForRead(bufferpool.Key{CID: hf.cid, PID: id.Page})
	if err != nil {
		return nil, err
	}
	defer rg.Release()
	h := page.WrapHeap(rg.Page())
	return h.GetValue(id.Slot)
}

// DeleteVal tombstones the record at id.
func (hf *HeapFile) DeleteVal(id ValueID) error {
	wg, err := hf.pool.GetPageForWrite(bufferpool.Key{CID: hf.cid, PID: id.Page})
	if err != nil {
		return err
	}
	defer wg.Release()
	h := page.WrapHeap(wg.Page())
	if err := h.DeleteValue(id.Slot); err != nil {
		return err
	}
	wg.MarkDirty()
	return nil
}

// UpdateVal replaces the record at id, possibly relocating it to a new
// page if it no longer fits on the original one. The returned ValueID is
// authoritative and must replace any previously held id.
func (hf *HeapFile) UpdateVal(id ValueID, data []byte) (ValueID, error) {
	wg, err := hf.pool.GetPageForWrite(bufferpool.Key{CID: hf.cid, PID: id.Page})
	if err != nil {
		return ValueID{}, err
	}
	h := page.WrapHeap(wg.Page())
	if err := h.UpdateValue(id.Slot, data); err == nil {
		wg.MarkDirty()
		wg.Release()
		return id, nil
	}
	wg.Release()

	if err := hf.DeleteVal(id); err != nil {
		return ValueID{}, err
	}
	return hf.AddVal(data)
}

// Iter streams every live record in the heap file in page-then-slot order,
// pinning at most one page at a time.
func (hf *HeapFile) Iter() (func(yield func(ValueID, []byte) bool), error) {
	return hf.IterFrom(1, 0)
}

// IterFrom streams live records starting at (startPage, startSlot).
func (hf *HeapFile) IterFrom(startPage uint32, startSlot uint16) (func(yield func(ValueID, []byte) bool), error) {
	file, err := hf.lookupFile()
	if err != nil {
		return nil, err
	}
	maxPage := file.PageCount()

	return func(yield func(ValueID, []byte) bool) {
		slotStart := startSlot
		for pid := startPage; pid < maxPage; pid++ {
			rg, err := hf.pool.GetPageForRead(bufferpool.Key{CID: hf.cid, PID: pid})
			if err != nil {
				return
			}
			h := page.WrapHeap(rg.Page())
			recs := h.IterFrom(slotStart)
			slotStart = 0
			rg.Release()

			for _, r := range recs {
				if !yield(ValueID{CID: hf.cid, Page: pid, Slot: r.Slot}, r.Data) {
					return
				}
			}
		}
	}, nil
}

func (hf *HeapFile) lookupFile() (container.File, error) {
	return hf.pool.Catalog().Lookup(hf.cid)
}
