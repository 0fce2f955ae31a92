package page

import (
	"encoding/binary"

	"github.com/crustylabs/crustydb/internal/dberr"
)

// Heap metadata occupies the 8 bytes immediately after the fixed header:
//
//	[16:18] SlotCount        (uint16)
//	[18:20] NextFree         (uint16) — byte offset where the next record ends up
//	[20:22] LowestAvailable  (uint16) — lowest slot id available for reuse
//	[22:24] RemainingFree    (uint16) — bytes left for records+slot entries
const (
	heapMetaOff      = HeaderSize
	heapMetaSize     = 8
	slotDirOff      = heapMetaOff + heapMetaSize        // 24
	slotEntrySize   = 4
	usableAfterMeta = Size - HeaderSize - heapMetaSize // Size-24
)

// Slot describes one slot directory entry.
type Slot struct {
	Offset uint16
	Length uint16
}

// Heap is a Page specialised with the slotted heap-record layout.
type Heap struct {
	p *Page
}

// NewHeap initialises a fresh page as an empty heap page.
func NewHeap(id uint32) *Heap {
	return InitHeap(New(id))
}

// InitHeap stamps the empty heap-page metadata onto an already-allocated
// Page (such as one freshly handed out by a buffer pool), discarding any
// prior slot directory contents.
func InitHeap(p *Page) *Heap {
	h := &Heap{p: p}
	h.setSlotCount(0)
	h.setNextFree(Size)
	h.setLowestAvailable(0)
	h.setRemainingFree(usableAfterMeta)
	return h
}

// WrapHeap interprets an existing Page as a heap page without reinitialising it.
func WrapHeap(p *Page) *Heap { return &Heap{p: p} }

// Page returns the underlying page.
func (h *Heap) Page() *Page { return h.p }

func (h *Heap) buf() []byte { return h.p.buf[:] }

func (h *Heap) SlotCount() int {
	return int(binary.LittleEndian.Uint16(h.buf()[heapMetaOff:]))
}
func (h *Heap) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(h.buf()[heapMetaOff:], uint16(n))
}

func (h *Heap) NextFree() int {
	return int(binary.LittleEndian.Uint16(h.buf()[heapMetaOff+2:]))
}
func (h *Heap) setNextFree(off int) {
	binary.LittleEndian.PutUint16(h.buf()[heapMetaOff+2:], uint16(off))
}

func (h *Heap) LowestAvailable() int {
	return int(binary.LittleEndian.Uint16(h.buf()[heapMetaOff+4:]))
}
func (h *Heap) setLowestAvailable(n int) {
	binary.LittleEndian.PutUint16(h.buf()[heapMetaOff+4:], uint16(n))
}

func (h *Heap) RemainingFree() int {
	return int(binary.LittleEndian.Uint16(h.buf()[heapMetaOff+6:]))
}
func (h *Heap) setRemainingFree(n int) {
	binary.LittleEndian.PutUint16(h.buf()[heapMetaOff+6:], uint16(n))
}

func (h *Heap) slotOff(i int) int { return slotDirOff + i*slotEntrySize }

func (h *Heap) GetSlot(i int) Slot {
	off := h.slotOff(i)
	return Slot{
		Offset: binary.LittleEndian.Uint16(h.buf()[off:]),
		Length: binary.LittleEndian.Uint16(h.buf()[off+2:]),
	}
}

func (h *Heap) setSlot(i int, s Slot) {
	off := h.slotOff(i)
	binary.LittleEndian.PutUint16(h.buf()[off:], s.Offset)
	binary.LittleEndian.PutUint16(h.buf()[off+2:], s.Length)
}

func (h *Heap) isTombstone(i int) bool {
	s := h.GetSlot(i)
	return s.Offset == 0 && s.Length == 0
}

// dirEnd returns the byte offset just past the slot directory, optionally
// accounting for one not-yet-appended slot entry.
func (h *Heap) dirEnd(extraSlot bool) int {
	n := h.SlotCount()
	if extraSlot {
		n++
	}
	return slotDirOff + n*slotEntrySize
}

// AddValue inserts a record, returning its slot id. Fails without mutating
// the page if there is insufficient remaining free space.
func (h *Heap) AddValue(data []byte) (uint16, error) {
	needsNewSlot := h.LowestAvailable() == h.SlotCount()
	extra := 0
	if needsNewSlot {
		extra = slotEntrySize
	}
	needed := len(data) + extra
	if needed > h.RemainingFree() {
		return 0, dberr.New(dberr.KindStorage, "page full: out of space")
	}

	region := h.NextFree() - h.dirEnd(needsNewSlot)
	if region < len(data) {
		h.Compact()
	}

	slotIdx := h.LowestAvailable()
	newEnd := h.NextFree() - len(data)
	copy(h.buf()[newEnd:h.NextFree()], data)
	h.setNextFree(newEnd)
	h.setSlot(slotIdx, Slot{Offset: uint16(newEnd), Length: uint16(len(data))})

	if needsNewSlot {
		h.setSlotCount(h.SlotCount() + 1)
		h.setLowestAvailable(h.SlotCount())
	} else {
		h.setLowestAvailable(h.walkForward(slotIdx + 1))
	}
	h.setRemainingFree(h.RemainingFree() - needed)
	return uint16(slotIdx), nil
}

// walkForward returns the first tombstoned slot at or after i, or SlotCount.
func (h *Heap) walkForward(i int) int {
	n := h.SlotCount()
	for ; i < n; i++ {
		if h.isTombstone(i) {
			return i
		}
	}
	return n
}

// GetValue returns the bytes stored at slot, or an error if the slot is out
// of range, tombstoned, or internally inconsistent.
func (h *Heap) GetValue(slot uint16) ([]byte, error) {
	i := int(slot)
	if i < 0 || i >= h.SlotCount() {
		return nil, dberr.New(dberr.KindStorage, "slot not found")
	}
	s := h.GetSlot(i)
	if s.Length == 0 {
		return nil, dberr.New(dberr.KindStorage, "slot not found")
	}
	if int(s.Offset)+int(s.Length) > Size {
		return nil, dberr.New(dberr.KindStorage, "corrupt slot bounds")
	}
	out := make([]byte, s.Length)
	copy(out, h.buf()[s.Offset:int(s.Offset)+int(s.Length)])
	return out, nil
}

// DeleteValue tombstones slot, returning its bytes to RemainingFree. The
// record body is not reclaimed until the next Compact.
func (h *Heap) DeleteValue(slot uint16) error {
	i := int(slot)
	if i < 0 || i >= h.SlotCount() {
		return dberr.New(dberr.KindStorage, "slot not found")
	}
	s := h.GetSlot(i)
	if s.Length == 0 {
		return dberr.New(dberr.KindStorage, "slot not found")
	}
	h.setSlot(i, Slot{})
	h.setRemainingFree(h.RemainingFree() + int(s.Length))
	if i < h.LowestAvailable() {
		h.setLowestAvailable(i)
	}
	return nil
}

// UpdateValue replaces the record at slot. It always reuses the same slot
// id; if the new value cannot fit even after compaction, the slot is left
// untouched and an error is returned.
func (h *Heap) UpdateValue(slot uint16, data []byte) error {
	i := int(slot)
	if i < 0 || i >= h.SlotCount() {
		return dberr.New(dberr.KindStorage, "slot not found")
	}
	old := h.GetSlot(i)
	if old.Length == 0 {
		return dberr.New(dberr.KindStorage, "slot not found")
	}

	hypotheticalFree := h.RemainingFree() + int(old.Length)
	needed := len(data)
	if needed > hypotheticalFree {
		return dberr.New(dberr.KindStorage, "page full on update")
	}

	// Tombstone, returning bytes to the free budget.
	h.setSlot(i, Slot{})
	h.setRemainingFree(h.RemainingFree() + int(old.Length))
	if i < h.LowestAvailable() {
		h.setLowestAvailable(i)
	}

	region := h.NextFree() - h.dirEnd(false)
	if region < needed {
		h.Compact()
	}

	newOff := h.NextFree() - needed
	copy(h.buf()[newOff:h.NextFree()], data)
	h.setNextFree(newOff)
	h.setSlot(i, Slot{Offset: uint16(newOff), Length: uint16(needed)})
	h.setRemainingFree(h.RemainingFree() - needed)

	if h.LowestAvailable() == i {
		h.setLowestAvailable(h.walkForward(i + 1))
	}
	return nil
}

// Compact slides all live records to the top of the page in place, removing
// gaps left by deletions, rewriting each slot's offset. Slot ids and
// directory contents otherwise stay fixed.
func (h *Heap) Compact() {
	type live struct {
		idx  int
		data []byte
		off  uint16
	}
	sc := h.SlotCount()
	var recs []live
	for i := 0; i < sc; i++ {
		s := h.GetSlot(i)
		if s.Length == 0 {
			continue
		}
		data := make([]byte, s.Length)
		copy(data, h.buf()[s.Offset:int(s.Offset)+int(s.Length)])
		recs = append(recs, live{idx: i, data: data, off: s.Offset})
	}
	// Sort by current offset descending before sliding to the top, so the
	// records keep their relative order and a repeated Compact is a no-op.
	for a := 1; a < len(recs); a++ {
		for b := a; b > 0 && recs[b-1].off < recs[b].off; b-- {
			recs[b-1], recs[b] = recs[b], recs[b-1]
		}
	}
	end := Size
	for _, r := range recs {
		newEnd := end - len(r.data)
		copy(h.buf()[newEnd:end], r.data)
		h.setSlot(r.idx, Slot{Offset: uint16(newEnd), Length: uint16(len(r.data))})
		end = newEnd
	}
	h.setNextFree(end)
}

// LiveRecords returns the count of non-tombstoned slots.
func (h *Heap) LiveRecords() int {
	n := 0
	sc := h.SlotCount()
	for i := 0; i < sc; i++ {
		if !h.isTombstone(i) {
			n++
		}
	}
	return n
}

// Record pairs a slot id with its stored bytes, yielded by iteration.
type Record struct {
	Slot uint16
	Data []byte
}

// Iter returns all live records in ascending slot order.
func (h *Heap) Iter() []Record {
	return h.IterFrom(0)
}

// IterFrom returns live records starting at the given slot id.
func (h *Heap) IterFrom(start uint16) []Record {
	sc := h.SlotCount()
	var out []Record
	for i := int(start); i < sc; i++ {
		if h.isTombstone(i) {
			continue
		}
		s := h.GetSlot(i)
		data := make([]byte, s.Length)
		copy(data, h.buf()[s.Offset:int(s.Offset)+int(s.Length)])
		out = append(out, Record{Slot: uint16(i), Data: data})
	}
	return out
}
