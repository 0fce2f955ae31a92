// Package bufferpool pins in-memory page frames on behalf of the heap and
// index layers, evicting the least-recently-used unpinned frame when the
// pool is full and writing dirty frames back through the container catalog
// before reuse.
//
// What: a fixed-size array of Frames plus a (container,page) → frame index,
// grounded on the teacher's internal/storage/pager/pager.go PageBufferPool
// and PageFrame types, generalized from a single-container LRU cache to the
// multi-container keying spec.md §4.2 requires.
// How: the pool-wide latch (mu) only ever guards the index map and the
// clock/LRU hint queue; it is always released before any page is read from
// or written to a container.File, matching spec.md §4.2's "the pool latch
// is released before any I/O is issued."
package bufferpool

import (
	"container/list"
	"sync"

	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/page"
)

// Key identifies a page within a specific container.
type Key struct {
	CID container.ID
	PID uint32
}

// Frame holds one resident page image plus its latch, pin count, and dirty
// flag.
type Frame struct {
	latch *Latch
	mu    sync.Mutex // guards pins/dirty/key bookkeeping below
	key   Key
	valid bool
	pins  int
	dirty bool
	pg    *page.Page
	elem  *list.Element // this frame's node in the pool's LRU list
}

// Pool is a fixed-capacity set of page frames shared across containers.
type Pool struct {
	catalog *container.Catalog

	mu      sync.Mutex // guards index and lru
	index   map[Key]*Frame
	frames  []*Frame
	lru     *list.List // front = most recently used, back = eviction candidate
}

// New creates a pool with room for capacity resident frames.
func New(catalog *container.Catalog, capacity int) *Pool {
	p := &Pool{
		catalog: catalog,
		index:   make(map[Key]*Frame, capacity),
		frames:  make([]*Frame, 0, capacity),
		lru:     list.New(),
	}
	for i := 0; i < capacity; i++ {
		f := &Frame{latch: NewLatch()}
		p.frames = append(p.frames, f)
	}
	return p
}

// ReadGuard pins a frame for shared access.
type ReadGuard struct {
	pool  *Pool
	frame *Frame
}

// Bytes returns the page's backing buffer. Valid until Release.
func (g *ReadGuard) Bytes() []byte { return g.frame.pg.Bytes() }

// Page returns the underlying page.
func (g *ReadGuard) Page() *page.Page { return g.frame.pg }

// Release unpins the frame and drops the read latch.
func (g *ReadGuard) Release() {
	g.frame.latch.RUnlock()
	g.pool.unpin(g.frame)
}

// TryUpgrade attempts to convert this read guard into a WriteGuard without
// releasing the underlying pin, succeeding only when no other reader holds
// the frame latch. On failure the ReadGuard remains valid and usable.
func (g *ReadGuard) TryUpgrade() (*WriteGuard, bool) {
	if !g.frame.latch.TryUpgrade() {
		return nil, false
	}
	return &WriteGuard{pool: g.pool, frame: g.frame}, true
}

// WriteGuard pins a frame for exclusive access.
type WriteGuard struct {
	pool  *Pool
	frame *Frame
}

// Bytes returns the page's backing buffer for in-place mutation.
func (g *WriteGuard) Bytes() []byte { return g.frame.pg.Bytes() }

// Page returns the underlying page.
func (g *WriteGuard) Page() *page.Page { return g.frame.pg }

// MarkDirty flags the frame for write-back before eviction or Flush.
func (g *WriteGuard) MarkDirty() {
	g.frame.mu.Lock()
	g.frame.dirty = true
	g.frame.mu.Unlock()
}

// Release unpins the frame and drops the write latch.
func (g *WriteGuard) Release() {
	g.frame.latch.Unlock()
	g.pool.unpin(g.frame)
}

func (p *Pool) unpin(f *Frame) {
	f.mu.Lock()
	if f.pins > 0 {
		f.pins--
	}
	f.mu.Unlock()
}

// GetPageForRead returns a shared guard over key's page, faulting it in
// from the backing container on a miss.
func (p *Pool) GetPageForRead(key Key) (*ReadGuard, error) {
	f, err := p.acquireFrame(key)
	if err != nil {
		return nil, err
	}
	f.latch.RLock()
	return &ReadGuard{pool: p, frame: f}, nil
}

// GetPageForWrite returns an exclusive guard over key's page, faulting it
// in from the backing container on a miss.
func (p *Pool) GetPageForWrite(key Key) (*WriteGuard, error) {
	f, err := p.acquireFrame(key)
	if err != nil {
		return nil, err
	}
	f.latch.Lock()
	return &WriteGuard{pool: p, frame: f}, nil
}

// acquireFrame returns the (pinned) resident frame for key, faulting it in
// on a miss. The frame's latch is NOT held on return — callers must take
// the latch themselves, after which the frame is fully theirs.
func (p *Pool) acquireFrame(key Key) (*Frame, error) {
	p.mu.Lock()
	if f, ok := p.index[key]; ok {
		p.pin(f)
		p.touch(f)
		p.mu.Unlock()
		return f, nil
	}
	p.mu.Unlock()
	return p.fault(key)
}

func (p *Pool) pin(f *Frame) {
	f.mu.Lock()
	f.pins++
	f.mu.Unlock()
}

// touch moves f to the front of the LRU list. Caller holds p.mu.
func (p *Pool) touch(f *Frame) {
	if f.elem != nil {
		p.lru.MoveToFront(f.elem)
	} else {
		f.elem = p.lru.PushFront(f)
	}
}

// fault loads key's page into a frame, evicting a victim if the pool is at
// capacity. No pool-wide latch is held during the actual disk/memory I/O.
func (p *Pool) fault(key Key) (*Frame, error) {
	file, err := p.catalog.Lookup(key.CID)
	if err != nil {
		return nil, err
	}

	victim, err := p.selectVictim(key)
	if err != nil {
		return nil, err
	}

	// Another goroutine may have faulted the same key in while we were
	// selecting a victim; re-check under the pool latch before committing.
	p.mu.Lock()
	if f, ok := p.index[key]; ok {
		p.pin(f)
		p.touch(f)
		p.mu.Unlock()
		victim.latch.Unlock()
		return f, nil
	}
	oldKey, oldValid := victim.key, victim.valid
	if victim.valid {
		delete(p.index, victim.key)
	}
	victim.key = key
	victim.valid = true
	p.index[key] = victim
	p.touch(victim)
	p.mu.Unlock()

	if oldValid && victim.dirty && victim.pg != nil {
		oldFile, err := p.catalog.Lookup(oldKey.CID)
		if err == nil {
			victim.pg.SetChecksum()
			err = oldFile.WritePage(oldKey.PID, victim.pg.Bytes())
		}
		if err != nil {
			victim.latch.Unlock()
			return nil, err
		}
	}

	raw, err := file.ReadPage(key.PID)
	if err != nil {
		victim.latch.Unlock()
		return nil, err
	}
	pg := page.FromBytes(raw)
	if !pg.VerifyChecksum() {
		victim.latch.Unlock()
		return nil, dberr.New(dberr.KindStorage, "checksum mismatch on page fault")
	}

	victim.mu.Lock()
	victim.pg = pg
	victim.dirty = false
	victim.pins = 1
	victim.mu.Unlock()
	victim.latch.Unlock()

	return victim, nil
}

// selectVictim picks and exclusively latches an unpinned frame suitable for
// reuse, preferring an empty slot over evicting a resident one. The
// returned frame's latch is held by the caller and must be unlocked by it.
func (p *Pool) selectVictim(want Key) (*Frame, error) {
	p.mu.Lock()
	for _, f := range p.frames {
		if !f.valid {
			p.mu.Unlock()
			f.latch.Lock()
			return f, nil
		}
	}
	// Walk from the back of the LRU list (least recently used) looking for
	// an unpinned frame we can latch without blocking.
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		f := e.Value.(*Frame)
		f.mu.Lock()
		pinned := f.pins > 0
		f.mu.Unlock()
		if pinned {
			continue
		}
		if f.latch.TryLock() {
			p.mu.Unlock()
			return f, nil
		}
	}
	p.mu.Unlock()
	return nil, dberr.New(dberr.KindConcurrency, "buffer pool exhausted: no evictable frame")
}

// CreateNewPage allocates a fresh page id in cid and returns it pinned for
// write, with its header stamped but its body otherwise zeroed.
func (p *Pool) CreateNewPage(cid container.ID) (*WriteGuard, uint32, error) {
	file, err := p.catalog.Lookup(cid)
	if err != nil {
		return nil, 0, err
	}
	pid := file.AllocatePages(1)
	key := Key{CID: cid, PID: pid}

	victim, err := p.selectVictim(key)
	if err != nil {
		return nil, 0, err
	}

	p.mu.Lock()
	oldKey, oldValid := victim.key, victim.valid
	if victim.valid {
		delete(p.index, victim.key)
	}
	victim.key = key
	victim.valid = true
	p.index[key] = victim
	p.touch(victim)
	p.mu.Unlock()

	if oldValid && victim.dirty && victim.pg != nil {
		oldFile, lookupErr := p.catalog.Lookup(oldKey.CID)
		if lookupErr == nil {
			victim.pg.SetChecksum()
			oldFile.WritePage(oldKey.PID, victim.pg.Bytes())
		}
	}

	victim.mu.Lock()
	victim.pg = page.New(pid)
	victim.dirty = true
	victim.pins = 1
	victim.mu.Unlock()

	return &WriteGuard{pool: p, frame: victim}, pid, nil
}

// CreateNewPages allocates n contiguous new page ids in cid in a single
// call and returns the first id. Frames for the new pages are not
// pre-faulted; callers fetch them individually via GetPageForWrite.
func (p *Pool) CreateNewPages(cid container.ID, n uint32) (uint32, error) {
	file, err := p.catalog.Lookup(cid)
	if err != nil {
		return 0, err
	}
	return file.AllocatePages(n), nil
}

// FlushAll writes back every dirty resident frame through the container
// catalog. Intended for checkpointing and shutdown.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	frames := append([]*Frame(nil), p.frames...)
	p.mu.Unlock()

	for _, f := range frames {
		f.latch.Lock()
		f.mu.Lock()
		dirty := f.dirty && f.valid
		key := f.key
		var bytesToWrite []byte
		if dirty {
			f.pg.SetChecksum()
			bytesToWrite = append([]byte(nil), f.pg.Bytes()...)
		}
		f.mu.Unlock()
		if dirty {
			file, err := p.catalog.Lookup(key.CID)
			if err == nil {
				file.WritePage(key.PID, bytesToWrite)
			}
			f.mu.Lock()
			f.dirty = false
			f.mu.Unlock()
		}
		f.latch.Unlock()
	}
	return nil
}

// IsResident reports whether key currently occupies a frame, without
// pinning or faulting it.
func (p *Pool) IsResident(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.index[key]
	return ok
}

// Capacity returns the number of frames in the pool.
func (p *Pool) Capacity() int { return len(p.frames) }

// Catalog returns the container catalog backing this pool.
func (p *Pool) Catalog() *container.Catalog { return p.catalog }
