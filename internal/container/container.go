// Package container maps container ids to the underlying page file that
// backs them and tracks each container's page count.
//
// What: a catalog of ContainerID → File, where File is either a real file on
// disk or an in-memory byte arena (used in tests and for temporary
// containers). This mirrors the teacher's habit of offering interchangeable
// disk/memory storage backends (internal/storage/backend_disk.go,
// backend_memory.go) rather than hard-coding a single on-disk layout.
// How: every container's page 0 is reserved for a header page; data pages
// start at id 1 (spec.md §4.3).
package container

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/crustylabs/crustydb/internal/dberr"
	"github.com/crustylabs/crustydb/internal/page"
)

// ID is a 16-bit container identifier (table, index, or other state).
type ID uint16

// File is the per-container page storage abstraction.
type File interface {
	ReadPage(pid uint32) ([]byte, error)
	WritePage(pid uint32, buf []byte) error
	PageCount() uint32
	// AllocatePages reserves n contiguous new page ids and returns the
	// first one.
	AllocatePages(n uint32) uint32
	Close() error
}

// Catalog maps container ids to their backing File.
type Catalog struct {
	mu    sync.RWMutex
	files map[ID]File
}

// NewCatalog creates an empty container catalog.
func NewCatalog() *Catalog {
	return &Catalog{files: make(map[ID]File)}
}

// Register associates a container id with a backing file. The header page
// (id 0) is created if the file is brand new and empty.
func (c *Catalog) Register(cid ID, f File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[cid] = f
	if f.PageCount() == 0 {
		f.AllocatePages(1) // header page, id 0
	}
}

// Lookup returns the file registered for cid.
func (c *Catalog) Lookup(cid ID) (File, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[cid]
	if !ok {
		return nil, dberr.New(dberr.KindStorage, "container not registered")
	}
	return f, nil
}

// Unregister closes and removes a container's backing file.
func (c *Catalog) Unregister(cid ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[cid]
	if !ok {
		return nil
	}
	delete(c.files, cid)
	return f.Close()
}

// ───────────────────────────────────────────────────────────────────────────
// Memory-backed container file
// ───────────────────────────────────────────────────────────────────────────

// MemFile is an in-memory page arena, used for temporary containers and in
// tests where touching disk is undesirable.
type MemFile struct {
	mu    sync.Mutex
	pages [][page.Size]byte
	count atomic.Uint32
}

// NewMemFile creates an empty in-memory container file.
func NewMemFile() *MemFile { return &MemFile{} }

func (m *MemFile) ReadPage(pid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid >= uint32(len(m.pages)) {
		return nil, dberr.New(dberr.KindStorage, "page not found")
	}
	buf := make([]byte, page.Size)
	copy(buf, m.pages[pid][:])
	return buf, nil
}

func (m *MemFile) WritePage(pid uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid >= uint32(len(m.pages)) {
		return dberr.New(dberr.KindStorage, "page not found")
	}
	copy(m.pages[pid][:], buf)
	return nil
}

func (m *MemFile) PageCount() uint32 { return m.count.Load() }

func (m *MemFile) AllocatePages(n uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := uint32(len(m.pages))
	for i := uint32(0); i < n; i++ {
		m.pages = append(m.pages, [page.Size]byte{})
	}
	m.count.Store(uint32(len(m.pages)))
	return first
}

func (m *MemFile) Close() error { return nil }

// ───────────────────────────────────────────────────────────────────────────
// Disk-backed container file
// ───────────────────────────────────────────────────────────────────────────

// DiskFile is a container file backed by a single OS file, one page per
// fixed PAGE_SIZE-byte slot (spec.md §6 on-disk format).
type DiskFile struct {
	mu    sync.Mutex
	f     *os.File
	count atomic.Uint32
}

// OpenDiskFile opens or creates a disk-backed container file at path.
func OpenDiskFile(path string) (*DiskFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindStorage, "open container file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.Wrap(dberr.KindStorage, "stat container file", err)
	}
	df := &DiskFile{f: f}
	df.count.Store(uint32(info.Size() / page.Size))
	return df, nil
}

func (d *DiskFile) ReadPage(pid uint32) ([]byte, error) {
	if pid >= d.count.Load() {
		return nil, dberr.New(dberr.KindStorage, "page not found")
	}
	buf := make([]byte, page.Size)
	off := int64(pid) * page.Size
	d.mu.Lock()
	_, err := d.f.ReadAt(buf, off)
	d.mu.Unlock()
	if err != nil {
		return nil, dberr.Wrap(dberr.KindStorage, "read page", err)
	}
	return buf, nil
}

func (d *DiskFile) WritePage(pid uint32, buf []byte) error {
	if pid >= d.count.Load() {
		return dberr.New(dberr.KindStorage, "page not found")
	}
	off := int64(pid) * page.Size
	d.mu.Lock()
	_, err := d.f.WriteAt(buf, off)
	d.mu.Unlock()
	if err != nil {
		return dberr.Wrap(dberr.KindStorage, "write page", err)
	}
	return nil
}

func (d *DiskFile) PageCount() uint32 { return d.count.Load() }

func (d *DiskFile) AllocatePages(n uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	first := d.count.Load()
	zero := make([]byte, page.Size)
	for i := uint32(0); i < n; i++ {
		pid := first + i
		d.f.WriteAt(zero, int64(pid)*page.Size)
	}
	d.count.Store(first + n)
	return first
}

func (d *DiskFile) Close() error { return d.f.Close() }
