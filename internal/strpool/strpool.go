// Package strpool implements the small-string optimisation used for
// variable-length text fields: short strings are stored inline in a fixed
// handle, long strings store a prefix inline and spill their suffix into a
// pooled region.
//
// What/how: grounded directly on
// original_source/src/cli-fairy/common-fairy/src/physical/small_string.rs
// (StringManager / SmallString), simplified to the fixed-width 33-byte
// handle and 4-byte offset spec.md §4.4 specifies rather than the
// original's variable-width offset encoding.
package strpool

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/crustylabs/crustydb/internal/dberr"
)

const (
	// HandleSize is the fixed size of a string handle in bytes.
	HandleSize = 33
	dataSize   = HandleSize - 1
	// MaxShortLen is the longest string storable entirely inline.
	MaxShortLen   = dataSize - 1 // 31
	offsetLen     = 4
	prefixLen     = dataSize - offsetLen // 28, for long strings
	lengthFieldSz = 4
)

// Handle is the 33-byte on-the-wire/in-tuple representation of a string.
type Handle [HandleSize]byte

func isShort(h Handle) bool { return h[0]&0x80 == 0 }

func shortLen(h Handle) int { return int(h[0] & 0x7F) }

type freeRegion struct {
	size   int
	offset int
}

// Pool manages suffix storage for long strings: a fixed-capacity byte
// region plus a free-list sorted by size for binary-search best fit.
type Pool struct {
	mu   sync.Mutex
	mem  []byte
	free []freeRegion
}

// New creates a pool with the given suffix-storage capacity in bytes.
func New(capacity int) *Pool {
	return &Pool{
		mem:  make([]byte, capacity),
		free: []freeRegion{{size: capacity, offset: 0}},
	}
}

// NewHandle stores s, inlining it if short or spilling its suffix into the
// pool if long.
func (p *Pool) NewHandle(s string) (Handle, error) {
	data := []byte(s)
	var h Handle
	if len(data) <= MaxShortLen {
		h[0] = byte(len(data))
		copy(h[1:1+len(data)], data)
		return h, nil
	}

	suffix := data[prefixLen:]
	off, err := p.allocate(len(suffix))
	if err != nil {
		return Handle{}, err
	}
	h[0] = 0x80 | byte(prefixLen)
	copy(h[1:1+prefixLen], data[:prefixLen])
	binary.LittleEndian.PutUint32(h[1+prefixLen:1+prefixLen+offsetLen], uint32(off))

	binary.LittleEndian.PutUint32(p.mem[off:], uint32(len(suffix)))
	copy(p.mem[off+lengthFieldSz:off+lengthFieldSz+len(suffix)], suffix)
	return h, nil
}

// Read materialises the full string content of a handle.
func (p *Pool) Read(h Handle) (string, error) {
	if isShort(h) {
		n := shortLen(h)
		return string(h[1 : 1+n]), nil
	}
	off, suffix, err := p.readSuffix(h)
	if err != nil {
		return "", err
	}
	return string(h[1:1+prefixLen]) + string(p.mem[off+lengthFieldSz:off+lengthFieldSz+suffix]), nil
}

func (p *Pool) suffixOffset(h Handle) int {
	return int(binary.LittleEndian.Uint32(h[1+prefixLen : 1+prefixLen+offsetLen]))
}

func (p *Pool) readSuffix(h Handle) (offset int, suffixLen int, err error) {
	off := p.suffixOffset(h)
	if off < 0 || off+lengthFieldSz > len(p.mem) {
		return 0, 0, dberr.New(dberr.KindStorage, "corrupt long-string handle: offset out of range")
	}
	p.mu.Lock()
	n := int(binary.LittleEndian.Uint32(p.mem[off:]))
	p.mu.Unlock()
	return off, n, nil
}

// Compare orders two handles: inline bytes are compared first (full
// content for short strings, prefix for long ones); only when both are
// long and their prefixes are equal does it fall through to the pooled
// suffix bytes.
func (p *Pool) Compare(a, b Handle) (int, error) {
	aInline := inlineBytes(a)
	bInline := inlineBytes(b)
	if c := bytes.Compare(aInline, bInline); c != 0 {
		return c, nil
	}
	if !isShort(a) && !isShort(b) {
		return p.compareSuffixes(a, b)
	}
	return 0, nil
}

func inlineBytes(h Handle) []byte {
	if isShort(h) {
		return h[1 : 1+shortLen(h)]
	}
	return h[1 : 1+prefixLen]
}

func (p *Pool) compareSuffixes(a, b Handle) (int, error) {
	aOff, aLen, err := p.readSuffix(a)
	if err != nil {
		return 0, err
	}
	bOff, bLen, err := p.readSuffix(b)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	as := p.mem[aOff+lengthFieldSz : aOff+lengthFieldSz+aLen]
	bs := p.mem[bOff+lengthFieldSz : bOff+lengthFieldSz+bLen]
	return bytes.Compare(as, bs), nil
}

// Free returns a long handle's suffix region to the free-list, merging it
// with adjacent free regions. It is a no-op for short (inline) handles.
func (p *Pool) Free(h Handle) error {
	if isShort(h) {
		return nil
	}
	off, suffixLen, err := p.readSuffix(h)
	if err != nil {
		return err
	}
	p.deallocate(off, lengthFieldSz+suffixLen)
	return nil
}

// allocate finds the smallest free region that fits effective size (via
// binary search over the size-sorted free list), splits or consumes it,
// and writes nothing itself — callers fill the returned offset.
func (p *Pool) allocate(suffixLen int) (int, error) {
	effective := lengthFieldSz + suffixLen
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= effective })
	if idx == len(p.free) {
		return 0, dberr.New(dberr.KindStorage, "string pool exhausted: no region large enough")
	}
	region := p.free[idx]
	start := region.offset

	if region.size == effective {
		p.free = append(p.free[:idx], p.free[idx+1:]...)
	} else {
		p.free[idx] = freeRegion{size: region.size - effective, offset: start + effective}
		p.resortAndMerge(idx)
	}
	return start, nil
}

// deallocate inserts a freed region into the size-sorted free list and
// greedily merges it with any adjacent (by byte offset) free regions.
func (p *Pool) deallocate(offset, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= size })
	p.free = append(p.free, freeRegion{})
	copy(p.free[idx+1:], p.free[idx:])
	p.free[idx] = freeRegion{size: size, offset: offset}
	p.mergeAdjacent(idx)
}

// resortAndMerge re-establishes size order for the entry at idx (its size
// just shrank) and merges it with any byte-adjacent neighbours.
func (p *Pool) resortAndMerge(idx int) {
	entry := p.free[idx]
	p.free = append(p.free[:idx], p.free[idx+1:]...)
	newIdx := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= entry.size })
	p.free = append(p.free, freeRegion{})
	copy(p.free[newIdx+1:], p.free[newIdx:])
	p.free[newIdx] = entry
	p.mergeAdjacent(newIdx)
}

// mergeAdjacent greedily absorbs any free region whose byte range touches
// the region at idx, removing the absorbed entries.
func (p *Pool) mergeAdjacent(idx int) {
	left := p.free[idx].offset
	right := p.free[idx].offset + p.free[idx].size
	for i := 0; i < len(p.free); i++ {
		if i == idx {
			continue
		}
		fl := p.free[i].offset
		fr := p.free[i].offset + p.free[i].size
		if fl == right {
			p.free[idx].size += p.free[i].size
			right = p.free[idx].offset + p.free[idx].size
			p.free = append(p.free[:i], p.free[i+1:]...)
			if i < idx {
				idx--
			}
			i = -1
			continue
		}
		if fr == left {
			p.free[idx].size += p.free[i].size
			p.free[idx].offset = fl
			left = fl
			p.free = append(p.free[:i], p.free[i+1:]...)
			if i < idx {
				idx--
			}
			i = -1
			continue
		}
	}
	// Restore size ordering after growing the merged region.
	entry := p.free[idx]
	p.free = append(p.free[:idx], p.free[idx+1:]...)
	newIdx := sort.Search(len(p.free), func(i int) bool { return p.free[i].size >= entry.size })
	p.free = append(p.free, freeRegion{})
	copy(p.free[newIdx+1:], p.free[newIdx:])
	p.free[newIdx] = entry
}

// FreeSpace returns the total bytes available across all free regions.
func (p *Pool) FreeSpace() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, r := range p.free {
		total += r.size
	}
	return total
}
