// Package page implements the fixed-size, slotted-record page format that
// underlies every container's heap file.
//
// What: a 4096-byte buffer with a 16-byte fixed header (page id, LSN,
// checksum) and, for heap pages, an additional 8-byte metadata block
// followed by a slot directory and record bodies.
// How: all multi-byte fields are little-endian; the checksum is a 16-bit
// truncation of a CRC32-C over everything past the fixed header, mirroring
// the teacher's ComputePageCRC but truncated to the width spec.md specifies.
// Why: a byte-addressed, slotted layout keeps record bodies contiguous and
// independently relocatable from their slot ids, which is what lets the
// heap file hand out stable slot ids across updates and deletes.
package page

import (
	"encoding/binary"
	"hash/crc32"
)

// Size is the fixed page size in bytes.
const Size = 4096

// HeaderSize is the size of the common page header.
//
//	[0:4]   PageID    (uint32 LE)
//	[4:8]   LSN.Page  (uint32 LE)
//	[8:10]  LSN.Slot  (uint16 LE)
//	[10:12] Checksum  (uint16 LE)
//	[12:16] Reserved
const HeaderSize = 16

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// LSN is a log sequence number expressed as a (page, slot) pair, matching
// spec.md's "LSN as (page,slot)" encoding. LSNs order lexicographically:
// (p1,s1) < (p2,s2) iff p1<p2, or p1==p2 and s1<s2.
type LSN struct {
	Page uint32
	Slot uint16
}

// Less reports whether l sorts strictly before o.
func (l LSN) Less(o LSN) bool {
	if l.Page != o.Page {
		return l.Page < o.Page
	}
	return l.Slot < o.Slot
}

// Page wraps a fixed Size-byte buffer and exposes header operations. No
// other fields are permitted on this struct — everything lives in buf so
// that cloning is a byte copy.
type Page struct {
	buf [Size]byte
}

// New allocates a zeroed page and stamps the given id into the header.
func New(id uint32) *Page {
	p := &Page{}
	binary.LittleEndian.PutUint32(p.buf[0:4], id)
	return p
}

// Wrap returns a Page holding a copy of an existing Size-byte buffer.
func Wrap(buf *[Size]byte) *Page {
	return &Page{buf: *buf}
}

// FromBytes copies a page image out of a byte slice of length Size.
func FromBytes(b []byte) *Page {
	p := &Page{}
	copy(p.buf[:], b)
	return p
}

// Bytes returns the full underlying buffer.
func (p *Page) Bytes() []byte { return p.buf[:] }

// Clone returns a deep, independent copy.
func (p *Page) Clone() *Page {
	c := &Page{}
	c.buf = p.buf
	return c
}

// ID returns the page id stored in the header.
func (p *Page) ID() uint32 {
	return binary.LittleEndian.Uint32(p.buf[0:4])
}

// LSN returns the current LSN stored in the header.
func (p *Page) LSN() LSN {
	return LSN{
		Page: binary.LittleEndian.Uint32(p.buf[4:8]),
		Slot: binary.LittleEndian.Uint16(p.buf[8:10]),
	}
}

// SetLSN writes a new LSN iff it is strictly greater than the current one.
// A non-advancing write is a silent no-op, matching spec.md §4.1.
func (p *Page) SetLSN(l LSN) {
	if !p.LSN().Less(l) {
		return
	}
	binary.LittleEndian.PutUint32(p.buf[4:8], l.Page)
	binary.LittleEndian.PutUint16(p.buf[8:10], l.Slot)
}

// Checksum returns the stored 16-bit checksum.
func (p *Page) Checksum() uint16 {
	return binary.LittleEndian.Uint16(p.buf[10:12])
}

// computeChecksum hashes bytes [HeaderSize:Size) and truncates to 16 bits.
func (p *Page) computeChecksum() uint16 {
	h := crc32.New(crcTable)
	h.Write(p.buf[HeaderSize:])
	return uint16(h.Sum32())
}

// SetChecksum recomputes and stores the checksum over bytes [16:4096).
func (p *Page) SetChecksum() {
	binary.LittleEndian.PutUint16(p.buf[10:12], p.computeChecksum())
}

// VerifyChecksum reports whether the stored checksum matches the computed
// one, surfacing a storage-kind error on mismatch via the caller.
func (p *Page) VerifyChecksum() bool {
	return p.Checksum() == p.computeChecksum()
}
