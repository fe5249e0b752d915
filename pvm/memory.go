package pvm

import "encoding/binary"

// AccessTag is the per-page permission: unmapped, readable, or read-write.
type AccessTag byte

const (
	Unmapped AccessTag = iota
	ReadOnly
	ReadWrite
)

// page group/slot sizing per §9 design note: a directory of page-group
// slots, allocated lazily on first touch. The address space is 2^32 bytes
// over 4 KiB pages, i.e. 2^20 possible pages; we group them 1024-per-slot
// so the top-level directory has 1024 entries, each lazily allocated.
const (
	pagesPerGroup = 1024
	numGroups     = 1 << 20 / pagesPerGroup // 1024
)

type page struct {
	data   [pageSize]byte
	access AccessTag
}

type pageGroup struct {
	pages [pagesPerGroup]*page
}

// Memory is a sparse byte-addressable view of the PVM's 2^32-byte address
// space: a two-level page table, lazily allocated, with a single-page
// pointer cache to amortize repeated in-page accesses (§9).
type Memory struct {
	groups [numGroups]*pageGroup

	cacheIdx  uint32
	cachePage *page
	cacheOK   bool

	// Fault is set by any access that touches an unmapped page, or a write
	// to a read-only page. Callers must check it after every operation;
	// the PVM core translates it into execution status PageFault.
	Fault bool
}

// NewMemory returns an empty, fully-unmapped address space.
func NewMemory() *Memory {
	return &Memory{}
}

func pageIndex(addr uint32) uint32 {
	return addr / pageSize
}

func (m *Memory) lookup(idx uint32, create bool) *page {
	if m.cacheOK && m.cacheIdx == idx {
		return m.cachePage
	}
	groupIdx := idx / pagesPerGroup
	slotIdx := idx % pagesPerGroup
	g := m.groups[groupIdx]
	if g == nil {
		if !create {
			return nil
		}
		g = &pageGroup{}
		m.groups[groupIdx] = g
	}
	p := g.pages[slotIdx]
	if p == nil && create {
		p = &page{}
		g.pages[slotIdx] = p
	}
	if p != nil {
		m.cacheIdx, m.cachePage, m.cacheOK = idx, p, true
	}
	return p
}

// Map installs access over [addr, addr+length) with the given tag,
// allocating backing pages as needed. Used at invocation setup to lay out
// ro-data, rw-data, the stack and the argument buffer per §4.4.
func (m *Memory) Map(addr uint32, length uint32, tag AccessTag) {
	start := pageIndex(addr)
	end := pageIndex(addr + length - 1)
	for idx := start; idx <= end; idx++ {
		p := m.lookup(idx, true)
		p.access = tag
	}
}

// WriteInit copies src into the address space starting at addr without
// consulting access tags (so it also fills ReadOnly regions), allocating
// any missing page; used only by the invocation setup code (guest writes
// go through WriteU8/WriteN/WriteBytes, which enforce access tags).
func (m *Memory) WriteInit(addr uint32, src []byte) {
	for i, b := range src {
		idx := pageIndex(addr + uint32(i))
		p := m.lookup(idx, true)
		p.data[(addr+uint32(i))%pageSize] = b
	}
}

func (m *Memory) pageFor(addr uint32, write bool) *page {
	idx := pageIndex(addr)
	p := m.lookup(idx, write)
	if p == nil || p.access == Unmapped || (write && p.access != ReadWrite) {
		m.Fault = true
		return nil
	}
	return p
}

// ReadU8 reads a single byte. On a fault it returns 0 and sets m.Fault.
func (m *Memory) ReadU8(addr uint32) byte {
	p := m.pageFor(addr, false)
	if p == nil {
		return 0
	}
	return p.data[addr%pageSize]
}

// WriteU8 writes a single byte. On a fault it sets m.Fault and performs no
// mutation.
func (m *Memory) WriteU8(addr uint32, v byte) {
	p := m.pageFor(addr, true)
	if p == nil {
		return
	}
	p.data[addr%pageSize] = v
}

// ReadN reads a little-endian unsigned value of the given width (1, 2, 4 or
// 8 bytes). Unaligned and cross-page accesses are decomposed into per-byte
// reads, per §4.2.
func (m *Memory) ReadN(addr uint32, width int) uint64 {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		buf[i] = m.ReadU8(addr + uint32(i))
		if m.Fault {
			return 0
		}
	}
	switch width {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	default:
		panic("pvm: unsupported memory access width")
	}
}

// WriteN writes a little-endian value of the given width.
func (m *Memory) WriteN(addr uint32, width int, v uint64) {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	default:
		panic("pvm: unsupported memory access width")
	}
	for i := 0; i < width; i++ {
		m.WriteU8(addr+uint32(i), buf[i])
		if m.Fault {
			return
		}
	}
}

// ReadBytes copies length bytes starting at addr into a fresh slice,
// faulting (and returning nil) on the first unmapped/unreadable page.
func (m *Memory) ReadBytes(addr uint32, length uint32) []byte {
	out := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		out[i] = m.ReadU8(addr + i)
		if m.Fault {
			return nil
		}
	}
	return out
}

// WriteBytes writes src starting at addr, faulting on the first
// unwritable page; any bytes already written before the fault stay
// written (callers that need atomicity across a fault must pre-check with
// IsWritable).
func (m *Memory) WriteBytes(addr uint32, src []byte) {
	for i, b := range src {
		m.WriteU8(addr+uint32(i), b)
		if m.Fault {
			return
		}
	}
}

// IsWritable reports whether the whole [addr, addr+length) span is mapped
// read-write, without mutating m.Fault. Host calls use this to validate a
// guest-supplied pointer before committing any side effect (§4.5).
func (m *Memory) IsWritable(addr uint32, length uint32) bool {
	if length == 0 {
		return true
	}
	start := pageIndex(addr)
	end := pageIndex(addr + length - 1)
	for idx := start; idx <= end; idx++ {
		p := m.lookup(idx, false)
		if p == nil || p.access != ReadWrite {
			return false
		}
	}
	return true
}

// IsReadable reports whether the whole span is mapped with at least
// read access.
func (m *Memory) IsReadable(addr uint32, length uint32) bool {
	if length == 0 {
		return true
	}
	start := pageIndex(addr)
	end := pageIndex(addr + length - 1)
	for idx := start; idx <= end; idx++ {
		p := m.lookup(idx, false)
		if p == nil || p.access == Unmapped {
			return false
		}
	}
	return true
}
