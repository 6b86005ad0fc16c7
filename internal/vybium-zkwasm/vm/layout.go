package vm

import "encoding/binary"

// Flat address space, in ascending order: value stack slots, linear memory
// double-words, the memory size cell followed by globals, then synthetic
// padding addresses that never hold program data.
const (
	StackBase   uint64 = 0
	MemoryBase  uint64 = 1 << 32
	GlobalBase  uint64 = MemoryBase + 1<<30
	MemSizeAddr uint64 = GlobalBase
	PaddingBase uint64 = GlobalBase + 1<<32

	PageSize      = 65536
	DwordsPerPage = PageSize / 8

	// MaxPages is the 4 GiB limit of 32-bit linear memory
	MaxPages = 65536
)

// StackAddr returns the address of stack slot i
func StackAddr(i uint64) uint64 { return StackBase + i }

// DwordAddr returns the address of linear memory double-word k
func DwordAddr(k uint64) uint64 { return MemoryBase + k }

// GlobalAddr returns the address of global i
func GlobalAddr(i uint64) uint64 { return GlobalBase + 1 + i }

// MemoryImage is a snapshot of VM memory without timestamps
type MemoryImage struct {
	Stack   []uint64 `json:"stack"`
	Memory  []byte   `json:"-"`
	Pages   uint64   `json:"pages"`
	Globals []uint64 `json:"globals"`
}

// Dword returns linear memory double-word k, zero beyond the end of memory
func (m *MemoryImage) Dword(k uint64) uint64 {
	var buf [8]byte
	off := k * 8
	if off < uint64(len(m.Memory)) {
		copy(buf[:], m.Memory[off:])
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// StackSlot returns stack slot i, zero beyond the recorded stack
func (m *MemoryImage) StackSlot(i uint64) uint64 {
	if i < uint64(len(m.Stack)) {
		return m.Stack[i]
	}
	return 0
}

// Layout sizes the regions of the flat address space for one execution
type Layout struct {
	StackSlots   uint64 `json:"stack_slots"`
	MemoryDwords uint64 `json:"memory_dwords"`
	NumGlobals   uint64 `json:"num_globals"`
}

// NewLayout sizes the memory region for pages of memory plus one guard double-word
// so that every aligned 128-bit window inside memory exists.
func NewLayout(stackSlots, pages uint64, hasMemory bool, numGlobals int) Layout {
	l := Layout{StackSlots: stackSlots, NumGlobals: uint64(numGlobals)}
	if hasMemory {
		l.MemoryDwords = pages*DwordsPerPage + 1
	}
	return l
}

// NumCells returns the number of cells in the snapshot
func (l Layout) NumCells() int {
	return int(l.StackSlots + l.MemoryDwords + 1 + l.NumGlobals)
}

// Snapshot lists every cell of img in address order with timestamp 0
func (l Layout) Snapshot(img *MemoryImage) []MemoryTuple {
	cells := make([]MemoryTuple, 0, l.NumCells())
	for i := uint64(0); i < l.StackSlots; i++ {
		cells = append(cells, MemoryTuple{Addr: StackAddr(i), Val: img.StackSlot(i)})
	}
	for k := uint64(0); k < l.MemoryDwords; k++ {
		cells = append(cells, MemoryTuple{Addr: DwordAddr(k), Val: img.Dword(k)})
	}
	cells = append(cells, MemoryTuple{Addr: MemSizeAddr, Val: img.Pages})
	for i := uint64(0); i < l.NumGlobals; i++ {
		var v uint64
		if i < uint64(len(img.Globals)) {
			v = img.Globals[i]
		}
		cells = append(cells, MemoryTuple{Addr: GlobalAddr(i), Val: v})
	}
	return cells
}

// PadCells extends cells to a multiple of step with zero tuples at synthetic addresses
func PadCells(cells []MemoryTuple, step int) []MemoryTuple {
	out := append([]MemoryTuple(nil), cells...)
	for i := uint64(0); len(out)%step != 0 || len(out) == 0; i++ {
		out = append(out, MemoryTuple{Addr: PaddingBase + i})
	}
	return out
}
