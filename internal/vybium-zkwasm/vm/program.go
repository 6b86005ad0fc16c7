package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
)

// ErrUnknownExport is returned when an entry point is not exported
var ErrUnknownExport = errors.New("vm: unknown export")

// Op is one flat instruction with its immediates
type Op struct {
	Instr Instruction `json:"instr"`
	I     uint64      `json:"i,omitempty"`
	D     uint64      `json:"d,omitempty"`
}

// String returns the assembly form of the op
func (o Op) String() string {
	switch o.Instr {
	case Return, ReturnValue, BrTable:
		return fmt.Sprintf("%s %d %d", o.Instr, o.I, o.D)
	case Nop, Unreachable, Select, MemorySize:
		return o.Instr.String()
	}
	if o.Instr.Class() == ClassUnary || o.Instr.Class() == ClassBinary {
		return o.Instr.String()
	}
	return fmt.Sprintf("%s %d", o.Instr, o.I)
}

// Function describes a compiled function
type Function struct {
	Name       string `json:"name,omitempty"`
	Entry      uint64 `json:"entry"`
	NumParams  int    `json:"num_params"`
	NumResults int    `json:"num_results"`
	NumLocals  int    `json:"num_locals"`
}

// DataSegment initializes linear memory at Offset
type DataSegment struct {
	Offset uint64 `json:"offset"`
	Bytes  []byte `json:"bytes"`
}

// Program is a module lowered to the flat instruction set
type Program struct {
	Code        []Op           `json:"code"`
	Functions   []Function     `json:"functions"`
	Exports     map[string]int `json:"exports"`
	Globals     []uint64       `json:"globals"`
	HasMemory   bool           `json:"has_memory"`
	MemoryPages uint64         `json:"memory_pages"`
	MaxPages    uint64         `json:"max_pages"`
	Data        []DataSegment  `json:"data,omitempty"`
}

// HaltPC is the return address of the entry frame; reaching it halts the VM
func (p *Program) HaltPC() uint64 {
	return uint64(len(p.Code))
}

// Lookup returns the exported function name
func (p *Program) Lookup(name string) (Function, error) {
	idx, ok := p.Exports[name]
	if !ok || idx < 0 || idx >= len(p.Functions) {
		return Function{}, fmt.Errorf("%w: %q", ErrUnknownExport, name)
	}
	return p.Functions[idx], nil
}

// ExportNames returns the exported function names in sorted order
func (p *Program) ExportNames() []string {
	names := make([]string, 0, len(p.Exports))
	for n := range p.Exports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Digest hashes the code, globals and memory initialization
func (p *Program) Digest() core.Digest {
	buf := make([]byte, 0, 24*len(p.Code)+64)
	word := func(v uint64) {
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	word(uint64(len(p.Code)))
	for _, op := range p.Code {
		word(uint64(op.Instr))
		word(op.I)
		word(op.D)
	}
	word(uint64(len(p.Globals)))
	for _, g := range p.Globals {
		word(g)
	}
	if p.HasMemory {
		word(1)
	} else {
		word(0)
	}
	word(p.MemoryPages)
	word(p.MaxPages)
	for _, d := range p.Data {
		word(d.Offset)
		word(uint64(len(d.Bytes)))
		buf = append(buf, d.Bytes...)
	}
	return core.HashBytes(buf)
}

// Disassemble returns one line per op, annotated with function entries
func (p *Program) Disassemble() []string {
	entries := make(map[uint64]string, len(p.Functions))
	for i, f := range p.Functions {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("func%d", i)
		}
		entries[f.Entry] = name
	}
	lines := make([]string, 0, len(p.Code)+len(entries))
	for pc, op := range p.Code {
		if name, ok := entries[uint64(pc)]; ok {
			lines = append(lines, name+":")
		}
		lines = append(lines, fmt.Sprintf("  %5d  %s", pc, op))
	}
	return lines
}
