package vm

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
)

const (
	// NumSlots is the number of memory accesses a single step may perform
	NumSlots = 4

	// MemoryOpsPerStep counts the RS and WS tuples of a step
	MemoryOpsPerStep = 2 * NumSlots

	// SlotAdviceLen is the number of scalars a slot contributes to the advice vector
	SlotAdviceLen = 7

	// StepAdviceLen is the number of advice scalars per step
	StepAdviceLen = NumSlots * SlotAdviceLen

	// CellAdviceLen is the number of advice scalars per scanned memory cell
	CellAdviceLen = 6
)

// WitnessVM is the observable effect of one VM step.
//
// Scratch fields by class:
//   - binary: X = lhs (sp-2), Y = rhs (sp-1), Z = result
//   - unary: X = operand, Z = result
//   - load: Y = base address, Z = loaded value
//   - store: X = value, Y = base address, P/Q = new contents of the two touched double-words
//   - memory.grow: X = delta, Z = result, P = new size
//   - branches: X = condition or table index
//   - everything else: Z = the value written, if any
type WitnessVM struct {
	Instr  Instruction `json:"instr"`
	J      uint64      `json:"j"`
	PrePC  uint64      `json:"pre_pc"`
	PostPC uint64      `json:"post_pc"`
	PreSP  uint64      `json:"pre_sp"`
	PostSP uint64      `json:"post_sp"`
	X      uint64      `json:"x"`
	Y      uint64      `json:"y"`
	Z      uint64      `json:"z"`
	P      uint64      `json:"p"`
	Q      uint64      `json:"q"`
	I      uint64      `json:"i"`
	D      uint64      `json:"d"`
}

// NopAt returns a padding step that leaves (pc, sp) unchanged
func NopAt(pc, sp uint64) WitnessVM {
	return WitnessVM{Instr: Nop, J: Nop.J(), PrePC: pc, PostPC: pc, PreSP: sp, PostSP: sp}
}

// String returns a one-line description of the step
func (w WitnessVM) String() string {
	return fmt.Sprintf("%s pc=%d->%d sp=%d->%d i=%d", w.Instr, w.PrePC, w.PostPC, w.PreSP, w.PostSP, w.I)
}

// MemoryTuple is "at time TS, address Addr held Val"
type MemoryTuple struct {
	Addr uint64 `json:"addr"`
	Val  uint64 `json:"val"`
	TS   uint64 `json:"ts"`
}

// MemorySlot is one access of a step: the tuple read and the tuple written back
type MemorySlot struct {
	RS     MemoryTuple `json:"rs"`
	WS     MemoryTuple `json:"ws"`
	Active bool        `json:"active"`
}

// AppendAdvice appends the slot in advice order: RS addr/val/ts, WS addr/val/ts, active
func (s MemorySlot) AppendAdvice(dst []fr.Element) []fr.Element {
	return append(dst,
		core.NewElement(s.RS.Addr), core.NewElement(s.RS.Val), core.NewElement(s.RS.TS),
		core.NewElement(s.WS.Addr), core.NewElement(s.WS.Val), core.NewElement(s.WS.TS),
		core.Bool(s.Active),
	)
}

// StepSlots holds the accesses of one step in execution order
type StepSlots [NumSlots]MemorySlot

// AppendAdvice appends all slots in order
func (s *StepSlots) AppendAdvice(dst []fr.Element) []fr.Element {
	for i := range s {
		dst = s[i].AppendAdvice(dst)
	}
	return dst
}

// AppendCellAdvice appends an IS/FS cell pair
func AppendCellAdvice(dst []fr.Element, is, fs MemoryTuple) []fr.Element {
	return append(dst,
		core.NewElement(is.Addr), core.NewElement(is.Val), core.NewElement(is.TS),
		core.NewElement(fs.Addr), core.NewElement(fs.Val), core.NewElement(fs.TS),
	)
}
