package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAddress is returned when a step touches a cell missing from the initial state
	ErrUnknownAddress = errors.New("vm: address outside the initial state")

	// ErrDuplicateAddress is returned when the initial state lists a cell twice
	ErrDuplicateAddress = errors.New("vm: duplicate address in initial state")

	// ErrStackUnderflow is returned when a step addresses below the bottom of the stack
	ErrStackUnderflow = errors.New("vm: stack underflow")

	// ErrNoTransition is returned for instructions that cannot be stepped
	ErrNoTransition = errors.New("vm: instruction has no transition")
)

// MemoryTrace replays steps against the final-state map and the global
// timestamp. It is the ground truth of the memory model: every access reads
// the current cell and writes it back with the next timestamp.
type MemoryTrace struct {
	order    []uint64
	fs       map[uint64]MemoryTuple
	globalTS uint64
}

// NewMemoryTrace starts a replay from the initial state
func NewMemoryTrace(is []MemoryTuple) (*MemoryTrace, error) {
	m := &MemoryTrace{
		order: make([]uint64, len(is)),
		fs:    make(map[uint64]MemoryTuple, len(is)),
	}
	for i, t := range is {
		if _, dup := m.fs[t.Addr]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateAddress, t.Addr)
		}
		m.order[i] = t.Addr
		m.fs[t.Addr] = t
	}
	return m, nil
}

// Timestamp returns the global timestamp after the last access
func (m *MemoryTrace) Timestamp() uint64 {
	return m.globalTS
}

// FinalState returns FS in the order of the initial state
func (m *MemoryTrace) FinalState() []MemoryTuple {
	out := make([]MemoryTuple, len(m.order))
	for i, a := range m.order {
		out[i] = m.fs[a]
	}
	return out
}

// Lookup returns the current tuple at addr
func (m *MemoryTrace) Lookup(addr uint64) (MemoryTuple, bool) {
	t, ok := m.fs[addr]
	return t, ok
}

type stepper struct {
	m     *MemoryTrace
	slots StepSlots
	w     *WitnessVM
	err   error

	// accesses are staged here and committed only when the whole step succeeds
	staged map[uint64]MemoryTuple
	ts     uint64
}

func (s *stepper) access(addr uint64, write bool, val uint64) (MemorySlot, error) {
	old, ok := s.staged[addr]
	if !ok {
		if old, ok = s.m.fs[addr]; !ok {
			return MemorySlot{}, fmt.Errorf("%w: %d", ErrUnknownAddress, addr)
		}
	}
	if !write {
		val = old.Val
	}
	s.ts++
	ws := MemoryTuple{Addr: addr, Val: val, TS: s.ts}
	s.staged[addr] = ws
	return MemorySlot{RS: old, WS: ws, Active: true}, nil
}

func (s *stepper) commit() {
	for a, t := range s.staged {
		s.m.fs[a] = t
	}
	s.m.globalTS = s.ts
}

func (s *stepper) below(c uint64) uint64 {
	if s.err == nil && s.w.PreSP < c {
		s.err = fmt.Errorf("%w: sp=%d depth=%d at %s", ErrStackUnderflow, s.w.PreSP, c, s.w.Instr)
	}
	return StackAddr(s.w.PreSP - c)
}

func (s *stepper) read(slot int, addr uint64) {
	if s.err != nil {
		return
	}
	s.slots[slot], s.err = s.access(addr, false, 0)
}

func (s *stepper) update(slot int, addr, val uint64) {
	if s.err != nil {
		return
	}
	s.slots[slot], s.err = s.access(addr, true, val)
}

// Step performs the accesses of w in slot order and returns them. A failed
// step leaves the final state and the timestamp untouched.
func (m *MemoryTrace) Step(w WitnessVM) (StepSlots, error) {
	s := &stepper{m: m, w: &w, staged: make(map[uint64]MemoryTuple, NumSlots), ts: m.globalTS}
	sp := w.PreSP
	switch cls := w.Instr.Class(); {
	case cls == ClassLoad:
		ea := w.Y + w.I
		s.update(0, s.below(1), w.Z)
		s.read(2, DwordAddr(ea>>3))
		s.read(3, DwordAddr(ea>>3+1))
	case cls == ClassStore:
		ea := w.Y + w.I
		s.read(0, s.below(1))
		s.read(1, s.below(2))
		s.update(2, DwordAddr(ea>>3), w.P)
		s.update(3, DwordAddr(ea>>3+1), w.Q)
	case cls == ClassUnary:
		s.update(0, s.below(1), w.Z)
	case cls == ClassBinary:
		s.read(0, s.below(1))
		s.update(1, s.below(2), w.Z)
	default:
		switch w.Instr {
		case Nop, Drop, Br:
		case DropKeep:
			s.read(0, s.below(1))
			s.update(1, s.below(1+w.I), w.Z)
		case Select:
			s.read(0, s.below(1))
			s.read(1, s.below(2))
			s.update(2, s.below(3), w.Z)
		case BrIfEqz, BrIfNez, BrTable:
			s.read(0, s.below(1))
		case Call:
			s.update(0, StackAddr(sp), w.Z)
		case Return:
			s.read(0, s.below(w.D))
		case ReturnValue:
			s.read(0, s.below(1))
			s.read(1, s.below(w.D))
			s.update(2, s.below(w.I+1), w.Z)
		case LocalGet:
			s.read(0, s.below(w.I))
			s.update(1, StackAddr(sp), w.Z)
		case LocalSet, LocalTee:
			s.read(0, s.below(1))
			s.update(1, s.below(w.I), w.Z)
		case GlobalGet:
			s.read(0, GlobalAddr(w.I))
			s.update(1, StackAddr(sp), w.Z)
		case GlobalSet:
			s.read(0, s.below(1))
			s.update(1, GlobalAddr(w.I), w.Z)
		case Const:
			s.update(0, StackAddr(sp), w.I)
		case MemorySize:
			s.read(0, MemSizeAddr)
			s.update(1, StackAddr(sp), w.Z)
		case MemoryGrow:
			s.update(0, s.below(1), w.Z)
			s.update(1, MemSizeAddr, w.P)
		default:
			return StepSlots{}, fmt.Errorf("%w: %s", ErrNoTransition, w.Instr)
		}
	}
	if s.err != nil {
		return StepSlots{}, s.err
	}
	s.commit()
	return s.slots, nil
}
