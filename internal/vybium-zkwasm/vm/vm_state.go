package vm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Traps and interpreter failures
var (
	ErrDivideByZero       = errors.New("vm: integer divide by zero")
	ErrIntegerOverflow    = errors.New("vm: integer overflow")
	ErrOutOfBounds        = errors.New("vm: out of bounds memory access")
	ErrUnreachable        = errors.New("vm: unreachable executed")
	ErrStackOverflow      = errors.New("vm: stack overflow")
	ErrStepLimit          = errors.New("vm: step limit exceeded")
	ErrHalted             = errors.New("vm: machine halted")
	ErrInvalidInstruction = errors.New("vm: invalid instruction")
	ErrArgumentCount      = errors.New("vm: wrong number of arguments")
)

// MaxStackSlots bounds the value stack
const MaxStackSlots = 1 << 20

const mask32 = math.MaxUint32

// VMState is the interpreter state of the flat instruction set
type VMState struct {
	Program *Program

	Stack   []uint64
	SP      uint64
	PC      uint64
	Memory  []byte
	Pages   uint64
	Globals []uint64

	// StackHigh is one past the highest stack slot ever touched
	StackHigh uint64
	Cycles    uint64

	initial *MemoryImage
	entry   Function
}

// ExecutionTrace is everything the prover needs from one run
type ExecutionTrace struct {
	Steps   []WitnessVM  `json:"steps"`
	Initial *MemoryImage `json:"initial"`
	Final   *MemoryImage `json:"final"`
	Layout  Layout       `json:"layout"`
	Results []uint64     `json:"results"`
	EntryPC uint64       `json:"entry_pc"`
	EntrySP uint64       `json:"entry_sp"`
	HaltPC  uint64       `json:"halt_pc"`
}

// InitialState returns IS for the trace layout
func (t *ExecutionTrace) InitialState() []MemoryTuple {
	return t.Layout.Snapshot(t.Initial)
}

// NewVMState prepares a call of the exported function with args.
// The entry frame holds the arguments followed by the halt sentinel.
func NewVMState(p *Program, export string, args []uint64) (*VMState, error) {
	fn, err := p.Lookup(export)
	if err != nil {
		return nil, err
	}
	if len(args) != fn.NumParams {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArgumentCount, export, fn.NumParams, len(args))
	}
	vm := &VMState{
		Program: p,
		Stack:   make([]uint64, len(args)+1, len(args)+64),
		PC:      fn.Entry,
		Globals: append([]uint64(nil), p.Globals...),
		entry:   fn,
	}
	copy(vm.Stack, args)
	vm.Stack[len(args)] = p.HaltPC()
	vm.SP = uint64(len(vm.Stack))
	vm.StackHigh = vm.SP

	if p.HasMemory {
		vm.Pages = p.MemoryPages
		vm.Memory = make([]byte, vm.Pages*PageSize)
		for _, d := range p.Data {
			end := d.Offset + uint64(len(d.Bytes))
			if end > uint64(len(vm.Memory)) {
				return nil, fmt.Errorf("%w: data segment [%d, %d)", ErrOutOfBounds, d.Offset, end)
			}
			copy(vm.Memory[d.Offset:], d.Bytes)
		}
	}
	vm.initial = vm.Image()
	return vm, nil
}

// Halted reports whether the entry function returned
func (vm *VMState) Halted() bool {
	return vm.PC == vm.Program.HaltPC()
}

// Image snapshots stack, memory and globals
func (vm *VMState) Image() *MemoryImage {
	return &MemoryImage{
		Stack:   append([]uint64(nil), vm.Stack[:vm.StackHigh]...),
		Memory:  append([]byte(nil), vm.Memory...),
		Pages:   vm.Pages,
		Globals: append([]uint64(nil), vm.Globals...),
	}
}

// Run steps until halt, returning the full trace
func (vm *VMState) Run(ctx context.Context, maxSteps uint64) (*ExecutionTrace, error) {
	trace := &ExecutionTrace{
		Initial: vm.initial,
		EntryPC: vm.PC,
		EntrySP: vm.SP,
		HaltPC:  vm.Program.HaltPC(),
	}
	for !vm.Halted() {
		if vm.Cycles >= maxSteps {
			return nil, fmt.Errorf("%w: %d", ErrStepLimit, maxSteps)
		}
		if vm.Cycles&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		w, err := vm.Step()
		if err != nil {
			return nil, err
		}
		trace.Steps = append(trace.Steps, w)
	}
	trace.Final = vm.Image()
	trace.Layout = NewLayout(vm.StackHigh, vm.Pages, vm.Program.HasMemory, len(vm.Globals))
	trace.Results = make([]uint64, vm.entry.NumResults)
	copy(trace.Results, vm.Stack[:vm.entry.NumResults])
	return trace, nil
}

func (vm *VMState) peek(d uint64) uint64 {
	return vm.Stack[vm.SP-d]
}

func (vm *VMState) set(addr, v uint64) error {
	if addr >= MaxStackSlots {
		return fmt.Errorf("%w at slot %d", ErrStackOverflow, addr)
	}
	for uint64(len(vm.Stack)) <= addr {
		vm.Stack = append(vm.Stack, 0)
	}
	vm.Stack[addr] = v
	if addr+1 > vm.StackHigh {
		vm.StackHigh = addr + 1
	}
	return nil
}

func (vm *VMState) need(n uint64, instr Instruction) error {
	if vm.SP < n {
		return fmt.Errorf("%w: %s needs %d operands, sp=%d", ErrStackUnderflow, instr, n, vm.SP)
	}
	return nil
}

// Step executes the instruction at PC and returns its witness
func (vm *VMState) Step() (WitnessVM, error) {
	if vm.Halted() {
		return WitnessVM{}, ErrHalted
	}
	if vm.PC > uint64(len(vm.Program.Code)) {
		return WitnessVM{}, fmt.Errorf("%w: pc %d", ErrInvalidInstruction, vm.PC)
	}
	op := vm.Program.Code[vm.PC]
	w := WitnessVM{
		Instr: op.Instr,
		J:     op.Instr.J(),
		PrePC: vm.PC,
		PreSP: vm.SP,
		I:     op.I,
		D:     op.D,
	}
	nextPC := vm.PC + 1
	sp := vm.SP
	var err error

	switch op.Instr.Class() {
	case ClassBinary:
		if err = vm.need(2, op.Instr); err != nil {
			break
		}
		w.X, w.Y = vm.peek(2), vm.peek(1)
		if w.Z, err = Binary(op.Instr, w.X, w.Y); err != nil {
			break
		}
		err = vm.set(sp-2, w.Z)
		sp--
	case ClassUnary:
		if err = vm.need(1, op.Instr); err != nil {
			break
		}
		w.X = vm.peek(1)
		w.Z = Unary(op.Instr, w.X)
		err = vm.set(sp-1, w.Z)
	case ClassLoad:
		if err = vm.need(1, op.Instr); err != nil {
			break
		}
		w.Y = vm.peek(1)
		if w.Z, err = vm.load(op.Instr, w.Y+op.I); err != nil {
			break
		}
		err = vm.set(sp-1, w.Z)
	case ClassStore:
		if err = vm.need(2, op.Instr); err != nil {
			break
		}
		w.X, w.Y = vm.peek(1), vm.peek(2)
		ea := w.Y + op.I
		if err = vm.store(op.Instr, ea, w.X); err != nil {
			break
		}
		img := MemoryImage{Memory: vm.Memory}
		w.P, w.Q = img.Dword(ea>>3), img.Dword(ea>>3+1)
		sp -= 2
	default:
		nextPC, sp, err = vm.control(op, &w)
	}
	if err != nil {
		return WitnessVM{}, fmt.Errorf("pc %d (%s): %w", vm.PC, op.Instr, err)
	}
	vm.PC, vm.SP = nextPC, sp
	vm.Cycles++
	w.PostPC, w.PostSP = nextPC, sp
	return w, nil
}

func (vm *VMState) control(op Op, w *WitnessVM) (uint64, uint64, error) {
	pc, sp := vm.PC, vm.SP
	switch op.Instr {
	case Nop:
		return 0, 0, fmt.Errorf("%w: nop is reserved for padding", ErrInvalidInstruction)
	case Unreachable:
		return 0, 0, ErrUnreachable
	case Drop:
		if err := vm.need(op.I, op.Instr); err != nil {
			return 0, 0, err
		}
		return pc + 1, sp - op.I, nil
	case DropKeep:
		if err := vm.need(op.I+1, op.Instr); err != nil {
			return 0, 0, err
		}
		w.Z = vm.peek(1)
		return pc + 1, sp - op.I, vm.set(sp-1-op.I, w.Z)
	case Select:
		if err := vm.need(3, op.Instr); err != nil {
			return 0, 0, err
		}
		w.X = vm.peek(1)
		w.Z = vm.peek(2)
		if w.X&mask32 != 0 {
			w.Z = vm.peek(3)
		}
		return pc + 1, sp - 2, vm.set(sp-3, w.Z)
	case Br:
		return op.I, sp, nil
	case BrIfEqz, BrIfNez:
		if err := vm.need(1, op.Instr); err != nil {
			return 0, 0, err
		}
		w.X = vm.peek(1)
		if (w.X&mask32 == 0) == (op.Instr == BrIfEqz) {
			return op.I, sp - 1, nil
		}
		return pc + 1, sp - 1, nil
	case BrTable:
		if err := vm.need(1, op.Instr); err != nil {
			return 0, 0, err
		}
		w.X = vm.peek(1)
		return op.I + min(w.X&mask32, op.D), sp - 1, nil
	case Call:
		w.Z = pc + 1
		return op.I, sp + 1, vm.set(sp, w.Z)
	case Return:
		if err := vm.need(max(op.I, op.D), op.Instr); err != nil {
			return 0, 0, err
		}
		return vm.peek(op.D), sp - op.I, nil
	case ReturnValue:
		if err := vm.need(max(op.I+1, op.D), op.Instr); err != nil {
			return 0, 0, err
		}
		w.Z = vm.peek(1)
		ra := vm.peek(op.D)
		return ra, sp - op.I, vm.set(sp-op.I-1, w.Z)
	case LocalGet:
		if op.I == 0 {
			return 0, 0, fmt.Errorf("%w: local depth 0", ErrInvalidInstruction)
		}
		if err := vm.need(op.I, op.Instr); err != nil {
			return 0, 0, err
		}
		w.Z = vm.peek(op.I)
		return pc + 1, sp + 1, vm.set(sp, w.Z)
	case LocalSet, LocalTee:
		if op.I == 0 {
			return 0, 0, fmt.Errorf("%w: local depth 0", ErrInvalidInstruction)
		}
		if err := vm.need(op.I, op.Instr); err != nil {
			return 0, 0, err
		}
		w.Z = vm.peek(1)
		next := sp - 1
		if op.Instr == LocalTee {
			next = sp
		}
		return pc + 1, next, vm.set(sp-op.I, w.Z)
	case GlobalGet, GlobalSet:
		if op.I >= uint64(len(vm.Globals)) {
			return 0, 0, fmt.Errorf("%w: global %d", ErrInvalidInstruction, op.I)
		}
		if op.Instr == GlobalGet {
			w.Z = vm.Globals[op.I]
			return pc + 1, sp + 1, vm.set(sp, w.Z)
		}
		if err := vm.need(1, op.Instr); err != nil {
			return 0, 0, err
		}
		w.Z = vm.peek(1)
		vm.Globals[op.I] = w.Z
		return pc + 1, sp - 1, nil
	case Const:
		w.Z = op.I
		return pc + 1, sp + 1, vm.set(sp, op.I)
	case MemorySize:
		if !vm.Program.HasMemory {
			return 0, 0, fmt.Errorf("%w: module has no memory", ErrInvalidInstruction)
		}
		w.Z = vm.Pages
		return pc + 1, sp + 1, vm.set(sp, w.Z)
	case MemoryGrow:
		if !vm.Program.HasMemory {
			return 0, 0, fmt.Errorf("%w: module has no memory", ErrInvalidInstruction)
		}
		if err := vm.need(1, op.Instr); err != nil {
			return 0, 0, err
		}
		w.X = vm.peek(1)
		delta := w.X & mask32
		w.Z, w.P = mask32, vm.Pages
		if vm.Pages+delta <= op.I {
			w.Z = vm.Pages
			vm.Pages += delta
			vm.Memory = append(vm.Memory, make([]byte, delta*PageSize)...)
			w.P = vm.Pages
		}
		return pc + 1, sp, vm.set(sp-1, w.Z)
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrInvalidInstruction, op.Instr)
}

func (vm *VMState) bounds(ea uint64, n int) error {
	if ea+uint64(n) > vm.Pages*PageSize {
		return fmt.Errorf("%w: [%d, %d) with %d pages", ErrOutOfBounds, ea, ea+uint64(n), vm.Pages)
	}
	return nil
}

func (vm *VMState) load(instr Instruction, ea uint64) (uint64, error) {
	n := instr.AccessBytes()
	if err := vm.bounds(ea, n); err != nil {
		return 0, err
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(vm.Memory[ea+uint64(i)])
	}
	return ExtendLoad(instr, v), nil
}

func (vm *VMState) store(instr Instruction, ea, v uint64) error {
	n := instr.AccessBytes()
	if err := vm.bounds(ea, n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		vm.Memory[ea+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

// ExtendLoad widens the raw little-endian bytes of a load to its result type
func ExtendLoad(instr Instruction, raw uint64) uint64 {
	n := instr.AccessBytes()
	if instr.SignedLoad() {
		shift := uint(64 - 8*n)
		raw = uint64(int64(raw<<shift) >> shift)
	}
	if instr.Width() == 32 {
		raw &= mask32
	}
	return raw
}

func boolean(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Unary evaluates a unary instruction on a zero-extended operand
func Unary(instr Instruction, x uint64) uint64 {
	x32 := uint32(x)
	switch instr {
	case I32Eqz:
		return boolean(x32 == 0)
	case I64Eqz:
		return boolean(x == 0)
	case I32Clz:
		return uint64(bits.LeadingZeros32(x32))
	case I32Ctz:
		return uint64(bits.TrailingZeros32(x32))
	case I32Popcnt:
		return uint64(bits.OnesCount32(x32))
	case I64Clz:
		return uint64(bits.LeadingZeros64(x))
	case I64Ctz:
		return uint64(bits.TrailingZeros64(x))
	case I64Popcnt:
		return uint64(bits.OnesCount64(x))
	case I32WrapI64, I64ExtendI32U:
		return uint64(x32)
	case I64ExtendI32S:
		return uint64(int64(int32(x32)))
	case I32Extend8S:
		return uint64(uint32(int32(int8(x32))))
	case I32Extend16S:
		return uint64(uint32(int32(int16(x32))))
	case I64Extend8S:
		return uint64(int64(int8(x)))
	case I64Extend16S:
		return uint64(int64(int16(x)))
	case I64Extend32S:
		return uint64(int64(int32(x)))
	}
	panic(fmt.Sprintf("vm: %s is not unary", instr))
}

// Binary evaluates x op y on zero-extended operands
func Binary(instr Instruction, x, y uint64) (uint64, error) {
	if instr.Width() == 32 {
		z, err := binary32(instr, uint32(x), uint32(y))
		return uint64(z), err
	}
	return binary64(instr, x, y)
}

func binary32(instr Instruction, x, y uint32) (uint32, error) {
	sx, sy := int32(x), int32(y)
	switch instr {
	case I32Eq:
		return uint32(boolean(x == y)), nil
	case I32Ne:
		return uint32(boolean(x != y)), nil
	case I32LtS:
		return uint32(boolean(sx < sy)), nil
	case I32LtU:
		return uint32(boolean(x < y)), nil
	case I32GtS:
		return uint32(boolean(sx > sy)), nil
	case I32GtU:
		return uint32(boolean(x > y)), nil
	case I32LeS:
		return uint32(boolean(sx <= sy)), nil
	case I32LeU:
		return uint32(boolean(x <= y)), nil
	case I32GeS:
		return uint32(boolean(sx >= sy)), nil
	case I32GeU:
		return uint32(boolean(x >= y)), nil
	case I32Add:
		return x + y, nil
	case I32Sub:
		return x - y, nil
	case I32Mul:
		return x * y, nil
	case I32DivS:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		if sx == math.MinInt32 && sy == -1 {
			return 0, ErrIntegerOverflow
		}
		return uint32(sx / sy), nil
	case I32DivU:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x / y, nil
	case I32RemS:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return uint32(sx % sy), nil
	case I32RemU:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x % y, nil
	case I32And:
		return x & y, nil
	case I32Or:
		return x | y, nil
	case I32Xor:
		return x ^ y, nil
	case I32Shl:
		return x << (y & 31), nil
	case I32ShrS:
		return uint32(sx >> (y & 31)), nil
	case I32ShrU:
		return x >> (y & 31), nil
	case I32Rotl:
		return bits.RotateLeft32(x, int(y&31)), nil
	case I32Rotr:
		return bits.RotateLeft32(x, -int(y&31)), nil
	}
	return 0, fmt.Errorf("%w: %s is not binary", ErrInvalidInstruction, instr)
}

func binary64(instr Instruction, x, y uint64) (uint64, error) {
	sx, sy := int64(x), int64(y)
	switch instr {
	case I64Eq:
		return boolean(x == y), nil
	case I64Ne:
		return boolean(x != y), nil
	case I64LtS:
		return boolean(sx < sy), nil
	case I64LtU:
		return boolean(x < y), nil
	case I64GtS:
		return boolean(sx > sy), nil
	case I64GtU:
		return boolean(x > y), nil
	case I64LeS:
		return boolean(sx <= sy), nil
	case I64LeU:
		return boolean(x <= y), nil
	case I64GeS:
		return boolean(sx >= sy), nil
	case I64GeU:
		return boolean(x >= y), nil
	case I64Add:
		return x + y, nil
	case I64Sub:
		return x - y, nil
	case I64Mul:
		return x * y, nil
	case I64DivS:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		if sx == math.MinInt64 && sy == -1 {
			return 0, ErrIntegerOverflow
		}
		return uint64(sx / sy), nil
	case I64DivU:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x / y, nil
	case I64RemS:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return uint64(sx % sy), nil
	case I64RemU:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x % y, nil
	case I64And:
		return x & y, nil
	case I64Or:
		return x | y, nil
	case I64Xor:
		return x ^ y, nil
	case I64Shl:
		return x << (y & 63), nil
	case I64ShrS:
		return uint64(sx >> (y & 63)), nil
	case I64ShrU:
		return x >> (y & 63), nil
	case I64Rotl:
		return bits.RotateLeft64(x, int(y&63)), nil
	case I64Rotr:
		return bits.RotateLeft64(x, -int(y&63)), nil
	}
	return 0, fmt.Errorf("%w: %s is not binary", ErrInvalidInstruction, instr)
}
