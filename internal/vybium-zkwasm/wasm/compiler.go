package wasm

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

// Compile lowers a decoded module to the flat instruction set.
//
// Every function frame on the value stack is laid out as
//
//	[params][return address][locals][operands]
//
// so a local is addressed by its depth below the stack pointer, which the
// compiler knows statically from the operand height.
func Compile(m *Module) (*vm.Program, error) {
	if len(m.Imports) > 0 {
		return nil, fmt.Errorf("%w: imports", ErrUnsupported)
	}
	if m.Start != nil {
		return nil, fmt.Errorf("%w: start function", ErrUnsupported)
	}
	if len(m.Memories) > 1 {
		return nil, fmt.Errorf("%w: multiple memories", ErrUnsupported)
	}

	p := &vm.Program{Exports: make(map[string]int)}
	if len(m.Memories) == 1 {
		l := m.Memories[0]
		p.HasMemory = true
		p.MemoryPages = uint64(l.Min)
		p.MaxPages = vm.MaxPages
		if l.HasMax {
			p.MaxPages = uint64(l.Max)
		}
		if p.MemoryPages > p.MaxPages {
			return nil, fmt.Errorf("%w: memory minimum %d above maximum %d", ErrInvalid, p.MemoryPages, p.MaxPages)
		}
	}
	for _, g := range m.Globals {
		p.Globals = append(p.Globals, g.Init)
	}
	for _, d := range m.Data {
		if !p.HasMemory {
			return nil, fmt.Errorf("%w: data segment without memory", ErrInvalid)
		}
		end := uint64(d.Offset) + uint64(len(d.Init))
		if end > p.MemoryPages*vm.PageSize {
			return nil, fmt.Errorf("%w: data segment [%d, %d) outside initial memory", ErrInvalid, d.Offset, end)
		}
		p.Data = append(p.Data, vm.DataSegment{Offset: uint64(d.Offset), Bytes: d.Init})
	}

	names := make(map[uint32]string)
	for _, e := range m.Exports {
		if e.Kind != KindFunc {
			continue
		}
		if int(e.Index) >= len(m.Functions) {
			return nil, fmt.Errorf("%w: export %q of function %d", ErrInvalid, e.Name, e.Index)
		}
		p.Exports[e.Name] = int(e.Index)
		if _, ok := names[e.Index]; !ok {
			names[e.Index] = e.Name
		}
	}

	c := &compiler{m: m, p: p}
	for idx := range m.Functions {
		if err := c.function(uint32(idx), names[uint32(idx)]); err != nil {
			return nil, fmt.Errorf("function %d: %w", idx, err)
		}
	}
	for _, call := range c.calls {
		p.Code[call.pc].I = p.Functions[call.callee].Entry
	}
	return p, nil
}

type frameKind int

const (
	frameBlock frameKind = iota
	frameLoop
	frameIf
	frameFunc
)

// frame is an open control construct
type frame struct {
	kind    frameKind
	h0      uint64
	results uint64
	start   uint64
	fixups  []int
	elseFix int
}

// arity is the number of values a branch to the frame carries
func (f *frame) arity() uint64 {
	if f.kind == frameLoop {
		return 0
	}
	return f.results
}

type callFixup struct {
	pc     int
	callee uint32
}

type compiler struct {
	m     *Module
	p     *vm.Program
	calls []callFixup

	// per function
	params  uint64
	locals  uint64
	results uint64
	h       uint64
	frames  []*frame
	dead    bool
	deadLvl int
}

func (c *compiler) pc() uint64 { return uint64(len(c.p.Code)) }

func (c *compiler) emit(instr vm.Instruction, i, d uint64) int {
	c.p.Code = append(c.p.Code, vm.Op{Instr: instr, I: i, D: d})
	return len(c.p.Code) - 1
}

func (c *compiler) pop(n uint64) error {
	top := c.frames[len(c.frames)-1]
	if c.h < top.h0+n {
		return fmt.Errorf("%w: operand stack underflow", ErrInvalid)
	}
	c.h -= n
	return nil
}

func checkType(t ValueType) error {
	if !t.integer() {
		return fmt.Errorf("%w: %s values", ErrUnsupported, t)
	}
	return nil
}

func (c *compiler) function(idx uint32, name string) error {
	ft, err := c.m.FuncType(idx)
	if err != nil {
		return err
	}
	if len(ft.Results) > 1 {
		return fmt.Errorf("%w: multiple results", ErrUnsupported)
	}
	for _, t := range append(append([]ValueType(nil), ft.Params...), ft.Results...) {
		if err := checkType(t); err != nil {
			return err
		}
	}
	code := c.m.Codes[idx]
	var locals uint64
	for _, l := range code.Locals {
		if err := checkType(l.Type); err != nil {
			return err
		}
		locals += uint64(l.Count)
	}

	c.params, c.locals, c.results = uint64(len(ft.Params)), locals, uint64(len(ft.Results))
	c.h, c.dead, c.deadLvl = 0, false, 0
	c.frames = []*frame{{kind: frameFunc, results: c.results, elseFix: -1}}

	c.p.Functions = append(c.p.Functions, vm.Function{
		Name:       name,
		Entry:      c.pc(),
		NumParams:  len(ft.Params),
		NumResults: len(ft.Results),
		NumLocals:  int(locals),
	})
	for i := uint64(0); i < locals; i++ {
		c.emit(vm.Const, 0, 0)
	}

	r := newReader(code.Body)
	for len(c.frames) > 0 {
		if r.done() {
			return r.errorf("function body ends inside a block")
		}
		if err := c.instruction(r); err != nil {
			return err
		}
	}
	if !r.done() {
		return r.errorf("code after function end")
	}
	return nil
}

// local returns the depth of local i below the current stack pointer
func (c *compiler) local(i uint64) (uint64, error) {
	if i >= c.params+c.locals {
		return 0, fmt.Errorf("%w: local %d", ErrInvalid, i)
	}
	if i < c.params {
		return c.params + 1 + c.locals + c.h - i, nil
	}
	return c.params + c.locals + c.h - i, nil
}

// ret emits the return sequence for the current height
func (c *compiler) ret() {
	n, m, h := c.params, c.locals, c.h
	if c.results == 1 {
		c.emit(vm.ReturnValue, n+m+h, m+h+1)
		return
	}
	c.emit(vm.Return, n+m+h+1, m+h+1)
}

func (c *compiler) blockType(r *reader) (uint64, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	switch ValueType(b) {
	case ValueType(blockEmpty):
		return 0, nil
	case I32, I64:
		return 1, nil
	case F32, F64:
		return 0, fmt.Errorf("%w: %s block", ErrUnsupported, ValueType(b))
	}
	return 0, fmt.Errorf("%w: block type %#x", ErrUnsupported, b)
}

// label resolves a branch depth to its frame
func (c *compiler) label(depth uint32) (*frame, error) {
	if int(depth) >= len(c.frames) {
		return nil, fmt.Errorf("%w: branch depth %d", ErrInvalid, depth)
	}
	return c.frames[len(c.frames)-1-int(depth)], nil
}

// adjust emits the stack fix-up that leaves only the label's values above its base
func (c *compiler) adjust(f *frame) (bool, error) {
	a := f.arity()
	if c.h < f.h0+a {
		return false, fmt.Errorf("%w: branch carries too few values", ErrInvalid)
	}
	extra := c.h - f.h0 - a
	if extra == 0 {
		return false, nil
	}
	if a == 1 {
		c.emit(vm.DropKeep, extra, 0)
	} else {
		c.emit(vm.Drop, extra, 0)
	}
	return true, nil
}

func (c *compiler) jump(f *frame, instr vm.Instruction) {
	pc := c.emit(instr, 0, 0)
	c.target(f, pc)
}

// target points the branch at pc to f, now for loops and at end otherwise
func (c *compiler) target(f *frame, pc int) {
	if f.kind == frameLoop {
		c.p.Code[pc].I = f.start
		return
	}
	f.fixups = append(f.fixups, pc)
}

// skip parses an instruction in unreachable code, tracking nesting
func (c *compiler) skip(r *reader, op byte) error {
	switch op {
	case opBlock, opLoop, opIf:
		if _, err := c.blockType(r); err != nil {
			return err
		}
		c.deadLvl++
		return nil
	case opElse:
		if c.deadLvl == 0 {
			return c.control(r, op)
		}
		return nil
	case opEnd:
		if c.deadLvl == 0 {
			return c.control(r, op)
		}
		c.deadLvl--
		return nil
	}
	return c.immediates(r, op)
}

// immediates consumes the immediates of a non-structured opcode
func (c *compiler) immediates(r *reader, op byte) error {
	var err error
	switch {
	case op == opBr || op == opBrIf || op == opCall || (op >= opLocalGet && op <= opGlobalSet):
		_, err = r.u32()
	case op == opBrTable:
		var n uint32
		if n, err = r.u32(); err == nil {
			for i := uint32(0); i <= n && err == nil; i++ {
				_, err = r.u32()
			}
		}
	case op == opCallIndirect:
		if _, err = r.u32(); err == nil {
			_, err = r.byte()
		}
	case op == opSelectT:
		var n uint32
		if n, err = r.u32(); err == nil {
			_, err = r.bytes(int(n))
		}
	case op >= opI32Load && op <= opI64Store32:
		if _, err = r.u32(); err == nil {
			_, err = r.u32()
		}
	case op == opMemorySize || op == opMemoryGrow:
		_, err = r.byte()
	case op == opI32Const:
		_, err = r.sleb(32)
	case op == opI64Const:
		_, err = r.sleb(64)
	case op == opF32Const:
		_, err = r.bytes(4)
	case op == opF64Const:
		_, err = r.bytes(8)
	case op == opPrefixFC:
		_, err = r.u32()
		if err == nil {
			err = fmt.Errorf("%w: 0xfc prefixed instructions", ErrUnsupported)
		}
	}
	return err
}

func (c *compiler) instruction(r *reader) error {
	op, err := r.byte()
	if err != nil {
		return err
	}
	if c.dead {
		return c.skip(r, op)
	}
	switch op {
	case opBlock, opLoop, opIf, opElse, opEnd, opBr, opBrIf, opBrTable, opReturn, opUnreachable:
		return c.control(r, op)
	}
	return c.straight(r, op)
}

func (c *compiler) control(r *reader, op byte) error {
	switch op {
	case opUnreachable:
		c.emit(vm.Unreachable, 0, 0)
		c.dead = true
	case opBlock, opLoop, opIf:
		results, err := c.blockType(r)
		if err != nil {
			return err
		}
		f := &frame{results: results, elseFix: -1}
		switch op {
		case opBlock:
			f.kind = frameBlock
		case opLoop:
			f.kind = frameLoop
		case opIf:
			f.kind = frameIf
			if err := c.pop(1); err != nil {
				return err
			}
			f.elseFix = c.emit(vm.BrIfEqz, 0, 0)
		}
		f.h0, f.start = c.h, c.pc()
		c.frames = append(c.frames, f)
	case opElse:
		f := c.frames[len(c.frames)-1]
		if f.kind != frameIf || f.elseFix < 0 {
			return fmt.Errorf("%w: else without if", ErrInvalid)
		}
		if !c.dead {
			if c.h != f.h0+f.results {
				return fmt.Errorf("%w: if branch leaves %d values", ErrInvalid, c.h-f.h0)
			}
			c.jump(f, vm.Br)
		}
		c.p.Code[f.elseFix].I = c.pc()
		f.elseFix = -1
		c.h, c.dead = f.h0, false
	case opEnd:
		return c.end()
	case opBr:
		depth, err := r.u32()
		if err != nil {
			return err
		}
		f, err := c.label(depth)
		if err != nil {
			return err
		}
		if _, err := c.adjust(f); err != nil {
			return err
		}
		c.jump(f, vm.Br)
		c.dead = true
	case opBrIf:
		depth, err := r.u32()
		if err != nil {
			return err
		}
		f, err := c.label(depth)
		if err != nil {
			return err
		}
		if err := c.pop(1); err != nil {
			return err
		}
		return c.brIf(f)
	case opBrTable:
		return c.brTable(r)
	case opReturn:
		if c.h < c.results {
			return fmt.Errorf("%w: return without result", ErrInvalid)
		}
		c.ret()
		c.dead = true
	}
	return nil
}

func (c *compiler) end() error {
	f := c.frames[len(c.frames)-1]
	if !c.dead && c.h != f.h0+f.results {
		return fmt.Errorf("%w: block leaves %d values, want %d", ErrInvalid, c.h-f.h0, f.results)
	}
	if f.elseFix >= 0 {
		if f.results != 0 {
			return fmt.Errorf("%w: if with result has no else", ErrInvalid)
		}
		c.p.Code[f.elseFix].I = c.pc()
	}
	for _, pc := range f.fixups {
		c.p.Code[pc].I = c.pc()
	}
	c.frames = c.frames[:len(c.frames)-1]
	c.h, c.dead = f.h0+f.results, false
	if f.kind == frameFunc {
		c.ret()
	}
	return nil
}

func (c *compiler) brIf(f *frame) error {
	a := f.arity()
	if c.h < f.h0+a {
		return fmt.Errorf("%w: branch carries too few values", ErrInvalid)
	}
	if c.h == f.h0+a {
		c.jump(f, vm.BrIfNez)
		return nil
	}
	skip := c.emit(vm.BrIfEqz, 0, 0)
	if _, err := c.adjust(f); err != nil {
		return err
	}
	c.jump(f, vm.Br)
	c.p.Code[skip].I = c.pc()
	return nil
}

func (c *compiler) brTable(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	if int(n) > len(r.buf)-r.pos {
		return r.errorf("branch table too long")
	}
	depths := make([]uint32, n+1)
	for i := range depths {
		if depths[i], err = r.u32(); err != nil {
			return err
		}
	}
	if err := c.pop(1); err != nil {
		return err
	}
	targets := make([]*frame, len(depths))
	for i, d := range depths {
		if targets[i], err = c.label(d); err != nil {
			return err
		}
		if c.h < targets[i].h0+targets[i].arity() {
			return fmt.Errorf("%w: branch carries too few values", ErrInvalid)
		}
	}

	base := c.pc() + 1
	c.emit(vm.BrTable, base, uint64(n))
	entries := make([]int, len(targets))
	for i := range targets {
		entries[i] = c.emit(vm.Br, 0, 0)
	}
	for i, f := range targets {
		if c.h == f.h0+f.arity() {
			c.target(f, entries[i])
			continue
		}
		c.p.Code[entries[i]].I = c.pc()
		if _, err := c.adjust(f); err != nil {
			return err
		}
		c.jump(f, vm.Br)
	}
	c.dead = true
	return nil
}

// straight lowers the instructions that fall through to pc+1
func (c *compiler) straight(r *reader, op byte) error {
	switch {
	case op == opNop:
		return nil
	case op == opCall:
		idx, err := r.u32()
		if err != nil {
			return err
		}
		ft, err := c.m.FuncType(idx)
		if err != nil {
			return err
		}
		if err := c.pop(uint64(len(ft.Params))); err != nil {
			return err
		}
		pc := c.emit(vm.Call, 0, 0)
		c.calls = append(c.calls, callFixup{pc: pc, callee: idx})
		c.h += uint64(len(ft.Results))
		return nil
	case op == opCallIndirect:
		return fmt.Errorf("%w: call_indirect", ErrUnsupported)
	case op == opDrop:
		if err := c.pop(1); err != nil {
			return err
		}
		c.emit(vm.Drop, 1, 0)
		return nil
	case op == opSelect || op == opSelectT:
		if op == opSelectT {
			if err := c.immediates(r, op); err != nil {
				return err
			}
		}
		if err := c.pop(3); err != nil {
			return err
		}
		c.emit(vm.Select, 0, 0)
		c.h++
		return nil
	case op >= opLocalGet && op <= opLocalTee:
		i, err := r.u32()
		if err != nil {
			return err
		}
		if op != opLocalGet && c.h == c.frames[len(c.frames)-1].h0 {
			return fmt.Errorf("%w: operand stack underflow", ErrInvalid)
		}
		d, err := c.local(uint64(i))
		if err != nil {
			return err
		}
		switch op {
		case opLocalGet:
			c.emit(vm.LocalGet, d, 0)
			c.h++
		case opLocalSet:
			c.emit(vm.LocalSet, d, 0)
			c.h--
		default:
			c.emit(vm.LocalTee, d, 0)
		}
		return nil
	case op == opGlobalGet || op == opGlobalSet:
		i, err := r.u32()
		if err != nil {
			return err
		}
		if int(i) >= len(c.m.Globals) {
			return fmt.Errorf("%w: global %d", ErrInvalid, i)
		}
		if op == opGlobalGet {
			c.emit(vm.GlobalGet, uint64(i), 0)
			c.h++
			return nil
		}
		if !c.m.Globals[i].Mutable {
			return fmt.Errorf("%w: global %d is immutable", ErrInvalid, i)
		}
		if err := c.pop(1); err != nil {
			return err
		}
		c.emit(vm.GlobalSet, uint64(i), 0)
		return nil
	case op >= opI32Load && op <= opI64Store32:
		return c.memory(r, op)
	case op == opMemorySize || op == opMemoryGrow:
		if _, err := r.byte(); err != nil {
			return err
		}
		if !c.p.HasMemory {
			return fmt.Errorf("%w: module has no memory", ErrInvalid)
		}
		if op == opMemorySize {
			c.emit(vm.MemorySize, 0, 0)
			c.h++
			return nil
		}
		if err := c.pop(1); err != nil {
			return err
		}
		c.emit(vm.MemoryGrow, c.p.MaxPages, 0)
		c.h++
		return nil
	case op == opI32Const:
		v, err := r.sleb(32)
		if err != nil {
			return err
		}
		c.emit(vm.Const, uint64(uint32(int32(v))), 0)
		c.h++
		return nil
	case op == opI64Const:
		v, err := r.sleb(64)
		if err != nil {
			return err
		}
		c.emit(vm.Const, uint64(v), 0)
		c.h++
		return nil
	case op == opF32Const || op == opF64Const:
		return fmt.Errorf("%w: floating point", ErrUnsupported)
	case op == opPrefixFC:
		return c.immediates(r, op)
	}

	instr, ok := lowerNumeric(op)
	if !ok {
		return fmt.Errorf("%w: opcode %#x", ErrUnsupported, op)
	}
	switch instr.Class() {
	case vm.ClassUnary:
		if err := c.pop(1); err != nil {
			return err
		}
	case vm.ClassBinary:
		if err := c.pop(2); err != nil {
			return err
		}
	}
	c.emit(instr, 0, 0)
	c.h++
	return nil
}

func (c *compiler) memory(r *reader, op byte) error {
	if _, err := r.u32(); err != nil {
		return err
	}
	offset, err := r.u32()
	if err != nil {
		return err
	}
	instr := memoryOps[op-opI32Load]
	if instr == vm.Unreachable {
		return fmt.Errorf("%w: floating point memory access", ErrUnsupported)
	}
	if !c.p.HasMemory {
		return fmt.Errorf("%w: module has no memory", ErrInvalid)
	}
	if instr.Class() == vm.ClassLoad {
		if err := c.pop(1); err != nil {
			return err
		}
		c.emit(instr, uint64(offset), 0)
		c.h++
		return nil
	}
	if err := c.pop(2); err != nil {
		return err
	}
	c.emit(instr, uint64(offset), 0)
	return nil
}
