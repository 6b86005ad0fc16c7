// Package vm provides the flat zkWASM instruction set, the execution trace
// model, the memory layout and the reference interpreter that produces traces.
package vm

import "fmt"

// Instruction is a flat-ISA opcode. Values are dense so that J = uint64(instr).
type Instruction uint32

const (
	// ========== Control (20 instructions) ==========

	// Nop leaves pc and sp unchanged; used only to pad traces
	Nop Instruction = iota
	// Unreachable traps; it has no transition circuit
	Unreachable
	// Drop pops I slots
	Drop
	// DropKeep moves the top value down by I slots and pops I slots
	DropKeep
	// Select pops c, b, a and pushes c != 0 ? a : b
	Select
	// Br jumps to I
	Br
	// BrIfEqz pops c and jumps to I when c == 0
	BrIfEqz
	// BrIfNez pops c and jumps to I when c != 0
	BrIfNez
	// BrTable pops an index and jumps to I + min(index, D)
	BrTable
	// Call pushes pc+1 and jumps to I
	Call
	// Return pops I slots and jumps to the return address at depth D
	Return
	// ReturnValue moves the top value to depth I+1, pops I slots and jumps to the return address at depth D
	ReturnValue
	// LocalGet pushes the slot at depth I
	LocalGet
	// LocalSet pops a value into the slot at depth I
	LocalSet
	// LocalTee copies the top value into the slot at depth I
	LocalTee
	// GlobalGet pushes global I
	GlobalGet
	// GlobalSet pops a value into global I
	GlobalSet
	// Const pushes I
	Const
	// MemorySize pushes the memory size in pages
	MemorySize
	// MemoryGrow grows memory by the popped delta up to I pages and pushes the old size or -1
	MemoryGrow

	// ========== Memory (19 instructions) ==========

	I32Load
	I64Load
	I32Load8S
	I32Load8U
	I32Load16S
	I32Load16U
	I64Load8S
	I64Load8U
	I64Load16S
	I64Load16U
	I64Load32S
	I64Load32U
	I32Store
	I64Store
	I32Store8
	I32Store16
	I64Store8
	I64Store16
	I64Store32

	// ========== i32 arithmetic (29 instructions) ==========

	I32Eqz
	I32Eq
	I32Ne
	I32LtS
	I32LtU
	I32GtS
	I32GtU
	I32LeS
	I32LeU
	I32GeS
	I32GeU
	I32Clz
	I32Ctz
	I32Popcnt
	I32Add
	I32Sub
	I32Mul
	I32DivS
	I32DivU
	I32RemS
	I32RemU
	I32And
	I32Or
	I32Xor
	I32Shl
	I32ShrS
	I32ShrU
	I32Rotl
	I32Rotr

	// ========== i64 arithmetic (29 instructions) ==========

	I64Eqz
	I64Eq
	I64Ne
	I64LtS
	I64LtU
	I64GtS
	I64GtU
	I64LeS
	I64LeU
	I64GeS
	I64GeU
	I64Clz
	I64Ctz
	I64Popcnt
	I64Add
	I64Sub
	I64Mul
	I64DivS
	I64DivU
	I64RemS
	I64RemU
	I64And
	I64Or
	I64Xor
	I64Shl
	I64ShrS
	I64ShrU
	I64Rotl
	I64Rotr

	// ========== Conversions (8 instructions) ==========

	I32WrapI64
	I64ExtendI32S
	I64ExtendI32U
	I32Extend8S
	I32Extend16S
	I64Extend8S
	I64Extend16S
	I64Extend32S

	// NumInstructions is the size of the instruction set
	NumInstructions
)

var instructionNames = [...]string{
	"nop", "unreachable", "drop", "drop_keep", "select", "br", "br_if_eqz", "br_if_nez", "br_table",
	"call", "return", "return_value", "local.get", "local.set", "local.tee", "global.get", "global.set",
	"const", "memory.size", "memory.grow",
	"i32.load", "i64.load", "i32.load8_s", "i32.load8_u", "i32.load16_s", "i32.load16_u",
	"i64.load8_s", "i64.load8_u", "i64.load16_s", "i64.load16_u", "i64.load32_s", "i64.load32_u",
	"i32.store", "i64.store", "i32.store8", "i32.store16", "i64.store8", "i64.store16", "i64.store32",
	"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u", "i32.le_s", "i32.le_u",
	"i32.ge_s", "i32.ge_u", "i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul",
	"i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or", "i32.xor", "i32.shl",
	"i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr",
	"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u", "i64.le_s", "i64.le_u",
	"i64.ge_s", "i64.ge_u", "i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul",
	"i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or", "i64.xor", "i64.shl",
	"i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr",
	"i32.wrap_i64", "i64.extend_i32_s", "i64.extend_i32_u", "i32.extend8_s", "i32.extend16_s",
	"i64.extend8_s", "i64.extend16_s", "i64.extend32_s",
}

// String returns the textual name of the instruction
func (i Instruction) String() string {
	if int(i) < len(instructionNames) {
		return instructionNames[i]
	}
	return fmt.Sprintf("instruction(%d)", uint32(i))
}

// J returns the switch index of the instruction
func (i Instruction) J() uint64 {
	return uint64(i)
}

// Class groups instructions by stack and memory effect
type Class int

const (
	ClassControl Class = iota
	ClassLoad
	ClassStore
	ClassUnary
	ClassBinary
)

// Class returns the effect class of the instruction
func (i Instruction) Class() Class {
	switch {
	case i >= I32Load && i <= I64Load32U:
		return ClassLoad
	case i >= I32Store && i <= I64Store32:
		return ClassStore
	case i == I32Eqz || i == I64Eqz || (i >= I32Clz && i <= I32Popcnt) || (i >= I64Clz && i <= I64Popcnt) ||
		(i >= I32WrapI64 && i <= I64Extend32S):
		return ClassUnary
	case i >= I32Eq && i <= I64Rotr:
		return ClassBinary
	default:
		return ClassControl
	}
}

// Width returns the operand width for arithmetic and memory instructions
func (i Instruction) Width() int {
	switch {
	case i >= I32Eqz && i <= I32Rotr:
		return 32
	case i >= I64Eqz && i <= I64Rotr:
		return 64
	}
	switch i {
	case I32Load, I32Load8S, I32Load8U, I32Load16S, I32Load16U,
		I32Store, I32Store8, I32Store16, I32WrapI64, I32Extend8S, I32Extend16S:
		return 32
	}
	return 64
}

// AccessBytes returns the number of bytes a load or store touches
func (i Instruction) AccessBytes() int {
	switch i {
	case I32Load8S, I32Load8U, I64Load8S, I64Load8U, I32Store8, I64Store8:
		return 1
	case I32Load16S, I32Load16U, I64Load16S, I64Load16U, I32Store16, I64Store16:
		return 2
	case I32Load, I64Load32S, I64Load32U, I32Store, I64Store32:
		return 4
	case I64Load, I64Store:
		return 8
	}
	return 0
}

// SignedLoad reports whether a load sign-extends
func (i Instruction) SignedLoad() bool {
	switch i {
	case I32Load8S, I32Load16S, I64Load8S, I64Load16S, I64Load32S:
		return true
	}
	return false
}
