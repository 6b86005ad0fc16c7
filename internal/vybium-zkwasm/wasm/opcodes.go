package wasm

import "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"

// WASM opcodes the compiler handles specially. Numeric opcodes are mapped
// through fixed ranges in lowerNumeric.
const (
	opUnreachable  byte = 0x00
	opNop          byte = 0x01
	opBlock        byte = 0x02
	opLoop         byte = 0x03
	opIf           byte = 0x04
	opElse         byte = 0x05
	opEnd          byte = 0x0b
	opBr           byte = 0x0c
	opBrIf         byte = 0x0d
	opBrTable      byte = 0x0e
	opReturn       byte = 0x0f
	opCall         byte = 0x10
	opCallIndirect byte = 0x11
	opDrop         byte = 0x1a
	opSelect       byte = 0x1b
	opSelectT      byte = 0x1c
	opLocalGet     byte = 0x20
	opLocalSet     byte = 0x21
	opLocalTee     byte = 0x22
	opGlobalGet    byte = 0x23
	opGlobalSet    byte = 0x24
	opI32Load      byte = 0x28
	opI64Store32   byte = 0x3e
	opMemorySize   byte = 0x3f
	opMemoryGrow   byte = 0x40
	opI32Const     byte = 0x41
	opI64Const     byte = 0x42
	opF32Const     byte = 0x43
	opF64Const     byte = 0x44
	opI32Eqz       byte = 0x45
	opI32GeU       byte = 0x4f
	opI64Eqz       byte = 0x50
	opI64GeU       byte = 0x5a
	opI32Clz       byte = 0x67
	opI32Rotr      byte = 0x78
	opI64Clz       byte = 0x79
	opI64Rotr      byte = 0x8a
	opI32WrapI64   byte = 0xa7
	opI64ExtendS   byte = 0xac
	opI64ExtendU   byte = 0xad
	opI32Extend8S  byte = 0xc0
	opI64Extend32S byte = 0xc4
	opPrefixFC     byte = 0xfc

	blockEmpty byte = 0x40
)

// memoryOps maps 0x28..0x3e; float loads and stores are absent
var memoryOps = [...]vm.Instruction{
	vm.I32Load, vm.I64Load, vm.Unreachable, vm.Unreachable,
	vm.I32Load8S, vm.I32Load8U, vm.I32Load16S, vm.I32Load16U,
	vm.I64Load8S, vm.I64Load8U, vm.I64Load16S, vm.I64Load16U, vm.I64Load32S, vm.I64Load32U,
	vm.I32Store, vm.I64Store, vm.Unreachable, vm.Unreachable,
	vm.I32Store8, vm.I32Store16, vm.I64Store8, vm.I64Store16, vm.I64Store32,
}

// lowerNumeric maps a numeric opcode to its flat instruction
func lowerNumeric(op byte) (vm.Instruction, bool) {
	switch {
	case op >= opI32Eqz && op <= opI32GeU:
		return vm.I32Eqz + vm.Instruction(op-opI32Eqz), true
	case op >= opI64Eqz && op <= opI64GeU:
		return vm.I64Eqz + vm.Instruction(op-opI64Eqz), true
	case op >= opI32Clz && op <= opI32Rotr:
		return vm.I32Clz + vm.Instruction(op-opI32Clz), true
	case op >= opI64Clz && op <= opI64Rotr:
		return vm.I64Clz + vm.Instruction(op-opI64Clz), true
	case op == opI32WrapI64:
		return vm.I32WrapI64, true
	case op == opI64ExtendS:
		return vm.I64ExtendI32S, true
	case op == opI64ExtendU:
		return vm.I64ExtendI32U, true
	case op >= opI32Extend8S && op <= opI64Extend32S:
		return vm.I32Extend8S + vm.Instruction(op-opI32Extend8S), true
	}
	return 0, false
}

// Expression builders for hand-assembled function bodies

// Op encodes an opcode without immediates, e.g. Op(0x6a) for i32.add
func Op(op byte) []byte { return []byte{op} }

// Opcodes without immediates
var (
	Unreachable = []byte{opUnreachable}
	Nop         = []byte{opNop}
	Else        = []byte{opElse}
	End         = []byte{opEnd}
	Return      = []byte{opReturn}
	Drop        = []byte{opDrop}
	Select      = []byte{opSelect}
	MemorySize  = []byte{opMemorySize, 0}
	MemoryGrow  = []byte{opMemoryGrow, 0}

	I32Eqz = Op(0x45)
	I32Eq  = Op(0x46)
	I32Ne  = Op(0x47)
	I32LtS = Op(0x48)
	I32LtU = Op(0x49)
	I32GtS = Op(0x4a)
	I32GtU = Op(0x4b)
	I32LeS = Op(0x4c)
	I32LeU = Op(0x4d)
	I32GeS = Op(0x4e)
	I32GeU = Op(0x4f)
	I64Eqz = Op(0x50)
	I64Eq  = Op(0x51)
	I64LtU = Op(0x54)
	I64GtU = Op(0x56)

	I32Clz    = Op(0x67)
	I32Ctz    = Op(0x68)
	I32Popcnt = Op(0x69)
	I32Add    = Op(0x6a)
	I32Sub    = Op(0x6b)
	I32Mul    = Op(0x6c)
	I32DivS   = Op(0x6d)
	I32DivU   = Op(0x6e)
	I32RemS   = Op(0x6f)
	I32RemU   = Op(0x70)
	I32And    = Op(0x71)
	I32Or     = Op(0x72)
	I32Xor    = Op(0x73)
	I32Shl    = Op(0x74)
	I32ShrS   = Op(0x75)
	I32ShrU   = Op(0x76)
	I32Rotl   = Op(0x77)
	I32Rotr   = Op(0x78)

	I64Clz    = Op(0x79)
	I64Popcnt = Op(0x7b)
	I64Add    = Op(0x7c)
	I64Sub    = Op(0x7d)
	I64Mul    = Op(0x7e)
	I64DivS   = Op(0x7f)
	I64DivU   = Op(0x80)
	I64RemS   = Op(0x81)
	I64RemU   = Op(0x82)
	I64And    = Op(0x83)
	I64Xor    = Op(0x85)
	I64Shl    = Op(0x86)
	I64ShrS   = Op(0x87)
	I64ShrU   = Op(0x88)
	I64Rotl   = Op(0x89)

	I32WrapI64    = Op(0xa7)
	I64ExtendI32S = Op(0xac)
	I64ExtendI32U = Op(0xad)
	I32Extend8S   = Op(0xc0)
	I64Extend32S  = Op(0xc4)
)

func withIndex(op byte, idx uint32) []byte {
	return AppendUleb128([]byte{op}, uint64(idx))
}

// Block opens a block; result is 0 for no result or a value type
func Block(result ValueType) []byte { return blockLike(opBlock, result) }

// Loop opens a loop
func Loop(result ValueType) []byte { return blockLike(opLoop, result) }

// If opens an if
func If(result ValueType) []byte { return blockLike(opIf, result) }

func blockLike(op byte, result ValueType) []byte {
	if result == 0 {
		return []byte{op, blockEmpty}
	}
	return []byte{op, byte(result)}
}

// Br branches to label depth l
func Br(l uint32) []byte { return withIndex(opBr, l) }

// BrIf branches to label depth l when the popped condition is non-zero
func BrIf(l uint32) []byte { return withIndex(opBrIf, l) }

// BrTable branches through labels with a default
func BrTable(labels []uint32, def uint32) []byte {
	out := AppendUleb128([]byte{opBrTable}, uint64(len(labels)))
	for _, l := range labels {
		out = AppendUleb128(out, uint64(l))
	}
	return AppendUleb128(out, uint64(def))
}

// Call calls function idx
func Call(idx uint32) []byte { return withIndex(opCall, idx) }

// LocalGet pushes local idx
func LocalGet(idx uint32) []byte { return withIndex(opLocalGet, idx) }

// LocalSet pops into local idx
func LocalSet(idx uint32) []byte { return withIndex(opLocalSet, idx) }

// LocalTee copies the top of the stack into local idx
func LocalTee(idx uint32) []byte { return withIndex(opLocalTee, idx) }

// GlobalGet pushes global idx
func GlobalGet(idx uint32) []byte { return withIndex(opGlobalGet, idx) }

// GlobalSet pops into global idx
func GlobalSet(idx uint32) []byte { return withIndex(opGlobalSet, idx) }

// I32Const pushes v
func I32Const(v int32) []byte { return AppendSleb128([]byte{opI32Const}, int64(v)) }

// I64Const pushes v
func I64Const(v int64) []byte { return AppendSleb128([]byte{opI64Const}, v) }

// Mem encodes a load or store opcode with its alignment and offset
func Mem(op byte, align, offset uint32) []byte {
	return AppendUleb128(AppendUleb128([]byte{op}, uint64(align)), uint64(offset))
}

// Expr concatenates instruction encodings
func Expr(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
