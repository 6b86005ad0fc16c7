package wasm

import "math"

// Sample modules used by tests, examples and the CLI demos.

var (
	i32x1 = []ValueType{I32}
	i32x2 = []ValueType{I32, I32}
	i64x1 = []ValueType{I64}
)

// BitCheck exports bit_check(a, b i32) i32: 1 when the low eight bits of a
// and b agree, else 0, computed one bit per loop iteration.
func BitCheck() []byte {
	b := NewBuilder()
	// locals: 2 = i, 3 = ok
	b.Func("bit_check", i32x2, i32x1, i32x2,
		I32Const(1), LocalSet(3),
		Block(0),
		Loop(0),
		LocalGet(2), I32Const(8), I32GeU, BrIf(1),
		LocalGet(0), LocalGet(2), I32ShrU, I32Const(1), I32And,
		LocalGet(1), LocalGet(2), I32ShrU, I32Const(1), I32And,
		I32Ne,
		If(0),
		I32Const(0), LocalSet(3),
		End,
		LocalGet(2), I32Const(1), I32Add, LocalSet(2),
		Br(0),
		End,
		End,
		LocalGet(3),
		End,
	)
	return b.Bytes()
}

// Fib exports fib(n i32) i32 computed iteratively, fib(0) = 0
func Fib() []byte {
	b := NewBuilder()
	// locals: 1 = a, 2 = b, 3 = t
	b.Func("fib", i32x1, i32x1, []ValueType{I32, I32, I32},
		I32Const(1), LocalSet(2),
		Block(0),
		Loop(0),
		LocalGet(0), I32Eqz, BrIf(1),
		LocalGet(1), LocalGet(2), I32Add, LocalSet(3),
		LocalGet(2), LocalSet(1),
		LocalGet(3), LocalSet(2),
		LocalGet(0), I32Const(1), I32Sub, LocalSet(0),
		Br(0),
		End,
		End,
		LocalGet(1),
		End,
	)
	return b.Bytes()
}

// FibRecursive exports fib_rec(n i32) i32 through direct recursion
func FibRecursive() []byte {
	b := NewBuilder()
	b.Func("fib_rec", i32x1, i32x1, nil,
		LocalGet(0), I32Const(2), I32LtU,
		If(I32),
		LocalGet(0),
		Else,
		LocalGet(0), I32Const(1), I32Sub, Call(0),
		LocalGet(0), I32Const(2), I32Sub, Call(0),
		I32Add,
		End,
		End,
	)
	return b.Bytes()
}

// Division exports divmix(a, b i32) i64 mixing every division and remainder
// instruction. It traps when b is zero.
func Division() []byte {
	b := NewBuilder()
	b.Func("divmix", i32x2, i64x1, nil,
		LocalGet(0), LocalGet(1), I32DivU,
		LocalGet(0), LocalGet(1), I32RemU, I32Add,
		LocalGet(0), LocalGet(1), I32DivS, I32Add,
		LocalGet(0), LocalGet(1), I32RemS, I32Add,
		I64ExtendI32U,
		LocalGet(0), I64ExtendI32S, I64Const(1000003), I64Mul,
		LocalGet(1), I64ExtendI32S, I64DivS,
		I64Add,
		LocalGet(0), I64ExtendI32U, LocalGet(1), I64ExtendI32U, I64RemU,
		I64Xor,
		End,
	)
	return b.Bytes()
}

// Memory exports squares(n i32) i32: it stores i*i for i < n into linear
// memory, grows memory once, and returns the byte-wise checksum of the area
// plus the page count.
func Memory() []byte {
	b := NewBuilder().Memory(1, 3)
	b.Data(1024, []byte{0xde, 0xad, 0xbe, 0xef})
	counter := b.Global(I32, true, 0)
	// locals: 1 = i, 2 = acc
	b.Func("squares", i32x1, i32x1, i32x2,
		Block(0),
		Loop(0),
		LocalGet(1), LocalGet(0), I32GeU, BrIf(1),
		LocalGet(1), I32Const(4), I32Mul,
		LocalGet(1), LocalGet(1), I32Mul,
		Mem(0x36, 2, 0),
		LocalGet(1), I32Const(1), I32Add, LocalSet(1),
		Br(0),
		End,
		End,
		I32Const(0), LocalSet(1),
		Block(0),
		Loop(0),
		LocalGet(1), LocalGet(0), I32Const(4), I32Mul, I32GeU, BrIf(1),
		LocalGet(2), LocalGet(1), Mem(0x2d, 0, 0), I32Add, LocalSet(2),
		LocalGet(1), I32Const(1), I32Add, LocalSet(1),
		Br(0),
		End,
		End,
		GlobalGet(counter), I32Const(1), I32Add, GlobalSet(counter),
		I32Const(1), MemoryGrow, Drop,
		I32Const(1021), Mem(0x29, 3, 0), I32WrapI64,
		LocalGet(2), I32Xor,
		MemorySize, I32Add,
		End,
	)
	return b.Bytes()
}

// Classify exports classify(x i32) i32 dispatching through br_table:
// 0 -> 10, 1 -> 20, 2 -> 30, anything else -> 40 + x
func Classify() []byte {
	b := NewBuilder()
	b.Func("classify", i32x1, i32x1, nil,
		Block(I32),
		Block(0),
		Block(0),
		Block(0),
		Block(0),
		LocalGet(0),
		BrTable([]uint32{0, 1, 2}, 3),
		End,
		I32Const(10), Br(3),
		End,
		I32Const(20), Br(2),
		End,
		I32Const(30), Br(1),
		End,
		I32Const(40), LocalGet(0), I32Add,
		End,
		End,
	)
	return b.Bytes()
}

// ALU exports alu(a, b i64) i64, folding every integer instruction over a
// and b into an xor accumulator. Divisors are forced odd and positive. It also
// stores a with every store width at an address taken from b and loads it
// back with every load width.
func ALU() []byte {
	b := NewBuilder().Memory(1, 1)
	var body [][]byte
	fold := func(parts ...[]byte) {
		body = append(body, LocalGet(2))
		body = append(body, parts...)
		body = append(body, I64Xor, LocalSet(2))
	}
	a64, b64 := LocalGet(0), LocalGet(1)
	a32, b32 := Expr(LocalGet(0), I32WrapI64), Expr(LocalGet(1), I32WrapI64)
	div64 := Expr(b64, I64Const(math.MaxInt64), I64And, I64Const(1), Op(0x84))
	div32 := Expr(b32, I32Const(math.MaxInt32), I32And, I32Const(1), I32Or)

	for op := opI64Eqz + 1; op <= opI64GeU; op++ {
		fold(a64, b64, Op(op), I64ExtendI32U)
	}
	for op := opI64Clz + 3; op <= opI64Rotr; op++ {
		rhs := b64
		if op >= 0x7f && op <= 0x82 { // div_s .. rem_u
			rhs = div64
		}
		fold(a64, rhs, Op(op))
	}
	for op := opI32Eqz + 1; op <= opI32GeU; op++ {
		fold(a32, b32, Op(op), I64ExtendI32U)
	}
	for op := opI32Clz + 3; op <= opI32Rotr; op++ {
		rhs := b32
		if op >= 0x6d && op <= 0x70 {
			rhs = div32
		}
		fold(a32, rhs, Op(op), I64ExtendI32U)
	}

	fold(a64, Op(opI64Eqz), I64ExtendI32U)
	fold(a32, Op(opI32Eqz), I64ExtendI32U)
	for op := opI64Clz; op < opI64Clz+3; op++ {
		fold(a64, Op(op))
	}
	for op := opI32Clz; op < opI32Clz+3; op++ {
		fold(a32, Op(op), I64ExtendI32U)
	}
	fold(a32, I64ExtendI32S)
	fold(a32, I64ExtendI32U)
	fold(a32, Op(opI32Extend8S), I64ExtendI32U)
	fold(a32, Op(opI32Extend8S+1), I64ExtendI32U)
	for op := opI32Extend8S + 2; op <= opI64Extend32S; op++ {
		fold(a64, Op(op))
	}

	fold(a64, b64, a32, Select)
	fold(a64, LocalTee(2))
	fold(Block(I64), a64, b64, Br(0), End)

	addr := Expr(b32, I32Const(255), I32And)
	for i, op := range []byte{0x37, 0x36, 0x3a, 0x3b, 0x3c, 0x3d, 0x3e} {
		value := a64
		if op == 0x36 || op == 0x3a || op == 0x3b {
			value = a32
		}
		body = append(body, addr, value, Mem(op, 0, uint32(9*i)))
	}
	for op := opI32Load; op <= opI32Load+13; op++ {
		switch op {
		case 0x2a, 0x2b:
			continue
		case 0x28, 0x2c, 0x2d, 0x2e, 0x2f:
			fold(addr, Mem(op, 0, uint32(op-opI32Load)*5), I64ExtendI32U)
		default:
			fold(addr, Mem(op, 0, uint32(op-opI32Load)*5))
		}
	}
	body = append(body, LocalGet(2), End)
	b.Func("alu", []ValueType{I64, I64}, i64x1, i64x1, body...)
	return b.Bytes()
}

// Accumulate exports bump(x i32), which adds x to a global and returns
// nothing, and accumulate(n i32) i32, which bumps by every i < n and returns
// the global: n(n-1)/2 on a fresh instance.
func Accumulate() []byte {
	b := NewBuilder()
	total := b.Global(I32, true, 0)
	bump := b.Func("bump", i32x1, nil, nil,
		GlobalGet(total), LocalGet(0), I32Add, GlobalSet(total),
		End,
	)
	// locals: 1 = i
	b.Func("accumulate", i32x1, i32x1, i32x1,
		Block(0),
		Loop(0),
		LocalGet(1), LocalGet(0), I32GeU, BrIf(1),
		LocalGet(1), Call(bump),
		LocalGet(1), I32Const(1), I32Add, LocalSet(1),
		Br(0),
		End,
		End,
		GlobalGet(total),
		End,
	)
	return b.Bytes()
}
