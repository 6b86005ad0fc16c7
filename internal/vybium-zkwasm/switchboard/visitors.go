package switchboard

import (
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/gadgets"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

// transition is a visitor's contribution to (pc, sp); both terms are zero
// when the visitor's switch is off
type transition struct {
	pc, sp *gadgets.Num
}

// sequential advances pc by one and moves sp by dsp
func sequential(s *gadgets.Num, dsp int64) transition {
	return transition{pc: s, sp: s.Scale(core.NewElementFromInt64(dsp))}
}

type visitFunc func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error)

// visitor constrains one instruction. slots is the bit mask of the memory
// slots the instruction activates.
type visitor struct {
	instr vm.Instruction
	slots uint8
	visit visitFunc
}

var visitors = buildVisitors()

func buildVisitors() []visitor {
	vs := []visitor{
		{vm.Nop, 0, visitNop},
		{vm.Drop, 0, visitDrop},
		{vm.DropKeep, 0b11, visitDropKeep},
		{vm.Select, 0b111, visitSelect},
		{vm.Br, 0, visitBr},
		{vm.BrIfEqz, 0b1, visitBrIf(true)},
		{vm.BrIfNez, 0b1, visitBrIf(false)},
		{vm.BrTable, 0b1, visitBrTable},
		{vm.Call, 0b1, visitCall},
		{vm.Return, 0b1, visitReturn},
		{vm.ReturnValue, 0b111, visitReturnValue},
		{vm.LocalGet, 0b11, visitLocalGet},
		{vm.LocalSet, 0b11, visitLocalSet(-1)},
		{vm.LocalTee, 0b11, visitLocalSet(0)},
		{vm.GlobalGet, 0b11, visitGlobalGet},
		{vm.GlobalSet, 0b11, visitGlobalSet},
		{vm.Const, 0b1, visitConst},
		{vm.MemorySize, 0b11, visitMemorySize},
		{vm.MemoryGrow, 0b11, visitMemoryGrow},
	}
	for in := vm.I32Load; in < vm.NumInstructions; in++ {
		switch in.Class() {
		case vm.ClassLoad:
			vs = append(vs, visitor{in, 0b1101, visitLoad(in)})
		case vm.ClassStore:
			vs = append(vs, visitor{in, 0b1111, visitStore(in)})
		case vm.ClassUnary:
			vs = append(vs, visitor{in, 0b1, visitUnary(unaryOp(in))})
		case vm.ClassBinary:
			vs = append(vs, visitor{in, 0b11, visitBinary(in.Width(), binaryOp(in))})
		}
	}
	return vs
}

func visitNop(*board, r1cs.ConstraintSystem, *gadgets.Num) (transition, error) {
	return transition{pc: gadgets.Zero(), sp: gadgets.Zero()}, nil
}

// dropI returns -s·I
func dropI(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (*gadgets.Num, error) {
	p, err := gadgets.Product(cs, "drop", s, b.i)
	if err != nil {
		return nil, err
	}
	return p.Num().Neg(), nil
}

// jump returns s·(target - pc)
func jump(b *board, cs r1cs.ConstraintSystem, s, target *gadgets.Num) (*gadgets.Num, error) {
	p, err := gadgets.Product(cs, "jump", s, target.Sub(b.pc))
	if err != nil {
		return nil, err
	}
	return p.Num(), nil
}

func visitDrop(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	dsp, err := dropI(b, cs, s)
	if err != nil {
		return transition{}, err
	}
	return transition{pc: s, sp: dsp}, nil
}

func visitDropKeep(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "top", s, b.below(1), b.slots[0])
	gadgets.Write(cs, "keep", s, b.below(1).Sub(b.i), b.rs(0), b.slots[1])
	dsp, err := dropI(b, cs, s)
	if err != nil {
		return transition{}, err
	}
	return transition{pc: s, sp: dsp}, nil
}

func visitSelect(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "cond", s, b.below(1), b.slots[0])
	gadgets.Preserve(cs, "second", s, b.below(2), b.slots[1])
	// c != 0 ? a : b with a the prior value of sp-3
	pick, err := gadgets.Product(cs, "pick", gadgets.Not(b.bank.zero32), b.rs(2).Sub(b.rs(1)))
	if err != nil {
		return transition{}, err
	}
	gadgets.Write(cs, "result", s, b.below(3), b.rs(1).Add(pick.Num()), b.slots[2])
	return sequential(s, -2), nil
}

func visitBr(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	dpc, err := jump(b, cs, s, b.i)
	if err != nil {
		return transition{}, err
	}
	return transition{pc: dpc, sp: gadgets.Zero()}, nil
}

// visitBrIf handles both conditional branches with t = zero·(I - pc - 1):
// br_if_eqz goes to pc + 1 + t and br_if_nez to I - t
func visitBrIf(onZero bool) visitFunc {
	return func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
		gadgets.Preserve(cs, "cond", s, b.below(1), b.slots[0])
		t, err := gadgets.Product(cs, "taken", b.bank.zero32, b.i.Sub(b.pc).SubUint64(1))
		if err != nil {
			return transition{}, err
		}
		target := b.i.Sub(t.Num())
		if onZero {
			target = b.pc.AddUint64(1).Add(t.Num())
		}
		dpc, err := jump(b, cs, s, target)
		if err != nil {
			return transition{}, err
		}
		return transition{pc: dpc, sp: s.Neg()}, nil
	}
}

// visitBrTable jumps to I + min(index, D)
func visitBrTable(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "index", s, b.below(1), b.slots[0])
	idx := b.bank.low(0, 32)
	last, err := gadgets.Product(cs, "last", s, b.d)
	if err != nil {
		return transition{}, err
	}
	lt, _, err := gadgets.LtGeU(cs, "in_range", idx, last.Num(), 32)
	if err != nil {
		return transition{}, err
	}
	sel, err := gadgets.Select(cs, "entry", lt, idx, last.Num())
	if err != nil {
		return transition{}, err
	}
	dpc, err := jump(b, cs, s, b.i.Add(sel))
	if err != nil {
		return transition{}, err
	}
	return transition{pc: dpc, sp: s.Neg()}, nil
}

func visitCall(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Write(cs, "return_address", s, b.sp, b.pc.AddUint64(1), b.slots[0])
	dpc, err := jump(b, cs, s, b.i)
	if err != nil {
		return transition{}, err
	}
	return transition{pc: dpc, sp: s}, nil
}

func visitReturn(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "return_address", s, b.sp.Sub(b.d), b.slots[0])
	dpc, err := jump(b, cs, s, b.rs(0))
	if err != nil {
		return transition{}, err
	}
	dsp, err := dropI(b, cs, s)
	if err != nil {
		return transition{}, err
	}
	return transition{pc: dpc, sp: dsp}, nil
}

func visitReturnValue(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "value", s, b.below(1), b.slots[0])
	gadgets.Preserve(cs, "return_address", s, b.sp.Sub(b.d), b.slots[1])
	gadgets.Write(cs, "result", s, b.sp.Sub(b.i).SubUint64(1), b.rs(0), b.slots[2])
	dpc, err := jump(b, cs, s, b.rs(1))
	if err != nil {
		return transition{}, err
	}
	dsp, err := dropI(b, cs, s)
	if err != nil {
		return transition{}, err
	}
	return transition{pc: dpc, sp: dsp}, nil
}

func visitLocalGet(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "local", s, b.sp.Sub(b.i), b.slots[0])
	gadgets.Write(cs, "push", s, b.sp, b.rs(0), b.slots[1])
	return sequential(s, 1), nil
}

func visitLocalSet(dsp int64) visitFunc {
	return func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
		gadgets.Preserve(cs, "top", s, b.below(1), b.slots[0])
		gadgets.Write(cs, "local", s, b.sp.Sub(b.i), b.rs(0), b.slots[1])
		return sequential(s, dsp), nil
	}
}

func globalAddr(b *board) *gadgets.Num {
	return b.i.AddUint64(vm.GlobalAddr(0))
}

func visitGlobalGet(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "global", s, globalAddr(b), b.slots[0])
	gadgets.Write(cs, "push", s, b.sp, b.rs(0), b.slots[1])
	return sequential(s, 1), nil
}

func visitGlobalSet(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "top", s, b.below(1), b.slots[0])
	gadgets.Write(cs, "global", s, globalAddr(b), b.rs(0), b.slots[1])
	return sequential(s, -1), nil
}

func visitConst(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Write(cs, "push", s, b.sp, b.i, b.slots[0])
	return sequential(s, 1), nil
}

func visitMemorySize(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	gadgets.Preserve(cs, "size", s, gadgets.ConstUint64(vm.MemSizeAddr), b.slots[0])
	gadgets.Write(cs, "push", s, b.sp, b.rs(0), b.slots[1])
	return sequential(s, 1), nil
}

// visitMemoryGrow grows by delta when old + delta <= I and pushes the old
// size, otherwise it pushes 2^32 - 1. The outcome bit is advice and both
// outcomes are range-checked against I.
func visitMemoryGrow(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
	const failed = 1<<32 - 1
	delta, old := b.bank.low(0, 32), b.rs(1)

	ok, err := gadgets.AllocBit(cs, "ok", func() (bool, error) {
		return b.w.Instr == vm.MemoryGrow && b.w.Z != failed, nil
	})
	if err != nil {
		return transition{}, err
	}
	gadgets.EnforceGatedEqual(cs, "ok_switched", ok.Num(), s, gadgets.OneNum())

	grown, err := gadgets.Product(cs, "grown", ok.Num(), delta)
	if err != nil {
		return transition{}, err
	}
	kept, err := gadgets.Product(cs, "kept", ok.Num(), old.SubUint64(failed))
	if err != nil {
		return transition{}, err
	}
	fits, err := gadgets.Product(cs, "fits", ok.Num(), b.i.Sub(old).Sub(delta))
	if err != nil {
		return transition{}, err
	}
	if err := gadgets.RangeCheck(cs, "fits_range", fits.Num(), 33); err != nil {
		return transition{}, err
	}
	exceeds, err := gadgets.Product(cs, "exceeds", s.Sub(ok.Num()), old.Add(delta).Sub(b.i).SubUint64(1))
	if err != nil {
		return transition{}, err
	}
	if err := gadgets.RangeCheck(cs, "exceeds_range", exceeds.Num(), 34); err != nil {
		return transition{}, err
	}

	gadgets.Write(cs, "result", s, b.below(1), kept.Num().AddUint64(failed), b.slots[0])
	gadgets.Write(cs, "size", s, gadgets.ConstUint64(vm.MemSizeAddr), old.Add(grown.Num()), b.slots[1])
	return sequential(s, 0), nil
}

func dwordAddr(b *board, off uint64) *gadgets.Num {
	return b.bank.k.AddUint64(vm.DwordAddr(off))
}

func visitLoad(in vm.Instruction) visitFunc {
	return func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
		gadgets.Write(cs, "result", s, b.below(1), b.bank.loaded(in), b.slots[0])
		gadgets.Unused(cs, "unused", s, b.slots[1])
		gadgets.Preserve(cs, "lo", s, dwordAddr(b, 0), b.slots[2])
		gadgets.Preserve(cs, "hi", s, dwordAddr(b, 1), b.slots[3])
		return sequential(s, 0), nil
	}
}

// visitStore checks the two written double-words against the pair read plus
// the byte change computed by the bank
func visitStore(in vm.Instruction) visitFunc {
	return func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
		gadgets.Preserve(cs, "value", s, b.below(1), b.slots[0])
		gadgets.Preserve(cs, "base", s, b.below(2), b.slots[1])
		gadgets.Bind(cs, "lo", s, dwordAddr(b, 0), b.slots[2])
		gadgets.Bind(cs, "hi", s, dwordAddr(b, 1), b.slots[3])

		two64 := core.PowerOfTwo(64)
		after := b.slots[2].WS.Val.Num().AddScaled(two64, b.slots[3].WS.Val.Num())
		before := b.rs(2).AddScaled(two64, b.rs(3))
		gadgets.EnforceGatedEqual(cs, "bytes", s, after, before.Add(b.bank.delta[in.AccessBytes()]))
		return sequential(s, -2), nil
	}
}

// unaryFunc computes the result of a unary instruction from the bank
type unaryFunc func(b *board, cs r1cs.ConstraintSystem) (*gadgets.Num, error)

func visitUnary(op unaryFunc) visitFunc {
	return func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
		z, err := op(b, cs)
		if err != nil {
			return transition{}, err
		}
		gadgets.Write(cs, "result", s, b.below(1), z, b.slots[0])
		return sequential(s, 0), nil
	}
}

// binaryFunc computes the result of a binary instruction from its lane
type binaryFunc func(b *board, cs r1cs.ConstraintSystem, l *lane, w int) (*gadgets.Num, error)

func visitBinary(w int, op binaryFunc) visitFunc {
	return func(b *board, cs r1cs.ConstraintSystem, s *gadgets.Num) (transition, error) {
		gadgets.Preserve(cs, "rhs", s, b.below(1), b.slots[0])
		z, err := op(b, cs, b.bank.lane(w), w)
		if err != nil {
			return transition{}, err
		}
		gadgets.Write(cs, "result", s, b.below(2), z, b.slots[1])
		return sequential(s, -1), nil
	}
}

func unaryOp(in vm.Instruction) unaryFunc {
	w := in.Width()
	return func(b *board, cs r1cs.ConstraintSystem) (*gadgets.Num, error) {
		bits := b.bank.bits[0]
		switch in {
		case vm.I32Eqz:
			return b.bank.zero32, nil
		case vm.I64Eqz:
			return b.bank.zero64, nil
		case vm.I32Clz, vm.I64Clz:
			return gadgets.Clz(cs, "clz", bits[:w])
		case vm.I32Ctz, vm.I64Ctz:
			return gadgets.Ctz(cs, "ctz", bits[:w])
		case vm.I32Popcnt, vm.I64Popcnt:
			return gadgets.Popcnt(bits[:w]), nil
		case vm.I32WrapI64, vm.I64ExtendI32U:
			return gadgets.Pack(bits[:32]), nil
		case vm.I64ExtendI32S, vm.I64Extend32S:
			return gadgets.SignExtend(bits, 32, 64), nil
		case vm.I32Extend8S:
			return gadgets.SignExtend(bits, 8, 32), nil
		case vm.I32Extend16S:
			return gadgets.SignExtend(bits, 16, 32), nil
		case vm.I64Extend8S:
			return gadgets.SignExtend(bits, 8, 64), nil
		case vm.I64Extend16S:
			return gadgets.SignExtend(bits, 16, 64), nil
		}
		return nil, fmt.Errorf("no unary circuit for %s", in)
	}
}

// binaryOp maps both widths of an instruction onto its i32 form
func binaryOp(in vm.Instruction) binaryFunc {
	if in >= vm.I64Eqz {
		in -= vm.I64Eqz - vm.I32Eqz
	}
	shift := func(kind gadgets.ShiftKind) binaryFunc {
		return func(b *board, cs r1cs.ConstraintSystem, _ *lane, w int) (*gadgets.Num, error) {
			amount := 5
			if w == 64 {
				amount = 6
			}
			out, err := gadgets.Shift(cs, kind.String(), b.bank.bits[1][:w], b.bank.bits[0][:amount], kind)
			if err != nil {
				return nil, err
			}
			return gadgets.Pack(out), nil
		}
	}
	bitwise := func(f func(x, y, and []*gadgets.Num) []*gadgets.Num) binaryFunc {
		return func(b *board, _ r1cs.ConstraintSystem, _ *lane, w int) (*gadgets.Num, error) {
			return gadgets.Pack(f(b.bank.bits[1][:w], b.bank.bits[0][:w], b.bank.and[:w])), nil
		}
	}
	flag := func(f func(l *lane) *gadgets.Num) binaryFunc {
		return func(_ *board, _ r1cs.ConstraintSystem, l *lane, _ int) (*gadgets.Num, error) {
			return f(l), nil
		}
	}
	arith := func(f func(cs r1cs.ConstraintSystem, name string, a, b *gadgets.Num, width int) (*gadgets.AllocatedNum, error)) binaryFunc {
		return func(_ *board, cs r1cs.ConstraintSystem, l *lane, w int) (*gadgets.Num, error) {
			z, err := f(cs, "op", l.x, l.y, w)
			if err != nil {
				return nil, err
			}
			return z.Num(), nil
		}
	}
	one := gadgets.OneNum
	switch in {
	case vm.I32Eq:
		return flag(func(l *lane) *gadgets.Num { return l.eq })
	case vm.I32Ne:
		return flag(func(l *lane) *gadgets.Num { return gadgets.Not(l.eq) })
	case vm.I32LtS:
		return flag(func(l *lane) *gadgets.Num { return l.lts })
	case vm.I32LtU:
		return flag(func(l *lane) *gadgets.Num { return l.ltu })
	case vm.I32GtS:
		return flag(func(l *lane) *gadgets.Num { return one().Sub(l.lts).Sub(l.eq) })
	case vm.I32GtU:
		return flag(func(l *lane) *gadgets.Num { return one().Sub(l.ltu).Sub(l.eq) })
	case vm.I32LeS:
		return flag(func(l *lane) *gadgets.Num { return l.lts.Add(l.eq) })
	case vm.I32LeU:
		return flag(func(l *lane) *gadgets.Num { return l.ltu.Add(l.eq) })
	case vm.I32GeS:
		return flag(func(l *lane) *gadgets.Num { return gadgets.Not(l.lts) })
	case vm.I32GeU:
		return flag(func(l *lane) *gadgets.Num { return gadgets.Not(l.ltu) })
	case vm.I32Add:
		return arith(gadgets.Add)
	case vm.I32Sub:
		return arith(gadgets.Sub)
	case vm.I32Mul:
		return arith(gadgets.Mul)
	case vm.I32DivS:
		return flag(func(l *lane) *gadgets.Num { return l.squotient })
	case vm.I32DivU:
		return flag(func(l *lane) *gadgets.Num { return l.quotient })
	case vm.I32RemS:
		return flag(func(l *lane) *gadgets.Num { return l.sremainder })
	case vm.I32RemU:
		return flag(func(l *lane) *gadgets.Num { return l.remainder })
	case vm.I32And:
		return bitwise(func(_, _, and []*gadgets.Num) []*gadgets.Num { return and })
	case vm.I32Or:
		return bitwise(gadgets.OrFromAnd)
	case vm.I32Xor:
		return bitwise(gadgets.XorFromAnd)
	case vm.I32Shl:
		return shift(gadgets.ShiftLeft)
	case vm.I32ShrS:
		return shift(gadgets.ShiftRightSigned)
	case vm.I32ShrU:
		return shift(gadgets.ShiftRightUnsigned)
	case vm.I32Rotl:
		return shift(gadgets.RotateLeft)
	case vm.I32Rotr:
		return shift(gadgets.RotateRight)
	}
	return func(*board, r1cs.ConstraintSystem, *lane, int) (*gadgets.Num, error) {
		return nil, fmt.Errorf("no binary circuit for %s", in)
	}
}
