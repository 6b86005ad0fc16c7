package switchboard

import (
	"fmt"
	"strconv"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/gadgets"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

// board is the shared state every visitor constrains
type board struct {
	cs    r1cs.ConstraintSystem
	w     vm.WitnessVM
	pc    *gadgets.Num
	sp    *gadgets.Num
	i     *gadgets.Num
	d     *gadgets.Num
	slots [vm.NumSlots]*gadgets.Slot

	switches [vm.NumInstructions]*gadgets.Num
	bank     *bank
}

// in returns the namespace of a visitor
func (b *board) in(name string) r1cs.ConstraintSystem {
	return b.cs.Namespace(name)
}

// rs returns the value slot k read
func (b *board) rs(k int) *gadgets.Num {
	return b.slots[k].RS.Val.Num()
}

// below returns the address of the stack slot c below sp
func (b *board) below(c uint64) *gadgets.Num {
	return b.sp.SubUint64(c)
}

// switched sums the switches of instrs
func (b *board) switched(instrs ...vm.Instruction) *gadgets.Num {
	acc := gadgets.Zero()
	for _, in := range instrs {
		acc = acc.Add(b.switches[in])
	}
	return acc
}

// allocSwitches allocates one bit per transition with s·(J - j) = 0 and
// enforces that exactly one of them is set
func (b *board) allocSwitches(j *gadgets.Num) error {
	cs := b.cs.Namespace("switch")
	sum := gadgets.Zero()
	for in := vm.Instruction(0); in < vm.NumInstructions; in++ {
		if in == vm.Unreachable {
			continue
		}
		tag := in.J()
		s, err := gadgets.AllocBit(cs, in.String(), func() (bool, error) { return b.w.J == tag, nil })
		if err != nil {
			return err
		}
		gadgets.EnforceGatedEqual(cs, in.String()+"_tag", s.Num(), j, gadgets.ConstUint64(tag))
		b.switches[in] = s.Num()
		sum = sum.Add(s.Num())
	}
	gadgets.EnforceEqual(cs, "one_hot", sum, gadgets.OneNum())
	return nil
}

// lane holds the comparisons and divisions of one operand width
type lane struct {
	x, y     *gadgets.Num
	eq       *gadgets.Num
	ltu, lts *gadgets.Num

	quotient, remainder   *gadgets.Num
	squotient, sremainder *gadgets.Num
}

// bank holds the sub-circuits shared between visitors: the bit
// decompositions of the values read by every slot, the comparison and
// division results of each width, and the byte window of memory accesses.
//
// Binary operations read rhs in slot 0 and lhs in slot 1, unary operations,
// branches and loads read their operand in slot 0.
type bank struct {
	bits [vm.NumSlots][]*gadgets.Num
	and  []*gadgets.Num

	zero32, zero64 *gadgets.Num
	lanes          map[int]*lane

	// memory window
	k      *gadgets.Num
	window []*gadgets.Num
	delta  map[int]*gadgets.Num
}

func newBank(cs r1cs.ConstraintSystem, b *board) (*bank, error) {
	bk := &bank{lanes: map[int]*lane{}, delta: map[int]*gadgets.Num{}}
	var err error
	for k := range bk.bits {
		if bk.bits[k], err = gadgets.Decompose(cs, "rs_"+strconv.Itoa(k), b.rs(k), 64); err != nil {
			return nil, err
		}
	}
	// the new dwords of a store must be canonical
	for k := 2; k < vm.NumSlots; k++ {
		if err := gadgets.RangeCheck(cs, "ws_"+strconv.Itoa(k), b.slots[k].WS.Val.Num(), 64); err != nil {
			return nil, err
		}
	}
	if bk.and, err = gadgets.AndBits(cs, "and", bk.bits[1], bk.bits[0]); err != nil {
		return nil, err
	}
	z, err := gadgets.IsZero(cs, "zero32", bk.low(0, 32))
	if err != nil {
		return nil, err
	}
	bk.zero32 = z.Num()
	if z, err = gadgets.IsZero(cs, "zero64", bk.low(0, 64)); err != nil {
		return nil, err
	}
	bk.zero64 = z.Num()

	for _, w := range []int{32, 64} {
		l, err := bk.newLane(cs.Namespace("i"+strconv.Itoa(w)), b, w)
		if err != nil {
			return nil, err
		}
		bk.lanes[w] = l
	}
	if err := bk.memory(cs.Namespace("memory"), b); err != nil {
		return nil, err
	}
	return bk, nil
}

// low returns the low w bits of the value read by slot k
func (bk *bank) low(k, w int) *gadgets.Num {
	return gadgets.Pack(bk.bits[k][:w])
}

// sign returns bit w-1 of the value read by slot k
func (bk *bank) sign(k, w int) *gadgets.Num {
	return bk.bits[k][w-1]
}

func (bk *bank) lane(w int) *lane {
	return bk.lanes[w]
}

func (bk *bank) newLane(cs r1cs.ConstraintSystem, b *board, w int) (*lane, error) {
	l := &lane{x: bk.low(1, w), y: bk.low(0, w)}
	eq, err := gadgets.IsZero(cs, "eq", l.x.Sub(l.y))
	if err != nil {
		return nil, err
	}
	l.eq = eq.Num()
	if l.ltu, _, err = gadgets.LtGeU(cs, "ltu", l.x, l.y, w); err != nil {
		return nil, err
	}
	if l.lts, err = gadgets.SignedFromUnsigned(cs, "lts", l.ltu, bk.sign(1, w), bk.sign(0, w)); err != nil {
		return nil, err
	}

	divU, remU, divS, remS := vm.I32DivU, vm.I32RemU, vm.I32DivS, vm.I32RemS
	if w == 64 {
		divU, remU, divS, remS = vm.I64DivU, vm.I64RemU, vm.I64DivS, vm.I64RemS
	}
	q, r, err := gadgets.DivRemU(cs, "divrem_u", l.x, l.y, b.switched(divU, remU), w)
	if err != nil {
		return nil, err
	}
	l.quotient, l.remainder = q.Num(), r.Num()
	l.squotient, l.sremainder, err = gadgets.DivRemSigned(cs, "divrem_s", l.x, l.y,
		bk.sign(1, w), bk.sign(0, w), b.switched(divS, remS), w)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// memory computes the effective address of the step's load or store, the
// double-word index k and the 64-bit window of the two double-words starting
// at the addressed byte. For a store of n bytes it also computes
// (value - old bytes)·2^(8·offset), the change of the 128-bit pair.
func (bk *bank) memory(cs r1cs.ConstraintSystem, b *board) error {
	var loads, stores []vm.Instruction
	for in := vm.I32Load; in <= vm.I64Store32; in++ {
		if in.Class() == vm.ClassLoad {
			loads = append(loads, in)
		} else {
			stores = append(stores, in)
		}
	}
	// loads take the base from slot 0, stores from slot 1
	eaLoad, err := gadgets.Product(cs, "ea_load", b.switched(loads...), bk.low(0, 32).Add(b.i))
	if err != nil {
		return err
	}
	eaStore, err := gadgets.Product(cs, "ea_store", b.switched(stores...), bk.low(1, 32).Add(b.i))
	if err != nil {
		return err
	}
	ea, err := gadgets.Decompose(cs, "ea", eaLoad.Num().Add(eaStore.Num()), 33)
	if err != nil {
		return err
	}
	offset := ea[:3]
	bk.k = gadgets.Pack(ea[3:])

	pair := append(append([]*gadgets.Num(nil), bk.bits[2]...), bk.bits[3]...)
	if bk.window, err = gadgets.ShiftRightBytes(cs, "window", pair, offset, 64); err != nil {
		return err
	}

	// 2^(8·offset) = prod_j (1 + o_j·(2^(8·2^j) - 1))
	factor := func(j int) *gadgets.Num {
		c := core.PowerOfTwo(8 << uint(j))
		one := core.One()
		c.Sub(&c, &one)
		return gadgets.OneNum().AddScaled(c, offset[j])
	}
	p01, err := gadgets.Product(cs, "pow_01", factor(0), factor(1))
	if err != nil {
		return err
	}
	pow, err := gadgets.Product(cs, "pow", p01.Num(), factor(2))
	if err != nil {
		return err
	}
	for _, n := range []int{1, 2, 4, 8} {
		v := bk.low(0, 8*n)
		old := gadgets.Pack(bk.window[:8*n])
		d, err := gadgets.Product(cs, fmt.Sprintf("delta_%d", n), v.Sub(old), pow.Num())
		if err != nil {
			return err
		}
		bk.delta[n] = d.Num()
	}
	return nil
}

// loaded returns the value a load of instr produces from the window
func (bk *bank) loaded(instr vm.Instruction) *gadgets.Num {
	n := 8 * instr.AccessBytes()
	if instr.SignedLoad() {
		return gadgets.SignExtend(bk.window, n, instr.Width())
	}
	return gadgets.Pack(bk.window[:n])
}
