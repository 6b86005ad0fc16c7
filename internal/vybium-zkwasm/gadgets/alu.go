package gadgets

import (
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

// Mask returns the low width bits of x
func Mask(x uint64, width int) uint64 {
	if width >= 64 {
		return x
	}
	return x & (1<<uint(width) - 1)
}

func uint64Pair(a, b *Num) (uint64, uint64, error) {
	x, err := a.Uint64()
	if err != nil {
		return 0, 0, err
	}
	y, err := b.Uint64()
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func wide(width int, f func(x, y uint64) uint64, a, b *Num) func() (fr.Element, error) {
	return func() (fr.Element, error) {
		x, y, err := uint64Pair(a, b)
		if err != nil {
			return fr.Element{}, err
		}
		return core.NewElement(f(x, y)), nil
	}
}

// Add returns (a + b) mod 2^width.
// The prover supplies o in {0, -2^width} and the gadget enforces
// o·(o + 2^width) = 0 and a + b + o = c, with c range-checked.
func Add(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (*AllocatedNum, error) {
	cs = cs.Namespace(name)
	o, err := AllocNum(cs, "overflow", func() (fr.Element, error) {
		x, y, err := uint64Pair(a, b)
		if err != nil {
			return fr.Element{}, err
		}
		sum, carry := bits.Add64(x, y, 0)
		if carry != 0 || (width < 64 && sum>>uint(width) != 0) {
			return core.NegPowerOfTwo(width), nil
		}
		return fr.Element{}, nil
	})
	if err != nil {
		return nil, err
	}
	cs.Enforce("overflow_range", o.LC(), o.LC().AddConst(core.PowerOfTwo(width)), nil)

	c, err := AllocNum(cs, "sum", wide(width, func(x, y uint64) uint64 { return Mask(x+y, width) }, a, b))
	if err != nil {
		return nil, err
	}
	cs.Enforce("sum", a.lc.AddLC(b.lc).Add(o.variable), oneLC, c.LC())
	if err := RangeCheck(cs, "range", c.Num(), width); err != nil {
		return nil, err
	}
	return c, nil
}

// Sub returns (a - b) mod 2^width with the borrow bit of enforcing a - b + 2^width·of = c
func Sub(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (*AllocatedNum, error) {
	cs = cs.Namespace(name)
	of, err := AllocBit(cs, "borrow", func() (bool, error) {
		x, y, err := uint64Pair(a, b)
		if err != nil {
			return false, err
		}
		return x < y, nil
	})
	if err != nil {
		return nil, err
	}
	c, err := AllocNum(cs, "diff", wide(width, func(x, y uint64) uint64 { return Mask(x-y, width) }, a, b))
	if err != nil {
		return nil, err
	}
	cs.Enforce("diff", a.lc.SubLC(b.lc).AddTerm(core.PowerOfTwo(width), of.variable), oneLC, c.LC())
	if err := RangeCheck(cs, "range", c.Num(), width); err != nil {
		return nil, err
	}
	return c, nil
}

// Mul returns (a·b) mod 2^width. The high half trunc = (a·b) >> width is
// advice; c = a·b - 2^width·trunc with both c and trunc range-checked.
func Mul(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (*AllocatedNum, error) {
	cs = cs.Namespace(name)
	ab, err := Product(cs, "product", a, b)
	if err != nil {
		return nil, err
	}
	hi, err := AllocNum(cs, "trunc", wide(width, func(x, y uint64) uint64 {
		h, l := bits.Mul64(x, y)
		if width >= 64 {
			return h
		}
		return l >> uint(width)
	}, a, b))
	if err != nil {
		return nil, err
	}
	c, err := AllocNum(cs, "low", wide(width, func(x, y uint64) uint64 { return Mask(x*y, width) }, a, b))
	if err != nil {
		return nil, err
	}
	cs.Enforce("low", ab.LC().AddTerm(core.NegPowerOfTwo(width), hi.variable), oneLC, c.LC())
	if err := RangeCheck(cs, "range_low", c.Num(), width); err != nil {
		return nil, err
	}
	if err := RangeCheck(cs, "range_trunc", hi.Num(), width); err != nil {
		return nil, err
	}
	return c, nil
}

// LtGeU returns the bits (a < b, a >= b) for unsigned width-bit operands.
// d = a - b + 2^width fits in width+1 bits and its top bit is a >= b.
func LtGeU(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (lt, ge *Num, err error) {
	d := a.Sub(b).Add(Constant(core.PowerOfTwo(width)))
	dbits, err := Decompose(cs, name, d, width+1)
	if err != nil {
		return nil, nil, err
	}
	ge = dbits[width]
	return Not(ge), ge, nil
}

// LeGtU returns the bits (a <= b, a > b) for unsigned width-bit operands
func LeGtU(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (le, gt *Num, err error) {
	gt, le, err = LtGeU(cs, name, b, a, width)
	return le, gt, err
}

// Xor returns x XOR y for bits
func Xor(cs r1cs.ConstraintSystem, name string, x, y *Num) (*Num, error) {
	p, err := Product(cs, name, x, y)
	if err != nil {
		return nil, err
	}
	return x.Add(y).Sub(p.Num().Scale(core.NewElement(2))), nil
}

// SignedFromUnsigned turns an unsigned a < b into a signed one given the sign
// bits: when the signs differ, a < b exactly when a is negative.
func SignedFromUnsigned(cs r1cs.ConstraintSystem, name string, ltu, signA, signB *Num) (*Num, error) {
	cs = cs.Namespace(name)
	diff, err := Xor(cs, "signs_differ", signA, signB)
	if err != nil {
		return nil, err
	}
	t, err := Product(cs, "flip", diff, signA.Sub(ltu))
	if err != nil {
		return nil, err
	}
	return ltu.Add(t.Num()), nil
}

// LtGeSigned returns (a <s b, a >=s b) given the sign bits of a and b
func LtGeSigned(cs r1cs.ConstraintSystem, name string, a, b, signA, signB *Num, width int) (lt, ge *Num, err error) {
	cs = cs.Namespace(name)
	ltu, _, err := LtGeU(cs, "unsigned", a, b, width)
	if err != nil {
		return nil, nil, err
	}
	lt, err = SignedFromUnsigned(cs, "signed", ltu, signA, signB)
	if err != nil {
		return nil, nil, err
	}
	return lt, Not(lt), nil
}

// LtGeS returns (a <s b, a >=s b) for two's-complement width-bit operands
func LtGeS(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (lt, ge *Num, err error) {
	cs = cs.Namespace(name)
	abits, err := Decompose(cs, "a", a, width)
	if err != nil {
		return nil, nil, err
	}
	bbits, err := Decompose(cs, "b", b, width)
	if err != nil {
		return nil, nil, err
	}
	return LtGeSigned(cs, "cmp", a, b, abits[width-1], bbits[width-1], width)
}

// LeGtS returns (a <=s b, a >s b) for two's-complement width-bit operands
func LeGtS(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (le, gt *Num, err error) {
	gt, le, err = LtGeS(cs, name, b, a, width)
	return le, gt, err
}

// Equal returns the bit a == b
func Equal(cs r1cs.ConstraintSystem, name string, a, b *Num) (*Num, error) {
	z, err := IsZero(cs, name, a.Sub(b))
	if err != nil {
		return nil, err
	}
	return z.Num(), nil
}

// DivRemU returns the unsigned quotient and remainder of a / b as advice,
// enforcing b·q + r = a exactly. When enable is 1 the divisor must be
// non-zero and r < b; when enable is 0 these checks are vacuous.
func DivRemU(cs r1cs.ConstraintSystem, name string, a, b, enable *Num, width int) (q, r *AllocatedNum, err error) {
	cs = cs.Namespace(name)
	q, err = AllocNum(cs, "quotient", wide(width, func(x, y uint64) uint64 {
		if y == 0 {
			return 0
		}
		return x / y
	}, a, b))
	if err != nil {
		return nil, nil, err
	}
	r, err = AllocNum(cs, "remainder", wide(width, func(x, y uint64) uint64 {
		if y == 0 {
			return x
		}
		return x % y
	}, a, b))
	if err != nil {
		return nil, nil, err
	}
	if err := RangeCheck(cs, "range_q", q.Num(), width); err != nil {
		return nil, nil, err
	}
	if err := RangeCheck(cs, "range_r", r.Num(), width); err != nil {
		return nil, nil, err
	}
	bq, err := Product(cs, "bq", b, q.Num())
	if err != nil {
		return nil, nil, err
	}
	EnforceEqual(cs, "dividend", bq.Num().Add(r.Num()), a)

	// enable·(b·inv - 1) = 0
	inv, err := AllocNum(cs, "inv", func() (fr.Element, error) {
		v, err := b.Value()
		if err != nil {
			return v, err
		}
		var i fr.Element
		if !v.IsZero() {
			i.Inverse(&v)
		}
		return i, nil
	})
	if err != nil {
		return nil, nil, err
	}
	binv, err := Product(cs, "b_inv", b, inv.Num())
	if err != nil {
		return nil, nil, err
	}
	EnforceGatedEqual(cs, "nonzero", enable, binv.Num(), OneNum())

	// enable·(b - r - 1) fits in width bits
	gap, err := Product(cs, "gap", enable, b.Sub(r.Num()).SubUint64(1))
	if err != nil {
		return nil, nil, err
	}
	if err := RangeCheck(cs, "range_gap", gap.Num(), width); err != nil {
		return nil, nil, err
	}
	return q, r, nil
}

// Abs returns |x| for a two's-complement width-bit x with sign bit s as x + s·(2^width - 2x)
func Abs(cs r1cs.ConstraintSystem, name string, x, s *Num, width int) (*Num, error) {
	t, err := Product(cs, name, s, Constant(core.PowerOfTwo(width)).Sub(x.Scale(core.NewElement(2))))
	if err != nil {
		return nil, err
	}
	return x.Add(t.Num()), nil
}

// NegIf returns s ? (-x mod 2^width) : x for 0 <= x < 2^width
func NegIf(cs r1cs.ConstraintSystem, name string, x, s *Num, width int) (*Num, error) {
	cs = cs.Namespace(name)
	t, err := Product(cs, "t", s, Constant(core.PowerOfTwo(width)).Sub(x.Scale(core.NewElement(2))))
	if err != nil {
		return nil, err
	}
	z, err := IsZero(cs, "is_zero", x)
	if err != nil {
		return nil, err
	}
	u, err := Product(cs, "u", s, z.Num())
	if err != nil {
		return nil, err
	}
	return x.Add(t.Num()).AddScaled(core.NegPowerOfTwo(width), u.Num()), nil
}

// DivRemSigned returns the truncated signed quotient and remainder given the
// sign bits of a and b, by dividing magnitudes and restoring signs.
func DivRemSigned(cs r1cs.ConstraintSystem, name string, a, b, signA, signB, enable *Num, width int) (q, r *Num, err error) {
	cs = cs.Namespace(name)
	ma, err := Abs(cs, "abs_a", a, signA, width)
	if err != nil {
		return nil, nil, err
	}
	mb, err := Abs(cs, "abs_b", b, signB, width)
	if err != nil {
		return nil, nil, err
	}
	mq, mr, err := DivRemU(cs, "magnitude", ma, mb, enable, width)
	if err != nil {
		return nil, nil, err
	}
	signQ, err := Xor(cs, "sign_q", signA, signB)
	if err != nil {
		return nil, nil, err
	}
	q, err = NegIf(cs, "neg_q", mq.Num(), signQ, width)
	if err != nil {
		return nil, nil, err
	}
	r, err = NegIf(cs, "neg_r", mr.Num(), signA, width)
	if err != nil {
		return nil, nil, err
	}
	return q, r, nil
}

// DivRemS returns the signed quotient and remainder, decomposing both operands for their signs
func DivRemS(cs r1cs.ConstraintSystem, name string, a, b, enable *Num, width int) (q, r *Num, err error) {
	cs = cs.Namespace(name)
	abits, err := Decompose(cs, "a", a, width)
	if err != nil {
		return nil, nil, err
	}
	bbits, err := Decompose(cs, "b", b, width)
	if err != nil {
		return nil, nil, err
	}
	return DivRemSigned(cs, "div", a, b, abits[width-1], bbits[width-1], enable, width)
}
