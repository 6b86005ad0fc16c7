package gadgets

import (
	"math/big"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

var oneLC = r1cs.Var(r1cs.One)

// Product allocates a·b
func Product(cs r1cs.ConstraintSystem, name string, a, b *Num) (*AllocatedNum, error) {
	out, err := AllocNum(cs, name, func() (fr.Element, error) {
		x, err := a.Value()
		if err != nil {
			return x, err
		}
		y, err := b.Value()
		if err != nil {
			return y, err
		}
		x.Mul(&x, &y)
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	cs.Enforce(name, a.lc, b.lc, out.LC())
	return out, nil
}

// EnforceEqual adds a = b
func EnforceEqual(cs r1cs.ConstraintSystem, name string, a, b *Num) {
	cs.Enforce(name, a.lc.SubLC(b.lc), oneLC, nil)
}

// EnforceGatedEqual adds s·(a - b) = 0
func EnforceGatedEqual(cs r1cs.ConstraintSystem, name string, s, a, b *Num) {
	cs.Enforce(name, s.lc, a.lc.SubLC(b.lc), nil)
}

// EnforceBoolean adds b·(1 - b) = 0
func EnforceBoolean(cs r1cs.ConstraintSystem, name string, b *Num) {
	cs.Enforce(name, b.lc, r1cs.ConstUint64(1).SubLC(b.lc), nil)
}

// AllocBit allocates a boolean-constrained wire
func AllocBit(cs r1cs.ConstraintSystem, name string, f func() (bool, error)) (*AllocatedNum, error) {
	b, err := AllocNum(cs, name, func() (fr.Element, error) {
		v, err := f()
		if err != nil {
			return fr.Element{}, err
		}
		return core.Bool(v), nil
	})
	if err != nil {
		return nil, err
	}
	EnforceBoolean(cs, name+"_bool", b.Num())
	return b, nil
}

// IsZero returns a bit that is 1 iff x = 0
func IsZero(cs r1cs.ConstraintSystem, name string, x *Num) (*AllocatedNum, error) {
	cs = cs.Namespace(name)
	z, err := AllocNum(cs, "z", func() (fr.Element, error) {
		v, err := x.Value()
		if err != nil {
			return v, err
		}
		return core.Bool(v.IsZero()), nil
	})
	if err != nil {
		return nil, err
	}
	inv, err := AllocNum(cs, "inv", func() (fr.Element, error) {
		v, err := x.Value()
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
		return nil, err
	}
	// x·inv = 1 - z and x·z = 0
	cs.Enforce("inverse", x.lc, inv.LC(), r1cs.ConstUint64(1).Sub(z.variable))
	cs.Enforce("zero", x.lc, z.LC(), nil)
	return z, nil
}

// Select returns cond ? a : b for a boolean cond
func Select(cs r1cs.ConstraintSystem, name string, cond, a, b *Num) (*Num, error) {
	t, err := Product(cs, name, cond, a.Sub(b))
	if err != nil {
		return nil, err
	}
	return b.Add(t.Num()), nil
}

// Decompose allocates the little-endian bits of x and enforces x = sum 2^i·b_i.
// The constraint is unsatisfiable when x does not fit in width bits.
func Decompose(cs r1cs.ConstraintSystem, name string, x *Num, width int) ([]*Num, error) {
	cs = cs.Namespace(name)
	var word *big.Int
	bitAt := func(i int) (bool, error) {
		if word == nil {
			v, err := x.Value()
			if err != nil {
				return false, err
			}
			word = v.BigInt(new(big.Int))
		}
		return word.Bit(i) == 1, nil
	}
	bits := make([]*Num, width)
	for i := range bits {
		b, err := AllocBit(cs, strconv.Itoa(i), func() (bool, error) { return bitAt(i) })
		if err != nil {
			return nil, err
		}
		bits[i] = b.Num()
	}
	cs.Enforce("pack", Pack(bits).lc, oneLC, x.lc)
	return bits, nil
}

// RangeCheck enforces 0 <= x < 2^width
func RangeCheck(cs r1cs.ConstraintSystem, name string, x *Num, width int) error {
	_, err := Decompose(cs, name, x, width)
	return err
}

// Pack returns sum 2^i·bits[i]
func Pack(bits []*Num) *Num {
	return Weighted(bits, 0)
}

// Weighted returns sum 2^(shift+i)·bits[i]
func Weighted(bits []*Num, shift int) *Num {
	lc := make(r1cs.LinearCombination, 0, len(bits))
	var acc fr.Element
	known := true
	for i, b := range bits {
		p := core.PowerOfTwo(shift + i)
		for _, t := range b.lc {
			var c fr.Element
			c.Mul(&t.Coeff, &p)
			lc = append(lc, r1cs.Term{Coeff: c, Var: t.Var})
		}
		if b.value == nil {
			known = false
			continue
		}
		var v fr.Element
		v.Mul(b.value, &p)
		acc.Add(&acc, &v)
	}
	if !known {
		return &Num{lc: lc}
	}
	return &Num{lc: lc, value: &acc}
}

// Not returns 1 - b
func Not(b *Num) *Num {
	return OneNum().Sub(b)
}
