// Package gadgets implements reusable sub-circuits: allocated numbers, bit
// decomposition, fixed-width integer arithmetic and memory access checks.
package gadgets

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

// AllocatedNum is a wire together with its value when one is known
type AllocatedNum struct {
	variable r1cs.Variable
	value    *fr.Element
}

// AllocNum allocates an auxiliary wire
func AllocNum(cs r1cs.ConstraintSystem, name string, f func() (fr.Element, error)) (*AllocatedNum, error) {
	n := &AllocatedNum{}
	v, err := cs.Alloc(name, func() (fr.Element, error) {
		x, err := f()
		if err != nil {
			return x, err
		}
		n.value = &x
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	n.variable = v
	return n, nil
}

// AllocInputNum allocates a public input wire
func AllocInputNum(cs r1cs.ConstraintSystem, name string, f func() (fr.Element, error)) (*AllocatedNum, error) {
	n := &AllocatedNum{}
	v, err := cs.AllocInput(name, func() (fr.Element, error) {
		x, err := f()
		if err != nil {
			return x, err
		}
		n.value = &x
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	n.variable = v
	return n, nil
}

// AllocUint64 allocates a wire holding v
func AllocUint64(cs r1cs.ConstraintSystem, name string, v uint64) (*AllocatedNum, error) {
	return AllocNum(cs, name, func() (fr.Element, error) { return core.NewElement(v), nil })
}

// Variable returns the underlying wire
func (n *AllocatedNum) Variable() r1cs.Variable { return n.variable }

// Value returns the assignment or ErrAssignmentMissing
func (n *AllocatedNum) Value() (fr.Element, error) {
	if n.value == nil {
		return fr.Element{}, r1cs.ErrAssignmentMissing
	}
	return *n.value, nil
}

// LC returns 1·n
func (n *AllocatedNum) LC() r1cs.LinearCombination { return r1cs.Var(n.variable) }

// Num views the wire as a linear expression
func (n *AllocatedNum) Num() *Num {
	return &Num{lc: n.LC(), value: n.value}
}

// Num is a linear combination of wires together with its value when known
type Num struct {
	lc    r1cs.LinearCombination
	value *fr.Element
}

// NewNum wraps a linear combination with an optional value
func NewNum(lc r1cs.LinearCombination, value *fr.Element) *Num {
	return &Num{lc: lc, value: value}
}

// Constant returns the constant c
func Constant(c fr.Element) *Num {
	v := c
	return &Num{lc: r1cs.Const(c), value: &v}
}

// ConstUint64 returns the constant c
func ConstUint64(c uint64) *Num {
	return Constant(core.NewElement(c))
}

// Zero returns the constant 0
func Zero() *Num { return &Num{value: new(fr.Element)} }

// OneNum returns the constant 1
func OneNum() *Num { return ConstUint64(1) }

// LC returns the linear combination
func (n *Num) LC() r1cs.LinearCombination { return n.lc }

// Value returns the assignment or ErrAssignmentMissing
func (n *Num) Value() (fr.Element, error) {
	if n.value == nil {
		return fr.Element{}, r1cs.ErrAssignmentMissing
	}
	return *n.value, nil
}

// Uint64 returns the low 64 bits of the value
func (n *Num) Uint64() (uint64, error) {
	v, err := n.Value()
	if err != nil {
		return 0, err
	}
	return core.MustUint64(&v), nil
}

func (n *Num) fn() func() (fr.Element, error) { return n.Value }

func combine(a, b *fr.Element, f func(x, y *fr.Element) fr.Element) *fr.Element {
	if a == nil || b == nil {
		return nil
	}
	v := f(a, b)
	return &v
}

// Add returns n + o
func (n *Num) Add(o *Num) *Num {
	return &Num{
		lc: n.lc.AddLC(o.lc),
		value: combine(n.value, o.value, func(x, y *fr.Element) fr.Element {
			var z fr.Element
			return *z.Add(x, y)
		}),
	}
}

// Sub returns n - o
func (n *Num) Sub(o *Num) *Num {
	return &Num{
		lc: n.lc.SubLC(o.lc),
		value: combine(n.value, o.value, func(x, y *fr.Element) fr.Element {
			var z fr.Element
			return *z.Sub(x, y)
		}),
	}
}

// Scale returns c·n
func (n *Num) Scale(c fr.Element) *Num {
	out := &Num{lc: n.lc.Scale(c)}
	if n.value != nil {
		var z fr.Element
		z.Mul(n.value, &c)
		out.value = &z
	}
	return out
}

// AddScaled returns n + c·o
func (n *Num) AddScaled(c fr.Element, o *Num) *Num {
	return n.Add(o.Scale(c))
}

// AddUint64 returns n + c
func (n *Num) AddUint64(c uint64) *Num { return n.Add(ConstUint64(c)) }

// SubUint64 returns n - c
func (n *Num) SubUint64(c uint64) *Num { return n.Sub(ConstUint64(c)) }

// Neg returns -n
func (n *Num) Neg() *Num { return Zero().Sub(n) }

// Alloc materializes the expression as a fresh wire
func (n *Num) Alloc(cs r1cs.ConstraintSystem, name string) (*AllocatedNum, error) {
	out, err := AllocNum(cs, name, n.fn())
	if err != nil {
		return nil, err
	}
	cs.Enforce(name+"_eq", n.lc, r1cs.Var(r1cs.One), out.LC())
	return out, nil
}

// Sum adds all nums
func Sum(nums ...*Num) *Num {
	acc := Zero()
	for _, n := range nums {
		acc = acc.Add(n)
	}
	return acc
}
