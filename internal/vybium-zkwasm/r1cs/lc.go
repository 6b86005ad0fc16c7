// Package r1cs provides a rank-1 constraint system builder over the BN254
// scalar field with witness-generating, shape-extracting and checking backends.
package r1cs

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Variable identifies a wire. Inputs share an index space, with index 0
// reserved for the constant One; auxiliary wires have their own.
type Variable struct {
	Index int
	Input bool
}

// One is the constant-one input wire
var One = Variable{Index: 0, Input: true}

// Term is coeff·var
type Term struct {
	Coeff fr.Element
	Var   Variable
}

// LinearCombination is a sparse sum of terms. Methods never mutate the receiver.
type LinearCombination []Term

var (
	one    fr.Element
	negOne fr.Element
)

func init() {
	one.SetOne()
	negOne.Neg(&one)
}

// Var returns 1·v
func Var(v Variable) LinearCombination {
	return LinearCombination{{Coeff: one, Var: v}}
}

// Const returns c·One
func Const(c fr.Element) LinearCombination {
	return LinearCombination{{Coeff: c, Var: One}}
}

// ConstUint64 returns c·One
func ConstUint64(c uint64) LinearCombination {
	var e fr.Element
	e.SetUint64(c)
	return Const(e)
}

func (lc LinearCombination) grow(n int) LinearCombination {
	out := make(LinearCombination, len(lc), len(lc)+n)
	copy(out, lc)
	return out
}

// AddTerm returns lc + c·v
func (lc LinearCombination) AddTerm(c fr.Element, v Variable) LinearCombination {
	return append(lc.grow(1), Term{Coeff: c, Var: v})
}

// Add returns lc + v
func (lc LinearCombination) Add(v Variable) LinearCombination {
	return lc.AddTerm(one, v)
}

// Sub returns lc - v
func (lc LinearCombination) Sub(v Variable) LinearCombination {
	return lc.AddTerm(negOne, v)
}

// AddConst returns lc + c
func (lc LinearCombination) AddConst(c fr.Element) LinearCombination {
	return lc.AddTerm(c, One)
}

// AddUint64 returns lc + c
func (lc LinearCombination) AddUint64(c uint64) LinearCombination {
	var e fr.Element
	e.SetUint64(c)
	return lc.AddTerm(e, One)
}

// SubUint64 returns lc - c
func (lc LinearCombination) SubUint64(c uint64) LinearCombination {
	var e fr.Element
	e.SetUint64(c)
	e.Neg(&e)
	return lc.AddTerm(e, One)
}

// AddLC returns lc + o
func (lc LinearCombination) AddLC(o LinearCombination) LinearCombination {
	return append(lc.grow(len(o)), o...)
}

// SubLC returns lc - o
func (lc LinearCombination) SubLC(o LinearCombination) LinearCombination {
	out := lc.grow(len(o))
	for _, t := range o {
		var c fr.Element
		c.Neg(&t.Coeff)
		out = append(out, Term{Coeff: c, Var: t.Var})
	}
	return out
}

// AddScaled returns lc + c·o
func (lc LinearCombination) AddScaled(c fr.Element, o LinearCombination) LinearCombination {
	out := lc.grow(len(o))
	for _, t := range o {
		var k fr.Element
		k.Mul(&t.Coeff, &c)
		out = append(out, Term{Coeff: k, Var: t.Var})
	}
	return out
}

// Scale returns c·lc
func (lc LinearCombination) Scale(c fr.Element) LinearCombination {
	return LinearCombination(nil).AddScaled(c, lc)
}

// Neg returns -lc
func (lc LinearCombination) Neg() LinearCombination {
	return LinearCombination(nil).SubLC(lc)
}

// Evaluate computes the value of lc under an assignment
func (lc LinearCombination) Evaluate(value func(Variable) fr.Element) fr.Element {
	var acc, t fr.Element
	for i := range lc {
		v := value(lc[i].Var)
		t.Mul(&lc[i].Coeff, &v)
		acc.Add(&acc, &t)
	}
	return acc
}
