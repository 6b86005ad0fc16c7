package r1cs

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func constant(v uint64) func() (fr.Element, error) {
	return func() (fr.Element, error) {
		var e fr.Element
		e.SetUint64(v)
		return e, nil
	}
}

// cube synthesizes x^3 + x + 5 = out
func cube(cs ConstraintSystem, x uint64) error {
	xv, err := cs.AllocInput("x", constant(x))
	if err != nil {
		return err
	}
	sq, err := cs.Alloc("x^2", constant(x*x))
	if err != nil {
		return err
	}
	cu, err := cs.Alloc("x^3", constant(x*x*x))
	if err != nil {
		return err
	}
	out, err := cs.AllocInput("out", constant(x*x*x+x+5))
	if err != nil {
		return err
	}
	cs.Enforce("square", Var(xv), Var(xv), Var(sq))
	inner := cs.Namespace("inner")
	inner.Enforce("cube", Var(sq), Var(xv), Var(cu))
	cs.Enforce("sum", Var(cu).Add(xv).AddUint64(5), Var(One), Var(out))
	return nil
}

func TestTestCSSatisfied(t *testing.T) {
	cs := NewTestCS()
	require.NoError(t, cube(cs, 3))
	require.True(t, cs.IsSatisfied())
	require.NoError(t, cs.Check())

	shape := cs.Shape()
	require.Equal(t, 3, shape.NumInputs)
	require.Equal(t, 2, shape.NumAux)
	require.Equal(t, 3, shape.NumConstraints)

	out := cs.Inputs()[2]
	require.True(t, out.Equal(new(fr.Element).SetUint64(35)))
}

func TestTestCSUnsatisfied(t *testing.T) {
	cs := NewTestCS()
	x, err := cs.Alloc("x", constant(3))
	require.NoError(t, err)
	y, err := cs.Alloc("y", constant(10))
	require.NoError(t, err)
	cs.Namespace("ns").Enforce("bad", Var(x), Var(x), Var(y))
	require.False(t, cs.IsSatisfied())
	require.Equal(t, "ns/bad", cs.WhichIsUnsatisfied())
	require.ErrorIs(t, cs.Check(), ErrUnsatisfied)
}

func TestShapeIsWitnessIndependent(t *testing.T) {
	a := NewTestCS()
	require.NoError(t, cube(a, 3))
	b := NewTestCS()
	require.NoError(t, cube(b, 11))
	s := NewShapeCS()
	require.NoError(t, cube(s, 0))

	require.Equal(t, a.Shape(), b.Shape())
	require.Equal(t, a.Shape(), s.Shape())
}

func TestShapeDigestSensitivity(t *testing.T) {
	a := NewShapeCS()
	x, _ := a.Alloc("x", nil)
	a.Enforce("c", Var(x), Var(x), Var(x))

	b := NewShapeCS()
	y, _ := b.Alloc("x", nil)
	b.Enforce("c", Var(y), Var(y), Var(y).AddUint64(1))

	require.Equal(t, a.Shape().NumConstraints, b.Shape().NumConstraints)
	require.NotEqual(t, a.Shape().Digest, b.Shape().Digest)
}

func TestWitnessCS(t *testing.T) {
	cs := NewWitnessCS()
	require.NoError(t, cube(cs, 2))
	require.Len(t, cs.Inputs(), 3)
	require.Len(t, cs.Aux(), 2)
	require.True(t, cs.Inputs()[2].Equal(new(fr.Element).SetUint64(15)))
}

func TestAssignmentMissing(t *testing.T) {
	missing := func() (fr.Element, error) { return fr.Element{}, ErrAssignmentMissing }

	_, err := NewWitnessCS().Alloc("x", missing)
	require.ErrorIs(t, err, ErrAssignmentMissing)

	_, err = NewTestCS().Namespace("outer").Alloc("x", missing)
	require.ErrorIs(t, err, ErrAssignmentMissing)
	require.Contains(t, err.Error(), "outer/x")

	_, err = NewShapeCS().Alloc("x", missing)
	require.NoError(t, err, "shape extraction never evaluates values")
}

func TestLinearCombination(t *testing.T) {
	cs := NewTestCS()
	x, _ := cs.Alloc("x", constant(7))
	y, _ := cs.Alloc("y", constant(2))

	var three fr.Element
	three.SetUint64(3)
	lc := Var(x).Sub(y).AddScaled(three, Var(y)).SubUint64(1)
	got := lc.Evaluate(cs.Value)
	require.True(t, got.Equal(new(fr.Element).SetUint64(7-2+6-1)))

	neg := lc.Neg().AddLC(lc).Evaluate(cs.Value)
	require.True(t, neg.IsZero())

	base := Var(x)
	_ = base.Add(y)
	_ = base.Add(x)
	require.Len(t, base, 1, "methods must not mutate the receiver")
}
