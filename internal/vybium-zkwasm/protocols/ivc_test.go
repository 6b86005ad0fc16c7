package protocols

import (
	"encoding/json"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/gadgets"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

// cubeCircuit maps (x, n) to (x^3 + x + Add, n + 1) with x as advice.
// Add is a wire so that every instance has the same shape.
type cubeCircuit struct {
	X   uint64 `json:"x"`
	Add uint64 `json:"add"`
}

func (c cubeCircuit) Arity() int { return 2 }

func (c cubeCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	x, err := gadgets.AllocUint64(cs, "x", c.X)
	if err != nil {
		return nil, err
	}
	gadgets.EnforceEqual(cs, "x_is_state", x.Num(), z[0].Num())
	sq, err := gadgets.Product(cs, "sq", x.Num(), x.Num())
	if err != nil {
		return nil, err
	}
	cube, err := gadgets.Product(cs, "cube", sq.Num(), x.Num())
	if err != nil {
		return nil, err
	}
	add, err := gadgets.AllocUint64(cs, "add", c.Add)
	if err != nil {
		return nil, err
	}
	next, err := cube.Num().Add(x.Num()).Add(add.Num()).Alloc(cs, "next")
	if err != nil {
		return nil, err
	}
	count, err := z[1].Num().AddUint64(1).Alloc(cs, "count")
	if err != nil {
		return nil, err
	}
	return []*gadgets.AllocatedNum{next, count}, nil
}

func (c cubeCircuit) NonDeterministicAdvice() []fr.Element {
	return []fr.Element{core.NewElement(c.X)}
}

func proveChain(t *testing.T, pp *PublicParams, xs ...uint64) *RecursiveSNARK[cubeCircuit] {
	t.Helper()
	snark, err := NewRecursiveSNARK[cubeCircuit](pp, core.NewVector(xs[0], 0))
	require.NoError(t, err)
	for _, x := range xs {
		require.NoError(t, snark.ProveStep(pp, cubeCircuit{X: x, Add: 5}))
	}
	return snark
}

func TestRecursiveSNARK(t *testing.T) {
	pp, err := Setup("test/cube", cubeCircuit{})
	require.NoError(t, err)
	require.Equal(t, 2, pp.Arity)
	require.Equal(t, 1, pp.AdviceLen)
	// One, two inputs, two outputs
	require.Equal(t, 5, pp.Shape.NumInputs)

	// 2 -> 15 -> 3395
	snark := proveChain(t, pp, 2, 15)
	require.Equal(t, 2, snark.NumSteps())
	zi, err := snark.Verify(pp, 2, core.NewVector(2, 0))
	require.NoError(t, err)
	require.True(t, zi.Equal(core.NewVector(15*15*15+15+5, 2)))

	ic, err := IncrementalCommitment(pp, []fr.Element{core.NewElement(2)}, []fr.Element{core.NewElement(15)})
	require.NoError(t, err)
	require.Equal(t, snark.IC, ic)

	t.Run("json round trip", func(t *testing.T) {
		data, err := json.Marshal(snark)
		require.NoError(t, err)
		var back RecursiveSNARK[cubeCircuit]
		require.NoError(t, json.Unmarshal(data, &back))
		_, err = back.Verify(pp, 2, core.NewVector(2, 0))
		require.NoError(t, err)
	})
}

func TestShapeIsWitnessIndependent(t *testing.T) {
	pp, err := Setup("test/cube", cubeCircuit{})
	require.NoError(t, err)
	for _, c := range []cubeCircuit{{X: 2, Add: 5}, {X: 1 << 40, Add: 1 << 63}} {
		cs := r1cs.NewTestCS()
		_, err := synthesizeStep(cs, c, core.NewVector(c.X, 3))
		require.NoError(t, err)
		require.NoError(t, cs.Check())
		require.Equal(t, pp.Shape, cs.Shape())
	}
}

func TestRecursiveSNARKRejects(t *testing.T) {
	pp, err := Setup("test/cube", cubeCircuit{})
	require.NoError(t, err)

	t.Run("wrong step count", func(t *testing.T) {
		snark := proveChain(t, pp, 2, 15)
		_, err := snark.Verify(pp, 3, core.NewVector(2, 0))
		require.ErrorIs(t, err, ErrNova)
		require.ErrorIs(t, err, ErrStepCount)
	})

	t.Run("wrong z0", func(t *testing.T) {
		snark := proveChain(t, pp, 2)
		_, err := snark.Verify(pp, 1, core.NewVector(3, 0))
		require.ErrorIs(t, err, ErrStateChain)
	})

	t.Run("broken chain", func(t *testing.T) {
		// the second step does not start where the first ended
		snark := proveChain(t, pp, 2, 16)
		_, err := snark.Verify(pp, 2, core.NewVector(2, 0))
		require.ErrorIs(t, err, ErrNova)
		require.ErrorIs(t, err, r1cs.ErrUnsatisfied)
	})

	t.Run("tampered step", func(t *testing.T) {
		snark := proveChain(t, pp, 2)
		snark.Steps[0].Add = 6
		_, err := snark.Verify(pp, 1, core.NewVector(2, 0))
		require.ErrorIs(t, err, ErrStateChain)
		require.NotErrorIs(t, err, ErrShape)
	})

	t.Run("tampered commitment", func(t *testing.T) {
		snark := proveChain(t, pp, 2)
		snark.IC[0] ^= 1
		_, err := snark.Verify(pp, 1, core.NewVector(2, 0))
		require.ErrorIs(t, err, ErrCommitments)
		require.NotErrorIs(t, err, ErrShape)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		other := &PublicParams{Label: pp.Label, Arity: 2, AdviceLen: 1, Shape: r1cs.Shape{NumInputs: 5}}
		snark := proveChain(t, pp, 2)
		_, err := snark.Verify(other, 1, core.NewVector(2, 0))
		require.ErrorIs(t, err, ErrShape)
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := NewRecursiveSNARK[cubeCircuit](pp, core.NewVector(1))
		require.ErrorIs(t, err, ErrArity)
	})
}

func TestIncrementalCommitmentBindsOrder(t *testing.T) {
	pp, err := Setup("test/cube", cubeCircuit{})
	require.NoError(t, err)
	a := []fr.Element{core.NewElement(1)}
	b := []fr.Element{core.NewElement(2)}
	ab, err := IncrementalCommitment(pp, a, b)
	require.NoError(t, err)
	ba, err := IncrementalCommitment(pp, b, a)
	require.NoError(t, err)
	require.NotEqual(t, ab, ba)

	empty, err := IncrementalCommitment(pp)
	require.NoError(t, err)
	require.True(t, empty.IsZero())

	_, err = IncrementalCommitment(pp, []fr.Element{})
	require.ErrorIs(t, err, ErrAdviceLen)
}
