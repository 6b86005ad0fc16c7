// Package protocols provides the incrementally verifiable computation (IVC)
// interface the prover is written against, together with a transparent
// backend: proofs carry every step's circuit data and verification
// re-synthesizes each step into a checking constraint system.
package protocols

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/gadgets"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

var (
	// ErrNova is wrapped by every recursive proof failure
	ErrNova = errors.New("protocols: recursive snark error")

	ErrArity       = errors.New("protocols: wrong number of inputs")
	ErrShape       = errors.New("protocols: step circuit does not match public parameters")
	ErrAdviceLen   = errors.New("protocols: wrong advice length")
	ErrStepCount   = errors.New("protocols: wrong number of steps")
	ErrStateChain  = errors.New("protocols: step outputs do not chain")
	ErrCommitments = errors.New("protocols: incremental commitment mismatch")
)

// StepCircuit is one step of an incrementally verifiable computation:
// it maps the arity-sized public state z_i to z_{i+1}.
type StepCircuit interface {
	Arity() int
	Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error)

	// NonDeterministicAdvice returns the values bound by the incremental commitment
	NonDeterministicAdvice() []fr.Element
}

// PublicParams fixes the shape of a step circuit and its commitment key
type PublicParams struct {
	Label     string     `json:"label"`
	Arity     int        `json:"arity"`
	Shape     r1cs.Shape `json:"shape"`
	AdviceLen int        `json:"advice_len"`

	once sync.Once
	ck   *core.CommitmentKey
	err  error
}

// Setup synthesizes c into a shape-recording system. label names the
// commitment key: circuits that must produce equal commitments over the
// same advice share a label.
func Setup(label string, c StepCircuit) (*PublicParams, error) {
	cs := r1cs.NewShapeCS()
	zero := make(core.Vector, c.Arity())
	if _, err := synthesizeStep(cs, c, zero); err != nil {
		return nil, fmt.Errorf("setup %s: %w", label, err)
	}
	pp := &PublicParams{
		Label:     label,
		Arity:     c.Arity(),
		Shape:     cs.Shape(),
		AdviceLen: len(c.NonDeterministicAdvice()),
	}
	if _, err := pp.CommitmentKey(); err != nil {
		return nil, err
	}
	return pp, nil
}

// CommitmentKey returns the Pedersen key for the advice vectors
func (pp *PublicParams) CommitmentKey() (*core.CommitmentKey, error) {
	pp.once.Do(func() {
		pp.ck, pp.err = core.NewCommitmentKey(pp.Label, pp.AdviceLen)
	})
	return pp.ck, pp.err
}

// IncrementalCommitment folds Pedersen commitments of the advice vectors:
// IC_0 = 0 and IC_{i+1} = H(IC_i || Com(advice_i))
func IncrementalCommitment(pp *PublicParams, advice ...[]fr.Element) (core.Digest, error) {
	var ic core.Digest
	for i, a := range advice {
		next, err := nextCommitment(pp, ic, a)
		if err != nil {
			return core.Digest{}, fmt.Errorf("advice %d: %w", i, err)
		}
		ic = next
	}
	return ic, nil
}

func nextCommitment(pp *PublicParams, ic core.Digest, advice []fr.Element) (core.Digest, error) {
	if len(advice) != pp.AdviceLen {
		return core.Digest{}, fmt.Errorf("%w: %d != %d", ErrAdviceLen, len(advice), pp.AdviceLen)
	}
	ck, err := pp.CommitmentKey()
	if err != nil {
		return core.Digest{}, err
	}
	com, err := ck.Commit(advice)
	if err != nil {
		return core.Digest{}, err
	}
	return core.HashBytes(ic[:], com[:]), nil
}

// synthesizeStep allocates z as inputs, runs c and exposes its outputs as inputs
func synthesizeStep(cs r1cs.ConstraintSystem, c StepCircuit, z core.Vector) (core.Vector, error) {
	if len(z) != c.Arity() {
		return nil, fmt.Errorf("%w: %d != %d", ErrArity, len(z), c.Arity())
	}
	in := make([]*gadgets.AllocatedNum, len(z))
	for i := range z {
		v := z[i]
		n, err := gadgets.AllocInputNum(cs, "z_in_"+strconv.Itoa(i), func() (fr.Element, error) { return v, nil })
		if err != nil {
			return nil, err
		}
		in[i] = n
	}
	out, err := c.Synthesize(cs.Namespace("step"), in)
	if err != nil {
		return nil, err
	}
	if len(out) != c.Arity() {
		return nil, fmt.Errorf("%w: circuit returned %d outputs", ErrArity, len(out))
	}
	next := make(core.Vector, len(out))
	for i, o := range out {
		name := "z_out_" + strconv.Itoa(i)
		pub, err := gadgets.AllocInputNum(cs, name, o.Value)
		if err != nil {
			return nil, err
		}
		gadgets.EnforceEqual(cs, name, pub.Num(), o.Num())
		if cs.IsWitnessGenerator() {
			if next[i], err = o.Value(); err != nil {
				return nil, err
			}
		}
	}
	return next, nil
}

// RecursiveSNARK accumulates the steps of one computation
type RecursiveSNARK[C StepCircuit] struct {
	Z0    core.Vector `json:"z0"`
	Zi    core.Vector `json:"zi"`
	Steps []C         `json:"steps"`
	IC    core.Digest `json:"ic"`
}

// NewRecursiveSNARK starts a computation at z0
func NewRecursiveSNARK[C StepCircuit](pp *PublicParams, z0 core.Vector) (*RecursiveSNARK[C], error) {
	if len(z0) != pp.Arity {
		return nil, fmt.Errorf("%w: %w: %d != %d", ErrNova, ErrArity, len(z0), pp.Arity)
	}
	return &RecursiveSNARK[C]{Z0: z0.Clone(), Zi: z0.Clone()}, nil
}

// NumSteps returns the number of proven steps
func (s *RecursiveSNARK[C]) NumSteps() int {
	return len(s.Steps)
}

// ProveStep applies c to the current state
func (s *RecursiveSNARK[C]) ProveStep(pp *PublicParams, c C) error {
	cs := r1cs.NewWitnessCS()
	next, err := synthesizeStep(cs, c, s.Zi)
	if err != nil {
		return fmt.Errorf("%w: step %d: %w", ErrNova, len(s.Steps), err)
	}
	ic, err := nextCommitment(pp, s.IC, c.NonDeterministicAdvice())
	if err != nil {
		return fmt.Errorf("%w: step %d: %w", ErrNova, len(s.Steps), err)
	}
	s.Zi, s.IC = next, ic
	s.Steps = append(s.Steps, c)
	return nil
}

// Verify checks numSteps steps from z0 and returns the final state
func (s *RecursiveSNARK[C]) Verify(pp *PublicParams, numSteps int, z0 core.Vector) (core.Vector, error) {
	if numSteps == 0 || numSteps != len(s.Steps) {
		return nil, fmt.Errorf("%w: %w: %d proven, %d claimed", ErrNova, ErrStepCount, len(s.Steps), numSteps)
	}
	if !z0.Equal(s.Z0) {
		return nil, fmt.Errorf("%w: %w: initial state", ErrNova, ErrStateChain)
	}
	z := z0.Clone()
	var ic core.Digest
	for i, c := range s.Steps {
		cs := r1cs.NewTestCS()
		next, err := synthesizeStep(cs, c, z)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrNova, i, err)
		}
		if err := cs.Check(); err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrNova, i, err)
		}
		if got := cs.Shape(); got != pp.Shape {
			return nil, fmt.Errorf("%w: step %d: %w: %s != %s", ErrNova, i, ErrShape, got, pp.Shape)
		}
		if ic, err = nextCommitment(pp, ic, c.NonDeterministicAdvice()); err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrNova, i, err)
		}
		z = next
	}
	if !z.Equal(s.Zi) {
		return nil, fmt.Errorf("%w: %w: final state", ErrNova, ErrStateChain)
	}
	if ic != s.IC {
		return nil, fmt.Errorf("%w: %w", ErrNova, ErrCommitments)
	}
	return z, nil
}
