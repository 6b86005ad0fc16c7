package r1cs

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// WitnessCS computes an assignment without recording constraints
type WitnessCS struct {
	inputs []fr.Element
	aux    []fr.Element
}

// NewWitnessCS creates a witness generator with the One input assigned
func NewWitnessCS() *WitnessCS {
	var o fr.Element
	o.SetOne()
	return &WitnessCS{inputs: []fr.Element{o}}
}

func (cs *WitnessCS) Alloc(_ string, f func() (fr.Element, error)) (Variable, error) {
	v, err := f()
	if err != nil {
		return Variable{}, err
	}
	cs.aux = append(cs.aux, v)
	return Variable{Index: len(cs.aux) - 1}, nil
}

func (cs *WitnessCS) AllocInput(_ string, f func() (fr.Element, error)) (Variable, error) {
	v, err := f()
	if err != nil {
		return Variable{}, err
	}
	cs.inputs = append(cs.inputs, v)
	return Variable{Index: len(cs.inputs) - 1, Input: true}, nil
}

func (cs *WitnessCS) Enforce(string, LinearCombination, LinearCombination, LinearCombination) {}

func (cs *WitnessCS) Namespace(string) ConstraintSystem { return cs }

func (cs *WitnessCS) IsWitnessGenerator() bool { return true }

// Inputs returns the public input assignment, starting with One
func (cs *WitnessCS) Inputs() []fr.Element { return cs.inputs }

// Aux returns the auxiliary assignment
func (cs *WitnessCS) Aux() []fr.Element { return cs.aux }

// ShapeCS records the arithmetization without computing values
type ShapeCS struct {
	s *shape
}

// NewShapeCS creates a shape extractor
func NewShapeCS() *ShapeCS {
	return &ShapeCS{s: newShape()}
}

func (cs *ShapeCS) Alloc(string, func() (fr.Element, error)) (Variable, error) {
	return cs.s.allocAux(), nil
}

func (cs *ShapeCS) AllocInput(string, func() (fr.Element, error)) (Variable, error) {
	return cs.s.allocInput(), nil
}

func (cs *ShapeCS) Enforce(_ string, a, b, c LinearCombination) {
	cs.s.enforce(a, b, c)
}

func (cs *ShapeCS) Namespace(string) ConstraintSystem { return cs }

func (cs *ShapeCS) IsWitnessGenerator() bool { return false }

// Shape returns the recorded shape
func (cs *ShapeCS) Shape() Shape { return cs.s.summary() }

// TestCS assigns values, records the shape and checks every constraint as it is added
type TestCS struct {
	st     *testState
	prefix string
}

type testState struct {
	inputs      []fr.Element
	aux         []fr.Element
	s           *shape
	unsatisfied []string
}

// NewTestCS creates a checking constraint system
func NewTestCS() *TestCS {
	var o fr.Element
	o.SetOne()
	return &TestCS{st: &testState{inputs: []fr.Element{o}, s: newShape()}}
}

func (cs *TestCS) Alloc(name string, f func() (fr.Element, error)) (Variable, error) {
	v, err := f()
	if err != nil {
		return Variable{}, fmt.Errorf("%s: %w", join(cs.prefix, name), err)
	}
	cs.st.aux = append(cs.st.aux, v)
	return cs.st.s.allocAux(), nil
}

func (cs *TestCS) AllocInput(name string, f func() (fr.Element, error)) (Variable, error) {
	v, err := f()
	if err != nil {
		return Variable{}, fmt.Errorf("%s: %w", join(cs.prefix, name), err)
	}
	cs.st.inputs = append(cs.st.inputs, v)
	return cs.st.s.allocInput(), nil
}

func (cs *TestCS) Enforce(name string, a, b, c LinearCombination) {
	cs.st.s.enforce(a, b, c)
	va := a.Evaluate(cs.value)
	vb := b.Evaluate(cs.value)
	vc := c.Evaluate(cs.value)
	va.Mul(&va, &vb)
	if !va.Equal(&vc) {
		cs.st.unsatisfied = append(cs.st.unsatisfied, join(cs.prefix, name))
	}
}

func (cs *TestCS) Namespace(name string) ConstraintSystem {
	return &TestCS{st: cs.st, prefix: join(cs.prefix, name)}
}

func (cs *TestCS) IsWitnessGenerator() bool { return true }

func (cs *TestCS) value(v Variable) fr.Element {
	if v.Input {
		return cs.st.inputs[v.Index]
	}
	return cs.st.aux[v.Index]
}

// Value returns the assignment of v
func (cs *TestCS) Value(v Variable) fr.Element { return cs.value(v) }

// IsSatisfied reports whether every constraint holds
func (cs *TestCS) IsSatisfied() bool { return len(cs.st.unsatisfied) == 0 }

// WhichIsUnsatisfied returns the name of the first violated constraint
func (cs *TestCS) WhichIsUnsatisfied() string {
	if len(cs.st.unsatisfied) == 0 {
		return ""
	}
	return cs.st.unsatisfied[0]
}

// Unsatisfied returns the names of all violated constraints
func (cs *TestCS) Unsatisfied() []string {
	return append([]string(nil), cs.st.unsatisfied...)
}

// Check returns ErrUnsatisfied naming the first violated constraint
func (cs *TestCS) Check() error {
	if cs.IsSatisfied() {
		return nil
	}
	return fmt.Errorf("%w: %s (%d total)", ErrUnsatisfied, cs.WhichIsUnsatisfied(), len(cs.st.unsatisfied))
}

// Inputs returns the public input assignment, starting with One
func (cs *TestCS) Inputs() []fr.Element { return cs.st.inputs }

// Shape returns the recorded shape
func (cs *TestCS) Shape() Shape { return cs.st.s.summary() }
