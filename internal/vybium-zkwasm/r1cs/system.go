package r1cs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	// ErrAssignmentMissing is returned by value closures when synthesizing without a witness
	ErrAssignmentMissing = errors.New("r1cs: assignment missing")

	// ErrUnsatisfied is returned when a checked system has a violated constraint
	ErrUnsatisfied = errors.New("r1cs: constraint system not satisfied")
)

// ConstraintSystem is implemented by every synthesis backend.
// Circuits must emit the same sequence of allocations and constraints
// regardless of the backend or the witness.
type ConstraintSystem interface {
	// Alloc allocates an auxiliary wire; f is invoked only when values are needed
	Alloc(name string, f func() (fr.Element, error)) (Variable, error)

	// AllocInput allocates a public input wire
	AllocInput(name string, f func() (fr.Element, error)) (Variable, error)

	// Enforce adds the constraint a·b = c
	Enforce(name string, a, b, c LinearCombination)

	// Namespace returns a view that prefixes names with name
	Namespace(name string) ConstraintSystem

	// IsWitnessGenerator reports whether values are computed
	IsWitnessGenerator() bool
}

// Shape summarizes the arithmetization of a synthesized circuit
type Shape struct {
	NumInputs      int    `json:"num_inputs"`
	NumAux         int    `json:"num_aux"`
	NumConstraints int    `json:"num_constraints"`
	Digest         uint64 `json:"digest"`
}

// String returns a compact description of the shape
func (s Shape) String() string {
	return fmt.Sprintf("inputs=%d aux=%d constraints=%d digest=%016x", s.NumInputs, s.NumAux, s.NumConstraints, s.Digest)
}

// shape tracks counts and a digest of the constraint matrices
type shape struct {
	numInputs      int
	numAux         int
	numConstraints int
	h              *xxhash.Digest
	buf            [8]byte
}

func newShape() *shape {
	return &shape{numInputs: 1, h: xxhash.New()}
}

func (s *shape) allocAux() Variable {
	v := Variable{Index: s.numAux}
	s.numAux++
	s.writeUint64(uint64(v.Index) << 1)
	return v
}

func (s *shape) allocInput() Variable {
	v := Variable{Index: s.numInputs, Input: true}
	s.numInputs++
	s.writeUint64(uint64(v.Index)<<1 | 1)
	return v
}

func (s *shape) writeUint64(x uint64) {
	binary.LittleEndian.PutUint64(s.buf[:], x)
	s.h.Write(s.buf[:])
}

func (s *shape) writeLC(lc LinearCombination) {
	s.writeUint64(uint64(len(lc)))
	for i := range lc {
		tag := uint64(lc[i].Var.Index) << 1
		if lc[i].Var.Input {
			tag |= 1
		}
		s.writeUint64(tag)
		for _, limb := range lc[i].Coeff {
			s.writeUint64(limb)
		}
	}
}

func (s *shape) enforce(a, b, c LinearCombination) {
	s.numConstraints++
	s.writeLC(a)
	s.writeLC(b)
	s.writeLC(c)
}

func (s *shape) summary() Shape {
	return Shape{
		NumInputs:      s.numInputs,
		NumAux:         s.numAux,
		NumConstraints: s.numConstraints,
		Digest:         s.h.Sum64(),
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
