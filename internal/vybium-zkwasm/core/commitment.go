package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrCommitmentLength is returned when a vector does not match the key size
var ErrCommitmentLength = errors.New("core: vector length exceeds commitment key")

const generatorDST = "VYBIUM-ZKWASM-PEDERSEN-BN254G1"

// CommitmentKey holds the Pedersen generators for vectors up to Len() scalars
type CommitmentKey struct {
	label      string
	generators []bn254.G1Affine
}

// NewCommitmentKey derives n generators from label by hashing to G1.
// Nobody knows discrete logs between the generators, so the key needs no trusted setup.
func NewCommitmentKey(label string, n int) (*CommitmentKey, error) {
	if n <= 0 {
		return nil, fmt.Errorf("commitment key size must be positive, got %d", n)
	}
	gens := make([]bn254.G1Affine, n)
	msg := make([]byte, len(label)+8)
	copy(msg, label)
	for i := range gens {
		binary.BigEndian.PutUint64(msg[len(label):], uint64(i))
		g, err := bn254.HashToG1(msg, []byte(generatorDST))
		if err != nil {
			return nil, fmt.Errorf("failed to derive generator %d: %w", i, err)
		}
		gens[i] = g
	}
	return &CommitmentKey{label: label, generators: gens}, nil
}

// Label returns the domain label the key was derived from
func (ck *CommitmentKey) Label() string {
	return ck.label
}

// Len returns the maximum vector length the key commits to
func (ck *CommitmentKey) Len() int {
	return len(ck.generators)
}

// Commitment is a compressed G1 point
type Commitment [bn254.SizeOfG1AffineCompressed]byte

// Commit computes sum_i v[i]·G[i]
func (ck *CommitmentKey) Commit(v []fr.Element) (Commitment, error) {
	if len(v) > len(ck.generators) {
		return Commitment{}, fmt.Errorf("%w: %d > %d", ErrCommitmentLength, len(v), len(ck.generators))
	}
	var com Commitment
	if len(v) == 0 {
		var inf bn254.G1Affine
		return inf.Bytes(), nil
	}
	var p bn254.G1Affine
	if _, err := p.MultiExp(ck.generators[:len(v)], v, ecc.MultiExpConfig{}); err != nil {
		return com, fmt.Errorf("multi-exponentiation failed: %w", err)
	}
	return p.Bytes(), nil
}
