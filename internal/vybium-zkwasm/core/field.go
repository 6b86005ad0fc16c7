// Package core provides the scalar field, vector commitments and hashing
// primitives shared by the zkWASM circuits and the folding backend.
package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ElementSize is the byte length of a canonical scalar encoding
const ElementSize = fr.Bytes

// NewElement creates a scalar from a uint64
func NewElement(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// NewElementFromInt64 creates a scalar from an int64, mapping negative values to p - |v|
func NewElementFromInt64(v int64) fr.Element {
	var e fr.Element
	e.SetInt64(v)
	return e
}

// One returns the multiplicative identity
func One() fr.Element {
	var e fr.Element
	e.SetOne()
	return e
}

// Zero returns the additive identity
func Zero() fr.Element {
	return fr.Element{}
}

var powersOfTwo = func() [257]fr.Element {
	var t [257]fr.Element
	t[0].SetOne()
	for i := 1; i < len(t); i++ {
		t[i].Double(&t[i-1])
	}
	return t
}()

// PowerOfTwo returns 2^n as a scalar
func PowerOfTwo(n int) fr.Element {
	if n >= 0 && n < len(powersOfTwo) {
		return powersOfTwo[n]
	}
	var e fr.Element
	e.SetBigInt(new(big.Int).Lsh(big.NewInt(1), uint(n)))
	return e
}

// NegPowerOfTwo returns -2^n as a scalar
func NegPowerOfTwo(n int) fr.Element {
	e := PowerOfTwo(n)
	e.Neg(&e)
	return e
}

// ToUint64 returns the integer value of e if it fits in 64 bits
func ToUint64(e *fr.Element) (uint64, bool) {
	if !e.IsUint64() {
		return 0, false
	}
	return e.Uint64(), true
}

// MustUint64 returns the low 64 bits of the integer value of e
func MustUint64(e *fr.Element) uint64 {
	var b big.Int
	e.BigInt(&b)
	return b.Uint64()
}

// Bool returns 1 for true and 0 for false
func Bool(b bool) fr.Element {
	if b {
		return One()
	}
	return Zero()
}

// Vector is a list of scalars that encodes to JSON as hex strings
type Vector []fr.Element

// NewVector creates a vector from uint64 values
func NewVector(vals ...uint64) Vector {
	v := make(Vector, len(vals))
	for i, x := range vals {
		v[i] = NewElement(x)
	}
	return v
}

// Equal reports whether both vectors hold the same scalars
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if !v[i].Equal(&o[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the vector
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// MarshalJSON encodes every scalar as a big-endian hex string
func (v Vector) MarshalJSON() ([]byte, error) {
	out := make([]string, len(v))
	for i := range v {
		b := v[i].Bytes()
		out[i] = hex.EncodeToString(b[:])
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes hex strings and rejects non-canonical scalars
func (v *Vector) UnmarshalJSON(data []byte) error {
	var in []string
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(Vector, len(in))
	for i, s := range in {
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("scalar %d: %w", i, err)
		}
		if err := out[i].SetBytesCanonical(b); err != nil {
			return fmt.Errorf("scalar %d: %w", i, err)
		}
	}
	*v = out
	return nil
}
