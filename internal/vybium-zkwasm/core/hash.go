package core

import (
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"
)

// DigestSize is the byte length of a Digest
const DigestSize = 32

// Digest is a SHA3-256 output
type Digest [DigestSize]byte

// HashBytes hashes the concatenation of parts with SHA3-256
func HashBytes(parts ...[]byte) Digest {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// HashElements hashes the canonical encodings of the given scalars
func HashElements(elems ...fr.Element) Digest {
	h := sha3.New256()
	for i := range elems {
		b := elems[i].Bytes()
		h.Write(b[:])
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Element maps the digest into the scalar field
func (d Digest) Element() fr.Element {
	var e fr.Element
	e.SetBytes(d[:])
	return e
}

// IsZero reports whether the digest is all zeros
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the hex encoding of the digest
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as hex
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest
func (d *Digest) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != DigestSize {
		return fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return nil
}
