package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"golang.org/x/crypto/sha3"
)

// Channel represents a Fiat-Shamir transcript channel
type Channel struct {
	state    []byte
	proof    []string
	hashFunc string
}

// NewChannel creates a new Fiat-Shamir channel bound to a domain label.
// Supported hash functions are "mimc" (the default) and "sha3".
func NewChannel(hashFunc, label string) *Channel {
	if hashFunc == "" {
		hashFunc = "mimc"
	}
	c := &Channel{
		state:    []byte{0},
		proof:    make([]string, 0, 16),
		hashFunc: hashFunc,
	}
	c.state = c.hash(append(c.state, label...))
	return c
}

// Send appends data to the channel state
func (c *Channel) Send(data []byte) {
	c.proof = append(c.proof, fmt.Sprintf("send:%s", hex.EncodeToString(data)))
	c.state = c.hash(append(c.State(), data...))
}

// SendElement appends the canonical encoding of a scalar
func (c *Channel) SendElement(e *fr.Element) {
	b := e.Bytes()
	c.Send(b[:])
}

// ReceiveFieldElement squeezes a scalar from the current state
func (c *Channel) ReceiveFieldElement() fr.Element {
	var e fr.Element
	e.SetBytes(c.state)
	c.proof = append(c.proof, fmt.Sprintf("receiveFieldElement:%s", e.String()))
	c.state = c.hash(c.State())
	return e
}

// State returns the current channel state
func (c *Channel) State() []byte {
	return append([]byte(nil), c.state...)
}

// Proof returns the proof transcript
func (c *Channel) Proof() []string {
	return append([]string(nil), c.proof...)
}

// hash computes the hash of the input using the configured hash function
func (c *Channel) hash(data []byte) []byte {
	switch c.hashFunc {
	case "sha3":
		h := sha3.Sum256(data)
		return h[:]
	default:
		return mimcBytes(data)
	}
}

// mimcBytes absorbs data as 31-byte chunks so every block is a canonical scalar
func mimcBytes(data []byte) []byte {
	h := mimc.NewMiMC()
	var e fr.Element
	for len(data) > 0 {
		n := min(len(data), fr.Bytes-1)
		e.SetBytes(data[:n])
		b := e.Bytes()
		h.Write(b[:])
		data = data[n:]
	}
	return h.Sum(nil)
}

// String returns a string representation of the channel proof
func (c *Channel) String() string {
	return strings.Join(c.proof, " ")
}
