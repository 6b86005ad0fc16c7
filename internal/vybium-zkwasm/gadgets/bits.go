package gadgets

import (
	"fmt"
	"strconv"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

// AndBits returns the position-wise products x_i·y_i
func AndBits(cs r1cs.ConstraintSystem, name string, x, y []*Num) ([]*Num, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("bit vectors differ in length: %d != %d", len(x), len(y))
	}
	cs = cs.Namespace(name)
	out := make([]*Num, len(x))
	for i := range x {
		p, err := Product(cs, strconv.Itoa(i), x[i], y[i])
		if err != nil {
			return nil, err
		}
		out[i] = p.Num()
	}
	return out, nil
}

// OrFromAnd returns x_i + y_i - (x_i AND y_i)
func OrFromAnd(x, y, and []*Num) []*Num {
	out := make([]*Num, len(x))
	for i := range x {
		out[i] = x[i].Add(y[i]).Sub(and[i])
	}
	return out
}

// XorFromAnd returns x_i + y_i - 2·(x_i AND y_i)
func XorFromAnd(x, y, and []*Num) []*Num {
	two := core.NewElement(2)
	out := make([]*Num, len(x))
	for i := range x {
		out[i] = x[i].Add(y[i]).Sub(and[i].Scale(two))
	}
	return out
}

// Popcnt returns the number of set bits
func Popcnt(bits []*Num) *Num {
	return Sum(bits...)
}

// Clz counts leading zeros: z_i = prod_{j >= i} (1 - b_j) and clz = sum z_i
func Clz(cs r1cs.ConstraintSystem, name string, bits []*Num) (*Num, error) {
	cs = cs.Namespace(name)
	w := len(bits)
	z := Not(bits[w-1])
	acc := z
	for i := w - 2; i >= 0; i-- {
		p, err := Product(cs, strconv.Itoa(i), z, Not(bits[i]))
		if err != nil {
			return nil, err
		}
		z = p.Num()
		acc = acc.Add(z)
	}
	return acc, nil
}

// Ctz counts trailing zeros: z_i = prod_{j <= i} (1 - b_j) and ctz = sum z_i
func Ctz(cs r1cs.ConstraintSystem, name string, bits []*Num) (*Num, error) {
	cs = cs.Namespace(name)
	z := Not(bits[0])
	acc := z
	for i := 1; i < len(bits); i++ {
		p, err := Product(cs, strconv.Itoa(i), z, Not(bits[i]))
		if err != nil {
			return nil, err
		}
		z = p.Num()
		acc = acc.Add(z)
	}
	return acc, nil
}

// SignExtend interprets the low from bits as two's complement and widens to to bits
func SignExtend(bits []*Num, from, to int) *Num {
	ext := core.PowerOfTwo(to)
	low := core.PowerOfTwo(from)
	ext.Sub(&ext, &low)
	return Pack(bits[:from]).AddScaled(ext, bits[from-1])
}

// ShiftKind selects the barrel shifter mode
type ShiftKind int

const (
	// ShiftLeft fills vacated low bits with zero
	ShiftLeft ShiftKind = iota

	// ShiftRightUnsigned fills vacated high bits with zero
	ShiftRightUnsigned

	// ShiftRightSigned replicates the sign bit into vacated high bits
	ShiftRightSigned

	// RotateLeft moves bits out of the top into the bottom
	RotateLeft

	// RotateRight moves bits out of the bottom into the top
	RotateRight
)

// String returns the name of the shift kind
func (k ShiftKind) String() string {
	switch k {
	case ShiftLeft:
		return "shl"
	case ShiftRightUnsigned:
		return "shr_u"
	case ShiftRightSigned:
		return "shr_s"
	case RotateLeft:
		return "rotl"
	case RotateRight:
		return "rotr"
	default:
		return fmt.Sprintf("shift(%d)", int(k))
	}
}

// Shift applies a barrel shifter to bits. amount holds the little-endian bits
// of the shift count; layer j moves by 2^j positions when amount[j] is set.
func Shift(cs r1cs.ConstraintSystem, name string, bits, amount []*Num, kind ShiftKind) ([]*Num, error) {
	cs = cs.Namespace(name)
	w := len(bits)
	fill := Zero()
	if kind == ShiftRightSigned {
		fill = bits[w-1]
	}
	cur := bits
	for j, sel := range amount {
		k := 1 << uint(j)
		layer := cs.Namespace(strconv.Itoa(j))
		next := make([]*Num, w)
		for i := 0; i < w; i++ {
			var src *Num
			switch kind {
			case ShiftLeft:
				if i-k >= 0 {
					src = cur[i-k]
				} else {
					src = Zero()
				}
			case ShiftRightUnsigned, ShiftRightSigned:
				if i+k < w {
					src = cur[i+k]
				} else {
					src = fill
				}
			case RotateLeft:
				src = cur[((i-k)%w+w)%w]
			case RotateRight:
				src = cur[(i+k)%w]
			default:
				return nil, fmt.Errorf("unknown shift kind %v", kind)
			}
			out, err := Select(layer, strconv.Itoa(i), sel, src, cur[i])
			if err != nil {
				return nil, err
			}
			next[i] = out
		}
		cur = next
	}
	return cur, nil
}

// ShiftRightBytes shifts bits right by 8·n where amount holds the little-endian
// bits of n, filling with zero, and returns the low keep bits of the result
func ShiftRightBytes(cs r1cs.ConstraintSystem, name string, bits, amount []*Num, keep int) ([]*Num, error) {
	cs = cs.Namespace(name)
	cur := bits
	for j, sel := range amount {
		k := 8 << uint(j)
		rest := 0
		for l := j + 1; l < len(amount); l++ {
			rest += 8 << uint(l)
		}
		w := min(len(cur), keep+rest)
		layer := cs.Namespace(strconv.Itoa(j))
		next := make([]*Num, w)
		for i := range next {
			src := Zero()
			if i+k < len(cur) {
				src = cur[i+k]
			}
			out, err := Select(layer, strconv.Itoa(i), sel, src, cur[i])
			if err != nil {
				return nil, err
			}
			next[i] = out
		}
		cur = next
	}
	if len(cur) < keep {
		return nil, fmt.Errorf("window of %d bits is narrower than %d", len(cur), keep)
	}
	return cur[:keep], nil
}
