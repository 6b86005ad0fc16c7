package gadgets

import (
	"strconv"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
)

// RestoringDivRemU divides bit by bit: for each dividend bit from the top,
// r' = 2r + a_i, q_i = (r' >= b) and r = r' - q_i·b. The divisor must be
// non-zero for the result to match a / b.
func RestoringDivRemU(cs r1cs.ConstraintSystem, name string, a, b *Num, width int) (q, r *Num, err error) {
	cs = cs.Namespace(name)
	abits, err := Decompose(cs, "dividend", a, width)
	if err != nil {
		return nil, nil, err
	}
	two := core.NewElement(2)
	qbits := make([]*Num, width)
	r = Zero()
	for i := width - 1; i >= 0; i-- {
		round := cs.Namespace(strconv.Itoa(i))
		shifted := r.Scale(two).Add(abits[i])
		_, ge, err := LtGeU(round, "cmp", shifted, b, width+1)
		if err != nil {
			return nil, nil, err
		}
		sub, err := Product(round, "restore", ge, b)
		if err != nil {
			return nil, nil, err
		}
		qbits[i] = ge
		rem, err := shifted.Sub(sub.Num()).Alloc(round, "remainder")
		if err != nil {
			return nil, nil, err
		}
		r = rem.Num()
	}
	return Pack(qbits), r, nil
}
