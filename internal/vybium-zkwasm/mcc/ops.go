// Package mcc implements offline memory-consistency checking: the Ops
// circuit folds the read and write tuples of every step into two running
// fingerprint products, the Scan circuit does the same for the initial and
// final memory states, and the verifier checks h_IS·h_WS = h_RS·h_FS.
package mcc

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/gadgets"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

var (
	// ErrEmptyBatch is returned when a batch holds no entries
	ErrEmptyBatch = errors.New("mcc: empty batch")

	// ErrLengthMismatch is returned when paired inputs differ in length
	ErrLengthMismatch = errors.New("mcc: length mismatch")
)

// OpsArity is the public state (γ, α, ts, h_RS, h_WS)
const OpsArity = 5

// OpsCircuit checks the slots of one step and multiplies their fingerprints
// into the running products
type OpsCircuit struct {
	Slots vm.StepSlots `json:"slots"`
}

// BatchedOpsCircuit checks several steps per IVC step
type BatchedOpsCircuit struct {
	Steps []OpsCircuit `json:"steps"`
}

// NewBatchedOpsCircuit returns an all-zero batch of n steps
func NewBatchedOpsCircuit(n int) BatchedOpsCircuit {
	return BatchedOpsCircuit{Steps: make([]OpsCircuit, n)}
}

// BatchOps cuts the slots of a trace into batches of stepSize steps
func BatchOps(slots []vm.StepSlots, stepSize int) ([]BatchedOpsCircuit, error) {
	if stepSize <= 0 || len(slots) == 0 || len(slots)%stepSize != 0 {
		return nil, fmt.Errorf("%w: %d steps in batches of %d", ErrEmptyBatch, len(slots), stepSize)
	}
	out := make([]BatchedOpsCircuit, 0, len(slots)/stepSize)
	for i := 0; i < len(slots); i += stepSize {
		batch := make([]OpsCircuit, stepSize)
		for k := range batch {
			batch[k] = OpsCircuit{Slots: slots[i+k]}
		}
		out = append(out, BatchedOpsCircuit{Steps: batch})
	}
	return out, nil
}

// OpsInitialState returns (γ, α, 0, 1, 1)
func OpsInitialState(gamma, alpha fr.Element) core.Vector {
	return core.Vector{gamma, alpha, core.Zero(), core.One(), core.One()}
}

func (c OpsCircuit) Arity() int { return OpsArity }

// NonDeterministicAdvice matches the switchboard's advice for the same step
func (c OpsCircuit) NonDeterministicAdvice() []fr.Element {
	return c.Slots.AppendAdvice(make([]fr.Element, 0, vm.StepAdviceLen))
}

func (c OpsCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	if len(z) != OpsArity {
		return nil, fmt.Errorf("mcc: ops arity %d, got %d inputs", OpsArity, len(z))
	}
	gamma, alpha := z[0].Num(), z[1].Num()
	gammaSq, err := gadgets.Product(cs, "gamma_sq", gamma, gamma)
	if err != nil {
		return nil, err
	}
	ts, hRS, hWS := z[2].Num(), z[3].Num(), z[4].Num()
	for k := range c.Slots {
		scs := cs.Namespace("slot_" + strconv.Itoa(k))
		slot, err := gadgets.AllocSlot(scs, "advice", c.Slots[k])
		if err != nil {
			return nil, err
		}
		active := slot.Active.Num()
		gadgets.EnforceEqual(scs, "same_addr", slot.WS.Addr.Num(), slot.RS.Addr.Num())

		ts = ts.Add(active)
		gadgets.EnforceGatedEqual(scs, "ws_ts", active, slot.WS.TS.Num(), ts)
		scs.Enforce("idle_ts", gadgets.Not(active).LC(), slot.WS.TS.LC(), nil)
		// active ⇒ rs.ts < ws.ts
		gap, err := gadgets.Product(scs, "gap", active, slot.WS.TS.Num().Sub(slot.RS.TS.Num()).SubUint64(1))
		if err != nil {
			return nil, err
		}
		if err := gadgets.RangeCheck(scs, "gap_range", gap.Num(), 64); err != nil {
			return nil, err
		}

		if hRS, err = multiply(scs, "rs", hRS, slot.RS, active, gamma, gammaSq.Num(), alpha); err != nil {
			return nil, err
		}
		if hWS, err = multiply(scs, "ws", hWS, slot.WS, active, gamma, gammaSq.Num(), alpha); err != nil {
			return nil, err
		}
	}
	return outputs(cs, z[0], z[1], ts, hRS, hWS)
}

// multiply returns h·(1 + active·(fp - 1))
func multiply(cs r1cs.ConstraintSystem, name string, h *gadgets.Num, t gadgets.Tuple, active, gamma, gammaSq, alpha *gadgets.Num) (*gadgets.Num, error) {
	cs = cs.Namespace(name)
	fp, err := t.Fingerprint(cs, "fp", gamma, gammaSq, alpha)
	if err != nil {
		return nil, err
	}
	gated, err := gadgets.Product(cs, "gated", active, fp.SubUint64(1))
	if err != nil {
		return nil, err
	}
	next, err := gadgets.Product(cs, "product", h, gated.Num().AddUint64(1))
	if err != nil {
		return nil, err
	}
	return next.Num(), nil
}

// outputs passes the challenges through and materializes the running values
func outputs(cs r1cs.ConstraintSystem, gamma, alpha *gadgets.AllocatedNum, rest ...*gadgets.Num) ([]*gadgets.AllocatedNum, error) {
	out := []*gadgets.AllocatedNum{gamma, alpha}
	for i, n := range rest {
		a, err := n.Alloc(cs, "out_"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (c BatchedOpsCircuit) Arity() int { return OpsArity }

func (c BatchedOpsCircuit) NonDeterministicAdvice() []fr.Element {
	out := make([]fr.Element, 0, len(c.Steps)*vm.StepAdviceLen)
	for i := range c.Steps {
		out = c.Steps[i].Slots.AppendAdvice(out)
	}
	return out
}

func (c BatchedOpsCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	if len(c.Steps) == 0 {
		return nil, ErrEmptyBatch
	}
	var err error
	for i := range c.Steps {
		if z, err = c.Steps[i].Synthesize(cs.Namespace("step_"+strconv.Itoa(i)), z); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return z, nil
}

// OpsFingerprints computes natively what the Ops fold outputs: the final
// timestamp and the RS and WS products over every active slot
func OpsFingerprints(slots []vm.StepSlots, gamma, alpha fr.Element) (ts uint64, hRS, hWS fr.Element) {
	hRS, hWS = core.One(), core.One()
	for i := range slots {
		for _, s := range slots[i] {
			if !s.Active {
				continue
			}
			ts++
			rs := gadgets.NativeFingerprint(s.RS, gamma, alpha)
			ws := gadgets.NativeFingerprint(s.WS, gamma, alpha)
			hRS.Mul(&hRS, &rs)
			hWS.Mul(&hWS, &ws)
		}
	}
	return ts, hRS, hWS
}
