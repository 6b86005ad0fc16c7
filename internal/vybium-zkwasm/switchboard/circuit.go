// Package switchboard implements the WASM transition circuit: one step circuit
// that proves any single flat-ISA instruction by running every instruction's
// constraints under a one-hot switch vector.
package switchboard

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

// ErrEmptyBatch is returned when a batched circuit holds no steps
var ErrEmptyBatch = errors.New("switchboard: empty batch")

// Arity is the public state (pc, sp)
const Arity = 2

// WASMTransitionCircuit proves one VM step given its memory accesses
type WASMTransitionCircuit struct {
	VM    vm.WitnessVM `json:"vm"`
	Slots vm.StepSlots `json:"slots"`
}

// NewWASMTransitionCircuit pairs a step with its slots
func NewWASMTransitionCircuit(w vm.WitnessVM, slots vm.StepSlots) WASMTransitionCircuit {
	return WASMTransitionCircuit{VM: w, Slots: slots}
}

func (c WASMTransitionCircuit) Arity() int { return Arity }

// NonDeterministicAdvice returns the slot tuples in advice order
func (c WASMTransitionCircuit) NonDeterministicAdvice() []fr.Element {
	return c.Slots.AppendAdvice(make([]fr.Element, 0, vm.StepAdviceLen))
}

func (c WASMTransitionCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	return c.synthesize(cs, z)
}

// stepVars are the allocated VM fields of a step
type stepVars struct {
	j, prePC, postPC, preSP, postSP, i, d *gadgets.AllocatedNum
}

func allocStep(cs r1cs.ConstraintSystem, w vm.WitnessVM) (*stepVars, error) {
	v := &stepVars{}
	fields := []struct {
		name string
		val  uint64
		dst  **gadgets.AllocatedNum
	}{
		{"j", w.J, &v.j},
		{"pre_pc", w.PrePC, &v.prePC},
		{"post_pc", w.PostPC, &v.postPC},
		{"pre_sp", w.PreSP, &v.preSP},
		{"post_sp", w.PostSP, &v.postSP},
		{"i", w.I, &v.i},
		{"d", w.D, &v.d},
	}
	for _, f := range fields {
		n, err := gadgets.AllocUint64(cs, f.name, f.val)
		if err != nil {
			return nil, err
		}
		*f.dst = n
	}
	return v, nil
}

func (c WASMTransitionCircuit) synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	if len(z) != Arity {
		return nil, fmt.Errorf("switchboard: arity %d, got %d inputs", Arity, len(z))
	}
	v, err := allocStep(cs.Namespace("vm"), c.VM)
	if err != nil {
		return nil, err
	}
	var slots [vm.NumSlots]*gadgets.Slot
	for k := range slots {
		if slots[k], err = gadgets.AllocSlot(cs, "slot_"+strconv.Itoa(k), c.Slots[k]); err != nil {
			return nil, err
		}
	}
	gadgets.EnforceEqual(cs, "z_pc", z[0].Num(), v.prePC.Num())
	gadgets.EnforceEqual(cs, "z_sp", z[1].Num(), v.preSP.Num())

	b := &board{
		cs:    cs,
		w:     c.VM,
		pc:    v.prePC.Num(),
		sp:    v.preSP.Num(),
		i:     v.i.Num(),
		d:     v.d.Num(),
		slots: slots,
	}
	if err := b.allocSwitches(v.j.Num()); err != nil {
		return nil, err
	}
	if b.bank, err = newBank(cs.Namespace("bank"), b); err != nil {
		return nil, err
	}

	pcDelta, spDelta := gadgets.Zero(), gadgets.Zero()
	var active [vm.NumSlots]*gadgets.Num
	for k := range active {
		active[k] = gadgets.Zero()
	}
	for _, vis := range visitors {
		s := b.switches[vis.instr]
		t, err := vis.visit(b, b.in(vis.instr.String()), s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", vis.instr, err)
		}
		pcDelta = pcDelta.Add(t.pc)
		spDelta = spDelta.Add(t.sp)
		for k := range active {
			if vis.slots&(1<<k) != 0 {
				active[k] = active[k].Add(s)
			}
		}
	}
	for k, a := range active {
		gadgets.EnforceEqual(cs, "slot_"+strconv.Itoa(k)+"_activity", slots[k].Active.Num(), a)
	}
	gadgets.EnforceEqual(cs, "post_pc", v.postPC.Num(), b.pc.Add(pcDelta))
	gadgets.EnforceEqual(cs, "post_sp", v.postSP.Num(), b.sp.Add(spDelta))
	return []*gadgets.AllocatedNum{v.postPC, v.postSP}, nil
}

// BatchedWasmTransitionCircuit folds several consecutive steps into one IVC step
type BatchedWasmTransitionCircuit struct {
	Steps []WASMTransitionCircuit `json:"steps"`
}

// NewBatchedWasmTransitionCircuit returns an all-zero batch of n steps,
// which fixes the circuit shape at setup
func NewBatchedWasmTransitionCircuit(n int) BatchedWasmTransitionCircuit {
	return BatchedWasmTransitionCircuit{Steps: make([]WASMTransitionCircuit, n)}
}

// Batch pairs steps with slots and cuts them into circuits of stepSize steps.
// len(steps) must be a multiple of stepSize.
func Batch(steps []vm.WitnessVM, slots []vm.StepSlots, stepSize int) ([]BatchedWasmTransitionCircuit, error) {
	if len(steps) != len(slots) {
		return nil, fmt.Errorf("switchboard: %d steps but %d slot sets", len(steps), len(slots))
	}
	if stepSize <= 0 || len(steps) == 0 || len(steps)%stepSize != 0 {
		return nil, fmt.Errorf("%w: %d steps in batches of %d", ErrEmptyBatch, len(steps), stepSize)
	}
	out := make([]BatchedWasmTransitionCircuit, 0, len(steps)/stepSize)
	for i := 0; i < len(steps); i += stepSize {
		batch := make([]WASMTransitionCircuit, stepSize)
		for k := range batch {
			batch[k] = NewWASMTransitionCircuit(steps[i+k], slots[i+k])
		}
		out = append(out, BatchedWasmTransitionCircuit{Steps: batch})
	}
	return out, nil
}

func (c BatchedWasmTransitionCircuit) Arity() int { return Arity }

// NonDeterministicAdvice concatenates the advice of every step
func (c BatchedWasmTransitionCircuit) NonDeterministicAdvice() []fr.Element {
	out := make([]fr.Element, 0, len(c.Steps)*vm.StepAdviceLen)
	for i := range c.Steps {
		out = c.Steps[i].Slots.AppendAdvice(out)
	}
	return out
}

func (c BatchedWasmTransitionCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	if len(c.Steps) == 0 {
		return nil, ErrEmptyBatch
	}
	var err error
	for i := range c.Steps {
		if z, err = c.Steps[i].synthesize(cs.Namespace("step_"+strconv.Itoa(i)), z); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return z, nil
}

// InitialState returns z0 for an execution starting at pc, sp
func InitialState(pc, sp uint64) core.Vector {
	return core.NewVector(pc, sp)
}
