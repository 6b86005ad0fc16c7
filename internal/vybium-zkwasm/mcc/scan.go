package mcc

import (
	"fmt"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/gadgets"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

// ScanArity is the public state (γ, α, h_IS, h_FS)
const ScanArity = 4

// ScanCircuit multiplies one cell's initial and final tuples into the running products
type ScanCircuit struct {
	IS vm.MemoryTuple `json:"is"`
	FS vm.MemoryTuple `json:"fs"`
}

// BatchedScanCircuit scans several cells per IVC step
type BatchedScanCircuit struct {
	Cells []ScanCircuit `json:"cells"`
}

// NewBatchedScanCircuit returns an all-zero batch of n cells
func NewBatchedScanCircuit(n int) BatchedScanCircuit {
	return BatchedScanCircuit{Cells: make([]ScanCircuit, n)}
}

// BatchScan pairs the IS and FS cells and cuts them into batches
func BatchScan(is, fs []vm.MemoryTuple, memoryStepSize int) ([]BatchedScanCircuit, error) {
	if len(is) != len(fs) {
		return nil, fmt.Errorf("%w: %d initial cells, %d final cells", ErrLengthMismatch, len(is), len(fs))
	}
	if memoryStepSize <= 0 || len(is) == 0 || len(is)%memoryStepSize != 0 {
		return nil, fmt.Errorf("%w: %d cells in batches of %d", ErrEmptyBatch, len(is), memoryStepSize)
	}
	out := make([]BatchedScanCircuit, 0, len(is)/memoryStepSize)
	for i := 0; i < len(is); i += memoryStepSize {
		batch := make([]ScanCircuit, memoryStepSize)
		for k := range batch {
			batch[k] = ScanCircuit{IS: is[i+k], FS: fs[i+k]}
		}
		out = append(out, BatchedScanCircuit{Cells: batch})
	}
	return out, nil
}

// ScanInitialState returns (γ, α, 1, 1)
func ScanInitialState(gamma, alpha fr.Element) core.Vector {
	return core.Vector{gamma, alpha, core.One(), core.One()}
}

func (c ScanCircuit) Arity() int { return ScanArity }

func (c ScanCircuit) NonDeterministicAdvice() []fr.Element {
	return vm.AppendCellAdvice(make([]fr.Element, 0, vm.CellAdviceLen), c.IS, c.FS)
}

func (c ScanCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	if len(z) != ScanArity {
		return nil, fmt.Errorf("mcc: scan arity %d, got %d inputs", ScanArity, len(z))
	}
	gamma, alpha := z[0].Num(), z[1].Num()
	gammaSq, err := gadgets.Product(cs, "gamma_sq", gamma, gamma)
	if err != nil {
		return nil, err
	}
	is, err := gadgets.AllocTuple(cs, "is", c.IS)
	if err != nil {
		return nil, err
	}
	fs, err := gadgets.AllocTuple(cs, "fs", c.FS)
	if err != nil {
		return nil, err
	}
	gadgets.EnforceEqual(cs, "same_addr", is.Addr.Num(), fs.Addr.Num())
	gadgets.EnforceEqual(cs, "is_ts", is.TS.Num(), gadgets.Zero())

	fpIS, err := is.Fingerprint(cs, "is_fp", gamma, gammaSq.Num(), alpha)
	if err != nil {
		return nil, err
	}
	fpFS, err := fs.Fingerprint(cs, "fs_fp", gamma, gammaSq.Num(), alpha)
	if err != nil {
		return nil, err
	}
	hIS, err := gadgets.Product(cs, "h_is", z[2].Num(), fpIS)
	if err != nil {
		return nil, err
	}
	hFS, err := gadgets.Product(cs, "h_fs", z[3].Num(), fpFS)
	if err != nil {
		return nil, err
	}
	return []*gadgets.AllocatedNum{z[0], z[1], hIS, hFS}, nil
}

func (c BatchedScanCircuit) Arity() int { return ScanArity }

func (c BatchedScanCircuit) NonDeterministicAdvice() []fr.Element {
	out := make([]fr.Element, 0, len(c.Cells)*vm.CellAdviceLen)
	for _, cell := range c.Cells {
		out = vm.AppendCellAdvice(out, cell.IS, cell.FS)
	}
	return out
}

func (c BatchedScanCircuit) Synthesize(cs r1cs.ConstraintSystem, z []*gadgets.AllocatedNum) ([]*gadgets.AllocatedNum, error) {
	if len(c.Cells) == 0 {
		return nil, ErrEmptyBatch
	}
	var err error
	for i := range c.Cells {
		if z, err = c.Cells[i].Synthesize(cs.Namespace("cell_"+strconv.Itoa(i)), z); err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
	}
	return z, nil
}

// ScanFingerprints computes natively the IS and FS products
func ScanFingerprints(is, fs []vm.MemoryTuple, gamma, alpha fr.Element) (hIS, hFS fr.Element) {
	hIS, hFS = core.One(), core.One()
	for i := range is {
		a := gadgets.NativeFingerprint(is[i], gamma, alpha)
		b := gadgets.NativeFingerprint(fs[i], gamma, alpha)
		hIS.Mul(&hIS, &a)
		hFS.Mul(&hFS, &b)
	}
	return hIS, hFS
}
