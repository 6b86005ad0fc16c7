package vybiumzkwasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/mcc"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/protocols"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/switchboard"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

var (
	// ErrMultisetVerification is returned when any cross-check between the
	// three proofs fails. It does not say which one.
	ErrMultisetVerification = errors.New("zkwasm: multiset verification failed")

	// ErrMalformedRS is returned for empty or ill-formed traces
	ErrMalformedRS = errors.New("zkwasm: malformed read set")

	// ErrPublicIO is returned when the arguments or results of an instance
	// are not the ones held by the proven memory images
	ErrPublicIO = errors.New("zkwasm: public inputs or outputs do not match the proof")

	// ErrNova is wrapped by every recursive proof failure
	ErrNova = protocols.ErrNova
)

// Commitment-key labels. Execution and ops share theirs so that the two
// folds commit to the same slot advice identically.
const (
	tuplesLabel = "vybium-zkwasm/memory-tuples"
	cellsLabel  = "vybium-zkwasm/memory-cells"
)

// Tracer produces the execution trace of a program call
type Tracer interface {
	Trace(ctx context.Context, maxSteps uint64) (*vm.ExecutionTrace, error)
}

// PublicParams holds the parameters of the three folds
type PublicParams struct {
	StepSize       int                     `json:"step_size"`
	MemoryStepSize int                     `json:"memory_step_size"`
	Execution      *protocols.PublicParams `json:"execution"`
	Ops            *protocols.PublicParams `json:"ops"`
	Scan           *protocols.PublicParams `json:"scan"`

	config *utils.Config
}

// WasmSNARK bundles the execution, ops and scan proofs
type WasmSNARK struct {
	Execution *protocols.RecursiveSNARK[switchboard.BatchedWasmTransitionCircuit] `json:"execution"`
	Ops       *protocols.RecursiveSNARK[mcc.BatchedOpsCircuit]                    `json:"ops"`
	Scan      *protocols.RecursiveSNARK[mcc.BatchedScanCircuit]                   `json:"scan"`
}

// ZKWASMInstance is the public side of a proof: the initial and final state
// of every fold, the step counts and the two commitments the challenges are
// derived from.
type ZKWASMInstance struct {
	ExecutionZ0 core.Vector `json:"execution_z0"`
	ExecutionZi core.Vector `json:"execution_zi"`
	OpsZ0       core.Vector `json:"ops_z0"`
	OpsZi       core.Vector `json:"ops_zi"`
	ScanZ0      core.Vector `json:"scan_z0"`
	ScanZi      core.Vector `json:"scan_zi"`

	ExecutionSteps int `json:"execution_steps"`
	OpsSteps       int `json:"ops_steps"`
	ScanSteps      int `json:"scan_steps"`

	ExecutionCommitment core.Digest `json:"execution_commitment"`
	ScanCommitment      core.Digest `json:"scan_commitment"`

	// TraceLen and Cells count the unpadded steps and memory cells
	TraceLen int `json:"trace_len"`
	Cells    int `json:"cells"`

	// Args and Results are checked against the entry frame of IS and the
	// bottom of the stack in FS
	Args    []uint64 `json:"args"`
	Results []uint64 `json:"results"`
}

// Setup builds the public parameters of the three folds from the shapes of
// their batched circuits
func Setup(config *utils.Config) (*PublicParams, error) {
	if config == nil {
		config = utils.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := config.Log()

	execution, err := protocols.Setup(tuplesLabel, switchboard.NewBatchedWasmTransitionCircuit(config.StepSize))
	if err != nil {
		return nil, fmt.Errorf("%w: execution setup: %w", ErrNova, err)
	}
	ops, err := protocols.Setup(tuplesLabel, mcc.NewBatchedOpsCircuit(config.StepSize))
	if err != nil {
		return nil, fmt.Errorf("%w: ops setup: %w", ErrNova, err)
	}
	scan, err := protocols.Setup(cellsLabel, mcc.NewBatchedScanCircuit(config.MemoryStepSize))
	if err != nil {
		return nil, fmt.Errorf("%w: scan setup: %w", ErrNova, err)
	}
	log.Info("public parameters ready",
		zap.Int("step_size", config.StepSize),
		zap.Int("memory_step_size", config.MemoryStepSize),
		zap.Stringer("execution", execution.Shape),
		zap.Stringer("ops", ops.Shape),
		zap.Stringer("scan", scan.Shape),
	)
	return &PublicParams{
		StepSize:       config.StepSize,
		MemoryStepSize: config.MemoryStepSize,
		Execution:      execution,
		Ops:            ops,
		Scan:           scan,
		config:         config,
	}, nil
}

// Config returns the configuration the parameters were built with
func (pp *PublicParams) Config() *utils.Config {
	if pp.config == nil {
		return utils.DefaultConfig()
	}
	return pp.config
}

func (pp *PublicParams) log() *zap.Logger {
	return pp.config.Log()
}

// witness is everything the folds consume
type witness struct {
	steps  []vm.WitnessVM
	slots  []vm.StepSlots
	is, fs []vm.MemoryTuple

	traceLen, cells int
	args, results   []uint64
}

// record runs the tracer and replays its steps against IS, then pads the
// step sequence and the memory images to whole batches
func record(ctx context.Context, pp *PublicParams, tracer Tracer) (*witness, error) {
	trace, err := tracer.Trace(ctx, pp.Config().MaxSteps)
	if err != nil {
		return nil, err
	}
	if len(trace.Steps) == 0 {
		return nil, fmt.Errorf("%w: empty trace", ErrMalformedRS)
	}
	if trace.Initial == nil || trace.EntrySP == 0 || trace.EntrySP > uint64(len(trace.Initial.Stack)) {
		return nil, fmt.Errorf("%w: no entry frame", ErrMalformedRS)
	}
	is := trace.InitialState()
	mt, err := vm.NewMemoryTrace(is)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRS, err)
	}
	w := &witness{
		steps:    append([]vm.WitnessVM(nil), trace.Steps...),
		slots:    make([]vm.StepSlots, len(trace.Steps), utils.PadLength(len(trace.Steps), pp.StepSize)),
		traceLen: len(trace.Steps),
		cells:    len(is),
		args:     append([]uint64(nil), trace.Initial.Stack[:trace.EntrySP-1]...),
		results:  trace.Results,
	}
	for i, step := range trace.Steps {
		if w.slots[i], err = mt.Step(step); err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrMalformedRS, i, err)
		}
	}

	last := w.steps[len(w.steps)-1]
	for len(w.steps)%pp.StepSize != 0 {
		w.steps = append(w.steps, vm.NopAt(last.PostPC, last.PostSP))
		w.slots = append(w.slots, vm.StepSlots{})
	}
	w.is = vm.PadCells(is, pp.MemoryStepSize)
	w.fs = vm.PadCells(mt.FinalState(), pp.MemoryStepSize)

	pp.log().Info("trace recorded",
		zap.Int("steps", w.traceLen),
		zap.Int("padded_steps", len(w.steps)),
		zap.Int("cells", w.cells),
		zap.Int("padded_cells", len(w.is)),
		zap.Uint64("timestamp", mt.Timestamp()),
	)
	return w, nil
}

// fold proves every circuit in order, checking ctx between steps
func fold[C protocols.StepCircuit](ctx context.Context, pp *protocols.PublicParams, z0 core.Vector, circuits []C) (*protocols.RecursiveSNARK[C], error) {
	snark, err := protocols.NewRecursiveSNARK[C](pp, z0)
	if err != nil {
		return nil, err
	}
	for _, c := range circuits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := snark.ProveStep(pp, c); err != nil {
			return nil, err
		}
	}
	return snark, nil
}

// Prove traces the program, folds the execution, derives the memory
// challenges from the execution and scan commitments and folds ops and scan
func Prove(ctx context.Context, pp *PublicParams, tracer Tracer) (*WasmSNARK, *ZKWASMInstance, error) {
	log := pp.log()
	w, err := record(ctx, pp, tracer)
	if err != nil {
		return nil, nil, err
	}

	batches, err := switchboard.Batch(w.steps, w.slots, pp.StepSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedRS, err)
	}
	execZ0 := switchboard.InitialState(w.steps[0].PrePC, w.steps[0].PreSP)
	execution, err := fold(ctx, pp.Execution, execZ0, batches)
	if err != nil {
		return nil, nil, err
	}
	execZi, err := execution.Verify(pp.Execution, len(batches), execZ0)
	if err != nil {
		return nil, nil, err
	}
	log.Info("execution folded", zap.Int("ivc_steps", len(batches)))

	cells, err := mcc.BatchScan(w.is, w.fs, pp.MemoryStepSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedRS, err)
	}
	advice := make([][]fr.Element, len(cells))
	for i := range cells {
		advice[i] = cells[i].NonDeterministicAdvice()
	}
	scanCommitment, err := protocols.IncrementalCommitment(pp.Scan, advice...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: scan commitment: %w", ErrNova, err)
	}

	gamma, alpha := mcc.DeriveChallenges(execution.IC, scanCommitment)
	log.Debug("memory challenges derived",
		zap.Stringer("execution_commitment", execution.IC),
		zap.Stringer("scan_commitment", scanCommitment),
		zap.String("gamma", gamma.String()),
		zap.String("alpha", alpha.String()),
	)

	ops, err := mcc.BatchOps(w.slots, pp.StepSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedRS, err)
	}
	opsZ0, scanZ0 := mcc.OpsInitialState(gamma, alpha), mcc.ScanInitialState(gamma, alpha)

	snark := &WasmSNARK{Execution: execution}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snark.Ops, err = fold(gctx, pp.Ops, opsZ0, ops)
		return err
	})
	g.Go(func() error {
		var err error
		snark.Scan, err = fold(gctx, pp.Scan, scanZ0, cells)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	log.Info("memory folded", zap.Int("ops_steps", len(ops)), zap.Int("scan_steps", len(cells)))

	u := &ZKWASMInstance{
		ExecutionZ0:         execZ0,
		ExecutionZi:         execZi,
		OpsZ0:               opsZ0,
		OpsZi:               snark.Ops.Zi.Clone(),
		ScanZ0:              scanZ0,
		ScanZi:              snark.Scan.Zi.Clone(),
		ExecutionSteps:      len(batches),
		OpsSteps:            len(ops),
		ScanSteps:           len(cells),
		ExecutionCommitment: execution.IC,
		ScanCommitment:      scanCommitment,
		TraceLen:            w.traceLen,
		Cells:               w.cells,
		Args:                w.args,
		Results:             w.results,
	}
	return snark, u, nil
}

// Verify checks the three proofs against the instance and then the
// cross-checks that tie them together
func (s *WasmSNARK) Verify(pp *PublicParams, u *ZKWASMInstance) error {
	if s == nil || s.Execution == nil || s.Ops == nil || s.Scan == nil || u == nil {
		return fmt.Errorf("%w: incomplete proof", ErrNova)
	}
	log := pp.log()

	checks := []struct {
		name  string
		run   func() (core.Vector, error)
		final core.Vector
	}{
		{"execution", func() (core.Vector, error) { return s.Execution.Verify(pp.Execution, u.ExecutionSteps, u.ExecutionZ0) }, u.ExecutionZi},
		{"ops", func() (core.Vector, error) { return s.Ops.Verify(pp.Ops, u.OpsSteps, u.OpsZ0) }, u.OpsZi},
		{"scan", func() (core.Vector, error) { return s.Scan.Verify(pp.Scan, u.ScanSteps, u.ScanZ0) }, u.ScanZi},
	}
	for _, c := range checks {
		zi, err := c.run()
		if err != nil {
			log.Warn("proof rejected", zap.String("fold", c.name), zap.Error(err))
			return fmt.Errorf("%s: %w", c.name, err)
		}
		if !zi.Equal(c.final) {
			log.Warn("proof rejected", zap.String("fold", c.name), zap.Error(protocols.ErrStateChain))
			return fmt.Errorf("%s: %w: %w: final state", c.name, ErrNova, protocols.ErrStateChain)
		}
	}

	if !crossCheck(s, u) {
		log.Warn("multiset verification failed")
		return ErrMultisetVerification
	}
	if err := bindIO(s, u); err != nil {
		log.Warn("proof rejected", zap.Error(err))
		return err
	}
	log.Info("proof verified",
		zap.Int("execution_steps", u.ExecutionSteps),
		zap.Int("ops_steps", u.OpsSteps),
		zap.Int("scan_steps", u.ScanSteps),
	)
	return nil
}

func crossCheck(s *WasmSNARK, u *ZKWASMInstance) bool {
	if len(u.OpsZ0) != mcc.OpsArity || len(u.OpsZi) != mcc.OpsArity ||
		len(u.ScanZ0) != mcc.ScanArity || len(u.ScanZi) != mcc.ScanArity {
		return false
	}
	if u.ExecutionCommitment != s.Execution.IC || u.ScanCommitment != s.Scan.IC {
		return false
	}

	// challenges are bound to both commitments
	gamma, alpha := mcc.DeriveChallenges(u.ExecutionCommitment, u.ScanCommitment)
	if !gamma.Equal(&u.OpsZ0[0]) || !alpha.Equal(&u.OpsZ0[1]) {
		return false
	}
	// ops and scan agree on them
	if !u.ScanZ0[0].Equal(&u.OpsZ0[0]) || !u.ScanZ0[1].Equal(&u.OpsZ0[1]) {
		return false
	}
	// clean slate
	one := core.One()
	if !u.OpsZ0[2].IsZero() || !u.OpsZ0[3].Equal(&one) || !u.OpsZ0[4].Equal(&one) ||
		!u.ScanZ0[2].Equal(&one) || !u.ScanZ0[3].Equal(&one) {
		return false
	}
	// ops consumed the tuples the switchboard did
	if s.Ops.IC != s.Execution.IC {
		return false
	}
	if !ascendingCells(s.Scan.Steps) {
		return false
	}
	return mcc.MultisetHolds(u.ScanZi[2], u.OpsZi[4], u.OpsZi[3], u.ScanZi[3])
}

// ascendingCells reports whether the scanned IS addresses strictly increase,
// so that no address has two initial values
func ascendingCells(batches []mcc.BatchedScanCircuit) bool {
	var last uint64
	first := true
	for _, b := range batches {
		for _, c := range b.Cells {
			if !first && c.IS.Addr <= last {
				return false
			}
			last, first = c.IS.Addr, false
		}
	}
	return true
}

// bindIO checks the instance's arguments against the entry frame in IS and
// its results against FS. The entry frame is [args][halt address] below the
// initial sp, and returning from it leaves the results at the bottom of the
// stack with sp equal to their count.
func bindIO(s *WasmSNARK, u *ZKWASMInstance) error {
	if len(u.ExecutionZ0) != switchboard.Arity || len(u.ExecutionZi) != switchboard.Arity {
		return fmt.Errorf("%w: execution state arity", ErrPublicIO)
	}
	sp0, ok := core.ToUint64(&u.ExecutionZ0[1])
	if !ok || sp0 != uint64(len(u.Args))+1 {
		return fmt.Errorf("%w: entry sp does not frame %d arguments", ErrPublicIO, len(u.Args))
	}
	if spN, ok := core.ToUint64(&u.ExecutionZi[1]); !ok || spN != uint64(len(u.Results)) {
		return fmt.Errorf("%w: final sp does not hold %d results", ErrPublicIO, len(u.Results))
	}

	is := make(map[uint64]uint64, len(u.Args)+1)
	fs := make(map[uint64]uint64, len(u.Results))
	for _, b := range s.Scan.Steps {
		for _, c := range b.Cells {
			if c.IS.Addr < sp0 {
				is[c.IS.Addr] = c.IS.Val
			}
			if c.FS.Addr < uint64(len(u.Results)) {
				fs[c.FS.Addr] = c.FS.Val
			}
		}
	}
	for i, a := range u.Args {
		if v, ok := is[vm.StackAddr(uint64(i))]; !ok || v != a {
			return fmt.Errorf("%w: argument %d", ErrPublicIO, i)
		}
	}
	if _, ok := is[vm.StackAddr(uint64(len(u.Args)))]; !ok {
		return fmt.Errorf("%w: missing return address", ErrPublicIO)
	}
	for i, r := range u.Results {
		if v, ok := fs[vm.StackAddr(uint64(i))]; !ok || v != r {
			return fmt.Errorf("%w: result %d", ErrPublicIO, i)
		}
	}
	return nil
}
