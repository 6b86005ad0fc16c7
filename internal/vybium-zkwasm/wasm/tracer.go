package wasm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

// ErrCrossCheck is returned when the flat VM and wazero disagree on a result
var ErrCrossCheck = errors.New("wasm: reference engine disagrees")

// Tracer runs one exported function of a WASM module and records its trace
type Tracer struct {
	Module  *Module
	Program *vm.Program
	Export  string
	Args    []uint64

	bin        []byte
	crossCheck bool
}

// NewTracer decodes and compiles bin for a call of export with args
func NewTracer(bin []byte, export string, args ...uint64) (*Tracer, error) {
	m, err := Decode(bin)
	if err != nil {
		return nil, err
	}
	p, err := Compile(m)
	if err != nil {
		return nil, err
	}
	fn, err := p.Lookup(export)
	if err != nil {
		return nil, err
	}
	if len(args) != fn.NumParams {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", vm.ErrArgumentCount, export, fn.NumParams, len(args))
	}
	return &Tracer{
		Module:  m,
		Program: p,
		Export:  export,
		Args:    slices.Clone(args),
		bin:     bin,
	}, nil
}

// WithCrossCheck makes Trace compare its results against wazero
func (t *Tracer) WithCrossCheck(enabled bool) *Tracer {
	t.crossCheck = enabled
	return t
}

// Trace executes the call for at most maxSteps steps
func (t *Tracer) Trace(ctx context.Context, maxSteps uint64) (*vm.ExecutionTrace, error) {
	state, err := vm.NewVMState(t.Program, t.Export, t.Args)
	if err != nil {
		return nil, err
	}
	trace, err := state.Run(ctx, maxSteps)
	if err != nil {
		return nil, err
	}
	if t.crossCheck {
		want, err := ReferenceCall(ctx, t.bin, t.Export, t.Args...)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(want, trace.Results) {
			return nil, fmt.Errorf("%w: %s%v = %v, wazero returned %v", ErrCrossCheck, t.Export, t.Args, trace.Results, want)
		}
	}
	return trace, nil
}

// Digest binds the compiled program, the entry point and the arguments
func (t *Tracer) Digest() core.Digest {
	pd := t.Program.Digest()
	buf := make([]byte, 0, len(t.Export)+8*len(t.Args)+8)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(t.Export)))
	buf = append(buf, t.Export...)
	for _, a := range t.Args {
		buf = binary.BigEndian.AppendUint64(buf, a)
	}
	return core.HashBytes(pd[:], buf)
}
