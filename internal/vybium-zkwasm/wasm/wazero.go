package wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ErrReferenceTrap is returned when the reference engine traps
var ErrReferenceTrap = errors.New("wasm: reference engine trapped")

func newRuntime(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
}

// Validate runs the bytes through wazero's validator
func Validate(ctx context.Context, bin []byte) error {
	r := newRuntime(ctx)
	defer r.Close(ctx)
	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return compiled.Close(ctx)
}

// ReferenceCall instantiates the module in wazero and calls export with args.
// i32 results are zero-extended, matching the flat VM's stack encoding.
func ReferenceCall(ctx context.Context, bin []byte, export string, args ...uint64) ([]uint64, error) {
	r := newRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("%w: export %q", ErrInvalid, export)
	}
	def := fn.Definition()
	params := def.ParamTypes()
	if len(params) != len(args) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalid, export, len(params), len(args))
	}
	in := make([]uint64, len(args))
	for i, a := range args {
		in[i] = a
		if params[i] == api.ValueTypeI32 {
			in[i] = api.EncodeU32(uint32(a))
		}
	}
	out, err := fn.Call(ctx, in...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReferenceTrap, err)
	}
	for i, t := range def.ResultTypes() {
		if t == api.ValueTypeI32 {
			out[i] = uint64(api.DecodeU32(out[i]))
		}
	}
	return out, nil
}
