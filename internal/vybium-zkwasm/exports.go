// Package vybiumzkwasm proves the execution of integer WebAssembly programs.
//
// A call is traced into a flat read/write machine, each step is proven by
// the switchboard transition circuit and memory consistency is checked
// offline with multiset fingerprints over the read and write sets. The three
// resulting folds (execution, ops and scan) are tied together by Verify.
//
// This file re-exports the pieces of the internal subpackages the public
// API needs, so that callers depend on one package.
package vybiumzkwasm

import (
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/utils"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
)

// Re-export configuration
type Config = utils.Config

var DefaultConfig = utils.DefaultConfig

// Re-export trace types
type (
	ExecutionTrace = vm.ExecutionTrace
	WitnessVM      = vm.WitnessVM
	MemoryTuple    = vm.MemoryTuple
	Program        = vm.Program
	Digest         = core.Digest
	WasmTracer     = wasm.Tracer
)

// Re-export the tracer and the module tooling
var (
	NewWasmTracer = wasm.NewTracer
	ValidateWasm  = wasm.Validate
	ReferenceCall = wasm.ReferenceCall
)

var _ Tracer = (*wasm.Tracer)(nil)

// Sample returns a built-in demo module by export name
func Sample(name string) ([]byte, bool) {
	f, ok := samples[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// SampleNames lists the built-in demo modules
func SampleNames() []string {
	return []string{"bit_check", "fib", "fib_rec", "divmix", "squares", "classify", "alu", "accumulate"}
}

var samples = map[string]func() []byte{
	"bit_check":  wasm.BitCheck,
	"fib":        wasm.Fib,
	"fib_rec":    wasm.FibRecursive,
	"divmix":     wasm.Division,
	"squares":    wasm.Memory,
	"classify":   wasm.Classify,
	"alu":        wasm.ALU,
	"accumulate": wasm.Accumulate,
}
