package vybiumzkwasm

import (
	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
)

// Config represents the proving configuration
type Config = zkwasm.Config

// PublicParams holds the parameters of the execution, ops and scan folds
type PublicParams = zkwasm.PublicParams

// Proof bundles the three recursive proofs
type Proof = zkwasm.WasmSNARK

// Instance is the public side of a proof
type Instance = zkwasm.ZKWASMInstance

// ExecutionTrace is the recorded trace of a call
type ExecutionTrace = zkwasm.ExecutionTrace

// DefaultConfig returns the default proving configuration
var DefaultConfig = zkwasm.DefaultConfig

// Program is a call of an exported function of a WASM module
type Program struct {
	// Binary is the encoded module
	Binary []byte

	// Export names the called function
	Export string

	// Args are the raw i32/i64 arguments
	Args []uint64
}

// Bundle is what the CLI stores on disk: the proof, its instance and enough
// to rebuild the public parameters. The arguments and results live in the
// instance, which Verify checks. Export is a label the proof does not bind.
type Bundle struct {
	StepSize       int       `json:"step_size"`
	MemoryStepSize int       `json:"memory_step_size"`
	Export         string    `json:"export"`
	Proof          *Proof    `json:"proof"`
	Instance       *Instance `json:"instance"`
}
