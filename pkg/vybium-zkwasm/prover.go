package vybiumzkwasm

import (
	"context"
	"encoding/json"
	"io"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
)

// Setup builds the public parameters for config
func Setup(config *Config) (*PublicParams, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, newError(ErrInvalidConfig, "invalid configuration", err)
	}
	pp, err := zkwasm.Setup(config)
	if err != nil {
		return nil, wrap(err, ErrProofGeneration, "setup failed")
	}
	return pp, nil
}

func (p *Program) tracer(config *Config) (*zkwasm.WasmTracer, error) {
	if p == nil || len(p.Binary) == 0 {
		return nil, newError(ErrInvalidInput, "empty program", nil)
	}
	t, err := zkwasm.NewWasmTracer(p.Binary, p.Export, p.Args...)
	if err != nil {
		return nil, wrap(err, ErrInvalidModule, "failed to load module")
	}
	return t.WithCrossCheck(config.CrossCheck), nil
}

// Trace executes the program and returns its trace without proving it
func Trace(ctx context.Context, program *Program, config *Config) (*ExecutionTrace, error) {
	if config == nil {
		config = DefaultConfig()
	}
	t, err := program.tracer(config)
	if err != nil {
		return nil, err
	}
	trace, err := t.Trace(ctx, config.MaxSteps)
	if err != nil {
		return nil, wrap(err, ErrVMExecution, "execution failed")
	}
	return trace, nil
}

// Prove traces the program and proves the trace
func Prove(ctx context.Context, pp *PublicParams, program *Program) (*Proof, *Instance, error) {
	if pp == nil {
		return nil, nil, newError(ErrInvalidInput, "missing public parameters", nil)
	}
	t, err := program.tracer(pp.Config())
	if err != nil {
		return nil, nil, err
	}
	proof, instance, err := zkwasm.Prove(ctx, pp, t)
	if err != nil {
		return nil, nil, wrap(err, ErrProofGeneration, "proof generation failed")
	}
	return proof, instance, nil
}

// Verify checks proof against instance
func Verify(pp *PublicParams, proof *Proof, instance *Instance) error {
	if pp == nil || proof == nil || instance == nil {
		return newError(ErrInvalidInput, "missing proof, instance or parameters", nil)
	}
	if err := proof.Verify(pp, instance); err != nil {
		return wrap(err, ErrProofVerification, "proof verification failed")
	}
	return nil
}

// WriteBundle encodes b as JSON
func WriteBundle(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(b); err != nil {
		return newError(ErrInvalidInput, "failed to encode proof", err)
	}
	return nil
}

// ReadBundle decodes a bundle written by WriteBundle
func ReadBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, newError(ErrInvalidInput, "failed to decode proof", err)
	}
	if b.Proof == nil || b.Instance == nil {
		return nil, newError(ErrInvalidInput, "bundle without proof or instance", nil)
	}
	return &b, nil
}
