// Package vybiumzkwasm proves the execution of integer WebAssembly programs
// with a folding-style proof pipeline.
//
// A call of an exported function is traced into a flat read/write machine
// over one memory holding the value stack, linear memory and globals. Every
// step is proven by a single switchboard circuit whose shape does not depend
// on the instruction, and the consistency of all reads and writes is checked
// offline with randomized multiset fingerprints.
//
// # Quick Start
//
// Proving a call and verifying the result:
//
//	config := vybiumzkwasm.DefaultConfig().WithStepSize(16)
//	pp, err := vybiumzkwasm.Setup(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	program := &vybiumzkwasm.Program{Binary: bin, Export: "fib", Args: []uint64{16}}
//	proof, instance, err := vybiumzkwasm.Prove(ctx, pp, program)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := vybiumzkwasm.Verify(pp, proof, instance); err != nil {
//		log.Fatal(err)
//	}
//
// # Tuning
//
// StepSize sets how many VM steps are folded per execution and ops step,
// MemoryStepSize how many memory cells per scan step. Neither changes what
// is proven.
//
// # Architecture
//
// - pkg/vybium-zkwasm/: Public API (this package)
// - internal/vybium-zkwasm/: orchestrator, circuits, tracer and IVC backend
//
// The bundled IVC backend is transparent: proofs carry the circuit data of
// every step and verification re-synthesizes and checks them. It is sound
// but neither succinct nor zero-knowledge.
package vybiumzkwasm
