package vybiumzkwasm

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
)

func TestSetupRejectsConfig(t *testing.T) {
	_, err := Setup(DefaultConfig().WithMemoryStepSize(-1))
	require.Equal(t, ErrInvalidConfig, Code(err))
}

func TestProveVerifyBundle(t *testing.T) {
	config := DefaultConfig().WithStepSize(8).WithMemoryStepSize(16)
	pp, err := Setup(config)
	require.NoError(t, err)

	program := &Program{Binary: wasm.FibRecursive(), Export: "fib_rec", Args: []uint64{5}}
	proof, instance, err := Prove(context.Background(), pp, program)
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, instance.Results)
	require.NoError(t, Verify(pp, proof, instance))

	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, &Bundle{
		StepSize:       pp.StepSize,
		MemoryStepSize: pp.MemoryStepSize,
		Export:         program.Export,
		Proof:          proof,
		Instance:       instance,
	}))
	b, err := ReadBundle(&buf)
	require.NoError(t, err)
	require.Equal(t, "fib_rec", b.Export)

	pp2, err := Setup(DefaultConfig().WithStepSize(b.StepSize).WithMemoryStepSize(b.MemoryStepSize))
	require.NoError(t, err)
	require.NoError(t, Verify(pp2, b.Proof, b.Instance))

	forged := *b.Instance
	forged.Results = []uint64{424242}
	require.ErrorIs(t, Verify(pp2, b.Proof, &forged), &VMError{Code: ErrProofVerification})
	forged = *b.Instance
	forged.Args = []uint64{6}
	require.ErrorIs(t, Verify(pp2, b.Proof, &forged), &VMError{Code: ErrProofVerification})

	b.Instance.ExecutionCommitment[3] ^= 0x10
	require.ErrorIs(t, Verify(pp2, b.Proof, b.Instance), &VMError{Code: ErrMultisetVerification})

	_, err = ReadBundle(bytes.NewBufferString(`{"export":"fib"}`))
	require.Equal(t, ErrInvalidInput, Code(err))
}

func TestProveErrors(t *testing.T) {
	pp, err := Setup(DefaultConfig().WithStepSize(4).WithMemoryStepSize(8))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		program *Program
		want    ErrorCode
	}{
		{"empty", &Program{}, ErrInvalidInput},
		{"garbage", &Program{Binary: []byte("not wasm"), Export: "f"}, ErrInvalidModule},
		{"unknown export", &Program{Binary: wasm.Fib(), Export: "nope"}, ErrInvalidModule},
		{"argument count", &Program{Binary: wasm.Fib(), Export: "fib", Args: []uint64{1, 2}}, ErrInvalidInput},
		{"trap", &Program{Binary: wasm.Division(), Export: "divmix", Args: []uint64{7, 0}}, ErrVMExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Prove(ctx, pp, tt.program)
			require.Error(t, err)
			require.Equal(t, tt.want, Code(err), err.Error())
		})
	}

	_, _, err = Prove(ctx, nil, &Program{Binary: wasm.Fib(), Export: "fib"})
	require.Equal(t, ErrInvalidInput, Code(err))
}

func TestTrace(t *testing.T) {
	trace, err := Trace(context.Background(), &Program{Binary: wasm.BitCheck(), Export: "bit_check", Args: []uint64{255, 255}}, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, trace.Results)
	require.NotEmpty(t, trace.Steps)

	_, err = Trace(context.Background(), &Program{Binary: wasm.Fib(), Export: "fib", Args: []uint64{40}}, DefaultConfig().WithMaxSteps(10))
	require.Equal(t, ErrVMExecution, Code(err))
}
