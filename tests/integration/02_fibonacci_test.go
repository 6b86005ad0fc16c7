package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

// Test02_Fibonacci proves fib(16) with step size 10 and checks that
// perturbing a single stack pointer in the trace breaks the proof
//
// Related example: examples/02_fibonacci/main.go
func Test02_Fibonacci(t *testing.T) {
	t.Log("=== Test 02: fib(16) with step size 10 ===")
	instance := proveAndVerify(t, 10, 32, &vybiumzkwasm.Program{
		Binary: wasm.Fib(),
		Export: "fib",
		Args:   []uint64{16},
	})
	require.Equal(t, []uint64{987}, instance.Results)

	pp, err := zkwasm.Setup(zkwasm.DefaultConfig().WithStepSize(10).WithMemoryStepSize(32))
	require.NoError(t, err)
	for _, at := range []int{0, 17, 101} {
		tracer, err := wasm.NewTracer(wasm.Fib(), "fib", 16)
		require.NoError(t, err)
		_, _, err = zkwasm.Prove(context.Background(), pp, tamperedTracer{
			inner: tracer,
			edit:  func(steps []vm.WitnessVM) { steps[at].PostSP++ },
		})
		require.ErrorIs(t, err, zkwasm.ErrNova, "post sp of step %d", at)
	}
	t.Log("  ✓ perturbed stack pointers are rejected")
}

func Test02_FibonacciRecursive(t *testing.T) {
	t.Log("=== Test 02b: recursive fib(6) ===")
	instance := proveAndVerify(t, 16, 32, &vybiumzkwasm.Program{
		Binary: wasm.FibRecursive(),
		Export: "fib_rec",
		Args:   []uint64{6},
	})
	require.Equal(t, []uint64{8}, instance.Results)
}
