package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

// proveAndVerify runs the public API end to end and returns the instance
func proveAndVerify(t *testing.T, stepSize, memoryStepSize int, program *vybiumzkwasm.Program) *vybiumzkwasm.Instance {
	t.Helper()
	pp, err := vybiumzkwasm.Setup(vybiumzkwasm.DefaultConfig().WithStepSize(stepSize).WithMemoryStepSize(memoryStepSize))
	require.NoError(t, err)
	t.Logf("  execution shape %s", pp.Execution.Shape)

	proof, instance, err := vybiumzkwasm.Prove(context.Background(), pp, program)
	require.NoError(t, err)
	t.Logf("  %d trace steps in %d IVC steps, %d memory cells in %d scan steps",
		instance.TraceLen, instance.ExecutionSteps, instance.Cells, instance.ScanSteps)

	require.NoError(t, vybiumzkwasm.Verify(pp, proof, instance))
	return instance
}

// tamperedTracer hands out a trace after letting edit change it
type tamperedTracer struct {
	inner zkwasm.Tracer
	edit  func(steps []vm.WitnessVM)
}

func (t tamperedTracer) Trace(ctx context.Context, maxSteps uint64) (*vm.ExecutionTrace, error) {
	trace, err := t.inner.Trace(ctx, maxSteps)
	if err != nil {
		return nil, err
	}
	t.edit(trace.Steps)
	return trace, nil
}
