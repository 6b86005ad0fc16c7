package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

// Test05_ChallengeBinding checks that the memory challenges are tied to the
// commitments of the execution and scan folds
func Test05_ChallengeBinding(t *testing.T) {
	t.Log("=== Test 05: challenge binding ===")
	pp, err := vybiumzkwasm.Setup(vybiumzkwasm.DefaultConfig().WithStepSize(16).WithMemoryStepSize(32))
	require.NoError(t, err)
	proof, instance, err := vybiumzkwasm.Prove(context.Background(), pp, &vybiumzkwasm.Program{
		Binary: wasm.Memory(), Export: "squares", Args: []uint64{6},
	})
	require.NoError(t, err)
	require.NoError(t, vybiumzkwasm.Verify(pp, proof, instance))

	tests := []struct {
		name   string
		tamper func(u *vybiumzkwasm.Instance)
		want   vybiumzkwasm.ErrorCode
	}{
		{"execution commitment", func(u *vybiumzkwasm.Instance) { u.ExecutionCommitment[7] ^= 1 }, vybiumzkwasm.ErrMultisetVerification},
		{"scan commitment", func(u *vybiumzkwasm.Instance) { u.ScanCommitment[0] ^= 0x80 }, vybiumzkwasm.ErrMultisetVerification},
		{"gamma", func(u *vybiumzkwasm.Instance) {
			u.OpsZ0 = u.OpsZ0.Clone()
			u.OpsZ0[0].SetUint64(42)
		}, vybiumzkwasm.ErrProofVerification},
		{"timestamp", func(u *vybiumzkwasm.Instance) {
			u.OpsZi = u.OpsZi.Clone()
			u.OpsZi[2].SetUint64(1)
		}, vybiumzkwasm.ErrProofVerification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *instance
			tt.tamper(&bad)
			err := vybiumzkwasm.Verify(pp, proof, &bad)
			require.Error(t, err)
			require.Equal(t, tt.want, vybiumzkwasm.Code(err), err.Error())
		})
	}
	require.NoError(t, vybiumzkwasm.Verify(pp, proof, instance))
}
