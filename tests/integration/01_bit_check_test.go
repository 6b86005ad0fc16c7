package integration_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

// Test01_BitCheck proves bit_check(255, 255) folded 16 steps at a time
//
// Related example: examples/01_bit_check/main.go
func Test01_BitCheck(t *testing.T) {
	t.Log("=== Test 01: bit_check(255, 255) with step size 16 ===")
	instance := proveAndVerify(t, 16, 64, &vybiumzkwasm.Program{
		Binary: wasm.BitCheck(),
		Export: "bit_check",
		Args:   []uint64{255, 255},
	})
	require.Equal(t, []uint64{1}, instance.Results)

	t.Log("Only the low eight bits are compared")
	instance = proveAndVerify(t, 16, 64, &vybiumzkwasm.Program{
		Binary: wasm.BitCheck(),
		Export: "bit_check",
		Args:   []uint64{255, 0x1ff},
	})
	require.Equal(t, []uint64{1}, instance.Results)

	instance = proveAndVerify(t, 16, 64, &vybiumzkwasm.Program{
		Binary: wasm.BitCheck(),
		Export: "bit_check",
		Args:   []uint64{255, 254},
	})
	require.Equal(t, []uint64{0}, instance.Results)
}
