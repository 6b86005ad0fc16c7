package vybiumzkwasm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
)

func TestVMError(t *testing.T) {
	cause := errors.New("boom")
	err := newError(ErrProofGeneration, "proof generation failed", cause)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, &VMError{Code: ErrProofGeneration})
	require.NotErrorIs(t, err, &VMError{Code: ErrProofVerification})
	require.Equal(t, ErrProofGeneration, Code(fmt.Errorf("outer: %w", err)))
	require.Equal(t, ErrUnknown, Code(cause))
	require.Contains(t, err.Error(), "caused by: boom")
	require.NotContains(t, newError(ErrInvalidInput, "x", nil).Error(), "caused by")
	require.Equal(t, "multiset verification", ErrMultisetVerification.String())
	require.Equal(t, "code(99)", ErrorCode(99).String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("x: %w", zkwasm.ErrMultisetVerification), ErrMultisetVerification},
		{fmt.Errorf("%w: empty trace", zkwasm.ErrMalformedRS), ErrMalformedTrace},
		{fmt.Errorf("%w: step 3", zkwasm.ErrNova), ErrProofVerification},
		{fmt.Errorf("%w: bad magic", wasm.ErrMalformed), ErrInvalidModule},
		{fmt.Errorf("%w: f32.add", wasm.ErrUnsupported), ErrInvalidModule},
		{vm.ErrUnknownExport, ErrInvalidModule},
		{vm.ErrArgumentCount, ErrInvalidInput},
		{vm.ErrDivideByZero, ErrVMExecution},
		{vm.ErrStepLimit, ErrVMExecution},
		{context.Canceled, ErrCanceled},
		{errors.New("other"), ErrProofVerification},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, classify(tt.err, ErrProofVerification))
		})
	}
	require.Equal(t, ErrProofVerification, classify(fmt.Errorf("%w: result 0", zkwasm.ErrPublicIO), ErrUnknown))
}
