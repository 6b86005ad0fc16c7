package vybiumzkwasm

import (
	"context"
	"errors"
	"fmt"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/wasm"
)

// ErrorCode represents a vybium-zkwasm error code
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid configuration error
	ErrInvalidConfig

	// ErrInvalidModule represents a WASM decoding or validation error
	ErrInvalidModule

	// ErrVMExecution represents a trap or step limit while tracing
	ErrVMExecution

	// ErrMalformedTrace represents an empty or ill-formed trace
	ErrMalformedTrace

	// ErrProofGeneration represents a proof generation error
	ErrProofGeneration

	// ErrProofVerification represents a recursive proof that does not verify
	ErrProofVerification

	// ErrMultisetVerification represents a failed memory-consistency cross-check
	ErrMultisetVerification

	// ErrInvalidInput represents an invalid input error
	ErrInvalidInput

	// ErrCanceled represents a canceled or timed out context
	ErrCanceled
)

var codeNames = map[ErrorCode]string{
	ErrUnknown:              "unknown",
	ErrInvalidConfig:        "invalid config",
	ErrInvalidModule:        "invalid module",
	ErrVMExecution:          "vm execution",
	ErrMalformedTrace:       "malformed trace",
	ErrProofGeneration:      "proof generation",
	ErrProofVerification:    "proof verification",
	ErrMultisetVerification: "multiset verification",
	ErrInvalidInput:         "invalid input",
	ErrCanceled:             "canceled",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// VMError represents a vybium-zkwasm error
type VMError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *VMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-zkwasm error [%d]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-zkwasm error [%d]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *VMError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *VMError) Is(target error) bool {
	t, ok := target.(*VMError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Code returns the code of err, ErrUnknown when err is not a VMError
func Code(err error) ErrorCode {
	var e *VMError
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

func newError(code ErrorCode, message string, cause error) *VMError {
	return &VMError{Code: code, Message: message, Cause: cause}
}

// classify maps an internal error onto a code; fallback is used when
// nothing more specific matches
func classify(err error, fallback ErrorCode) ErrorCode {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCanceled
	case errors.Is(err, zkwasm.ErrMultisetVerification):
		return ErrMultisetVerification
	case errors.Is(err, zkwasm.ErrPublicIO):
		return ErrProofVerification
	case errors.Is(err, zkwasm.ErrMalformedRS):
		return ErrMalformedTrace
	case errors.Is(err, zkwasm.ErrNova):
		return fallback
	case errors.Is(err, wasm.ErrMalformed), errors.Is(err, wasm.ErrInvalid),
		errors.Is(err, wasm.ErrUnsupported), errors.Is(err, vm.ErrUnknownExport):
		return ErrInvalidModule
	case errors.Is(err, vm.ErrArgumentCount):
		return ErrInvalidInput
	case errors.Is(err, vm.ErrDivideByZero), errors.Is(err, vm.ErrIntegerOverflow),
		errors.Is(err, vm.ErrOutOfBounds), errors.Is(err, vm.ErrUnreachable),
		errors.Is(err, vm.ErrStackOverflow), errors.Is(err, vm.ErrStepLimit),
		errors.Is(err, wasm.ErrCrossCheck), errors.Is(err, wasm.ErrReferenceTrap):
		return ErrVMExecution
	}
	return fallback
}

func wrap(err error, fallback ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return newError(classify(err, fallback), message, err)
}
