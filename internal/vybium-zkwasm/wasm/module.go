// Package wasm decodes WebAssembly binaries, lowers them to the flat zkWASM
// instruction set and traces their execution. wazero serves as the reference
// engine for validation and differential checks.
package wasm

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for binaries that do not decode
	ErrMalformed = errors.New("wasm: malformed module")

	// ErrUnsupported is returned for valid features outside the proven subset
	ErrUnsupported = errors.New("wasm: unsupported feature")

	// ErrInvalid is returned for binaries that decode but do not validate
	ErrInvalid = errors.New("wasm: invalid module")
)

// ValueType is a WASM value type byte
type ValueType byte

const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
	F32 ValueType = 0x7d
	F64 ValueType = 0x7c
)

// String returns the text format name of the type
func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("type(%#x)", byte(t))
}

func (t ValueType) integer() bool {
	return t == I32 || t == I64
}

// FuncType is a function signature
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

func (f FuncType) equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// External kinds for imports and exports
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Import is a module import; none are supported by the compiler
type Import struct {
	Module string
	Name   string
	Kind   byte
}

// Limits bounds a memory in pages
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Global is a module-defined global with a constant initializer
type Global struct {
	Type    ValueType
	Mutable bool
	Init    uint64
}

// Export names a module item
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// LocalEntry declares Count locals of Type
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// Code is a function body
type Code struct {
	Locals []LocalEntry
	Body   []byte
}

// Data initializes active memory
type Data struct {
	Offset uint32
	Init   []byte
}

// Module is a decoded WASM binary
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []uint32
	Tables    int
	Memories  []Limits
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Codes     []Code
	Data      []Data
	Elements  int
}

// FuncType returns the signature of function idx
func (m *Module) FuncType(idx uint32) (FuncType, error) {
	if int(idx) >= len(m.Functions) {
		return FuncType{}, fmt.Errorf("%w: function %d out of range", ErrInvalid, idx)
	}
	t := m.Functions[idx]
	if int(t) >= len(m.Types) {
		return FuncType{}, fmt.Errorf("%w: type %d out of range", ErrInvalid, t)
	}
	return m.Types[t], nil
}

// ExportedFunction returns the function index exported as name
func (m *Module) ExportedFunction(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Name == name {
			return e.Index, true
		}
	}
	return 0, false
}
