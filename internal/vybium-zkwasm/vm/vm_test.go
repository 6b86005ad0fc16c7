package vm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// add(a, b) with frame [a][b][ra]
func addProgram(instr Instruction) *Program {
	return &Program{
		Code: []Op{
			{Instr: LocalGet, I: 3},
			{Instr: LocalGet, I: 3},
			{Instr: instr},
			{Instr: ReturnValue, I: 3, D: 2},
		},
		Functions: []Function{{Name: "f", NumParams: 2, NumResults: 1}},
		Exports:   map[string]int{"f": 0},
	}
}

func memoryProgram() *Program {
	return &Program{
		Code: []Op{
			{Instr: Const, I: 4},
			{Instr: Const, I: 0x11223344},
			{Instr: I32Store},
			{Instr: Const, I: 5},
			{Instr: I32Load8U},
			{Instr: Const, I: 1},
			{Instr: MemoryGrow, I: 2},
			{Instr: Drop, I: 1},
			{Instr: Const, I: 1},
			{Instr: MemoryGrow, I: 2},
			{Instr: Drop, I: 1},
			{Instr: ReturnValue, I: 1, D: 2},
		},
		Functions: []Function{{Name: "main", NumResults: 1}},
		Exports:   map[string]int{"main": 0},
		HasMemory: true, MemoryPages: 1, MaxPages: 2,
	}
}

func run(t *testing.T, p *Program, export string, args ...uint64) *ExecutionTrace {
	t.Helper()
	vm, err := NewVMState(p, export, args)
	require.NoError(t, err)
	trace, err := vm.Run(context.Background(), 1<<16)
	require.NoError(t, err)
	return trace
}

func TestInstructionNames(t *testing.T) {
	require.Len(t, instructionNames, int(NumInstructions))
	require.Equal(t, "i64.rotr", I64Rotr.String())
	require.Equal(t, "instruction(500)", Instruction(500).String())
	require.Equal(t, ClassStore, I64Store32.Class())
	require.Equal(t, ClassUnary, I64Extend32S.Class())
	require.Equal(t, ClassBinary, I32Eq.Class())
	require.Equal(t, ClassControl, MemoryGrow.Class())
	require.Equal(t, 32, I32Load16S.Width())
	require.Equal(t, 64, I64Load16S.Width())
	require.Equal(t, 4, I64Store32.AccessBytes())
}

func TestRunAdd(t *testing.T) {
	trace := run(t, addProgram(I32Add), "f", 2, 3)
	require.Equal(t, []uint64{5}, trace.Results)
	require.Len(t, trace.Steps, 4)
	require.Equal(t, uint64(3), trace.EntrySP)
	require.Equal(t, uint64(4), trace.HaltPC)

	last := trace.Steps[3]
	require.Equal(t, uint64(4), last.PostPC)
	require.Equal(t, uint64(1), last.PostSP)

	trace = run(t, addProgram(I32Add), "f", math.MaxUint32, 2)
	require.Equal(t, []uint64{1}, trace.Results)
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name  string
		instr Instruction
		a, b  uint64
		err   error
	}{
		{"div_u by zero", I32DivU, 1, 0, ErrDivideByZero},
		{"rem_s by zero", I64RemS, 1, 0, ErrDivideByZero},
		{"div_s overflow", I32DivS, 1 << 31, math.MaxUint32, ErrIntegerOverflow},
		{"i64 div_s overflow", I64DivS, 1 << 63, math.MaxUint64, ErrIntegerOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, err := NewVMState(addProgram(tt.instr), "f", []uint64{tt.a, tt.b})
			require.NoError(t, err)
			_, err = vm.Run(context.Background(), 100)
			require.ErrorIs(t, err, tt.err)
		})
	}

	_, err := NewVMState(addProgram(I32Add), "f", []uint64{1})
	require.ErrorIs(t, err, ErrArgumentCount)
	_, err = NewVMState(addProgram(I32Add), "g", nil)
	require.ErrorIs(t, err, ErrUnknownExport)

	loop := &Program{
		Code:      []Op{{Instr: Br, I: 0}},
		Functions: []Function{{}},
		Exports:   map[string]int{"loop": 0},
	}
	vm, err := NewVMState(loop, "loop", nil)
	require.NoError(t, err)
	_, err = vm.Run(context.Background(), 50)
	require.ErrorIs(t, err, ErrStepLimit)
}

func TestBinarySemantics(t *testing.T) {
	tests := []struct {
		instr Instruction
		x, y  uint64
		want  uint64
	}{
		{I32Sub, 1, 2, math.MaxUint32},
		{I32Mul, 0x10000, 0x10000, 0},
		{I32LtS, math.MaxUint32, 0, 1},
		{I32LtU, math.MaxUint32, 0, 0},
		{I32GeS, 0, math.MaxUint32, 1},
		{I32DivS, uint64(uint32(0xfffffff9)), 2, uint64(uint32(0xfffffffd))},
		{I32RemS, uint64(uint32(0xfffffff9)), 2, math.MaxUint32},
		{I32Shl, 1, 33, 2},
		{I32ShrS, 0x80000000, 31, math.MaxUint32},
		{I32Rotr, 1, 1, 0x80000000},
		{I64Rotl, 1 << 63, 1, 1},
		{I64ShrU, 1 << 63, 63, 1},
		{I64GtS, 1, 1 << 63, 1},
		{I64RemU, 17, 5, 2},
		{I64Xor, 0xff, 0x0f, 0xf0},
	}
	for _, tt := range tests {
		t.Run(tt.instr.String(), func(t *testing.T) {
			got, err := Binary(tt.instr, tt.x, tt.y)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestUnarySemantics(t *testing.T) {
	require.Equal(t, uint64(32), Unary(I32Clz, 0))
	require.Equal(t, uint64(64), Unary(I64Ctz, 0))
	require.Equal(t, uint64(31), Unary(I32Clz, 1))
	require.Equal(t, uint64(8), Unary(I32Popcnt, 0xff))
	require.Equal(t, uint64(1), Unary(I32Eqz, 1<<32))
	require.Equal(t, uint64(0), Unary(I64Eqz, 1<<32))
	require.Equal(t, uint64(math.MaxUint64), Unary(I64ExtendI32S, math.MaxUint32))
	require.Equal(t, uint64(math.MaxUint32), Unary(I64ExtendI32U, math.MaxUint32))
	require.Equal(t, uint64(0xffffff80), Unary(I32Extend8S, 0x80))
	require.Equal(t, uint64(0x7f), Unary(I64Extend8S, 0x17f))
	require.Equal(t, uint64(0x89abcdef), Unary(I32WrapI64, 0x0123456789abcdef))
}

func TestExtendLoad(t *testing.T) {
	require.Equal(t, uint64(0xffffff80), ExtendLoad(I32Load8S, 0x80))
	require.Equal(t, uint64(0x80), ExtendLoad(I32Load8U, 0x80))
	require.Equal(t, uint64(math.MaxUint64), ExtendLoad(I64Load32S, math.MaxUint32))
	require.Equal(t, uint64(0xffff), ExtendLoad(I64Load16U, 0xffff))
}

func TestMemoryAndGrow(t *testing.T) {
	trace := run(t, memoryProgram(), "main")
	require.Equal(t, []uint64{0x33}, trace.Results)
	require.Equal(t, uint64(2), trace.Final.Pages)
	require.Equal(t, uint64(1), trace.Initial.Pages)
	require.Equal(t, uint64(2*DwordsPerPage+1), trace.Layout.MemoryDwords)
	require.Equal(t, uint64(0x0000000011223344), trace.Final.Dword(0)>>32)

	grow := trace.Steps[6]
	require.Equal(t, MemoryGrow, grow.Instr)
	require.Equal(t, uint64(1), grow.Z)
	require.Equal(t, uint64(2), grow.P)

	failed := trace.Steps[9]
	require.Equal(t, uint64(math.MaxUint32), failed.Z)
	require.Equal(t, uint64(2), failed.P)

	oob := &Program{
		Code:      []Op{{Instr: Const, I: PageSize - 2}, {Instr: I32Load}, {Instr: ReturnValue, I: 1, D: 2}},
		Functions: []Function{{NumResults: 1}},
		Exports:   map[string]int{"main": 0},
		HasMemory: true, MemoryPages: 1, MaxPages: 1,
	}
	vm, err := NewVMState(oob, "main", nil)
	require.NoError(t, err)
	_, err = vm.Run(context.Background(), 10)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func replay(t *testing.T, trace *ExecutionTrace) ([]StepSlots, *MemoryTrace) {
	t.Helper()
	m, err := NewMemoryTrace(trace.InitialState())
	require.NoError(t, err)
	slots := make([]StepSlots, len(trace.Steps))
	for i, w := range trace.Steps {
		slots[i], err = m.Step(w)
		require.NoError(t, err, "step %d %s", i, w)
	}
	return slots, m
}

func TestMemoryTraceMatchesInterpreter(t *testing.T) {
	for _, p := range []*Program{addProgram(I64Mul), memoryProgram()} {
		var args []uint64
		export := "main"
		if len(p.Functions) > 0 && p.Functions[0].NumParams == 2 {
			args, export = []uint64{7, 6}, "f"
		}
		trace := run(t, p, export, args...)
		slots, m := replay(t, trace)

		final := trace.Layout.Snapshot(trace.Final)
		fs := m.FinalState()
		require.Len(t, fs, len(final))
		for i := range fs {
			require.Equal(t, final[i].Addr, fs[i].Addr)
			require.Equal(t, final[i].Val, fs[i].Val, "cell %d", fs[i].Addr)
		}

		var active uint64
		for _, s := range slots {
			for _, slot := range s {
				if !slot.Active {
					require.Equal(t, MemorySlot{}, slot)
					continue
				}
				active++
				require.Equal(t, slot.RS.Addr, slot.WS.Addr)
				require.Less(t, slot.RS.TS, slot.WS.TS)
				require.Equal(t, active, slot.WS.TS)
			}
		}
		require.Equal(t, active, m.Timestamp())

		again, _ := replay(t, trace)
		require.Equal(t, slots, again)
	}
}

func TestMemoryTraceAccessPatterns(t *testing.T) {
	trace := run(t, addProgram(I32Add), "f", 2, 3)
	slots, _ := replay(t, trace)

	localGet := slots[0]
	require.Equal(t, uint64(0), localGet[0].RS.Addr)
	require.Equal(t, uint64(2), localGet[0].RS.Val)
	require.Equal(t, uint64(3), localGet[1].WS.Addr)
	require.Equal(t, uint64(2), localGet[1].WS.Val)

	add := slots[2]
	require.Equal(t, uint64(4), add[0].RS.Addr)
	require.Equal(t, uint64(3), add[1].RS.Addr)
	require.Equal(t, uint64(5), add[1].WS.Val)
	require.False(t, add[2].Active)

	ret := slots[3]
	require.Equal(t, uint64(2), ret[1].RS.Addr)
	require.Equal(t, trace.HaltPC, ret[1].RS.Val)
	require.Equal(t, uint64(0), ret[2].WS.Addr)
	require.Equal(t, uint64(5), ret[2].WS.Val)
}

func TestMemoryTraceErrors(t *testing.T) {
	_, err := NewMemoryTrace([]MemoryTuple{{Addr: 1}, {Addr: 1}})
	require.ErrorIs(t, err, ErrDuplicateAddress)

	m, err := NewMemoryTrace([]MemoryTuple{{Addr: 0}})
	require.NoError(t, err)
	_, err = m.Step(WitnessVM{Instr: I32Add, PreSP: 0})
	require.ErrorIs(t, err, ErrStackUnderflow)
	_, err = m.Step(WitnessVM{Instr: Const, PreSP: 1})
	require.ErrorIs(t, err, ErrUnknownAddress)
	_, err = m.Step(WitnessVM{Instr: Unreachable})
	require.ErrorIs(t, err, ErrNoTransition)

	slots, err := m.Step(NopAt(3, 1))
	require.NoError(t, err)
	require.Equal(t, StepSlots{}, slots)
	require.Zero(t, m.Timestamp())
}

func TestMemoryTraceFailedStepIsAtomic(t *testing.T) {
	is := []MemoryTuple{{Addr: StackAddr(0), Val: 7}, {Addr: StackAddr(1), Val: 9}}
	tests := []struct {
		name string
		w    WitnessVM
		want error
	}{
		// slot 0 reads sp-1, slot 1 underflows
		{"binary underflow", WitnessVM{Instr: I32Add, PreSP: 1, Z: 1}, ErrStackUnderflow},
		// slot 0 updates sp-1, slot 2 reads a dword missing from IS
		{"load outside memory", WitnessVM{Instr: I32Load, PreSP: 1, Y: 0, I: 8}, ErrUnknownAddress},
		// slot 0 reads sp-1, slot 1 writes a global missing from IS
		{"unknown global", WitnessVM{Instr: GlobalSet, PreSP: 2, I: 0, Z: 9}, ErrUnknownAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMemoryTrace(is)
			require.NoError(t, err)
			_, err = m.Step(tt.w)
			require.ErrorIs(t, err, tt.want)
			require.Zero(t, m.Timestamp())
			require.Equal(t, is, m.FinalState())

			slots, err := m.Step(WitnessVM{Instr: I32Add, PreSP: 2, Z: 16})
			require.NoError(t, err)
			require.Equal(t, uint64(1), slots[0].WS.TS)
			require.Equal(t, uint64(2), slots[1].WS.TS)
			require.Equal(t, uint64(2), m.Timestamp())
			require.Equal(t, []MemoryTuple{{Addr: StackAddr(0), Val: 16, TS: 2}, {Addr: StackAddr(1), Val: 9, TS: 1}}, m.FinalState())
		})
	}
}

func TestLayout(t *testing.T) {
	l := NewLayout(3, 0, false, 2)
	require.Equal(t, 6, l.NumCells())
	cells := l.Snapshot(&MemoryImage{Stack: []uint64{9}, Globals: []uint64{4, 5}})
	require.Equal(t, []MemoryTuple{
		{Addr: 0, Val: 9}, {Addr: 1}, {Addr: 2},
		{Addr: MemSizeAddr},
		{Addr: GlobalAddr(0), Val: 4}, {Addr: GlobalAddr(1), Val: 5},
	}, cells)

	padded := PadCells(cells, 4)
	require.Len(t, padded, 8)
	require.Equal(t, MemoryTuple{Addr: PaddingBase + 1}, padded[7])
	require.Len(t, PadCells(nil, 4), 4)
	require.Len(t, PadCells(cells[:4], 4), 4)
}

func TestProgramDigest(t *testing.T) {
	a, b := addProgram(I32Add), addProgram(I32Sub)
	require.Equal(t, a.Digest(), addProgram(I32Add).Digest())
	require.NotEqual(t, a.Digest(), b.Digest())
	require.Equal(t, []string{"f"}, a.ExportNames())
	require.Len(t, a.Disassemble(), 5)
}
