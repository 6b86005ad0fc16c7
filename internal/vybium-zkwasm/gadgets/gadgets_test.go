package gadgets

import (
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/core"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/r1cs"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/vm"
)

var samples = []uint64{
	0, 1, 2, 3, 7, 0x7f, 0x80, 0xff, 0x1234,
	math.MaxInt32, 1 << 31, math.MaxUint32,
	1 << 32, 0xdeadbeefcafebabe, math.MaxInt64, 1 << 63, math.MaxUint64,
}

func samplesFor(width int) []uint64 {
	seen := map[uint64]bool{}
	var out []uint64
	for _, s := range samples {
		v := Mask(s, width)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func alloc(t *testing.T, cs r1cs.ConstraintSystem, name string, v uint64) *Num {
	t.Helper()
	n, err := AllocUint64(cs, name, v)
	require.NoError(t, err)
	return n.Num()
}

func value(t *testing.T, n *Num) uint64 {
	t.Helper()
	v, err := n.Value()
	require.NoError(t, err)
	u, ok := core.ToUint64(&v)
	require.True(t, ok, "value does not fit in 64 bits")
	return u
}

func satisfied(t *testing.T, cs *r1cs.TestCS) {
	t.Helper()
	require.True(t, cs.IsSatisfied(), "unsatisfied: %s", cs.WhichIsUnsatisfied())
}

func signed(x uint64, width int) int64 {
	if width == 32 {
		return int64(int32(uint32(x)))
	}
	return int64(x)
}

func TestArithmeticMatchesNative(t *testing.T) {
	for _, width := range []int{32, 64} {
		vals := samplesFor(width)
		for _, x := range vals {
			for _, y := range vals {
				cs := r1cs.NewTestCS()
				a, b := alloc(t, cs, "a", x), alloc(t, cs, "b", y)

				sum, err := Add(cs, "add", a, b, width)
				require.NoError(t, err)
				diff, err := Sub(cs, "sub", a, b, width)
				require.NoError(t, err)
				prod, err := Mul(cs, "mul", a, b, width)
				require.NoError(t, err)

				satisfied(t, cs)
				require.Equal(t, Mask(x+y, width), value(t, sum.Num()), "%d+%d", x, y)
				require.Equal(t, Mask(x-y, width), value(t, diff.Num()), "%d-%d", x, y)
				require.Equal(t, Mask(x*y, width), value(t, prod.Num()), "%d*%d", x, y)
			}
		}
	}
}

func TestComparisonsMatchNative(t *testing.T) {
	for _, width := range []int{32, 64} {
		vals := samplesFor(width)
		for _, x := range vals {
			for _, y := range vals {
				cs := r1cs.NewTestCS()
				a, b := alloc(t, cs, "a", x), alloc(t, cs, "b", y)

				ltu, geu, err := LtGeU(cs, "ltu", a, b, width)
				require.NoError(t, err)
				leu, gtu, err := LeGtU(cs, "leu", a, b, width)
				require.NoError(t, err)
				lts, ges, err := LtGeS(cs, "lts", a, b, width)
				require.NoError(t, err)
				les, gts, err := LeGtS(cs, "les", a, b, width)
				require.NoError(t, err)
				eq, err := Equal(cs, "eq", a, b)
				require.NoError(t, err)
				satisfied(t, cs)

				b2u := func(c bool) uint64 {
					if c {
						return 1
					}
					return 0
				}
				sx, sy := signed(x, width), signed(y, width)
				require.Equal(t, b2u(x < y), value(t, ltu))
				require.Equal(t, b2u(x >= y), value(t, geu))
				require.Equal(t, b2u(x <= y), value(t, leu))
				require.Equal(t, b2u(x > y), value(t, gtu))
				require.Equal(t, b2u(sx < sy), value(t, lts), "%d <s %d", sx, sy)
				require.Equal(t, b2u(sx >= sy), value(t, ges))
				require.Equal(t, b2u(sx <= sy), value(t, les))
				require.Equal(t, b2u(sx > sy), value(t, gts))
				require.Equal(t, b2u(x == y), value(t, eq))
			}
		}
	}
}

func TestDivisionMatchesNative(t *testing.T) {
	for _, width := range []int{32, 64} {
		vals := samplesFor(width)
		for _, x := range vals {
			for _, y := range vals {
				if y == 0 {
					continue
				}
				cs := r1cs.NewTestCS()
				a, b := alloc(t, cs, "a", x), alloc(t, cs, "b", y)
				q, r, err := DivRemU(cs, "divu", a, b, OneNum(), width)
				require.NoError(t, err)
				qs, rs, err := DivRemS(cs, "divs", a, b, OneNum(), width)
				require.NoError(t, err)
				satisfied(t, cs)

				require.Equal(t, x/y, value(t, q.Num()))
				require.Equal(t, x%y, value(t, r.Num()))

				sx, sy := signed(x, width), signed(y, width)
				if sy == -1 && sx == signed(1<<uint(width-1), width) {
					// quotient overflows and traps; the remainder is still defined
					require.Zero(t, value(t, rs))
					continue
				}
				require.Equal(t, Mask(uint64(sx/sy), width), value(t, qs), "%d /s %d", sx, sy)
				require.Equal(t, Mask(uint64(sx%sy), width), value(t, rs), "%d %%s %d", sx, sy)
			}
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	cs := r1cs.NewTestCS()
	a, b := alloc(t, cs, "a", 9), alloc(t, cs, "b", 0)
	q, r, err := DivRemU(cs, "idle", a, b, Zero(), 32)
	require.NoError(t, err)
	satisfied(t, cs)
	require.Zero(t, value(t, q.Num()))
	require.Equal(t, uint64(9), value(t, r.Num()))

	_, _, err = DivRemU(cs, "enabled", a, b, OneNum(), 32)
	require.NoError(t, err)
	require.False(t, cs.IsSatisfied())
	require.Contains(t, cs.WhichIsUnsatisfied(), "enabled/")
}

func TestRestoringDivisionMatchesAdvice(t *testing.T) {
	for _, width := range []int{8, 32} {
		for _, x := range samplesFor(width) {
			for _, y := range samplesFor(width) {
				if y == 0 {
					continue
				}
				cs := r1cs.NewTestCS()
				a, b := alloc(t, cs, "a", x), alloc(t, cs, "b", y)
				rq, rr, err := RestoringDivRemU(cs, "restoring", a, b, width)
				require.NoError(t, err)
				q, r, err := DivRemU(cs, "advice", a, b, OneNum(), width)
				require.NoError(t, err)
				satisfied(t, cs)
				require.Equal(t, value(t, q.Num()), value(t, rq))
				require.Equal(t, value(t, r.Num()), value(t, rr))
			}
		}
	}
}

func TestDecomposeRejectsWideValues(t *testing.T) {
	cs := r1cs.NewTestCS()
	bitsOut, err := Decompose(cs, "byte", alloc(t, cs, "x", 0xab), 8)
	require.NoError(t, err)
	satisfied(t, cs)
	require.Equal(t, uint64(0xab), value(t, Pack(bitsOut)))

	require.NoError(t, RangeCheck(cs, "too_wide", alloc(t, cs, "y", 256), 8))
	require.False(t, cs.IsSatisfied())
	require.Equal(t, "too_wide/pack", cs.WhichIsUnsatisfied())
}

func decompose(t *testing.T, cs r1cs.ConstraintSystem, name string, x uint64, width int) []*Num {
	t.Helper()
	b, err := Decompose(cs, name, alloc(t, cs, name+"_value", x), width)
	require.NoError(t, err)
	return b
}

func TestBitwiseMatchesNative(t *testing.T) {
	for _, width := range []int{32, 64} {
		vals := samplesFor(width)
		for _, x := range vals {
			for _, y := range vals {
				cs := r1cs.NewTestCS()
				xb, yb := decompose(t, cs, "x", x, width), decompose(t, cs, "y", y, width)
				and, err := AndBits(cs, "and", xb, yb)
				require.NoError(t, err)
				satisfied(t, cs)
				require.Equal(t, x&y, value(t, Pack(and)))
				require.Equal(t, x|y, value(t, Pack(OrFromAnd(xb, yb, and))))
				require.Equal(t, x^y, value(t, Pack(XorFromAnd(xb, yb, and))))
			}
		}
	}
}

func TestCountsMatchNative(t *testing.T) {
	for _, x := range samples {
		cs := r1cs.NewTestCS()
		b64 := decompose(t, cs, "x64", x, 64)
		b32 := decompose(t, cs, "x32", Mask(x, 32), 32)

		clz64, err := Clz(cs, "clz64", b64)
		require.NoError(t, err)
		ctz64, err := Ctz(cs, "ctz64", b64)
		require.NoError(t, err)
		clz32, err := Clz(cs, "clz32", b32)
		require.NoError(t, err)
		ctz32, err := Ctz(cs, "ctz32", b32)
		require.NoError(t, err)
		satisfied(t, cs)

		x32 := uint32(x)
		require.Equal(t, uint64(bits.LeadingZeros64(x)), value(t, clz64))
		require.Equal(t, uint64(bits.TrailingZeros64(x)), value(t, ctz64))
		require.Equal(t, uint64(bits.LeadingZeros32(x32)), value(t, clz32))
		require.Equal(t, uint64(bits.TrailingZeros32(x32)), value(t, ctz32))
		require.Equal(t, uint64(bits.OnesCount64(x)), value(t, Popcnt(b64)))
		require.Equal(t, uint64(bits.OnesCount32(x32)), value(t, Popcnt(b32)))
	}
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		x        uint64
		from, to int
		want     uint64
	}{
		{0x80, 8, 32, 0xffffff80},
		{0x7f, 8, 32, 0x7f},
		{0x8000, 16, 64, 0xffffffffffff8000},
		{0x80000000, 32, 64, 0xffffffff80000000},
		{0x1ff, 8, 64, math.MaxUint64},
	}
	for _, tt := range tests {
		cs := r1cs.NewTestCS()
		xb := decompose(t, cs, "x", tt.x, 64)
		satisfied(t, cs)
		require.Equal(t, tt.want, value(t, SignExtend(xb, tt.from, tt.to)))
	}
}

func nativeShift(kind ShiftKind, x, k uint64, width int) uint64 {
	k %= uint64(width)
	switch kind {
	case ShiftLeft:
		return Mask(x<<k, width)
	case ShiftRightUnsigned:
		return x >> k
	case ShiftRightSigned:
		return Mask(uint64(signed(x, width)>>k), width)
	case RotateLeft:
		if width == 32 {
			return uint64(bits.RotateLeft32(uint32(x), int(k)))
		}
		return bits.RotateLeft64(x, int(k))
	default:
		if width == 32 {
			return uint64(bits.RotateLeft32(uint32(x), -int(k)))
		}
		return bits.RotateLeft64(x, -int(k))
	}
}

func TestShiftsMatchNative(t *testing.T) {
	kinds := []ShiftKind{ShiftLeft, ShiftRightUnsigned, ShiftRightSigned, RotateLeft, RotateRight}
	for _, width := range []int{32, 64} {
		logw := bits.Len(uint(width)) - 1
		for _, x := range samplesFor(width) {
			for _, k := range []uint64{0, 1, 7, 8, 31, 33, 63} {
				cs := r1cs.NewTestCS()
				xb := decompose(t, cs, "x", x, width)
				kb := decompose(t, cs, "k", Mask(k, logw), logw)
				for _, kind := range kinds {
					out, err := Shift(cs, kind.String(), xb, kb, kind)
					require.NoError(t, err)
					require.Equal(t, nativeShift(kind, x, k, width), value(t, Pack(out)), "%s %#x by %d", kind, x, k)
				}
				satisfied(t, cs)
			}
		}
	}
}

func TestSelectAndIsZero(t *testing.T) {
	cs := r1cs.NewTestCS()
	a, b := alloc(t, cs, "a", 11), alloc(t, cs, "b", 22)
	one, err := Select(cs, "pick_a", OneNum(), a, b)
	require.NoError(t, err)
	zero, err := Select(cs, "pick_b", Zero(), a, b)
	require.NoError(t, err)
	z, err := IsZero(cs, "zero", Zero())
	require.NoError(t, err)
	nz, err := IsZero(cs, "nonzero", a)
	require.NoError(t, err)
	satisfied(t, cs)
	require.Equal(t, uint64(11), value(t, one))
	require.Equal(t, uint64(22), value(t, zero))
	require.Equal(t, uint64(1), value(t, z.Num()))
	require.Equal(t, uint64(0), value(t, nz.Num()))
}

func TestMemoryPrimitives(t *testing.T) {
	read := vm.MemorySlot{
		RS:     vm.MemoryTuple{Addr: 5, Val: 42, TS: 3},
		WS:     vm.MemoryTuple{Addr: 5, Val: 42, TS: 9},
		Active: true,
	}
	write := vm.MemorySlot{
		RS:     vm.MemoryTuple{Addr: 6, Val: 1, TS: 0},
		WS:     vm.MemoryTuple{Addr: 6, Val: 2, TS: 10},
		Active: true,
	}

	t.Run("consistent", func(t *testing.T) {
		cs := r1cs.NewTestCS()
		rs, err := AllocSlot(cs, "read", read)
		require.NoError(t, err)
		ws, err := AllocSlot(cs, "write", write)
		require.NoError(t, err)
		idle, err := AllocSlot(cs, "idle", vm.MemorySlot{})
		require.NoError(t, err)

		v, err := Read(cs, "r", OneNum(), ConstUint64(5), rs)
		require.NoError(t, err)
		prior, err := Prior(cs, "prior", OneNum(), ws)
		require.NoError(t, err)
		Write(cs, "w", OneNum(), ConstUint64(6), ConstUint64(2), ws)
		Unused(cs, "unused", OneNum(), idle)
		satisfied(t, cs)
		require.Equal(t, uint64(42), value(t, v))
		require.Equal(t, uint64(1), value(t, prior))
	})

	t.Run("wrong address", func(t *testing.T) {
		cs := r1cs.NewTestCS()
		rs, err := AllocSlot(cs, "read", read)
		require.NoError(t, err)
		_, err = Read(cs, "r", OneNum(), ConstUint64(4), rs)
		require.NoError(t, err)
		require.Equal(t, "r/bind_addr", cs.WhichIsUnsatisfied())
	})

	t.Run("switched off", func(t *testing.T) {
		cs := r1cs.NewTestCS()
		ws, err := AllocSlot(cs, "write", write)
		require.NoError(t, err)
		Write(cs, "w", Zero(), ConstUint64(100), ConstUint64(100), ws)
		v, err := Read(cs, "r", Zero(), ConstUint64(100), ws)
		require.NoError(t, err)
		satisfied(t, cs)
		require.Zero(t, value(t, v))
	})

	t.Run("read changes value", func(t *testing.T) {
		cs := r1cs.NewTestCS()
		ws, err := AllocSlot(cs, "write", write)
		require.NoError(t, err)
		_, err = Read(cs, "r", OneNum(), ConstUint64(6), ws)
		require.NoError(t, err)
		require.Equal(t, "r/unchanged", cs.WhichIsUnsatisfied())
	})
}

func TestFingerprintMatchesNative(t *testing.T) {
	gamma, alpha := core.NewElement(1234567), core.NewElement(89)
	var sq = gamma
	sq.Square(&sq)
	tuple := vm.MemoryTuple{Addr: 1 << 32, Val: math.MaxUint64, TS: 17}

	cs := r1cs.NewTestCS()
	tp, err := AllocTuple(cs, "t", tuple)
	require.NoError(t, err)
	fp, err := tp.Fingerprint(cs, "fp", Constant(gamma), Constant(sq), Constant(alpha))
	require.NoError(t, err)
	satisfied(t, cs)

	got, err := fp.Value()
	require.NoError(t, err)
	want := NativeFingerprint(tuple, gamma, alpha)
	require.True(t, want.Equal(&got))
}

func TestShapeIsWitnessIndependent(t *testing.T) {
	build := func(cs r1cs.ConstraintSystem, x, y uint64) {
		a, _ := AllocUint64(cs, "a", x)
		b, _ := AllocUint64(cs, "b", y)
		_, _ = Add(cs, "add", a.Num(), b.Num(), 64)
		_, _, _ = DivRemS(cs, "div", a.Num(), b.Num(), OneNum(), 32)
		xb, _ := Decompose(cs, "x", a.Num(), 64)
		_, _ = Shift(cs, "rotl", xb, xb[:6], RotateLeft)
	}
	t1, t2, shape := r1cs.NewTestCS(), r1cs.NewTestCS(), r1cs.NewShapeCS()
	build(t1, 3, 5)
	build(t2, 1<<40, 7)
	build(shape, 0, 0)
	require.Equal(t, t1.Shape(), t2.Shape())
	require.Equal(t, shape.Shape(), t1.Shape())
}

func TestShiftRightBytes(t *testing.T) {
	lo, hi := uint64(0x8877665544332211), uint64(0x00ffeeddccbbaa99)
	for o := uint64(0); o < 8; o++ {
		cs := r1cs.NewTestCS()
		a, err := Decompose(cs, "lo", alloc(t, cs, "a", lo), 64)
		require.NoError(t, err)
		b, err := Decompose(cs, "hi", alloc(t, cs, "b", hi), 64)
		require.NoError(t, err)
		amount, err := Decompose(cs, "o", alloc(t, cs, "offset", o), 3)
		require.NoError(t, err)
		window, err := ShiftRightBytes(cs, "window", append(a, b...), amount, 64)
		require.NoError(t, err)
		satisfied(t, cs)

		want := lo >> (8 * o)
		if o > 0 {
			want |= hi << (64 - 8*o)
		}
		require.Equal(t, want, value(t, Pack(window)), "offset %d", o)
	}
}
