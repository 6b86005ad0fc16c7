package core

import (
	"encoding/json"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func TestPowerOfTwo(t *testing.T) {
	p := PowerOfTwo(64)
	n := NegPowerOfTwo(64)
	var sum fr.Element
	sum.Add(&p, &n)
	require.True(t, sum.IsZero())

	p32 := PowerOfTwo(32)
	v, ok := ToUint64(&p32)
	require.True(t, ok)
	require.Equal(t, uint64(1)<<32, v)

	_, ok = ToUint64(&p)
	require.False(t, ok)
}

func TestNewElementFromInt64(t *testing.T) {
	a := NewElementFromInt64(-5)
	b := NewElement(5)
	var sum fr.Element
	sum.Add(&a, &b)
	require.True(t, sum.IsZero())
}

func TestVectorJSON(t *testing.T) {
	v := NewVector(0, 1, 42, ^uint64(0))
	v = append(v, NegPowerOfTwo(64))

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var out Vector
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, v.Equal(out))

	require.Error(t, json.Unmarshal([]byte(`["zz"]`), &out))
}

func TestDigestText(t *testing.T) {
	d := HashBytes([]byte("vybium"), []byte("zkwasm"))
	require.False(t, d.IsZero())
	require.Equal(t, d, HashBytes([]byte("vybiumzkwasm")))

	text, err := d.MarshalText()
	require.NoError(t, err)
	var back Digest
	require.NoError(t, back.UnmarshalText(text))
	require.Equal(t, d, back)

	require.Error(t, back.UnmarshalText([]byte("abcd")))
}

func TestCommitmentKey(t *testing.T) {
	ck, err := NewCommitmentKey("test", 4)
	require.NoError(t, err)
	require.Equal(t, 4, ck.Len())

	again, err := NewCommitmentKey("test", 4)
	require.NoError(t, err)

	v := NewVector(1, 2, 3, 4)
	c1, err := ck.Commit(v)
	require.NoError(t, err)
	c2, err := again.Commit(v)
	require.NoError(t, err)
	require.Equal(t, c1, c2, "key derivation must be deterministic")

	w := NewVector(1, 2, 3, 5)
	c3, err := ck.Commit(w)
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)

	other, err := NewCommitmentKey("other", 4)
	require.NoError(t, err)
	c4, err := other.Commit(v)
	require.NoError(t, err)
	require.NotEqual(t, c1, c4)

	_, err = ck.Commit(NewVector(1, 2, 3, 4, 5))
	require.ErrorIs(t, err, ErrCommitmentLength)

	_, err = NewCommitmentKey("test", 0)
	require.Error(t, err)
}

func TestCommitZeroPadding(t *testing.T) {
	ck, err := NewCommitmentKey("pad", 3)
	require.NoError(t, err)

	short, err := ck.Commit(NewVector(7, 9))
	require.NoError(t, err)
	padded, err := ck.Commit(NewVector(7, 9, 0))
	require.NoError(t, err)
	require.Equal(t, short, padded)
}
