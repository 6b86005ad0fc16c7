package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)
	require.NoError(t, config.Validate())
	require.NotNil(t, config.Log())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		expectErr bool
	}{
		{"valid default config", DefaultConfig(), false},
		{"zero step size", DefaultConfig().WithStepSize(0), true},
		{"negative memory step size", DefaultConfig().WithMemoryStepSize(-1), true},
		{"step size too large", DefaultConfig().WithStepSize(1 << 13), true},
		{"memory step size too large", DefaultConfig().WithMemoryStepSize(1 << 17), true},
		{"custom sizes", DefaultConfig().WithStepSize(10).WithMemoryStepSize(7), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigClone(t *testing.T) {
	original := DefaultConfig().WithStepSize(8).WithMaxSteps(99).WithCrossCheck(false)
	clone := original.Clone()
	require.Equal(t, original.StepSize, clone.StepSize)
	require.Equal(t, original.MaxSteps, clone.MaxSteps)
	require.False(t, clone.CrossCheck)

	clone.WithStepSize(4)
	require.Equal(t, 8, original.StepSize)
}

func TestNilConfigLogger(t *testing.T) {
	var c *Config
	require.NotNil(t, c.Log())
	require.NotNil(t, (&Config{}).Log())
}

func TestChannelDeterminism(t *testing.T) {
	for _, hashFunc := range []string{"", "mimc", "sha3"} {
		t.Run("hash="+hashFunc, func(t *testing.T) {
			a := NewChannel(hashFunc, "label")
			b := NewChannel(hashFunc, "label")
			a.Send([]byte("commitment"))
			b.Send([]byte("commitment"))
			ea := a.ReceiveFieldElement()
			eb := b.ReceiveFieldElement()
			require.True(t, ea.Equal(&eb))

			ea2 := a.ReceiveFieldElement()
			require.False(t, ea.Equal(&ea2), "successive challenges must differ")
			require.Len(t, a.Proof(), 3)
		})
	}
}

func TestChannelBinding(t *testing.T) {
	a := NewChannel("mimc", "label")
	b := NewChannel("mimc", "label")
	a.Send([]byte("commitment-a"))
	b.Send([]byte("commitment-b"))
	ea := a.ReceiveFieldElement()
	eb := b.ReceiveFieldElement()
	require.False(t, ea.Equal(&eb))

	c := NewChannel("mimc", "other")
	c.Send([]byte("commitment-a"))
	ec := c.ReceiveFieldElement()
	require.False(t, ea.Equal(&ec), "label must separate transcripts")
}

func TestChannelLongInput(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = 0xff
	}
	ch := NewChannel("mimc", "long")
	ch.Send(data)
	require.Len(t, ch.State(), 32)
	require.Contains(t, ch.String(), "send:")
}

func TestPadLength(t *testing.T) {
	require.Equal(t, 16, PadLength(0, 16))
	require.Equal(t, 16, PadLength(1, 16))
	require.Equal(t, 16, PadLength(16, 16))
	require.Equal(t, 20, PadLength(17, 10))
	require.Equal(t, 3, CeilDiv(21, 10))
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5, 6}, 2)
	require.Len(t, chunks, 3)
	require.Equal(t, []int{5, 6}, chunks[2])
}
