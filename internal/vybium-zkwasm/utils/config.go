package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// Config represents the configuration for zkWASM proving
type Config struct {
	// StepSize is the number of VM steps folded per execution and ops IVC step
	StepSize int

	// MemoryStepSize is the number of memory cells folded per scan IVC step
	MemoryStepSize int

	// MaxSteps bounds the tracer; zero means unbounded
	MaxSteps uint64

	// CrossCheck re-executes the entry function with wazero and compares results
	CrossCheck bool

	// Logger receives structured progress logs
	Logger *zap.Logger
}

// DefaultConfig returns the default proving configuration
func DefaultConfig() *Config {
	return &Config{
		StepSize:       16,
		MemoryStepSize: 64,
		MaxSteps:       1 << 20,
		CrossCheck:     true,
		Logger:         zap.NewNop(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.StepSize <= 0 {
		return fmt.Errorf("step size must be positive, got %d", c.StepSize)
	}

	if c.MemoryStepSize <= 0 {
		return fmt.Errorf("memory step size must be positive, got %d", c.MemoryStepSize)
	}

	if c.StepSize > 1<<12 {
		return fmt.Errorf("step size %d exceeds limit %d", c.StepSize, 1<<12)
	}

	if c.MemoryStepSize > 1<<16 {
		return fmt.Errorf("memory step size %d exceeds limit %d", c.MemoryStepSize, 1<<16)
	}

	return nil
}

// WithStepSize sets the execution step size
func (c *Config) WithStepSize(n int) *Config {
	c.StepSize = n
	return c
}

// WithMemoryStepSize sets the scan step size
func (c *Config) WithMemoryStepSize(n int) *Config {
	c.MemoryStepSize = n
	return c
}

// WithMaxSteps sets the tracer step limit
func (c *Config) WithMaxSteps(n uint64) *Config {
	c.MaxSteps = n
	return c
}

// WithCrossCheck enables or disables the wazero cross-check
func (c *Config) WithCrossCheck(enabled bool) *Config {
	c.CrossCheck = enabled
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(l *zap.Logger) *Config {
	c.Logger = l
	return c
}

// Log returns the configured logger, or a no-op logger
func (c *Config) Log() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	return &Config{
		StepSize:       c.StepSize,
		MemoryStepSize: c.MemoryStepSize,
		MaxSteps:       c.MaxSteps,
		CrossCheck:     c.CrossCheck,
		Logger:         c.Logger,
	}
}
