package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

var (
	WasmFlag = &cli.PathFlag{
		Name:      "wasm",
		Usage:     "path of the WebAssembly module",
		TakesFile: true,
	}
	SampleFlag = &cli.StringFlag{
		Name:  "sample",
		Usage: "built-in demo module: " + strings.Join(zkwasm.SampleNames(), ", "),
	}
	ExportFlag = &cli.StringFlag{
		Name:  "export",
		Usage: "exported function to call, defaults to the sample name",
	}
	ArgsFlag = &cli.StringSliceFlag{
		Name:  "arg",
		Usage: "call argument, repeatable; negative values are two's complement",
	}
	StepSizeFlag = &cli.IntFlag{
		Name:  "step-size",
		Usage: "VM steps folded per execution and ops step",
		Value: vybiumzkwasm.DefaultConfig().StepSize,
	}
	MemoryStepSizeFlag = &cli.IntFlag{
		Name:  "memory-step-size",
		Usage: "memory cells folded per scan step",
		Value: vybiumzkwasm.DefaultConfig().MemoryStepSize,
	}
	MaxStepsFlag = &cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "abort tracing after this many steps",
		Value: vybiumzkwasm.DefaultConfig().MaxSteps,
	}
	NoCrossCheckFlag = &cli.BoolFlag{
		Name:  "no-cross-check",
		Usage: "skip the wazero reference execution",
	}
	ProofFlag = &cli.PathFlag{
		Name:      "proof",
		Usage:     "proof bundle file",
		Value:     "proof.json",
		TakesFile: true,
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "log level: debug, info, warn, error",
		Value: "info",
	}
	PProfCPUFlag = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "write a CPU profile to the working directory",
	}
)

var programFlags = []cli.Flag{WasmFlag, SampleFlag, ExportFlag, ArgsFlag, MaxStepsFlag, NoCrossCheckFlag}

func loadProgram(ctx *cli.Context) (*vybiumzkwasm.Program, error) {
	p := &vybiumzkwasm.Program{Export: ctx.String(ExportFlag.Name)}
	switch {
	case ctx.IsSet(WasmFlag.Name) == ctx.IsSet(SampleFlag.Name):
		return nil, fmt.Errorf("exactly one of --%s and --%s is required", WasmFlag.Name, SampleFlag.Name)
	case ctx.IsSet(WasmFlag.Name):
		bin, err := os.ReadFile(ctx.Path(WasmFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to read module: %w", err)
		}
		p.Binary = bin
	default:
		name := ctx.String(SampleFlag.Name)
		bin, ok := zkwasm.Sample(name)
		if !ok {
			return nil, fmt.Errorf("unknown sample %q", name)
		}
		p.Binary = bin
		if p.Export == "" {
			p.Export = name
		}
	}
	if p.Export == "" {
		return nil, fmt.Errorf("--%s is required", ExportFlag.Name)
	}
	args, err := parseArgs(ctx.StringSlice(ArgsFlag.Name))
	if err != nil {
		return nil, err
	}
	p.Args = args
	return p, nil
}

func parseArgs(raw []string) ([]uint64, error) {
	out := make([]uint64, len(raw))
	for i, s := range raw {
		if v, err := strconv.ParseUint(s, 0, 64); err == nil {
			out[i] = v
			continue
		}
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", s, err)
		}
		out[i] = uint64(v)
	}
	return out, nil
}

func config(ctx *cli.Context) (*vybiumzkwasm.Config, error) {
	log, err := Logger(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return nil, err
	}
	cfg := vybiumzkwasm.DefaultConfig().
		WithMaxSteps(ctx.Uint64(MaxStepsFlag.Name)).
		WithCrossCheck(!ctx.Bool(NoCrossCheckFlag.Name)).
		WithLogger(log)
	// trace has no step size flags
	if n := ctx.Int(StepSizeFlag.Name); n > 0 {
		cfg.WithStepSize(n)
	}
	if n := ctx.Int(MemoryStepSizeFlag.Name); n > 0 {
		cfg.WithMemoryStepSize(n)
	}
	return cfg, nil
}
