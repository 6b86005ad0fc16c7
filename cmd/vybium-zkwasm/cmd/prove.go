package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

var OutFilePerm = os.FileMode(0o644)

func Prove(ctx *cli.Context) error {
	if ctx.Bool(PProfCPUFlag.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}
	cfg, err := config(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Logger.Sync() }()
	program, err := loadProgram(ctx)
	if err != nil {
		return err
	}

	timing := NewTiming()
	pp, err := vybiumzkwasm.Setup(cfg)
	if err != nil {
		return err
	}
	timing.Sample("Setup")

	proof, instance, err := vybiumzkwasm.Prove(ctx.Context, pp, program)
	if err != nil {
		return err
	}
	timing.Sample("Prove")

	if err := vybiumzkwasm.Verify(pp, proof, instance); err != nil {
		return err
	}
	timing.Sample("Verify")

	f, err := os.OpenFile(ctx.Path(ProofFlag.Name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, OutFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create proof file: %w", err)
	}
	defer f.Close()
	err = vybiumzkwasm.WriteBundle(f, &vybiumzkwasm.Bundle{
		StepSize:       pp.StepSize,
		MemoryStepSize: pp.MemoryStepSize,
		Export:         program.Export,
		Proof:          proof,
		Instance:       instance,
	})
	if err != nil {
		return err
	}
	timing.Sample("Write")

	fmt.Printf("%s%v = %v\n", program.Export, program.Args, instance.Results)
	if ctx.Bool(StatsFlag.Name) {
		PrintInstance(os.Stdout, pp, instance)
		timing.Print(os.Stdout)
	}
	return nil
}

var StatsFlag = &cli.BoolFlag{
	Name:  "stats",
	Usage: "print proof statistics and timings",
}

var ProveCommand = &cli.Command{
	Name:        "prove",
	Usage:       "Prove a WebAssembly function call",
	Description: "Traces the call, proves it and writes the proof bundle.",
	Action:      Prove,
	Flags: append([]cli.Flag{
		StepSizeFlag,
		MemoryStepSizeFlag,
		ProofFlag,
		StatsFlag,
		LogLevelFlag,
		PProfCPUFlag,
	}, programFlags...),
}
