package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

func Verify(ctx *cli.Context) error {
	log, err := Logger(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	f, err := os.Open(ctx.Path(ProofFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to open proof: %w", err)
	}
	defer f.Close()
	b, err := vybiumzkwasm.ReadBundle(f)
	if err != nil {
		return err
	}

	pp, err := vybiumzkwasm.Setup(vybiumzkwasm.DefaultConfig().
		WithStepSize(b.StepSize).
		WithMemoryStepSize(b.MemoryStepSize).
		WithLogger(log))
	if err != nil {
		return err
	}
	if err := vybiumzkwasm.Verify(pp, b.Proof, b.Instance); err != nil {
		return err
	}
	fmt.Printf("proof valid: %v -> %v\n", b.Instance.Args, b.Instance.Results)
	fmt.Printf("export %q is recorded but not bound by the proof\n", b.Export)
	if ctx.Bool(StatsFlag.Name) {
		PrintInstance(os.Stdout, pp, b.Instance)
	}
	return nil
}

var VerifyCommand = &cli.Command{
	Name:        "verify",
	Usage:       "Verify a proof bundle",
	Description: "Rebuilds the public parameters from the bundle and checks the proof.",
	Action:      Verify,
	Flags:       []cli.Flag{ProofFlag, StatsFlag, LogLevelFlag},
}
