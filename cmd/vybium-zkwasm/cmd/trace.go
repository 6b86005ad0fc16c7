package cmd

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/markkurossi/tabulate"
	"github.com/urfave/cli/v2"

	zkwasm "github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm"
	vybiumzkwasm "github.com/vybium/vybium-zkwasm/pkg/vybium-zkwasm"
)

var DisasmFlag = &cli.BoolFlag{
	Name:  "disasm",
	Usage: "print the compiled flat program",
}

func Trace(ctx *cli.Context) error {
	cfg, err := config(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Logger.Sync() }()
	program, err := loadProgram(ctx)
	if err != nil {
		return err
	}

	if ctx.Bool(DisasmFlag.Name) {
		t, err := zkwasm.NewWasmTracer(program.Binary, program.Export, program.Args...)
		if err != nil {
			return err
		}
		for _, line := range t.Program.Disassemble() {
			fmt.Println(line)
		}
	}

	trace, err := vybiumzkwasm.Trace(ctx.Context, program, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("%s%v = %v in %d steps\n", program.Export, program.Args, trace.Results, len(trace.Steps))

	counts := make(map[string]int)
	for _, w := range trace.Steps {
		counts[w.Instr.String()]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Instruction").SetAlign(tabulate.ML)
	tab.Header("Steps").SetAlign(tabulate.MR)
	tab.Header("%").SetAlign(tabulate.MR)
	for _, name := range names {
		row := tab.Row()
		row.Column(name)
		row.Column(fmt.Sprintf("%d", counts[name]))
		row.Column(fmt.Sprintf("%.2f%%", float64(counts[name])/float64(len(trace.Steps))*100))
	}
	tab.Print(os.Stdout)
	return nil
}

var TraceCommand = &cli.Command{
	Name:        "trace",
	Usage:       "Trace a WebAssembly function call without proving it",
	Description: "Runs the call on the flat VM and prints an instruction histogram.",
	Action:      Trace,
	Flags:       append([]cli.Flag{DisasmFlag, LogLevelFlag}, programFlags...),
}
