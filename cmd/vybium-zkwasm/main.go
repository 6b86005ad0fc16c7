package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/vybium/vybium-zkwasm/cmd/vybium-zkwasm/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "vybium-zkwasm"
	app.Usage = "zkWASM prover and verifier"
	app.Description = "Proves and verifies executions of integer WebAssembly functions"
	app.Commands = []*cli.Command{
		cmd.ProveCommand,
		cmd.VerifyCommand,
		cmd.TraceCommand,
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Println("\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintf(os.Stderr, "command interrupted\n")
			os.Exit(130)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}
