package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/yiblet/qrscan/internal/cli"
)

func main() {
	// Parse command-line arguments
	var args cli.Args
	parser := arg.MustParse(&args)

	// No subcommand opens the scanner view
	if parser.Subcommand() == nil {
		args.Scan = &cli.ScanCmd{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliHandler, err := cli.NewWithArgs(&args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = cliHandler.Execute(ctx, &args)
	cliHandler.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		// Show usage for the subcommand that failed
		if parser.Subcommand() != nil {
			fmt.Fprintln(os.Stderr)
			parser.WriteUsageForSubcommand(os.Stderr, parser.SubcommandNames()...)
		}
		os.Exit(1)
	}
}
