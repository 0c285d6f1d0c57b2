// Package main is the runbox command line client.
//
// It runs a single source file in a sandbox without going through MCP:
//
//	runbox run --lang python hello.py
//	echo 'print(1)' | runbox run --lang py -
//	runbox run < message.md     # language taken from the fenced block
//	runbox languages
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "runbox",
	Short: "runbox - run code in single-use containers",
	Long: `runbox runs source code in a fresh, network-isolated container per request
and prints the combined stdout and stderr of the program.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./config.yaml or ./config/config.yaml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
