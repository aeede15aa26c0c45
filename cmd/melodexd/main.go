package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/waveform-labs/melodex/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "melodexd",
		Short: "Melodex daemon",
		Long:  "Melodex daemon for running the multi-modal music search server",
	}

	rootCmd.AddCommand(cli.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
