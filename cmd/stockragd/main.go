package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/stockrag/internal/cli"
	"github.com/cloo-solutions/stockrag/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stockragd",
		Short:         "Inventory sync and assistant daemon",
		Long:          "stockragd keeps a semantic index of the inventory database in sync and answers questions about it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(
		admin.ServeCmd(),
		admin.SyncCmd(),
		admin.StatusCmd(),
		admin.SearchCmd(),
		admin.ChatCmd(),
		admin.ResetCmd(),
	)

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
