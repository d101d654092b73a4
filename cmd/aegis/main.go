package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegisgate/aegis/cmd/aegis/commands"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aegis",
		Short: "Aegis safety layer CLI",
		Long:  "Command-line tools for the Aegis guardrails service: PII scanning, redaction and configuration checks.",
	}

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewRedactCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	return rootCmd
}
