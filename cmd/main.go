package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "otk-assistant",
		Short: "OTK inspection assistant: chat reports in, confirmed records out",
		Long: `otk-assistant turns text, voice and photo reports from quality inspectors
into structured inspection records (order numbers + status), asks the
inspector to confirm them and stores the confirmed records.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newExtractCmd(),
		newCheckCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("otk-assistant version %s\n", version)
		},
	}
}
