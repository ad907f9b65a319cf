package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/tooldispatch/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tooldispatch",
	Short: "Tool dispatcher HTTP service",
	Long:  "tooldispatch loads tool units from a directory and dispatches JSON calls to them over HTTP.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress all log output except errors")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text | json")
	rootCmd.PersistentFlags().String("config", "", "Path to tooldispatch.yaml (default: ./tooldispatch.yaml when present)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("tooldispatch version %s\n", version))

	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewToolsCmd())
	rootCmd.AddCommand(cli.NewInvokeCmd())
	rootCmd.AddCommand(cli.NewJournalCmd())
}
