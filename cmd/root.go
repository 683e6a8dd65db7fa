// Package cmd provides the s4 command-line interface.
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"s4/config"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// Global flags
var noColor bool

// NewRootCmd creates the root s4 command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "s4",
		Short: "s4 is a shared SQLite server gated by a single secret",
		Long: `s4 exposes a local SQLite database over HTTP. Remote clients submit
arbitrary SQL with a shared secret key and receive structured results.

Run 's4 configure' once to create the instance configuration, then
's4 serve' to start the gateway.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigureCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newVersionCmd creates the 'version' subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the s4 version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "s4 v%s\n", config.Version)
		},
	}
}
