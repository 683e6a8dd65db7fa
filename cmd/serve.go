package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"s4/bootstrap"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var (
		port     int
		inMemory bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the s4 server",
		Long: `Start the s4 gateway. With no persisted configuration the server runs
in a degraded mode: an in-memory database gated by the default,
non-secret key. Run 's4 configure' first for anything beyond local
experimentation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := bootstrap.NewApp(ctx, bootstrap.Options{
				Port:     port,
				InMemory: inMemory,
				LogLevel: logLevel,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if err := app.Start(ctx); err != nil {
				app.Shutdown()
				return fmt.Errorf("failed to start application: %w", err)
			}

			app.WaitForShutdown()
			app.Shutdown()
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to run the s4 server on (default 5000)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Use an in-memory database for this session")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	return cmd
}
