package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"s4/bootstrap"
	"s4/config"
	"s4/storage"

	"go.uber.org/zap"
)

// newConfigureCmd creates the 'configure' subcommand.
func newConfigureCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Create or regenerate the instance configuration",
		Long: `Generate a random secret key and a database file under the instance
directory, persisting both as the instance configuration.

Regenerating an existing configuration is destructive: every previously
issued secret stops working on the next server start. An existing
configuration is only overwritten after confirmation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			instanceDir, err := bootstrap.EnsureInstanceDir(cfg.InstanceDir)
			if err != nil {
				return err
			}

			_, err = config.ResolveInstance(instanceDir)
			regenerating := err == nil
			if err != nil && !errors.Is(err, config.ErrNotConfigured) {
				// A corrupt artifact still requires explicit consent to
				// destroy: it may be a recoverable operator mistake.
				warningColor.Fprintf(cmd.OutOrStdout(), "Existing configuration is unreadable: %v\n", err)
				regenerating = true
			}

			if regenerating && !yes {
				if !confirm(cmd, "Configuration file already exists. Do you want to generate a new secret key and overwrite it?") {
					infoColor.Fprintln(cmd.OutOrStdout(), "Aborted. Existing configuration left untouched.")
					return nil
				}
			}

			instance, err := generateInstance(cmd, instanceDir)
			if err != nil {
				return err
			}

			if regenerating {
				successColor.Fprintf(cmd.OutOrStdout(), "New secret: %s\n", instance.SecretKey)
				warningColor.Fprintln(cmd.OutOrStdout(), "Please restart the s4 server to apply the new secret key.")
			} else {
				successColor.Fprintf(cmd.OutOrStdout(), "The s4 configuration has been completed! Secret: %s\n", instance.SecretKey)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Overwrite an existing configuration without prompting")

	return cmd
}

// generateInstance establishes the database file and persists a fresh
// instance configuration, with a progress spinner on a terminal.
func generateInstance(cmd *cobra.Command, instanceDir string) (*config.InstanceConfig, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Configuring s4..."
	s.Start()
	defer s.Stop()

	// Establish the database file before persisting the configuration,
	// so a misconfigured disk fails without clobbering the artifact.
	databasePath := filepath.Join(instanceDir, config.DatabaseFileName)
	store, err := storage.NewStore(databasePath, zap.NewNop().Sugar())
	if err != nil {
		return nil, fmt.Errorf("an error occurred while establishing the s4 database: %w", err)
	}
	if err := store.Close(); err != nil {
		return nil, fmt.Errorf("an error occurred while establishing the s4 database: %w", err)
	}

	instance, err := config.GenerateInstance(instanceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance configuration: %w", err)
	}

	return instance, nil
}

// confirm asks the operator a yes/no question on the command's input
// stream. Anything but an explicit yes declines.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
