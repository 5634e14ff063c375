package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/moolen/engine-client/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the client configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(s))
	return cmd
}

func newConfigInitCmd(s *session) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <file>",
		Short: "Write a configuration file with the default settings",
		Long: `Writes the default client configuration as YAML. The --url flag, if given,
is stored as base_url. An existing file is only replaced with --force.`,
		Args: cobra.ExactArgs(1),
		// Needs no client.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists, use --force to replace it", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			cfg := config.Default()
			if s.opts.baseURL != "" {
				cfg.BaseURL = s.opts.baseURL
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid --url: %w", err)
			}
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file")
	return cmd
}
