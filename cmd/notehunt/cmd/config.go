package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/notehunt/configs"
	"github.com/Aman-CERP/notehunt/internal/config"
	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage notehunt configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(opts))
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default user config file",
		Long:        `Write a commented config file to $XDG_CONFIG_HOME/notehunt/config.yaml.`,
		Annotations: map[string]string{skipConfig: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(config.GetUserConfigDir(), "config.yaml")
			if _, err := os.Stat(path); err == nil && !force {
				return nherrors.ValidationError(fmt.Sprintf("%s already exists", path), nil).
					WithSuggestion("Pass --force to overwrite it")
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nherrors.ConfigError("failed to create config directory", err)
			}
			if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
				return nherrors.ConfigError("failed to write config file", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(opts.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
