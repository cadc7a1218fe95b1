package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/cabinetdb/pkg/config"
)

func newInitCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with a fresh API key",
		Long: `Write a configuration file pointing at the database given by --db (or the
default ./data/cabinet.kch) with a newly generated API key.

The file goes to --config, or ~/.config/cabinet/config.yaml. A .toml
extension writes TOML instead of YAML.

Examples:
  cabinet init
  cabinet init --db ./data/cabinet.kct --config ./cabinet.toml`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipOpen: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			dbPath, _ := cmd.Flags().GetString("db")
			force, _ := cmd.Flags().GetBool("force")

			if config.ConfigExists(path) && !force {
				return errors.Newf("configuration %s already exists; use --force to replace it", path)
			}

			cfg, err := config.BootstrapConfig(path, dbPath)
			if err != nil {
				return err
			}
			cmd.Printf("Configuration written to %s\n", path)
			cmd.Printf("Database: %s\n", cfg.Database.Path)
			cmd.Printf("API key: %s\n", cfg.Security.APIKey)
			cmd.Printf("\nYou can now start the server with:\n  cabinet serve --config %s\n", path)
			return nil
		},
	}
	c.Flags().Bool("force", false, "Replace an existing configuration")
	return c
}
