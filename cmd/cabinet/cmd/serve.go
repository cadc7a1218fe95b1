package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/cabinetdb/pkg/api"
)

func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the CabinetDB REST API server on the configured database.

Every /api/v1 route requires the X-API-Key header. The key comes from
--api-key or the configuration file written by 'cabinet init'. Prometheus
metrics are served unauthenticated on /metrics.

Examples:
  cabinet serve --api-key=mysecretkey --port=8080
  cabinet serve --config ~/.config/cabinet/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			serverCfg := api.ServerConfig{
				Bind:   cfg.Bind,
				Port:   cfg.Port,
				APIKey: cfg.Security.APIKey,
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				serverCfg.Bind, _ = cmd.Flags().GetString("bind")
			}
			if key, _ := cmd.Flags().GetString("api-key"); key != "" {
				serverCfg.APIKey = key
			}
			if serverCfg.APIKey == "" || serverCfg.APIKey == "auto" {
				return errors.New("an API key is required: pass --api-key or run 'cabinet init'")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.StartServer(ctx, dbFrom(cmd), serverCfg)
		},
	}
	c.Flags().IntP("port", "p", 8080, "Port to listen on")
	c.Flags().String("bind", "127.0.0.1", "Address to bind")
	c.Flags().String("api-key", "", "API key for authentication")
	return c
}
