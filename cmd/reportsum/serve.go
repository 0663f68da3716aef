package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reportsum server",
	Long: `Start the reportsum HTTP server and its task workers.

Reports submitted over HTTP are processed in the background. When the
server shuts down (via Ctrl+C or SIGTERM), in-flight tasks are cancelled.

model.rate_limit and log_level are reloaded when the config file changes.

Examples:
  reportsum serve                    # Start on the configured port
  reportsum serve --port 3000        # Start on custom port
  reportsum serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildServices(nil)
		if err != nil {
			return err
		}
		cfgMgr := env.services.Config
		cfg := cfgMgr.Get()

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srv, err := server.New(server.Config{
			Host:     host,
			Port:     port,
			Services: env.services,
			Logger:   env.logger,
		})
		if err != nil {
			return err
		}

		cfgMgr.WatchConfig()
		env.logger.Info("reportsum starting",
			"model", cfg.Model.Name,
			"provider", cfg.Model.Provider,
			"config", cfgMgr.ConfigFileUsed(),
			"home", env.services.Home.Path())

		// Start server (blocks until shutdown)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}
