package cmd

import (
	"github.com/Shivansh-Atwal/trackstack/logger"
	"github.com/Shivansh-Atwal/trackstack/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TrackStack HTTP server",
	Long:  `Connect to MySQL, MinIO and (optionally) Redis, migrate the schema and serve the REST API, media proxy and feed stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("Starting TrackStack server...",
			logger.String("env", cfg.Env),
			logger.String("addr", cfg.Addr()),
			logger.Bool("enforceOwnership", cfg.EnforceOwnership),
			logger.Int64("maxBodyBytes", cfg.MaxBodyBytes))
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
