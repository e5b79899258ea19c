// Readalong API
//
//	@title			Readalong API
//	@version		1.0
//	@description	EPUB3 audiobook synchronization pipeline for aligning, translating, and exporting read-along books.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/readalong/readalong
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/config"
	"github.com/readalong/readalong/internal/home"
	"github.com/readalong/readalong/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the readalong server",
	Long: `Start the readalong HTTP server.

This starts both the HTTP API server and the metadata store container.
When the server shuts down (via Ctrl+C or SIGTERM), the metadata store is
also stopped.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes metadata store status)

Examples:
  readalong serve                    # Start on default port 8080
  readalong serve --port 3000        # Start on custom port
  readalong serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: GetLogLevel(),
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Priority: --config flag > ./config.yaml > ~/.readalong/config.yaml
		configFile := cfgFile
		if configFile == "" {
			if _, err := os.Stat("config.yaml"); err == nil {
				configFile = "config.yaml"
			} else {
				configFile = filepath.Join(h.Path(), "config.yaml")
			}
		}

		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			logger.Info("creating default config", "path", configFile)
			if err := config.WriteDefault(configFile); err != nil {
				logger.Warn("failed to write default config", "error", err)
			}
		}
		cfgMgr, err := config.NewManager(configFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()
		logger.Info("configuration loaded", "file", configFile)

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cfgMgr,
			Logger:        logger,
			Home:          h,
		})
		if err != nil {
			return err
		}

		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
