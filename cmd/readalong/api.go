package main

import (
	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func newAPICommand() *cobra.Command {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}

	apiCmd := registry.BuildCommands(getServerURL)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)
	return apiCmd
}

func init() {
	rootCmd.AddCommand(newAPICommand())
}
