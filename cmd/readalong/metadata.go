package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/home"
	"github.com/readalong/readalong/internal/metadatastore"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Manage the metadata store container",
	Long: `Manage the metadata store container lifecycle.

The metadata store is the source of truth for books, chapters, sync
tables, and jobs. It runs in a Docker container with data persisted to
~/.readalong/metadata/.

Examples:
  readalong metadata start   # Start the metadata store container
  readalong metadata stop    # Stop the container (data preserved)
  readalong metadata status  # Check container status
  readalong metadata logs    # View container logs`,
}

var metadataStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the metadata store container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting metadata store...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metadata store: %w", err)
		}

		fmt.Printf("Metadata store is running at %s\n", mgr.URL())
		return nil
	},
}

var metadataStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the metadata store container",
	Long: `Stop the metadata store container.

This stops the container but preserves data. Use 'readalong metadata start'
to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping metadata store...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop metadata store: %w", err)
		}

		fmt.Println("Metadata store stopped")
		return nil
	},
}

var metadataStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show metadata store container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case metadatastore.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())

			client := metadatastore.NewClient(mgr.URL())
			if err := client.HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case metadatastore.StatusStopped:
			fmt.Printf("Status: %s (use 'readalong metadata start' to start)\n", status)
		case metadatastore.StatusNotFound:
			fmt.Printf("Status: %s (use 'readalong metadata start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var (
	logsTail   string
	logsFollow bool
)

var metadataLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show metadata store container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var metadataRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the metadata store container",
	Long: `Remove the metadata store container.

This stops and removes the container. Data in ~/.readalong/metadata/
is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing metadata store container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("Metadata store container removed (data preserved)")
		return nil
	},
}

var metadataWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the metadata store to be ready",
	Long: `Wait for the metadata store to be ready to accept connections.

This is useful in scripts to ensure the metadata store is fully started
before running other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for metadata store (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("metadata store not ready: %w", err)
		}

		fmt.Println("Metadata store is ready")
		return nil
	},
}

func init() {
	metadataCmd.AddCommand(metadataStartCmd)
	metadataCmd.AddCommand(metadataStopCmd)
	metadataCmd.AddCommand(metadataStatusCmd)
	metadataCmd.AddCommand(metadataLogsCmd)
	metadataCmd.AddCommand(metadataRemoveCmd)
	metadataCmd.AddCommand(metadataWaitCmd)

	metadataLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	metadataLogsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (not yet implemented)")

	metadataWaitCmd.Flags().Duration("timeout", 30*time.Second, "Timeout waiting for the metadata store")

	rootCmd.AddCommand(metadataCmd)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// getDockerManager creates a DockerManager with the standard config.
func getDockerManager(h *home.Dir) (*metadatastore.DockerManager, error) {
	dataPath := filepath.Join(h.Path(), "metadata")

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return metadatastore.NewDockerManager(metadatastore.DockerConfig{
		DataPath: dataPath,
	})
}
