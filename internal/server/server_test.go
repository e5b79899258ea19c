package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/readalong/readalong/internal/config"
	"github.com/readalong/readalong/internal/home"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/server/endpoints"
	"github.com/readalong/readalong/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, testutil.ServerConfig) {
	t.Helper()
	tc := testutil.NewServerConfig(t)

	homeDir, err := home.New(tc.HomePath)
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	if err := homeDir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}

	mgr, err := config.NewManager(tc.ConfigFile)
	if err != nil {
		t.Fatalf("config.NewManager() error = %v", err)
	}

	srv, err := New(Config{
		Host:          tc.Host,
		Port:          tc.Port,
		ConfigManager: mgr,
		Home:          homeDir,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, tc
}

// TestServer_FullLifecycle tests the complete server lifecycle including the
// metadata store container. This test requires Docker to be running.
func TestServer_FullLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	srv, tc := newTestServer(t)
	baseURL := tc.URL()

	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)

	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	if err := testutil.WaitForServer(baseURL, 30*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("health_endpoint", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var health endpoints.HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if health.Status != "ok" {
			t.Errorf("health.Status = %q, want %q", health.Status, "ok")
		}
	})

	t.Run("ready_endpoint", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/ready")
		if err != nil {
			t.Fatalf("ready check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("ready status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var health endpoints.HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if health.Status != "ok" {
			t.Errorf("health.Status = %q, want %q", health.Status, "ok")
		}
		if health.Metadata != "ok" {
			t.Errorf("health.Metadata = %q, want %q", health.Metadata, "ok")
		}
	})

	t.Run("metadata_client_works", func(t *testing.T) {
		client := srv.MetadataClient()
		if client == nil {
			t.Fatal("MetadataClient() returned nil")
		}
		if err := client.HealthCheck(ctx); err != nil {
			t.Errorf("metadata store health check failed: %v", err)
		}
	})

	t.Run("is_running", func(t *testing.T) {
		if !srv.IsRunning() {
			t.Error("IsRunning() = false, want true")
		}
	})

	serverCancel()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Logf("server returned error (expected during shutdown): %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}

	t.Run("not_running_after_shutdown", func(t *testing.T) {
		if srv.IsRunning() {
			t.Error("IsRunning() = true after shutdown, want false")
		}
	})

	t.Run("metadata_store_stopped_after_shutdown", func(t *testing.T) {
		mgr, err := metadatastore.NewDockerManager(metadatastore.DockerConfig{
			ContainerName: tc.ContainerName,
			Labels:        testutil.ContainerLabels(t),
		})
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			t.Fatalf("failed to get status: %v", err)
		}
		if status == metadatastore.StatusRunning {
			t.Error("metadata store still running after server shutdown")
			_ = mgr.Stop(ctx)
		}
	})
}

// TestServer_ContextCancellation tests that the server properly handles context cancellation.
func TestServer_ContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	srv, tc := newTestServer(t)
	baseURL := tc.URL()

	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)

	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	if err := testutil.WaitForServer(baseURL, 30*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start: %v", err)
	}

	serverCancel()

	select {
	case <-serverErr:
	case <-time.After(30 * time.Second):
		t.Fatal("server did not respond to context cancellation")
	}

	mgr, err := metadatastore.NewDockerManager(metadatastore.DockerConfig{
		ContainerName: tc.ContainerName,
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	defer mgr.Close()

	status, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if status == metadatastore.StatusRunning {
		t.Error("metadata store still running after context cancellation")
		_ = mgr.Stop(ctx)
	}
}

// TestServer_DoubleStart tests that starting a running server returns an error.
func TestServer_DoubleStart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	srv, tc := newTestServer(t)
	baseURL := tc.URL()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	go func() {
		_ = srv.Start(serverCtx)
	}()

	if err := testutil.WaitForServer(baseURL, 30*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should return error")
	}
}

// TestServer_CleansUpOrphanedContainer tests that the server tolerates (or
// replaces) an existing metadata store container left behind by a crash.
func TestServer_CleansUpOrphanedContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	srv, tc := newTestServer(t)
	baseURL := tc.URL()

	// Start an orphaned container under the same name/port the server will use.
	orphan, err := metadatastore.NewDockerManager(metadatastore.DockerConfig{
		ContainerName: tc.ContainerName,
		HostPort:      tc.MetadataPort,
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if err := orphan.Start(ctx); err != nil {
		orphan.Close()
		t.Fatalf("failed to start orphan container: %v", err)
	}
	status, err := orphan.Status(ctx)
	if err != nil || status != metadatastore.StatusRunning {
		orphan.Close()
		t.Fatalf("orphan container not running: status=%s, err=%v", status, err)
	}
	orphan.Close()

	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)

	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	if err := testutil.WaitForServer(baseURL, 30*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start alongside orphan container: %v", err)
	}

	resp, err := http.Get(baseURL + "/ready")
	if err != nil {
		serverCancel()
		t.Fatalf("ready check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		serverCancel()
		t.Errorf("ready status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	serverCancel()
	<-serverErr
}
