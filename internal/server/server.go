package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/config"
	"github.com/readalong/readalong/internal/home"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/metrics"
	"github.com/readalong/readalong/internal/pipeline"
	"github.com/readalong/readalong/internal/progress"
	"github.com/readalong/readalong/internal/providers"
	"github.com/readalong/readalong/internal/server/endpoints"
	"github.com/readalong/readalong/internal/svcctx"

	"github.com/readalong/readalong/internal/jobs"
)

// Server is the readalong HTTP + CLI API server. It manages the metadata
// store's Docker container lifecycle, starting it on server start and
// stopping it on shutdown.
type Server struct {
	httpServer    *http.Server
	metaManager   *metadatastore.DockerManager
	metaClient    *metadatastore.Client
	metaStore     metadatastore.Store
	blobStore     blobstore.Store
	registry      *providers.Registry
	scheduler     *jobs.Scheduler
	controller    *pipeline.Controller
	broker        *progress.Broker
	configMgr     *config.Manager
	logger        *slog.Logger
	home          *home.Dir

	services *svcctx.Services

	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the port to listen on (default: 8080).
	Port string
	// ConfigManager provides configuration with hot-reload support.
	ConfigManager *config.Manager
	// Logger is the structured logger to use.
	Logger *slog.Logger
	// Home is the readalong home directory.
	Home *home.Dir
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, fmt.Errorf("server: config manager is required")
	}

	appCfg := cfg.ConfigManager.Get()

	metaManager, err := metadatastore.NewDockerManager(metadatastore.DockerConfig{
		ContainerName: appCfg.Metadata.ContainerName,
		Image:         appCfg.Metadata.Image,
		HostPort:      appCfg.Metadata.Port,
		DataPath:      cfg.Home.DataPath(),
	})
	if err != nil {
		return nil, fmt.Errorf("server: creating metadata store manager: %w", err)
	}

	registry := providers.NewRegistryFromConfig(appCfg.ToProviderRegistryConfig())
	registry.SetLogger(cfg.Logger)
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	blobRoot := appCfg.Blob.Root
	if blobRoot == "" {
		blobRoot = cfg.Home.DataPath() + "/blobs"
	}
	blobStore := blobstore.NewFilesystemStore(blobRoot)

	s := &Server{
		metaManager: metaManager,
		blobStore:   blobStore,
		registry:    registry,
		configMgr:   cfg.ConfigManager,
		logger:      cfg.Logger,
		home:        cfg.Home,
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DockerManager: metaManager}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withLogging(s.withServices(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // long timeout for audio synthesis and export downloads
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and the metadata store container. It blocks
// until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.metaManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing metadata store container incompatible: %w", err)
	}

	s.logger.Info("starting metadata store")
	if err := s.metaManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start metadata store: %w", err)
	}

	s.metaClient = metadatastore.NewClient(s.metaManager.URL())
	if err := s.metaClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("metadata store health check failed: %w", err)
	}
	s.logger.Info("metadata store is ready", "url", s.metaManager.URL())

	s.logger.Info("initializing metadata store schema")
	if err := metadatastore.Initialize(ctx, s.metaClient, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	s.metaStore = metadatastore.NewGraphQLStore(s.metaClient)
	s.broker = progress.NewBroker()

	appCfg := s.configMgr.Get()
	s.scheduler = jobs.NewScheduler(jobs.SchedulerConfig{
		Store:           s.metaStore,
		Publisher:       s.broker,
		Logger:          s.logger,
		MetricsRecorder: metrics.NewRecorder(s.metaClient),
		Concurrency:     appCfg.Pipeline.MaxConcurrency,
	})
	s.broker.SnapshotFunc = s.scheduler.Snapshot

	s.controller = pipeline.NewController(pipeline.ControllerConfig{
		Submitter: s.scheduler,
		Logger:    s.logger,
	})

	s.services = &svcctx.Services{
		MetadataClient: s.metaClient,
		MetadataStore:  s.metaStore,
		BlobStore:      s.blobStore,
		Registry:       s.registry,
		Scheduler:      s.scheduler,
		Controller:     s.controller,
		Broker:         s.broker,
		ConfigManager:  s.configMgr,
		Logger:         s.logger,
		Home:           s.home,
		MetricsQuery:   metrics.NewQuery(s.metaClient),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	s.logger.Info("stopping metadata store")
	if err := s.metaManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("metadata store stop error", "error", err)
	}
	if err := s.metaManager.Close(); err != nil {
		s.logger.Error("metadata store manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// MetadataClient returns the metadata store client. Returns nil if the
// server hasn't started yet.
func (s *Server) MetadataClient() *metadatastore.Client {
	return s.metaClient
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info("request started", "method", r.Method, "path", r.URL.Path)

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the metadata store or scheduler aren't
// ready yet.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metaClient == nil || s.scheduler == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
