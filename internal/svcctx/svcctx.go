// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/config"
	"github.com/readalong/readalong/internal/home"
	"github.com/readalong/readalong/internal/jobs"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/metrics"
	"github.com/readalong/readalong/internal/pipeline"
	"github.com/readalong/readalong/internal/progress"
	"github.com/readalong/readalong/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	MetadataClient *metadatastore.Client
	MetadataStore  metadatastore.Store
	BlobStore      blobstore.Store
	Registry       *providers.Registry
	Scheduler      *jobs.Scheduler
	Controller     *pipeline.Controller
	Broker         *progress.Broker
	ConfigManager  *config.Manager
	Logger         *slog.Logger
	Home           *home.Dir
	MetricsQuery   *metrics.Query
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// MetadataClientFrom extracts the raw DefraDB-compatible client from context.
func MetadataClientFrom(ctx context.Context) *metadatastore.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.MetadataClient
	}
	return nil
}

// MetadataStoreFrom extracts the metadata store from context.
func MetadataStoreFrom(ctx context.Context) metadatastore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.MetadataStore
	}
	return nil
}

// BlobStoreFrom extracts the blob store from context.
func BlobStoreFrom(ctx context.Context) blobstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.BlobStore
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// SchedulerFrom extracts the scheduler from context.
func SchedulerFrom(ctx context.Context) *jobs.Scheduler {
	if s := ServicesFrom(ctx); s != nil {
		return s.Scheduler
	}
	return nil
}

// ControllerFrom extracts the pipeline controller from context.
func ControllerFrom(ctx context.Context) *pipeline.Controller {
	if s := ServicesFrom(ctx); s != nil {
		return s.Controller
	}
	return nil
}

// BrokerFrom extracts the progress broker from context.
func BrokerFrom(ctx context.Context) *progress.Broker {
	if s := ServicesFrom(ctx); s != nil {
		return s.Broker
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// MetricsQueryFrom extracts the metrics query helper from context.
func MetricsQueryFrom(ctx context.Context) *metrics.Query {
	if s := ServicesFrom(ctx); s != nil {
		return s.MetricsQuery
	}
	return nil
}
