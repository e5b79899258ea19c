package endpoints

import (
	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/metadatastore"
)

// Config carries the pieces individual endpoints need at construction time,
// as opposed to request time (those come from svcctx via the request
// context).
type Config struct {
	DockerManager *metadatastore.DockerManager
}

// All returns every registered api.Endpoint, matching the external
// interface table.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DockerManager: cfg.DockerManager},

		&UploadBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&GetChapterEndpoint{},

		&GetAudioDescriptorEndpoint{},
		&StreamAudioEndpoint{},
		&GenerateAudioEndpoint{},
		&TrimAudioEndpoint{},
		&RestoreAudioEndpoint{},

		&AutoSyncEndpoint{},
		&GetSyncTableEndpoint{},

		&TranslateChapterEndpoint{},

		&ExportEPUBEndpoint{},

		&GetJobEndpoint{},
		&ProgressStreamEndpoint{},
	}
}
