package config

// Config holds readalong configuration.
// Stored at: ~/.readalong/config.yaml
type Config struct {
	APIKeys      map[string]string         `mapstructure:"api_keys" yaml:"api_keys"`
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	TTSProviders map[string]TTSProviderCfg `mapstructure:"tts_providers" yaml:"tts_providers"`
	Defaults     DefaultsConfig            `mapstructure:"defaults" yaml:"defaults"`
	Metadata     MetadataStoreConfig       `mapstructure:"metadata_store" yaml:"metadata_store"`
	Blob         BlobConfig                `mapstructure:"blob" yaml:"blob"`
	Pipeline     PipelineConfig            `mapstructure:"pipeline" yaml:"pipeline"`
	Server       ServerConfig              `mapstructure:"server" yaml:"server"`
	ASR          ASRConfig                 `mapstructure:"asr" yaml:"asr"`
}

// ASRConfig configures the remote forced-alignment service used by the
// asr_forced align backend.
type ASRConfig struct {
	// BaseURL is the forced-alignment service's API root. Empty disables
	// the asr_forced backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// APIKey is resolved the same way api_keys entries are.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// LLMProviderCfg configures a chapter-translation LLM client.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`
	Model     string  `mapstructure:"model" yaml:"model"`
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// TTSProviderCfg configures a speech synthesis provider.
type TTSProviderCfg struct {
	Type         string  `mapstructure:"type" yaml:"type"`
	Model        string  `mapstructure:"model" yaml:"model"`
	Voice        string  `mapstructure:"voice" yaml:"voice"`
	Format       string  `mapstructure:"format" yaml:"format"`
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"`
	RateLimit    float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	Exaggeration float64 `mapstructure:"exaggeration" yaml:"exaggeration"`
	CFG          float64 `mapstructure:"cfg" yaml:"cfg"`
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsConfig holds pipeline-wide default selections.
type DefaultsConfig struct {
	// TTSProvider is the provider name used when a chapter's audio source
	// doesn't name one explicitly.
	TTSProvider string `mapstructure:"tts_provider" yaml:"tts_provider"`
	// LLMProvider is the provider name used for chapter translation.
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"`
	// AlignMethod selects the aligner used to build word-level sync tables:
	// "asr_forced", "dtw", or "passthrough".
	AlignMethod string `mapstructure:"align_method" yaml:"align_method"`
	// TargetLanguage is the language used when a translate job omits one.
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language"`
	// CoverageThreshold is the minimum fraction of tokens that must receive
	// timing before a sync table is accepted.
	CoverageThreshold float64 `mapstructure:"coverage_threshold" yaml:"coverage_threshold"`
}

// MetadataStoreConfig holds DefraDB container configuration for the
// metadata store backing books, chapters, sync tables, and jobs.
type MetadataStoreConfig struct {
	// ContainerName is the Docker container name (default: readalong-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// BlobConfig holds binary asset storage configuration (source EPUBs,
// synthesized audio, exported EPUBs).
type BlobConfig struct {
	// Root is the filesystem root for blob storage. Empty uses
	// {home}/data/blobs.
	Root string `mapstructure:"root" yaml:"root"`
}

// PipelineConfig holds the pipeline's concurrency setting plus retry and
// timeout fields that are carried in the config file.
type PipelineConfig struct {
	// MaxConcurrency bounds the number of jobs running at once across the
	// whole pipeline.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	// MaxRetries and RetryDelaySeconds are read from the config file but no
	// job uses them: each job takes its retry budget from its provider's
	// MaxRetries/RetryDelayBase or from its own fields.
	MaxRetries        int `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	// JobTimeoutSeconds is read from the config file but not applied; the
	// Scheduler runs jobs without a time limit.
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds" yaml:"job_timeout_seconds"`
}

// ServerConfig holds the HTTP API server's bind address.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIKeys: map[string]string{
			"openrouter":  "${OPENROUTER_API_KEY}",
			"openai":      "${OPENAI_API_KEY}",
			"elevenlabs":  "${ELEVENLABS_API_KEY}",
			"deepinfra":   "${DEEPINFRA_API_KEY}",
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:      "openrouter",
				Model:     "default-translation-model",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 60,
				Enabled:   true,
			},
		},
		TTSProviders: map[string]TTSProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "tts-1-hd",
				Voice:     "onyx",
				Format:    "mp3",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 8,
				Enabled:   true,
			},
			"elevenlabs": {
				Type:      "elevenlabs",
				Model:     "eleven_turbo_v2_5",
				Format:    "mp3_44100_128",
				APIKey:    "${ELEVENLABS_API_KEY}",
				RateLimit: 10,
				Enabled:   false,
			},
		},
		Defaults: DefaultsConfig{
			TTSProvider:       "openai",
			LLMProvider:       "openrouter",
			AlignMethod:       "asr_forced",
			TargetLanguage:    "en",
			CoverageThreshold: 0.8,
		},
		Metadata: MetadataStoreConfig{
			ContainerName: "readalong-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Blob: BlobConfig{
			Root: "",
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:    4,
			MaxRetries:        3,
			RetryDelaySeconds: 2,
			JobTimeoutSeconds: 900,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		ASR: ASRConfig{
			BaseURL: "",
			APIKey:  "${ASR_API_KEY}",
		},
	}
}

// GetAPIKey returns an API key by name.
// Returns empty string if not found.
func (c *Config) GetAPIKey(name string) string {
	return c.APIKeys[name]
}

// ResolveAPIKey returns the API key for name with any ${ENV_VAR} reference
// expanded.
func (c *Config) ResolveAPIKey(name string) string {
	return ResolveEnvVars(c.GetAPIKey(name))
}
