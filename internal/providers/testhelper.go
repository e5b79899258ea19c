package providers

import (
	"os"
)

// TestConfig holds provider configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string
}

// LoadTestConfig loads provider API keys from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
	}
}

// HasOpenRouter returns true if OpenRouter API key is configured.
func (c TestConfig) HasOpenRouter() bool {
	return c.OpenRouterAPIKey != ""
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasElevenLabs returns true if an ElevenLabs API key is configured.
func (c TestConfig) HasElevenLabs() bool {
	return c.ElevenLabsAPIKey != ""
}

// HasAnyTTS returns true if any TTS provider is configured.
func (c TestConfig) HasAnyTTS() bool {
	return c.HasOpenAI() || c.HasElevenLabs()
}

// HasAnyLLM returns true if any LLM provider is configured.
func (c TestConfig) HasAnyLLM() bool {
	return c.HasOpenRouter()
}

// NewOpenRouterClient creates an OpenRouter client from test config.
// Returns nil if not configured.
func (c TestConfig) NewOpenRouterClient() *OpenRouterClient {
	if !c.HasOpenRouter() {
		return nil
	}
	return NewOpenRouterClient(OpenRouterConfig{
		APIKey: c.OpenRouterAPIKey,
	})
}

// NewOpenAITTSClient creates an OpenAI TTS client from test config.
// Returns nil if not configured.
func (c TestConfig) NewOpenAITTSClient() *OpenAITTSClient {
	if !c.HasOpenAI() {
		return nil
	}
	return NewOpenAITTSClient(OpenAITTSConfig{
		APIKey: c.OpenAIAPIKey,
	})
}

// NewElevenLabsTTSClient creates an ElevenLabs TTS client from test config.
// Returns nil if not configured.
func (c TestConfig) NewElevenLabsTTSClient() *ElevenLabsTTSClient {
	if !c.HasElevenLabs() {
		return nil
	}
	return NewElevenLabsTTSClient(ElevenLabsTTSConfig{
		APIKey: c.ElevenLabsAPIKey,
	})
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that have API keys configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		TTSProviders: make(map[string]TTSProviderConfig),
		LLMProviders: make(map[string]LLMProviderConfig),
	}

	if c.HasOpenRouter() {
		cfg.LLMProviders["openrouter"] = LLMProviderConfig{
			Type:      "openrouter",
			APIKey:    c.OpenRouterAPIKey,
			RateLimit: 60,
			Enabled:   true,
		}
	}

	if c.HasOpenAI() {
		cfg.TTSProviders["openai"] = TTSProviderConfig{
			Type:      "openai",
			APIKey:    c.OpenAIAPIKey,
			RateLimit: 8,
			Enabled:   true,
		}
	}

	if c.HasElevenLabs() {
		cfg.TTSProviders["elevenlabs"] = TTSProviderConfig{
			Type:      "elevenlabs",
			APIKey:    c.ElevenLabsAPIKey,
			RateLimit: 5,
			Enabled:   true,
		}
	}

	return cfg
}
