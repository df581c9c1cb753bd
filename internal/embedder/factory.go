package embedder

import (
	"fmt"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with the dimensions setting.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Config selects and parameterises an embedding backend. One Config is built
// from the process configuration at startup and passed here; the factory is
// never consulted again at runtime.
type Config struct {
	// Provider selects the backend: "ollama", "openai", or "azure".
	Provider string
	// Endpoint overrides the backend's default API base URL.
	Endpoint string
	// APIKey authenticates openai/azure calls. Unused for ollama.
	APIKey string
	// Model is the embedding model name. Empty selects the backend default.
	Model string
	// Dimensions is the expected vector length. Zero selects the backend
	// default; the vector index uses the same value for collection setup.
	Dimensions int
	// APIVersion is the Azure OpenAI API version (azure only).
	APIVersion string
	// Timeout bounds each embed call.
	Timeout time.Duration
	// RetryBackoff is the pause before the single bounded retry.
	RetryBackoff time.Duration
}

// EffectiveDimensions returns the embedding vector length for cfg, falling back to
// the backend default when unset. The vector index factory uses this to size
// its collections, so it must agree with what the embed calls will produce.
func (cfg Config) EffectiveDimensions() int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	if cfg.Provider == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// New constructs the configured Embedder, wrapped with the bounded-retry
// decorator so callers see qa.ErrEmbeddingUnavailable semantics.
func New(cfg Config) (Embedder, error) {
	inner, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return WithRetry(inner, cfg.RetryBackoff), nil
}

// newBackend constructs the raw backend client without retry semantics.
func newBackend(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model, Timeout: cfg.Timeout}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires an API key: %w", qa.ErrInvalidParameters)
		}
		baseURL := cfg.Endpoint
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil

	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires an API key: %w", qa.ErrInvalidParameters)
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires an endpoint: %w", qa.ErrInvalidParameters)
		}
		apiVersion := cfg.APIVersion
		if apiVersion == "" {
			apiVersion = "2025-04-01-preview"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: apiVersion,
			Timeout:    cfg.Timeout,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure: %w",
			cfg.Provider, qa.ErrInvalidParameters)
	}
}
