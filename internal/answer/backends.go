package answer

import (
	"context"
	"fmt"

	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// BackendConfig describes one chain entry in the config file. Entries are
// tried in the order they appear; an extractive terminal entry is appended
// automatically when the list does not end with one.
type BackendConfig struct {
	// Kind selects the backend: ollama, openai, azure, gemini, extractive.
	Kind string `yaml:"kind"`

	// Model is the model name or Azure deployment (e.g. "llama3", "gpt-4o").
	Model string `yaml:"model"`

	// BaseURL overrides the default API endpoint (Ollama host, Azure
	// endpoint).
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential for hosted backends.
	APIKey string `yaml:"api_key"`

	// APIVersion is the Azure OpenAI REST API version (azure only).
	APIVersion string `yaml:"api_version"`
}

// NewVariant constructs one chain entry from its config.
func NewVariant(ctx context.Context, cfg BackendConfig) (Variant, error) {
	var (
		m   model.BaseChatModel
		err error
	)
	switch cfg.Kind {
	case "ollama":
		m, err = newOllama(ctx, cfg)
	case "openai":
		m, err = newOpenAI(ctx, cfg)
	case "azure":
		m, err = newAzure(ctx, cfg)
	case "gemini":
		m, err = newGemini(ctx, cfg)
	case "extractive":
		m = NewExtractive()
	default:
		return Variant{}, fmt.Errorf("%w: unknown generation backend %q", qa.ErrInvalidParameters, cfg.Kind)
	}
	if err != nil {
		return Variant{}, err
	}
	return Variant{Name: cfg.Kind, Model: m}, nil
}

// newOllama constructs a chat model backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg BackendConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	v, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		BaseURL: baseURL,
		Model:   cfg.Model,
	})
	return v, err
}

// newOpenAI constructs a chat model backed by the OpenAI API.
func newOpenAI(ctx context.Context, cfg BackendConfig) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer: api key is required for openai backend")
	}
	v, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	})
	return v, err
}

// newAzure constructs a chat model backed by Azure OpenAI Service. Model
// holds the deployment name.
func newAzure(ctx context.Context, cfg BackendConfig) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer: api key is required for azure backend")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("answer: base_url (Azure endpoint) is required for azure backend")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("answer: model (Azure deployment) is required for azure backend")
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		ByAzure:    true,
		APIVersion: apiVersion,
		// Use the deployment name as-is — the default mapper strips
		// dots/colons which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
}

// newGemini constructs a chat model backed by Google Gemini.
func newGemini(ctx context.Context, cfg BackendConfig) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer: api key is required for gemini backend")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: failed to create Gemini client: %w", err)
	}
	return einogemini.NewChatModel(ctx, &einogemini.Config{ //nolint:wrapcheck // constructor passthrough
		Client: client,
		Model:  cfg.Model,
	})
}
