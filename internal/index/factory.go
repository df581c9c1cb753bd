package index

import (
	"context"
	"fmt"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// Config selects and parameterizes the index backend. The backend is chosen
// once at startup; there is no runtime fallback between backends.
type Config struct {
	// Backend is "memory" (default), "qdrant", or "bleve".
	Backend string `yaml:"backend"`

	// Dimensions is the vector size the index must accept. Required for
	// the qdrant backend, informational for the others.
	Dimensions uint64 `yaml:"dimensions"`

	// Path is the on-disk location of the bleve backend's inverted index.
	// Empty means memory-only.
	Path string `yaml:"path"`

	// Qdrant holds qdrant connection settings.
	Qdrant QdrantSettings `yaml:"qdrant"`
}

// QdrantSettings is the config-file shape of the qdrant connection block.
type QdrantSettings struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
}

// New builds the configured index backend. An unknown backend name is a
// configuration error, not a fallback to the default. Backends with a
// backing store (qdrant, bleve) are wrapped with one bounded retry on
// infrastructure failure; the in-process backend cannot fail and is
// returned bare.
func New(ctx context.Context, cfg Config) (Index, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "bleve":
		idx, err := NewBleveIndex(cfg.Path)
		if err != nil {
			return nil, err
		}
		return WithRetry(idx, 0), nil
	case "qdrant":
		collection := cfg.Qdrant.Collection
		if collection == "" {
			collection = "qa_chunks"
		}
		idx, err := NewQdrantIndex(ctx, &QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: collection,
			VectorSize: cfg.Dimensions,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, err
		}
		return WithRetry(idx, 0), nil
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", qa.ErrInvalidParameters, cfg.Backend)
	}
}
