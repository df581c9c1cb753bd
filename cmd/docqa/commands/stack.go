package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/answer"
	"github.com/mahmoudramadan155/qa-queue-service/internal/chunker"
	"github.com/mahmoudramadan155/qa-queue-service/internal/embedder"
	"github.com/mahmoudramadan155/qa-queue-service/internal/index"
	"github.com/mahmoudramadan155/qa-queue-service/internal/ingest"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/retrieval"
	"github.com/mahmoudramadan155/qa-queue-service/internal/session"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// stack bundles the wired pipeline components shared by the CLI commands
// and the HTTP server.
type stack struct {
	embedder embedder.Embedder
	index    index.Index
	store    *store.SQLiteStore
	pipeline *ingest.Pipeline
	runner   *session.Runner
	log      *slog.Logger
}

// close releases the stack's backends in reverse construction order.
func (s *stack) close() {
	if s.index != nil {
		_ = s.index.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// buildStack wires the full pipeline from environment configuration:
// embedder → index → store → ingest pipeline → retrieval engine →
// generation chain → session runner.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	embCfg := embedderConfigFromEnv()
	embedder.Validate(embCfg, log)

	emb, err := embedder.New(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")),
		slog.Int("dimensions", embCfg.EffectiveDimensions()),
	)

	idx, err := index.New(ctx, indexConfigFromEnv(embCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise vector index: %w", err)
	}
	log.Info("vector index ready", slog.String("backend", getEnvOrDefault("DOCQA_INDEX_BACKEND", "memory")))

	dbPath := os.Getenv("DOCQA_DB")
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}
	log.Info("store opened", slog.String("path", dbPath))

	pipeline, err := ingest.NewPipeline(emb, idx, st, ingestConfigFromEnv(), log)
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, fmt.Errorf("failed to create ingest pipeline: %w", err)
	}

	chainCfgs, err := chainConfigsFromEnv()
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, err
	}
	chain, err := answer.NewChain(ctx, chainCfgs, getEnvDuration("DOCQA_GENERATION_TIMEOUT", answer.DefaultTryTimeout), log)
	if err != nil {
		_ = idx.Close()
		_ = st.Close()
		return nil, fmt.Errorf("failed to build generation chain: %w", err)
	}
	log.Info("generation chain ready", slog.Any("variants", chain.Variants()))

	engine := retrieval.NewEngine(emb, idx, st, log)
	runner := session.NewRunner(engine, chain, st, log)

	return &stack{
		embedder: emb,
		index:    idx,
		store:    st,
		pipeline: pipeline,
		runner:   runner,
		log:      log,
	}, nil
}

// embedderConfigFromEnv builds the embedder config from EMBEDDING_* env vars.
func embedderConfigFromEnv() embedder.Config {
	return embedder.Config{
		Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "ollama"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Model:      os.Getenv("EMBEDDING_MODEL"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		APIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
	}
}

// indexConfigFromEnv builds the index config from DOCQA_INDEX_* and
// QDRANT_* env vars. The vector size always follows the embedder config.
func indexConfigFromEnv(embCfg embedder.Config) index.Config {
	return index.Config{
		Backend:    getEnvOrDefault("DOCQA_INDEX_BACKEND", "memory"),
		Dimensions: uint64(embCfg.EffectiveDimensions()), //nolint:gosec // dimensions are bounded
		Path:       os.Getenv("DOCQA_INDEX_PATH"),
		Qdrant: index.QdrantSettings{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "qa_chunks"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
	}
}

// ingestConfigFromEnv builds the chunking config from DOCQA_CHUNK_* env vars.
func ingestConfigFromEnv() ingest.Config {
	return ingest.Config{
		Chunking: chunker.Params{
			TargetSize: getEnvInt("DOCQA_CHUNK_SIZE", chunker.DefaultTargetSize),
			Overlap:    getEnvInt("DOCQA_CHUNK_OVERLAP", chunker.DefaultOverlap),
		},
		MaxChunks: getEnvInt("DOCQA_MAX_CHUNKS", 0),
	}
}

// chainConfigsFromEnv builds the ordered generation backend list from
// MODEL_PROVIDER (comma-separated). An unknown provider name is a
// configuration error, not a silent skip — a typo must not quietly degrade
// the chain to extractive-only. The extractive fallback terminal is
// appended by the chain itself.
func chainConfigsFromEnv() ([]answer.BackendConfig, error) {
	providers := strings.Split(getEnvOrDefault("MODEL_PROVIDER", "ollama"), ",")

	cfgs := make([]answer.BackendConfig, 0, len(providers))
	for _, p := range providers {
		name := strings.TrimSpace(strings.ToLower(p))
		switch name {
		case "":
			continue
		case "ollama":
			cfgs = append(cfgs, answer.BackendConfig{
				Kind:    "ollama",
				Model:   getEnvOrDefault("OLLAMA_MODEL", "llama3"),
				BaseURL: os.Getenv("OLLAMA_HOST"),
			})
		case "openai":
			cfgs = append(cfgs, answer.BackendConfig{
				Kind:   "openai",
				Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
				APIKey: os.Getenv("OPENAI_API_KEY"),
			})
		case "azure":
			cfgs = append(cfgs, answer.BackendConfig{
				Kind:       "azure",
				Model:      os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
				BaseURL:    os.Getenv("AZURE_OPENAI_ENDPOINT"),
				APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
				APIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
			})
		case "gemini":
			cfgs = append(cfgs, answer.BackendConfig{
				Kind:   "gemini",
				Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
				APIKey: os.Getenv("GOOGLE_API_KEY"),
			})
		case "extractive":
			cfgs = append(cfgs, answer.BackendConfig{Kind: "extractive"})
		default:
			return nil, fmt.Errorf("%w: unknown model provider %q in MODEL_PROVIDER", qa.ErrInvalidParameters, name)
		}
	}
	return cfgs, nil
}

// getEnvOrDefault returns the env var value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvDuration returns the env var parsed as a time.Duration ("90s",
// "2m"), or fallback when unset or unparsable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
