// Package embedder provides implementations of the Embedder capability for
// converting text into dense vector embeddings. Each implementation talks to
// a different backend (Ollama, OpenAI, Azure OpenAI) via plain HTTP — no
// additional SDK dependencies are required.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// Embedder converts text into fixed-length dense vector embeddings.
// Implementations must be deterministic for identical text and model
// configuration, and safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// defaultRetryBackoff is the pause before the single bounded retry.
const defaultRetryBackoff = 500 * time.Millisecond

// retrying decorates an Embedder with one bounded retry with backoff. After
// the retry is spent the failure surfaces as qa.ErrEmbeddingUnavailable; the
// pipeline never retries indefinitely.
type retrying struct {
	inner   Embedder
	backoff time.Duration
}

// WithRetry wraps e so that a single backend failure is retried once after a
// short backoff. Context cancellation is never retried.
func WithRetry(e Embedder, backoff time.Duration) Embedder {
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &retrying{inner: e, backoff: backoff}
}

// Embed delegates to the wrapped embedder, retrying once on failure.
func (r *retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.inner.Embed(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("embedder: %v: %w", ctxErr, qa.ErrEmbeddingUnavailable)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("embedder: %v: %w", ctx.Err(), qa.ErrEmbeddingUnavailable)
	case <-time.After(r.backoff):
	}

	vecs, retryErr := r.inner.Embed(ctx, texts)
	if retryErr == nil {
		return vecs, nil
	}
	return nil, fmt.Errorf("embedder: retry exhausted: %v: %w", errors.Join(err, retryErr), qa.ErrEmbeddingUnavailable)
}
