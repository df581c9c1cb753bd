package embedder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// flakyEmbedder fails the first failures calls, then succeeds.
type flakyEmbedder struct {
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("backend down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func Test_WithRetry_SucceedsAfterOneFailure(t *testing.T) {
	t.Parallel()

	inner := &flakyEmbedder{failures: 1}
	e := WithRetry(inner, time.Millisecond)

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("want 2 vectors, got %d", len(vecs))
	}
	if inner.calls != 2 {
		t.Errorf("want exactly 2 calls (1 retry), got %d", inner.calls)
	}
}

func Test_WithRetry_SurfacesEmbeddingUnavailable(t *testing.T) {
	t.Parallel()

	inner := &flakyEmbedder{failures: 5}
	e := WithRetry(inner, time.Millisecond)

	_, err := e.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, qa.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("retry must be bounded to one — got %d calls", inner.calls)
	}
}

func Test_WithRetry_NoRetryOnCancelledContext(t *testing.T) {
	t.Parallel()

	inner := &flakyEmbedder{failures: 5}
	e := WithRetry(inner, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, []string{"a"})
	if !errors.Is(err, qa.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("cancelled context must not trigger a retry — got %d calls", inner.calls)
	}
}

func Test_Factory_UnknownBackendRejected(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Provider: "pinecone"})
	if !errors.Is(err, qa.ErrInvalidParameters) {
		t.Fatalf("want ErrInvalidParameters, got %v", err)
	}
}

func Test_Factory_Defaults(t *testing.T) {
	t.Parallel()

	if d := (Config{Provider: "ollama"}).EffectiveDimensions(); d != defaultOllamaDimensions {
		t.Errorf("ollama dimensions: want %d, got %d", defaultOllamaDimensions, d)
	}
	if d := (Config{Provider: "openai"}).EffectiveDimensions(); d != defaultOpenAIDimensions {
		t.Errorf("openai dimensions: want %d, got %d", defaultOpenAIDimensions, d)
	}
	if d := (Config{Provider: "openai", Dimensions: 3}).EffectiveDimensions(); d != 3 {
		t.Errorf("explicit dimensions: want 3, got %d", d)
	}
}
