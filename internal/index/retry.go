package index

import (
	"context"
	"errors"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// defaultRetryBackoff is the pause before the single bounded retry.
const defaultRetryBackoff = 500 * time.Millisecond

// retrying decorates an Index with one bounded retry with backoff on
// ErrIndexUnavailable. Caller errors and context cancellation are never
// retried; after the retry is spent the original failure surfaces.
type retrying struct {
	inner   Index
	backoff time.Duration
}

// WithRetry wraps idx so that a single infrastructure failure is retried
// once after a short backoff.
func WithRetry(idx Index, backoff time.Duration) Index {
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &retrying{inner: idx, backoff: backoff}
}

// retry runs op, repeating it once if it failed with ErrIndexUnavailable.
func (r *retrying) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !errors.Is(err, qa.ErrIndexUnavailable) || ctx.Err() != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(r.backoff):
	}
	if retryErr := op(); retryErr == nil {
		return nil
	}
	return err
}

func (r *retrying) Add(ctx context.Context, ownerID string, points []Point) error {
	return r.retry(ctx, func() error { return r.inner.Add(ctx, ownerID, points) })
}

func (r *retrying) Search(ctx context.Context, ownerID string, vector []float32, k int, opts ...SearchOption) ([]Hit, error) {
	var hits []Hit
	err := r.retry(ctx, func() error {
		var opErr error
		hits, opErr = r.inner.Search(ctx, ownerID, vector, k, opts...)
		return opErr
	})
	return hits, err
}

func (r *retrying) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	return r.retry(ctx, func() error { return r.inner.DeleteDocument(ctx, ownerID, documentID) })
}

func (r *retrying) DeleteChunks(ctx context.Context, ownerID string, chunkIDs []string) error {
	return r.retry(ctx, func() error { return r.inner.DeleteChunks(ctx, ownerID, chunkIDs) })
}

func (r *retrying) DeleteOwner(ctx context.Context, ownerID string) error {
	return r.retry(ctx, func() error { return r.inner.DeleteOwner(ctx, ownerID) })
}

func (r *retrying) Close() error { return r.inner.Close() }

// Unwrap exposes the decorated backend, for callers that need the concrete
// type (readiness probes).
func (r *retrying) Unwrap() Index { return r.inner }

// Backend returns idx with any retry decoration removed.
func Backend(idx Index) Index {
	for {
		u, ok := idx.(interface{ Unwrap() Index })
		if !ok {
			return idx
		}
		idx = u.Unwrap()
	}
}
