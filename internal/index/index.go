// Package index provides the owner-scoped vector index capability used by
// the retrieval pipeline, with three interchangeable backends: an in-process
// brute-force store, a Qdrant server collection, and a Bleve inverted-index
// hybrid. All backends satisfy one contract and are behaviorally
// substitutable; the backend is selected once at startup by the factory.
//
// Owner isolation is a correctness property, not a filter convenience: every
// operation is scoped by owner id at the storage-query level, so one owner's
// vectors can never appear in — or influence the scores of — another owner's
// results.
package index

import (
	"context"
	"math"
)

// Point is one embedded chunk to be stored in the index.
type Point struct {
	// ChunkID is the stable chunk identifier. Re-adding the same id
	// overwrites the stored vector rather than duplicating it.
	ChunkID string

	// DocumentID is the chunk's parent document, used for cascading delete.
	DocumentID string

	// Seq is the chunk's position within its document.
	Seq int

	// Vector is the fixed-length embedding.
	Vector []float32

	// Text is the chunk text, stored so backends that index content (Bleve)
	// can use it for candidate recall, and so search backends can return a
	// preview without a store round-trip.
	Text string
}

// Hit is one search result.
type Hit struct {
	// ChunkID identifies the matching chunk.
	ChunkID string

	// DocumentID is the chunk's parent document.
	DocumentID string

	// Seq is the chunk's position within its document.
	Seq int

	// Score is the similarity score, higher is more relevant. Cosine
	// similarity is the reference metric; callers must not assume a fixed
	// scale across backends, only relative ordering within one call.
	Score float32
}

// SearchOptions carries optional per-call search hints.
type SearchOptions struct {
	// QueryText is the raw question text. Backends with an inverted index
	// use it for candidate recall; pure vector backends ignore it.
	QueryText string
}

// SearchOption mutates SearchOptions.
type SearchOption func(*SearchOptions)

// WithQueryText supplies the raw question text alongside the query vector.
func WithQueryText(text string) SearchOption {
	return func(o *SearchOptions) { o.QueryText = text }
}

// Index is the owner-scoped vector index contract. Implementations must be
// safe for concurrent use; reads for one owner are never blocked by writes
// to a different owner's data. A backend that cannot reach its store fails
// fast with qa.ErrIndexUnavailable — it never substitutes another backend.
type Index interface {
	// Add upserts a batch of points for the given owner. Re-adding an
	// existing chunk id overwrites its vector.
	Add(ctx context.Context, ownerID string, points []Point) error

	// Search returns the up-to-k most similar points belonging to ownerID,
	// ordered by descending score. It never returns another owner's points.
	Search(ctx context.Context, ownerID string, vector []float32, k int, opts ...SearchOption) ([]Hit, error)

	// DeleteDocument removes all of a document's points for the given
	// owner. Deleting an unknown document is not an error.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error

	// DeleteChunks removes individual chunks for the given owner.
	// Unknown ids are ignored.
	DeleteChunks(ctx context.Context, ownerID string, chunkIDs []string) error

	// DeleteOwner wipes every point belonging to ownerID. Used for account
	// deletion; idempotent.
	DeleteOwner(ctx context.Context, ownerID string) error

	// Close releases any resources held by the index.
	Close() error
}

// applyOptions folds opts into a SearchOptions value.
func applyOptions(opts []SearchOption) SearchOptions {
	var o SearchOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero magnitude or the lengths differ.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
