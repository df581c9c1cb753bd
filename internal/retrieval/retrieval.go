// Package retrieval turns a question into a context bundle: it embeds the
// question, queries the owner's slice of the vector index, resolves the
// winning chunk ids back to text, and packs as much of the ranked context
// as fits the length budget.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mahmoudramadan155/qa-queue-service/internal/embedder"
	"github.com/mahmoudramadan155/qa-queue-service/internal/index"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

const (
	// DefaultK is the number of chunks requested from the index when the
	// caller does not override it.
	DefaultK = 5

	// MaxK caps caller-supplied k; requests beyond this return the cap,
	// not an error.
	MaxK = 20

	// DefaultMaxContextLen is the context length budget in characters.
	DefaultMaxContextLen = 4000
)

// TextResolver resolves chunk ids to their stored text. The store
// implements it.
type TextResolver interface {
	ChunkTexts(ctx context.Context, ownerID string, chunkIDs []string) (map[string]string, error)
}

// Params are the per-call retrieval knobs. Zero values select defaults.
type Params struct {
	// K is how many chunks to request from the index.
	K int

	// MaxContextLen is the character budget for the assembled context.
	MaxContextLen int
}

// normalized applies defaults and clamps.
func (p Params) normalized() Params {
	if p.K <= 0 {
		p.K = DefaultK
	}
	if p.K > MaxK {
		p.K = MaxK
	}
	if p.MaxContextLen <= 0 {
		p.MaxContextLen = DefaultMaxContextLen
	}
	return p
}

// Engine wires the embedding provider, the vector index, and the chunk text
// resolver into the retrieve operation.
type Engine struct {
	embedder embedder.Embedder
	index    index.Index
	texts    TextResolver
	log      *slog.Logger
}

// NewEngine builds a retrieval engine. A nil logger falls back to the
// default slog logger.
func NewEngine(emb embedder.Embedder, idx index.Index, texts TextResolver, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{embedder: emb, index: idx, texts: texts, log: log}
}

// Retrieve assembles the context bundle for a question. An empty or
// whitespace question is rejected; an empty index yields an empty bundle
// and no error. Collaborator failures (embedding, index) propagate
// unchanged so callers can map them onto the error taxonomy.
func (e *Engine) Retrieve(ctx context.Context, ownerID, question string, p Params) (qa.ContextBundle, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return qa.ContextBundle{}, fmt.Errorf("%w: question must not be empty", qa.ErrInvalidParameters)
	}
	p = p.normalized()

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return qa.ContextBundle{}, err
	}
	if len(vectors) != 1 {
		return qa.ContextBundle{}, fmt.Errorf("%w: embedding returned %d vectors for one input", qa.ErrEmbeddingUnavailable, len(vectors))
	}

	hits, err := e.index.Search(ctx, ownerID, vectors[0], p.K, index.WithQueryText(question))
	if err != nil {
		return qa.ContextBundle{}, err
	}
	if len(hits) == 0 {
		e.log.DebugContext(ctx, "retrieval produced no hits", "owner", ownerID)
		return qa.ContextBundle{Question: question}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}
	texts, err := e.texts.ChunkTexts(ctx, ownerID, ids)
	if err != nil {
		return qa.ContextBundle{}, err
	}

	// Index backends order hits already; re-sorting pins the tie-break to
	// document order regardless of backend.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].Seq < hits[j].Seq
	})

	bundle := qa.ContextBundle{Question: question}
	for _, h := range hits {
		text, ok := texts[h.ChunkID]
		if !ok {
			// Index and store disagree; skip rather than fail the query.
			e.log.WarnContext(ctx, "chunk missing from store", "owner", ownerID, "chunk", h.ChunkID)
			continue
		}
		if bundle.Length+len(text) > p.MaxContextLen && len(bundle.Items) > 0 {
			break
		}
		bundle.Items = append(bundle.Items, qa.ContextItem{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Seq:        h.Seq,
			Text:       text,
			Score:      h.Score,
		})
		bundle.Length += len(text)
		if bundle.Length >= p.MaxContextLen {
			break
		}
	}

	e.log.DebugContext(ctx, "retrieval complete",
		"owner", ownerID,
		"hits", len(hits),
		"used", len(bundle.Items),
		"context_len", bundle.Length,
	)
	return bundle, nil
}
