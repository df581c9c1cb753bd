// Package ingest implements the document ingestion pipeline: fingerprint
// the upload, dedupe against the owner's existing documents, chunk, embed,
// persist, and index. It also owns the inverse paths — document deletion
// and whole-owner wipe — so store and index stay consistent.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mahmoudramadan155/qa-queue-service/internal/chunker"
	"github.com/mahmoudramadan155/qa-queue-service/internal/embedder"
	"github.com/mahmoudramadan155/qa-queue-service/internal/index"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// DefaultMaxChunks bounds how many chunks a single document may produce.
const DefaultMaxChunks = 1000

// Config holds the pipeline configuration.
type Config struct {
	// Chunking sets the chunker parameters. Zero values select the
	// chunker defaults.
	Chunking chunker.Params

	// MaxChunks rejects documents that would produce more chunks than
	// this. Defaults to DefaultMaxChunks if zero.
	MaxChunks int
}

// Pipeline orchestrates the chunk → embed → persist → index flow.
type Pipeline struct {
	embedder embedder.Embedder
	index    index.Index
	store    store.Store
	cfg      Config
	log      *slog.Logger

	// inflight serializes concurrent ingests of identical content for the
	// same owner, so one upload wins and the rest observe its result.
	inflight singleflight.Group
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(emb embedder.Embedder, idx index.Index, st store.Store, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("ingest: index must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	cfg.Chunking = cfg.Chunking.Normalized()
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{embedder: emb, index: idx, store: st, cfg: cfg, log: log}, nil
}

// ingestOutcome is what one singleflight execution produces.
type ingestOutcome struct {
	doc     qa.Document
	created bool
}

// Ingest processes one uploaded document for the owner. Re-uploading
// identical content returns the existing document with created=false; no
// chunks are re-embedded or re-indexed.
func (p *Pipeline) Ingest(ctx context.Context, ownerID, filename string, content []byte) (qa.Document, bool, error) {
	if ownerID == "" {
		return qa.Document{}, false, fmt.Errorf("%w: owner id must not be empty", qa.ErrInvalidParameters)
	}

	fingerprint := chunker.Fingerprint(string(content))
	key := ownerID + "|" + fingerprint

	v, err, _ := p.inflight.Do(key, func() (any, error) {
		return p.ingestOne(ctx, ownerID, filename, fingerprint, content)
	})
	if err != nil {
		return qa.Document{}, false, err
	}
	out := v.(*ingestOutcome)
	return out.doc, out.created, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, ownerID, filename, fingerprint string, content []byte) (*ingestOutcome, error) {
	existing, err := p.store.FindByFingerprint(ctx, ownerID, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		p.log.InfoContext(ctx, "duplicate upload deduplicated",
			"owner", ownerID, "document", existing.ID, "filename", filename)
		return &ingestOutcome{doc: *existing, created: false}, nil
	}

	chunks, err := chunker.Split(string(content), p.cfg.Chunking)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document has no extractable text", qa.ErrInvalidParameters)
	}
	if len(chunks) > p.cfg.MaxChunks {
		return nil, fmt.Errorf("%w: document produces %d chunks, limit is %d",
			qa.ErrInvalidParameters, len(chunks), p.cfg.MaxChunks)
	}

	docID := uuid.NewString()
	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].ID = chunkID(ownerID, fingerprint, chunks[i].Seq)
		chunks[i].DocumentID = docID
		chunks[i].OwnerID = ownerID
		texts[i] = chunks[i].Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedding returned %d vectors for %d chunks",
			qa.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}

	doc := qa.Document{
		ID:          docID,
		OwnerID:     ownerID,
		Filename:    filename,
		Fingerprint: fingerprint,
		ChunkCount:  len(chunks),
		Size:        len(content),
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		p.rollback(ctx, ownerID, docID)
		return nil, err
	}

	points := make([]index.Point, len(chunks))
	for i, c := range chunks {
		points[i] = index.Point{
			ChunkID:    c.ID,
			DocumentID: docID,
			Seq:        c.Seq,
			Vector:     vectors[i],
			Text:       c.Text,
		}
	}
	if err := p.index.Add(ctx, ownerID, points); err != nil {
		p.rollback(ctx, ownerID, docID)
		return nil, err
	}

	p.log.InfoContext(ctx, "document ingested",
		"owner", ownerID, "document", docID, "filename", filename, "chunks", len(chunks))
	return &ingestOutcome{doc: doc, created: true}, nil
}

// rollback removes the partially ingested document from the store so a
// failed ingest leaves no dangling rows. Best effort; the failure that
// triggered it is what surfaces to the caller.
func (p *Pipeline) rollback(ctx context.Context, ownerID, docID string) {
	if err := p.store.DeleteDocument(ctx, ownerID, docID); err != nil {
		p.log.WarnContext(ctx, "ingest rollback failed", "owner", ownerID, "document", docID, "error", err)
	}
}

// Delete removes one document from both the store and the index. It
// reports whether the document existed.
func (p *Pipeline) Delete(ctx context.Context, ownerID, documentID string) (bool, error) {
	doc, err := p.store.GetDocument(ctx, ownerID, documentID)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	if err := p.index.DeleteDocument(ctx, ownerID, documentID); err != nil {
		return true, err
	}
	if err := p.store.DeleteDocument(ctx, ownerID, documentID); err != nil {
		return true, err
	}
	p.log.InfoContext(ctx, "document deleted", "owner", ownerID, "document", documentID)
	return true, nil
}

// Wipe removes everything the owner has: documents, chunks, history, and
// index entries. Idempotent.
func (p *Pipeline) Wipe(ctx context.Context, ownerID string) error {
	if err := p.index.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}
	if err := p.store.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}
	p.log.InfoContext(ctx, "owner data wiped", "owner", ownerID)
	return nil
}

// chunkID derives a deterministic chunk id from the owner, the document
// fingerprint, and the chunk position, so re-ingests of identical content
// address the same index points.
func chunkID(ownerID, fingerprint string, seq int) string {
	h := sha256.Sum256([]byte(ownerID + "|" + fingerprint + "|" + strconv.Itoa(seq)))
	return fmt.Sprintf("%x", h[:16])
}
