package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mahmoudramadan155/qa-queue-service/internal/chunker"
	"github.com/mahmoudramadan155/qa-queue-service/internal/index"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// hashEmbedder derives a small deterministic vector from each text, so
// ingest tests exercise real vectors without a model server.
type hashEmbedder struct {
	calls int
	fail  bool
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.fail {
		return nil, qa.ErrEmbeddingUnavailable
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 4)
		for j, r := range t {
			v[j%4] += float32(r % 13)
		}
		out[i] = v
	}
	return out, nil
}

// newTestPipeline wires a pipeline over in-memory collaborators.
func newTestPipeline(t *testing.T, emb *hashEmbedder) (*Pipeline, store.Store, index.Index) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	idx := index.NewMemoryIndex()
	p, err := NewPipeline(emb, idx, st, Config{}, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, st, idx
}

func Test_Ingest_StoresChunksAndIndexesVectors(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	p, st, idx := newTestPipeline(t, emb)
	ctx := context.Background()

	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	doc, created, err := p.Ingest(ctx, "owner1", "fox.txt", []byte(content))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !created {
		t.Fatal("first upload should create a document")
	}
	if doc.ChunkCount < 2 {
		t.Fatalf("expected multiple chunks, got %d", doc.ChunkCount)
	}

	docs, err := st.ListDocuments(ctx, "owner1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("document not persisted: %v", docs)
	}

	vecs, err := emb.Embed(ctx, []string{"The quick brown fox"})
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	hits, err := idx.Search(ctx, "owner1", vecs[0], 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("ingested chunks not searchable")
	}

	texts, err := st.ChunkTexts(ctx, "owner1", []string{hits[0].ChunkID})
	if err != nil {
		t.Fatalf("chunk texts: %v", err)
	}
	if texts[hits[0].ChunkID] == "" {
		t.Fatal("indexed chunk id does not resolve to stored text")
	}
}

func Test_Ingest_ZeroConfigUsesChunkerDefaults(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	p, _, _ := newTestPipeline(t, emb)

	if p.cfg.Chunking.TargetSize != chunker.DefaultTargetSize || p.cfg.Chunking.Overlap != chunker.DefaultOverlap {
		t.Fatalf("zero-value chunking config not normalized: %+v", p.cfg.Chunking)
	}

	// A zero-value config must accept documents, not reject them as
	// invalid parameters.
	doc, created, err := p.Ingest(context.Background(), "owner1", "note.txt", []byte("short note"))
	if err != nil {
		t.Fatalf("ingest with default config: %v", err)
	}
	if !created || doc.ChunkCount != 1 {
		t.Fatalf("unexpected outcome: created=%v chunks=%d", created, doc.ChunkCount)
	}
}

func Test_Ingest_DeduplicatesIdenticalContent(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	p, _, _ := newTestPipeline(t, emb)
	ctx := context.Background()

	content := []byte(strings.Repeat("same content here. ", 30))
	first, created, err := p.Ingest(ctx, "owner1", "a.txt", content)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if !created {
		t.Fatal("first upload should create")
	}
	embedCalls := emb.calls

	second, created, err := p.Ingest(ctx, "owner1", "renamed.txt", content)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if created {
		t.Fatal("identical content should deduplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("dedup returned a different document: %s vs %s", second.ID, first.ID)
	}
	if emb.calls != embedCalls {
		t.Error("duplicate upload re-embedded content")
	}
}

func Test_Ingest_SameContentDifferentOwnersIsNotADuplicate(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	p, _, _ := newTestPipeline(t, emb)
	ctx := context.Background()

	content := []byte(strings.Repeat("shared content. ", 30))
	a, _, err := p.Ingest(ctx, "owner1", "a.txt", content)
	if err != nil {
		t.Fatalf("owner1 ingest: %v", err)
	}
	b, created, err := p.Ingest(ctx, "owner2", "b.txt", content)
	if err != nil {
		t.Fatalf("owner2 ingest: %v", err)
	}
	if !created || b.ID == a.ID {
		t.Fatalf("dedup crossed owners: %+v vs %+v", a, b)
	}
}

func Test_Ingest_RejectsEmptyDocument(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPipeline(t, &hashEmbedder{})

	_, _, err := p.Ingest(context.Background(), "owner1", "empty.txt", []byte("   \n  "))
	if !errors.Is(err, qa.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func Test_Ingest_EnforcesMaxChunks(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	p, err := NewPipeline(emb, index.NewMemoryIndex(), st, Config{MaxChunks: 2}, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	content := []byte(strings.Repeat("x", 5000))
	_, _, err = p.Ingest(context.Background(), "owner1", "big.txt", content)
	if !errors.Is(err, qa.ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func Test_Ingest_EmbeddingFailureLeavesNoRows(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{fail: true}
	p, st, _ := newTestPipeline(t, emb)
	ctx := context.Background()

	_, _, err := p.Ingest(ctx, "owner1", "doc.txt", []byte(strings.Repeat("text. ", 50)))
	if !errors.Is(err, qa.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}

	docs, err := st.ListDocuments(ctx, "owner1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("failed ingest left rows behind: %v", docs)
	}
}

func Test_Ingest_DeleteRemovesStoreAndIndex(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	p, st, idx := newTestPipeline(t, emb)
	ctx := context.Background()

	doc, _, err := p.Ingest(ctx, "owner1", "doc.txt", []byte(strings.Repeat("delete me. ", 40)))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	found, err := p.Delete(ctx, "owner1", doc.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !found {
		t.Fatal("delete reported missing for existing document")
	}

	got, err := st.GetDocument(ctx, "owner1", doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("document survived delete")
	}

	vecs, _ := emb.Embed(ctx, []string{"delete me"})
	hits, err := idx.Search(ctx, "owner1", vecs[0], 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("index entries survived delete: %v", hits)
	}

	found, err = p.Delete(ctx, "owner1", doc.ID)
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if found {
		t.Fatal("repeat delete reported found")
	}
}

func Test_Ingest_WipeClearsOwner(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	p, st, idx := newTestPipeline(t, emb)
	ctx := context.Background()

	if _, _, err := p.Ingest(ctx, "owner1", "a.txt", []byte(strings.Repeat("alpha. ", 40))); err != nil {
		t.Fatalf("ingest a: %v", err)
	}
	if _, _, err := p.Ingest(ctx, "owner2", "b.txt", []byte(strings.Repeat("bravo. ", 40))); err != nil {
		t.Fatalf("ingest b: %v", err)
	}

	if err := p.Wipe(ctx, "owner1"); err != nil {
		t.Fatalf("wipe: %v", err)
	}

	docs, err := st.ListDocuments(ctx, "owner1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("wipe left documents: %v", docs)
	}

	vecs, _ := emb.Embed(ctx, []string{"bravo"})
	hits, err := idx.Search(ctx, "owner2", vecs[0], 5)
	if err != nil {
		t.Fatalf("search owner2: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("wipe leaked into another owner")
	}
}
