package session

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mahmoudramadan155/qa-queue-service/internal/answer"
	"github.com/mahmoudramadan155/qa-queue-service/internal/index"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/retrieval"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// hashEmbedder mirrors the ingest test double: deterministic 4-dim vectors.
type hashEmbedder struct {
	fail bool
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
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

// scriptedModel streams a fixed fragment list.
type scriptedModel struct {
	fragments []string
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(strings.Join(m.fragments, ""), nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, len(m.fragments))
	for i, f := range m.fragments {
		msgs[i] = schema.AssistantMessage(f, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// newTestRunner wires a runner over in-memory collaborators with one
// seeded document chunk.
func newTestRunner(t *testing.T, emb *hashEmbedder, m model.BaseChatModel) (*Runner, *store.SQLiteStore) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	idx := index.NewMemoryIndex()
	ctx := context.Background()

	text := "The warranty period is two years."
	doc := qa.Document{ID: "doc1", OwnerID: "owner1", Filename: "w.txt", Fingerprint: "h", ChunkCount: 1, Size: len(text)}
	if err := st.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	chunk := qa.Chunk{ID: "c1", DocumentID: "doc1", OwnerID: "owner1", Seq: 0, Text: text, Fingerprint: "ch", TargetSize: 1000, Overlap: 200}
	if err := st.InsertChunks(ctx, []qa.Chunk{chunk}); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}
	vecs, err := emb.Embed(ctx, []string{text})
	if err == nil {
		err = idx.Add(ctx, "owner1", []index.Point{
			{ChunkID: "c1", DocumentID: "doc1", Seq: 0, Vector: vecs[0], Text: text},
		})
	}
	if err != nil && !emb.fail {
		t.Fatalf("seed index: %v", err)
	}

	engine := retrieval.NewEngine(emb, idx, st, nil)
	chain := answer.NewChainFromVariants([]answer.Variant{{Name: "scripted", Model: m}}, 0, nil)
	return NewRunner(engine, chain, st, nil), st
}

func Test_Session_EmitsEventsInOrder(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	r, st := newTestRunner(t, emb, &scriptedModel{fragments: []string{"Two ", "years."}})

	s := r.Stream(context.Background(), "owner1", "How long is the warranty?", Options{})

	var events []qa.StreamEvent
	for ev := range s.Events() {
		events = append(events, ev)
	}

	if len(events) < 4 {
		t.Fatalf("too few events: %+v", events)
	}
	if events[0].Type != qa.EventStatus || events[0].Message != "searching" {
		t.Errorf("event 0: %+v", events[0])
	}
	if events[1].Type != qa.EventStatus || events[1].Message != "generating" {
		t.Errorf("event 1: %+v", events[1])
	}

	var answerText strings.Builder
	for _, ev := range events[2 : len(events)-1] {
		if ev.Type != qa.EventChunk {
			t.Errorf("expected chunk event, got %+v", ev)
		}
		answerText.WriteString(ev.Content)
	}
	if answerText.String() != "Two years." {
		t.Errorf("reassembled answer = %q", answerText.String())
	}

	last := events[len(events)-1]
	if last.Type != qa.EventComplete || last.ChunksUsed != 1 {
		t.Errorf("terminal event: %+v", last)
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %v", s.State())
	}

	recs, err := st.RecentQueries(context.Background(), "owner1", 10)
	if err != nil {
		t.Fatalf("recent queries: %v", err)
	}
	if len(recs) != 1 || recs[0].Answer != "Two years." {
		t.Fatalf("history record missing or wrong: %+v", recs)
	}
}

func Test_Session_RetrievalFailureEmitsSingleErrorEvent(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{fail: true}
	r, st := newTestRunner(t, emb, &scriptedModel{fragments: []string{"unused"}})

	s := r.Stream(context.Background(), "owner1", "question?", Options{})

	var events []qa.StreamEvent
	for ev := range s.Events() {
		events = append(events, ev)
	}

	last := events[len(events)-1]
	if last.Type != qa.EventError {
		t.Fatalf("expected terminal error event, got %+v", last)
	}
	if last.Kind != "embedding_unavailable" {
		t.Errorf("error kind = %q", last.Kind)
	}
	if last.Message == "" {
		t.Error("terminal error event carries no message")
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Type == qa.EventError {
			t.Errorf("more than one error event: %+v", events)
		}
	}
	if s.State() != StateErrored {
		t.Errorf("state = %v", s.State())
	}

	recs, err := st.RecentQueries(context.Background(), "owner1", 10)
	if err != nil {
		t.Fatalf("recent queries: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("failed session wrote history: %+v", recs)
	}
}

func Test_Session_CancellationStopsEvents(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}

	// Many more fragments than the event buffer holds, so the producer is
	// still blocked on emit when the consumer cancels.
	fragments := make([]string, 100)
	for i := range fragments {
		fragments[i] = "x"
	}
	r, st := newTestRunner(t, emb, &scriptedModel{fragments: fragments})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := r.Stream(ctx, "owner1", "How long is the warranty?", Options{})

	var chunks int
	var sawComplete bool
	for ev := range s.Events() {
		if ev.Type == qa.EventChunk {
			chunks++
			if chunks == 2 {
				cancel()
			}
		}
		if ev.Type == qa.EventComplete {
			sawComplete = true
		}
	}

	if sawComplete {
		t.Error("cancelled session emitted a complete event")
	}
	if s.State() != StateCancelled {
		t.Errorf("state = %v", s.State())
	}

	recs, err := st.RecentQueries(context.Background(), "owner1", 10)
	if err != nil {
		t.Fatalf("recent queries: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("cancelled session wrote history: %+v", recs)
	}
}

func Test_Session_AskSharesTheSamePath(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	r, st := newTestRunner(t, emb, &scriptedModel{fragments: []string{"Two ", "years."}})

	res, err := r.Ask(context.Background(), "owner1", "How long is the warranty?", Options{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "Two years." || res.Variant != "scripted" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.ChunkIDs) != 1 || res.ChunkIDs[0] != "c1" {
		t.Errorf("chunk ids: %v", res.ChunkIDs)
	}
	if res.Elapsed <= 0 {
		t.Errorf("elapsed not measured: %v", res.Elapsed)
	}

	recs, err := st.RecentQueries(context.Background(), "owner1", 10)
	if err != nil {
		t.Fatalf("recent queries: %v", err)
	}
	if len(recs) != 1 || recs[0].ChunksUsed != 1 {
		t.Fatalf("history record missing or wrong: %+v", recs)
	}
}

func Test_Session_EmptyIndexStillAnswers(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engine := retrieval.NewEngine(emb, index.NewMemoryIndex(), st, nil)
	chain := answer.NewChainFromVariants([]answer.Variant{
		{Name: "extractive", Model: answer.NewExtractive()},
	}, 0, nil)
	r := NewRunner(engine, chain, st, nil)

	res, err := r.Ask(context.Background(), "newcomer", "anything?", Options{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(res.Answer, "don't have enough information") {
		t.Fatalf("expected refusal answer, got %q", res.Answer)
	}
	if len(res.ChunkIDs) != 0 {
		t.Errorf("chunk ids for empty index: %v", res.ChunkIDs)
	}

	// elapsed may round to zero here; only the record's presence matters
	recs, err := st.RecentQueries(context.Background(), "newcomer", 10)
	if err != nil {
		t.Fatalf("recent queries: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("refusal answer not logged: %+v", recs)
	}
}
