package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// Payload keys stored with every point. Owner and document ids are indexed
// server-side so deletes and owner-scoped searches run as filters.
const (
	payloadOwnerID    = "owner_id"
	payloadDocumentID = "document_id"
	payloadChunkID    = "chunk_id"
	payloadSeq        = "seq"
)

// QdrantConfig holds connection parameters for a Qdrant-backed index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index backed by a shared Qdrant collection. All
// owners live in one collection; isolation is enforced by an owner_id
// payload filter on every query and delete.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection
// exists (creating it if necessary).
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", unavailable(err))
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, unavailable(err))
	}

	return nil
}

// Add upserts a batch of points. Point ids are derived deterministically
// from the chunk id, so re-ingesting the same chunk overwrites in place.
func (s *QdrantIndex) Add(ctx context.Context, ownerID string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	upsert := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		upsert = append(upsert, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(p.ChunkID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadOwnerID:    ownerID,
				payloadDocumentID: p.DocumentID,
				payloadChunkID:    p.ChunkID,
				payloadSeq:        int64(p.Seq),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         upsert,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", unavailable(err))
	}

	return nil
}

// Search performs a cosine similarity search restricted to the owner's
// points and returns the top-k results. The query-text hint is ignored;
// recall here is purely vector-based.
func (s *QdrantIndex) Search(ctx context.Context, ownerID string, vector []float32, k int, _ ...SearchOption) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         ownerFilter(ownerID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", unavailable(err))
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		h := Hit{Score: r.Score}
		if p := r.Payload; p != nil {
			if v, ok := p[payloadChunkID]; ok {
				h.ChunkID = v.GetStringValue()
			}
			if v, ok := p[payloadDocumentID]; ok {
				h.DocumentID = v.GetStringValue()
			}
			if v, ok := p[payloadSeq]; ok {
				h.Seq = int(v.GetIntegerValue())
			}
		}
		hits = append(hits, h)
	}

	// Qdrant orders by score; re-sorting pins down tie order.
	sortHits(hits)
	return hits, nil
}

// DeleteDocument removes every point of the owner's document via a payload
// filter, so it needs no chunk id listing.
func (s *QdrantIndex) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	filter := ownerFilter(ownerID)
	filter.Must = append(filter.Must, qdrant.NewMatch(payloadDocumentID, documentID))
	return s.deleteByFilter(ctx, filter)
}

// DeleteChunks removes the named chunks for the owner.
func (s *QdrantIndex) DeleteChunks(ctx context.Context, ownerID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	filter := ownerFilter(ownerID)
	filter.Must = append(filter.Must, qdrant.NewMatchKeywords(payloadChunkID, chunkIDs...))
	return s.deleteByFilter(ctx, filter)
}

// DeleteOwner wipes all of the owner's points from the shared collection.
func (s *QdrantIndex) DeleteOwner(ctx context.Context, ownerID string) error {
	return s.deleteByFilter(ctx, ownerFilter(ownerID))
}

func (s *QdrantIndex) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", unavailable(err))
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// Client exposes the underlying gRPC client for readiness probes.
func (s *QdrantIndex) Client() *qdrant.Client {
	return s.client
}

// ownerFilter builds the isolation filter every query and delete carries.
func ownerFilter(ownerID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadOwnerID, ownerID)},
	}
}

// pointUUID maps a chunk id onto a stable UUID acceptable as a Qdrant point
// id. SHA-1 name-based UUIDs keep the mapping deterministic across restarts.
func pointUUID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// unavailable tags transport-level failures so callers can distinguish an
// unreachable index from bad input.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", qa.ErrIndexUnavailable, err)
}
