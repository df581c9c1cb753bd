package index

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is the in-process backend: per-owner buckets of vectors
// searched by brute-force cosine similarity. It is the default for
// development and single-node deployments and the reference implementation
// the other backends are tested against.
type MemoryIndex struct {
	mu     sync.RWMutex
	owners map[string]*memoryBucket
}

// memoryBucket holds one owner's points behind its own lock, so searches
// for one owner are not serialized against writes for another.
type memoryBucket struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
}

type memoryPoint struct {
	documentID string
	seq        int
	vector     []float32
}

// NewMemoryIndex returns an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{owners: make(map[string]*memoryBucket)}
}

// bucket returns the owner's bucket, creating it when create is set.
func (m *MemoryIndex) bucket(ownerID string, create bool) *memoryBucket {
	m.mu.RLock()
	b := m.owners[ownerID]
	m.mu.RUnlock()
	if b != nil || !create {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.owners[ownerID]; b == nil {
		b = &memoryBucket{points: make(map[string]memoryPoint)}
		m.owners[ownerID] = b
	}
	return b
}

// Add upserts points into the owner's bucket. Vectors are copied so later
// mutation of the caller's slice cannot corrupt stored state.
func (m *MemoryIndex) Add(_ context.Context, ownerID string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	b := m.bucket(ownerID, true)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		b.points[p.ChunkID] = memoryPoint{
			documentID: p.DocumentID,
			seq:        p.Seq,
			vector:     vec,
		}
	}
	return nil
}

// Search scores every point in the owner's bucket against the query vector
// and returns the top k. The query-text hint is ignored here.
func (m *MemoryIndex) Search(_ context.Context, ownerID string, vector []float32, k int, _ ...SearchOption) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	b := m.bucket(ownerID, false)
	if b == nil {
		return nil, nil
	}
	b.mu.RLock()
	hits := make([]Hit, 0, len(b.points))
	for id, p := range b.points {
		hits = append(hits, Hit{
			ChunkID:    id,
			DocumentID: p.documentID,
			Seq:        p.seq,
			Score:      cosine(vector, p.vector),
		})
	}
	b.mu.RUnlock()

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument removes every point whose parent is documentID.
func (m *MemoryIndex) DeleteDocument(_ context.Context, ownerID, documentID string) error {
	b := m.bucket(ownerID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, p := range b.points {
		if p.documentID == documentID {
			delete(b.points, id)
		}
	}
	return nil
}

// DeleteChunks removes the named chunks; unknown ids are ignored.
func (m *MemoryIndex) DeleteChunks(_ context.Context, ownerID string, chunkIDs []string) error {
	b := m.bucket(ownerID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range chunkIDs {
		delete(b.points, id)
	}
	return nil
}

// DeleteOwner drops the owner's bucket entirely.
func (m *MemoryIndex) DeleteOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owners, ownerID)
	return nil
}

// Close is a no-op for the in-process backend.
func (m *MemoryIndex) Close() error { return nil }

// sortHits orders hits by descending score; ties break by document id then
// chunk position so results are stable across runs.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].Seq < hits[j].Seq
	})
}
