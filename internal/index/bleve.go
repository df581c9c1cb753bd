package index

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// bleveCandidateFloor is the minimum candidate set requested from the
// inverted index before cosine rescoring; small requests starve the
// rescorer of vectors to rank.
const bleveCandidateFloor = 50

// rebuildPage is the scan page size when restoring the vector sidecar from
// a reopened on-disk index.
const rebuildPage = 1000

// BleveIndex is the hybrid backend: chunk text lives in a Bleve inverted
// index used for candidate recall, and vectors live in an in-process
// sidecar keyed by owner. A search first narrows to the owner's textual
// matches for the question, then rescores those candidates by cosine
// similarity, so rare exact terms survive even when the embedding misses
// them. Without a query-text hint it degrades to brute-force over the
// owner's vectors, identical to the memory backend.
//
// Vectors are also stored (unindexed) inside the Bleve documents, so an
// on-disk index reopened after a restart rebuilds the sidecar instead of
// recalling candidates it can no longer score.
type BleveIndex struct {
	index bleve.Index

	mu     sync.RWMutex
	owners map[string]map[string]memoryPoint
}

// NewBleveIndex creates or opens a Bleve-backed index at path. An empty
// path builds a memory-only index, used by tests and throwaway runs.
// Reopening an existing on-disk index restores the vector sidecar from the
// stored documents. If the field mapping changes, remove the index
// directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so question
	// terms match chunk terms verbatim.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("owner", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("document", keywordFieldMapping)
	// Stored for sidecar rebuild, never searched.
	seqFieldMapping := bleve.NewNumericFieldMapping()
	seqFieldMapping.Index = false
	docMapping.AddFieldMappingsAt("seq", seqFieldMapping)
	vectorFieldMapping := bleve.NewKeywordFieldMapping()
	vectorFieldMapping.Index = false
	vectorFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("vector", vectorFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	var (
		idx      bleve.Index
		err      error
		reopened bool
	)
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(im)
	default:
		if _, statErr := os.Stat(path); statErr == nil {
			idx, err = bleve.Open(path)
			reopened = true
		} else {
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bleve: failed to open index: %w", err)
	}

	b := &BleveIndex{
		index:  idx,
		owners: make(map[string]map[string]memoryPoint),
	}
	if reopened {
		if err := b.rebuildSidecar(); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	return b, nil
}

// rebuildSidecar scans every stored document and restores the in-process
// vector map, so a reopened index scores searches exactly as before the
// restart.
func (b *BleveIndex) rebuildSidecar() error {
	for from := 0; ; from += rebuildPage {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = rebuildPage
		req.From = from
		req.Fields = []string{"owner", "document", "seq", "vector"}

		results, err := b.index.Search(req)
		if err != nil {
			return fmt.Errorf("bleve: sidecar rebuild failed: %w", err)
		}
		for _, hit := range results.Hits {
			owner, _ := hit.Fields["owner"].(string)
			document, _ := hit.Fields["document"].(string)
			encoded, _ := hit.Fields["vector"].(string)
			seq, _ := hit.Fields["seq"].(float64)
			if owner == "" || encoded == "" {
				continue
			}
			vec, err := decodeVector(encoded)
			if err != nil {
				return fmt.Errorf("bleve: chunk %s: %w", hit.ID, err)
			}
			bucket := b.owners[owner]
			if bucket == nil {
				bucket = make(map[string]memoryPoint)
				b.owners[owner] = bucket
			}
			bucket[hit.ID] = memoryPoint{
				documentID: document,
				seq:        int(seq),
				vector:     vec,
			}
		}
		if len(results.Hits) < rebuildPage {
			return nil
		}
	}
}

// encodeVector packs a vector into a base64 string of little-endian
// float32 bits, compact enough to live as a stored Bleve field.
func encodeVector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// decodeVector reverses encodeVector.
func decodeVector(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(buf)%4 != 0 {
		return nil, fmt.Errorf("malformed stored vector")
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}

// Add indexes chunk text for recall, persists the encoded vector alongside
// it, and stores the vectors in the sidecar.
func (b *BleveIndex) Add(_ context.Context, ownerID string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	batch := b.index.NewBatch()
	for _, p := range points {
		err := batch.Index(p.ChunkID, map[string]any{
			"owner":    ownerID,
			"document": p.DocumentID,
			"text":     p.Text,
			"seq":      p.Seq,
			"vector":   encodeVector(p.Vector),
		})
		if err != nil {
			return fmt.Errorf("bleve: failed to index chunk %s: %w", p.ChunkID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: bleve batch failed: %v", qa.ErrIndexUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.owners[ownerID]
	if bucket == nil {
		bucket = make(map[string]memoryPoint)
		b.owners[ownerID] = bucket
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		bucket[p.ChunkID] = memoryPoint{
			documentID: p.DocumentID,
			seq:        p.Seq,
			vector:     vec,
		}
	}
	return nil
}

// Search recalls candidates from the inverted index when a query-text hint
// is present, then rescores them by cosine similarity against the stored
// vectors. Candidates without a stored vector (stale index entries) are
// skipped.
func (b *BleveIndex) Search(_ context.Context, ownerID string, vector []float32, k int, opts ...SearchOption) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	o := applyOptions(opts)

	b.mu.RLock()
	bucket := b.owners[ownerID]
	b.mu.RUnlock()
	if len(bucket) == 0 {
		return nil, nil
	}

	candidates, err := b.recall(ownerID, o.QueryText, k)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	bucket = b.owners[ownerID]

	hits := make([]Hit, 0, k)
	score := func(chunkID string) {
		p, ok := bucket[chunkID]
		if !ok {
			return
		}
		hits = append(hits, Hit{
			ChunkID:    chunkID,
			DocumentID: p.documentID,
			Seq:        p.seq,
			Score:      cosine(vector, p.vector),
		})
	}

	if candidates == nil {
		// No usable hint or no textual matches: brute-force the owner.
		for id := range bucket {
			score(id)
		}
	} else {
		for _, id := range candidates {
			score(id)
		}
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// recall returns candidate chunk ids from the inverted index, or nil when
// the query text produced nothing to narrow by.
func (b *BleveIndex) recall(ownerID, queryText string, k int) ([]string, error) {
	if queryText == "" {
		return nil, nil
	}

	ownerQuery := bleve.NewTermQuery(ownerID)
	ownerQuery.SetField("owner")
	textQuery := bleve.NewMatchQuery(queryText)
	textQuery.SetField("text")
	q := bleve.NewConjunctionQuery(ownerQuery, textQuery)

	size := k * 4
	if size < bleveCandidateFloor {
		size = bleveCandidateFloor
	}
	req := bleve.NewSearchRequest(q)
	req.Size = size

	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: bleve search failed: %v", qa.ErrIndexUnavailable, err)
	}
	if len(results.Hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DeleteDocument removes the document's chunks from both the inverted
// index and the vector sidecar.
func (b *BleveIndex) DeleteDocument(_ context.Context, ownerID, documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.owners[ownerID]
	if bucket == nil {
		return nil
	}

	batch := b.index.NewBatch()
	for id, p := range bucket {
		if p.documentID == documentID {
			batch.Delete(id)
			delete(bucket, id)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: bleve delete failed: %v", qa.ErrIndexUnavailable, err)
	}
	return nil
}

// DeleteChunks removes the named chunks; unknown ids are ignored.
func (b *BleveIndex) DeleteChunks(_ context.Context, ownerID string, chunkIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.owners[ownerID]
	if bucket == nil {
		return nil
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		if _, ok := bucket[id]; ok {
			batch.Delete(id)
			delete(bucket, id)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: bleve delete failed: %v", qa.ErrIndexUnavailable, err)
	}
	return nil
}

// DeleteOwner wipes every chunk belonging to the owner.
func (b *BleveIndex) DeleteOwner(_ context.Context, ownerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.owners[ownerID]
	if bucket == nil {
		return nil
	}

	batch := b.index.NewBatch()
	for id := range bucket {
		batch.Delete(id)
	}
	delete(b.owners, ownerID)
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("%w: bleve delete failed: %v", qa.ErrIndexUnavailable, err)
	}
	return nil
}

// Close closes the underlying Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
