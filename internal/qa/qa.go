// Package qa defines the data records shared by the document QA pipeline:
// documents, chunks, retrieved context bundles, and the streaming event
// shapes delivered to transports. It also owns the error taxonomy every
// pipeline package maps its failures onto, so callers can classify errors
// with errors.Is without depending on a specific backend.
package qa

import "time"

// Document is the record of one ingested document owned by a single user.
type Document struct {
	// ID is the stable identifier assigned at ingestion time.
	ID string

	// OwnerID is the verified user identifier supplied by the caller.
	// All index and store operations are scoped by it.
	OwnerID string

	// Filename is the original upload name, kept for display only.
	Filename string

	// Fingerprint is the SHA-256 hash of the raw document bytes.
	// Re-uploading identical content for the same owner is a no-op.
	Fingerprint string

	// ChunkCount is the number of chunks produced at ingestion.
	ChunkCount int

	// Size is the decoded text length in bytes.
	Size int

	// CreatedAt is when the document record was persisted.
	CreatedAt time.Time
}

// Chunk is one contiguous, bounded span of a document's text — the unit of
// embedding and retrieval. Chunks are immutable once created and are removed
// only with their parent document.
type Chunk struct {
	// ID is the deterministic chunk identifier, derived from the owner,
	// document, sequence index, and text fingerprint so re-processing the
	// same content produces the same id.
	ID string

	// DocumentID is the parent document.
	DocumentID string

	// OwnerID is the owning user.
	OwnerID string

	// Seq is the 0-based position of this chunk within the document.
	Seq int

	// Text is the chunk's text span.
	Text string

	// Fingerprint is the SHA-256 hash of Text, used for idempotent
	// re-processing.
	Fingerprint string

	// TargetSize and Overlap record the chunking parameters that produced
	// this chunk.
	TargetSize int
	Overlap    int
}

// ContextItem is one retrieved chunk inside a ContextBundle.
type ContextItem struct {
	// ChunkID identifies the retrieved chunk.
	ChunkID string

	// DocumentID is the chunk's source document.
	DocumentID string

	// Seq is the chunk's position within its document.
	Seq int

	// Text is the chunk text used to ground the answer.
	Text string

	// Score is the similarity score assigned by the vector index. Only the
	// relative order within one retrieval call is meaningful across index
	// backends.
	Score float32
}

// ContextBundle is the assembled context for one question. It is ephemeral:
// constructed per request by the retrieval engine and discarded after the
// answer is produced.
type ContextBundle struct {
	// Question is the question text the bundle was assembled for.
	Question string

	// Items is the ordered list of retrieved chunks, highest score first.
	Items []ContextItem

	// Length is the total text length of all items, in bytes.
	Length int
}

// Texts returns the item texts in bundle order.
func (b ContextBundle) Texts() []string {
	out := make([]string, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.Text
	}
	return out
}

// Empty reports whether the bundle carries no context.
func (b ContextBundle) Empty() bool { return len(b.Items) == 0 }

// QueryRecord is the permanent history record written after an answer has
// been produced. Both the whole-answer and the streaming paths converge on
// this shape.
type QueryRecord struct {
	// OwnerID is the asking user.
	OwnerID string

	// Question is the question text as asked.
	Question string

	// Answer is the final answer text.
	Answer string

	// Elapsed is the wall-clock duration from request to final answer.
	Elapsed time.Duration

	// ChunksUsed is the number of context chunks in the bundle.
	ChunksUsed int

	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}
