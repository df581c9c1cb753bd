// Package chunker splits decoded document text into overlapping chunks
// suitable for embedding. Splitting is a pure function of its inputs:
// identical text and parameters always produce an identical chunk sequence,
// which the ingestion pipeline relies on for dedup fingerprints.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// Default chunking parameters, matching the ingestion API defaults.
const (
	// DefaultTargetSize is the window length in characters.
	DefaultTargetSize = 1000

	// DefaultOverlap is the number of characters shared between consecutive
	// chunks.
	DefaultOverlap = 200

	// DefaultLookBack is how far before the hard cutoff the splitter searches
	// for a sentence or line boundary.
	DefaultLookBack = 100
)

// Params controls how Split windows the input text.
type Params struct {
	// TargetSize is the window length. Must be positive.
	TargetSize int

	// Overlap is the shared span between consecutive windows.
	// Must satisfy 0 <= Overlap < TargetSize.
	Overlap int

	// LookBack is the boundary-snapping search distance before the hard
	// cutoff. Zero selects DefaultLookBack.
	LookBack int
}

// Normalized returns p with an all-zero value replaced by the defaults.
// Explicitly chosen parameters pass through untouched so validation still
// rejects bad combinations.
func (p Params) Normalized() Params {
	if p.TargetSize == 0 && p.Overlap == 0 {
		p.TargetSize = DefaultTargetSize
		p.Overlap = DefaultOverlap
	}
	if p.LookBack <= 0 {
		p.LookBack = DefaultLookBack
	}
	return p
}

// validate rejects parameter combinations the windowing loop cannot honour.
func (p Params) validate() error {
	if p.TargetSize <= 0 {
		return fmt.Errorf("chunker: target size %d must be positive: %w", p.TargetSize, qa.ErrInvalidParameters)
	}
	if p.Overlap < 0 || p.Overlap >= p.TargetSize {
		return fmt.Errorf("chunker: overlap %d must satisfy 0 <= overlap < target size %d: %w",
			p.Overlap, p.TargetSize, qa.ErrInvalidParameters)
	}
	return nil
}

// Split windows text into overlapping chunks. A window ends at the nearest
// sentence (period) or line boundary within p.LookBack characters before the
// hard cutoff; if none exists it breaks at the cutoff. The next window starts
// Overlap characters before the previous window's end, so consecutive chunks
// share that span. The final window may be shorter than TargetSize and is
// emitted if non-empty after whitespace trimming.
//
// Sequence indices are assigned consecutively from 0 and each chunk carries a
// SHA-256 fingerprint of its text.
func Split(text string, p Params) ([]qa.Chunk, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	var chunks []qa.Chunk
	emit := func(span string) {
		span = strings.TrimSpace(span)
		if span == "" {
			return
		}
		chunks = append(chunks, qa.Chunk{
			Seq:         len(chunks),
			Text:        span,
			Fingerprint: Fingerprint(span),
			TargetSize:  p.TargetSize,
			Overlap:     p.Overlap,
		})
	}

	if len(trimmed) <= p.TargetSize {
		emit(trimmed)
		return chunks, nil
	}

	lookBack := p.LookBack
	if lookBack <= 0 {
		lookBack = DefaultLookBack
	}

	start := 0
	for start < len(trimmed) {
		end := start + p.TargetSize
		if end >= len(trimmed) {
			emit(trimmed[start:])
			break
		}

		// Prefer a sentence or line boundary close to the cutoff so chunks
		// do not truncate semantic units mid-sentence.
		floor := end - lookBack
		if floor < start {
			floor = start
		}
		if snap := boundaryBefore(trimmed, floor, end); snap > start {
			end = snap + 1
		}

		emit(trimmed[start:end])

		next := end - p.Overlap
		if next <= start {
			// Aggressive snapping with a large overlap could stall the
			// window; force forward progress instead.
			next = end
		}
		start = next
	}

	return chunks, nil
}

// boundaryBefore returns the index of the last '.' or '\n' in text[floor:end),
// or -1 when the range holds neither.
func boundaryBefore(text string, floor, end int) int {
	lastPeriod := strings.LastIndexByte(text[floor:end], '.')
	lastNewline := strings.LastIndexByte(text[floor:end], '\n')
	best := lastPeriod
	if lastNewline > best {
		best = lastNewline
	}
	if best < 0 {
		return -1
	}
	return floor + best
}

// Fingerprint returns the hex SHA-256 digest of s. The same function is used
// for chunk text and whole-document fingerprints so dedup is reproducible.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
