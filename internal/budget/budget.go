// Package budget provides token budget estimation and context trimming for
// the generation chain. Because the chain supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimBundle drops retrieved context items from the end of the bundle until
// the estimated token count of the question plus the remaining context fits
// within maxTokens. Retrieval orders items best-first, so trimming from the
// end removes the weakest matches. The first item is never dropped: one
// over-budget chunk still answers better than no context at all.
func TrimBundle(bundle qa.ContextBundle, question string, maxTokens int) qa.ContextBundle {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	base := Estimate(question)
	for len(bundle.Items) > 1 {
		total := base
		for _, it := range bundle.Items {
			total += Estimate(it.Text)
		}
		if total <= maxTokens {
			break
		}
		last := len(bundle.Items) - 1
		bundle.Length -= len(bundle.Items[last].Text)
		bundle.Items = bundle.Items[:last]
	}
	return bundle
}
