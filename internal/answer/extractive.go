package answer

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// extractiveSentences is how many context sentences the fallback answer
// keeps.
const extractiveSentences = 3

// streamFragmentRunes sizes the simulated fragments of the extractive
// stream. Fragments must concatenate back to the exact whole answer, so
// the split preserves whitespace.
const streamFragmentRunes = 24

// Extractive is the deterministic terminal variant of the fallback chain.
// It answers by selecting the context sentences that share the most terms
// with the question, and degrades to a fixed refusal when the prompt
// carries no context. It performs no I/O and never returns an error, which
// is what lets the chain guarantee termination.
type Extractive struct{}

// NewExtractive returns the deterministic fallback model.
func NewExtractive() *Extractive { return &Extractive{} }

// Generate produces the extractive answer for the assembled RAG prompt.
func (e *Extractive) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	question, contextBlock := splitPrompt(input)
	if strings.TrimSpace(contextBlock) == "" {
		return schema.AssistantMessage(noContextAnswer, nil), nil
	}

	picked := topSentences(contextBlock, question, extractiveSentences)
	if len(picked) == 0 {
		return schema.AssistantMessage(noContextAnswer, nil), nil
	}

	answer := "Based on the provided context:\n\n" + strings.Join(picked, " ")
	return schema.AssistantMessage(answer, nil), nil
}

// Stream yields the extractive answer in small word-group fragments so the
// streaming path behaves the same regardless of which variant served it.
func (e *Extractive) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := e.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	runes := []rune(msg.Content)
	fragments := make([]*schema.Message, 0, len(runes)/streamFragmentRunes+1)
	for i := 0; i < len(runes); i += streamFragmentRunes {
		end := i + streamFragmentRunes
		if end > len(runes) {
			end = len(runes)
		}
		fragments = append(fragments, schema.AssistantMessage(string(runes[i:end]), nil))
	}
	if len(fragments) == 0 {
		fragments = append(fragments, schema.AssistantMessage(msg.Content, nil))
	}
	return schema.StreamReaderFromArray(fragments), nil
}

// splitPrompt recovers the question and context block from the assembled
// prompt, tolerating prompts that were not built by buildMessages by
// falling back to treating the whole user message as context.
func splitPrompt(input []*schema.Message) (question, contextBlock string) {
	var user string
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == schema.User {
			user = input[i].Content
			break
		}
	}
	if user == "" {
		return "", ""
	}

	contextBlock = user
	if _, after, found := strings.Cut(contextBlock, "Context:\n"); found {
		contextBlock = after
	}
	if before, after, found := strings.Cut(contextBlock, "\n\nQuestion: "); found {
		contextBlock = before
		question = after
		if q, _, ok := strings.Cut(question, "\n\nAnswer:"); ok {
			question = q
		}
	}
	return question, contextBlock
}

// topSentences ranks context sentences by overlap with the question terms
// and returns up to n of them in their original order.
func topSentences(contextBlock, question string, n int) []string {
	sentences := splitSentences(contextBlock)
	if len(sentences) == 0 {
		return nil
	}

	terms := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,!?:;\"'")
		if len(w) > 2 {
			terms[w] = true
		}
	}

	type scored struct {
		pos   int
		score int
	}
	ranked := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		var score int
		for _, w := range strings.Fields(strings.ToLower(s)) {
			if terms[strings.Trim(w, ".,!?:;\"'")] {
				score++
			}
		}
		ranked = append(ranked, scored{pos: i, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if n > len(ranked) {
		n = len(ranked)
	}
	keep := ranked[:n]
	sort.Slice(keep, func(i, j int) bool { return keep[i].pos < keep[j].pos })

	out := make([]string, 0, len(keep))
	for _, k := range keep {
		out = append(out, sentences[k.pos])
	}
	return out
}

// splitSentences breaks text on sentence punctuation and newlines, dropping
// fragments too short to carry an answer.
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) >= 10 {
			out = append(out, s+".")
		}
	}
	return out
}
