// Package answer generates answers from retrieved context through an
// ordered chain of chat-model backends. Hosted and local models sit at the
// front of the chain; a deterministic extractive fallback terminates it, so
// answer generation as a whole never fails with a backend error.
package answer

import (
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

const (
	// systemPrompt frames every model call.
	systemPrompt = "You are a helpful assistant that answers questions based on provided context. Be concise and accurate."

	// noContextAnswer is returned when retrieval found nothing to ground
	// an answer on.
	noContextAnswer = "I don't have enough information to answer this question. Please upload relevant documents first."
)

// Generation knob defaults, fixed per call unless overridden.
const (
	DefaultTemperature float32 = 0.3
	DefaultTopP        float32 = 0.9
	DefaultMaxTokens           = 500
)

// Variant is one entry in the fallback chain: a named chat model.
type Variant struct {
	// Name identifies the variant in logs and fallback notices.
	Name string

	// Model is the eino chat model answering for this variant.
	Model model.BaseChatModel
}

// GenerationOptions are the per-call sampling knobs. Zero values select the
// defaults; explicit zeroes are not representable.
type GenerationOptions struct {
	// Temperature controls response randomness.
	Temperature float32

	// TopP is the nucleus-sampling threshold.
	TopP float32

	// MaxTokens caps the generated output length.
	MaxTokens int
}

// normalized applies the per-variant defaults.
func (o GenerationOptions) normalized() GenerationOptions {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopP == 0 {
		o.TopP = DefaultTopP
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// modelOptions maps the knobs onto eino call options.
func (o GenerationOptions) modelOptions() []model.Option {
	return []model.Option{
		model.WithTemperature(o.Temperature),
		model.WithTopP(o.TopP),
		model.WithMaxTokens(o.MaxTokens),
	}
}

// Result is a whole-answer generation outcome.
type Result struct {
	// Text is the final answer.
	Text string

	// Variant names the chain entry that produced the answer; empty when
	// the chain short-circuited on missing context.
	Variant string

	// Notices records any fallbacks that occurred along the way.
	Notices []Notice
}

// Notice reports one fallback from a failing variant to the next.
type Notice struct {
	// From is the variant that failed.
	From string

	// To is the variant tried next.
	To string

	// Reason is the failure, abbreviated for event payloads.
	Reason string
}

// buildMessages assembles the RAG prompt: system framing plus a user
// message carrying the context block and the question.
func buildMessages(question string, bundle qa.ContextBundle) []*schema.Message {
	var b strings.Builder
	b.WriteString("Based on the following context, please answer the question. ")
	b.WriteString("If the context doesn't contain enough information to answer the question, please say so clearly. ")
	b.WriteString("Be concise and accurate.\n\nContext:\n")
	b.WriteString(strings.Join(bundle.Texts(), "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(b.String()),
	}
}
