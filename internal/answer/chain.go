package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mahmoudramadan155/qa-queue-service/internal/budget"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
)

// streamBuffer is the fragment buffer between the producing variant and the
// consumer; small so backpressure reaches the model stream quickly.
const streamBuffer = 8

// DefaultTryTimeout bounds one variant's generation attempt. A backend that
// hangs past it is treated as failed and the chain falls through, instead of
// stalling the whole request.
const DefaultTryTimeout = 2 * time.Minute

// Chain tries generation variants in configured order. A backend failure
// (unreachable, timeout, broken stream) falls through to the next variant;
// a content outcome — including an empty completion — is an answer and
// stops the chain. The terminal extractive variant cannot fail, so a chain
// built by NewChain always terminates with an answer.
type Chain struct {
	variants   []Variant
	tryTimeout time.Duration
	log        *slog.Logger
}

// NewChain builds the fallback chain from the ordered backend configs. When
// the list does not end with an extractive entry, one is appended so the
// chain has a variant that cannot fail. A non-positive tryTimeout selects
// DefaultTryTimeout.
func NewChain(ctx context.Context, cfgs []BackendConfig, tryTimeout time.Duration, log *slog.Logger) (*Chain, error) {
	if log == nil {
		log = slog.Default()
	}
	if tryTimeout <= 0 {
		tryTimeout = DefaultTryTimeout
	}

	variants := make([]Variant, 0, len(cfgs)+1)
	for _, cfg := range cfgs {
		v, err := NewVariant(ctx, cfg)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if len(variants) == 0 || variants[len(variants)-1].Name != "extractive" {
		variants = append(variants, Variant{Name: "extractive", Model: NewExtractive()})
	}

	return &Chain{variants: variants, tryTimeout: tryTimeout, log: log}, nil
}

// NewChainFromVariants builds a chain from pre-constructed variants, in
// order. The caller is responsible for ending the list with a variant that
// cannot fail.
func NewChainFromVariants(variants []Variant, tryTimeout time.Duration, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{variants: variants, tryTimeout: tryTimeout, log: log}
}

// Variants lists the chain entries in try order.
func (c *Chain) Variants() []string {
	names := make([]string, len(c.variants))
	for i, v := range c.variants {
		names[i] = v.Name
	}
	return names
}

// Generate produces a whole answer. An empty context bundle short-circuits
// to the fixed refusal without touching any backend.
func (c *Chain) Generate(ctx context.Context, question string, bundle qa.ContextBundle, opts GenerationOptions) (Result, error) {
	if bundle.Empty() {
		return Result{Text: noContextAnswer}, nil
	}

	bundle = budget.TrimBundle(bundle, question, budget.DefaultMaxContextTokens)
	messages := buildMessages(question, bundle)
	callOpts := opts.normalized().modelOptions()

	var notices []Notice
	for i, v := range c.variants {
		attemptCtx, cancel := c.attemptContext(ctx)
		msg, err := v.Model.Generate(attemptCtx, messages, callOpts...)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("%w: %v", qa.ErrSessionCancelled, ctx.Err())
			}
			notices = append(notices, c.fallbackNotice(ctx, i, err))
			continue
		}
		return Result{
			Text:    strings.TrimSpace(msg.Content),
			Variant: v.Name,
			Notices: notices,
		}, nil
	}

	// Unreachable with an extractive terminal, kept for chains built by hand.
	return Result{}, fmt.Errorf("%w: all generation backends failed", qa.ErrGenerationFailed)
}

// GenerateStream produces the answer as a fragment stream. Fallback happens
// inside the producer: a variant that fails before emitting anything falls
// through (reported via onNotice); a variant that fails mid-stream ends the
// stream with an error, because restarting on the next variant would
// re-deliver fragments. The returned stream is finite and not restartable.
func (c *Chain) GenerateStream(ctx context.Context, question string, bundle qa.ContextBundle, opts GenerationOptions, onNotice func(Notice)) *schema.StreamReader[string] {
	sr, sw := schema.Pipe[string](streamBuffer)
	go c.streamInto(ctx, sw, question, bundle, opts, onNotice)
	return sr
}

func (c *Chain) streamInto(ctx context.Context, sw *schema.StreamWriter[string], question string, bundle qa.ContextBundle, opts GenerationOptions, onNotice func(Notice)) {
	defer sw.Close()

	if bundle.Empty() {
		sw.Send(noContextAnswer, nil)
		return
	}

	bundle = budget.TrimBundle(bundle, question, budget.DefaultMaxContextTokens)
	messages := buildMessages(question, bundle)
	callOpts := opts.normalized().modelOptions()

	for i, v := range c.variants {
		completed, emitted, err := c.tryStream(ctx, v, messages, callOpts, sw)
		if completed {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if emitted {
			sw.Send("", fmt.Errorf("%w: stream from %s broke mid-answer: %v", qa.ErrGenerationFailed, v.Name, err))
			return
		}
		notice := c.fallbackNotice(ctx, i, err)
		if onNotice != nil {
			onNotice(notice)
		}
	}

	sw.Send("", fmt.Errorf("%w: all generation backends failed", qa.ErrGenerationFailed))
}

// tryStream runs one variant's stream to completion, forwarding fragments.
// completed reports a clean finish (or a consumer that went away); emitted
// reports whether any fragment was delivered before a failure.
func (c *Chain) tryStream(ctx context.Context, v Variant, messages []*schema.Message, callOpts []model.Option, sw *schema.StreamWriter[string]) (completed, emitted bool, failure error) {
	attemptCtx, cancel := c.attemptContext(ctx)
	defer cancel()

	stream, err := v.Model.Stream(attemptCtx, messages, callOpts...)
	if err != nil {
		return false, false, err
	}
	defer stream.Close()

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return true, emitted, nil
		}
		if err != nil {
			return false, emitted, err
		}
		if msg.Content == "" {
			continue
		}
		if closed := sw.Send(msg.Content, nil); closed {
			return true, emitted, nil
		}
		emitted = true
	}
}

// attemptContext bounds a single variant attempt when a try timeout is
// configured.
func (c *Chain) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.tryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.tryTimeout)
}

// fallbackNotice records and logs one variant falling through to the next.
func (c *Chain) fallbackNotice(ctx context.Context, failedIdx int, err error) Notice {
	n := Notice{From: c.variants[failedIdx].Name, Reason: err.Error()}
	if failedIdx+1 < len(c.variants) {
		n.To = c.variants[failedIdx+1].Name
	}
	c.log.WarnContext(ctx, "generation backend failed, falling back",
		"from", n.From,
		"to", n.To,
		"error", err,
	)
	return n
}
