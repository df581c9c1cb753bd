// Package session runs question-answering requests: the whole-answer path
// and the streaming path. A streaming session is a small state machine that
// walks Init → Searching → Generating → Completed, emitting typed events on
// a bounded channel; Errored and Cancelled are the early exits. Both paths
// share retrieval and the generation chain and append the same query-log
// record on success.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/answer"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/retrieval"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// eventBuffer bounds the session event channel. A slow consumer blocks the
// producer rather than growing memory.
const eventBuffer = 16

// State is a streaming session's lifecycle phase.
type State int

const (
	StateInit State = iota
	StateSearching
	StateGenerating
	StateCompleted
	StateErrored
	StateCancelled
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSearching:
		return "searching"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options are the per-request knobs shared by both answer paths.
type Options struct {
	// Retrieval overrides k and the context length budget.
	Retrieval retrieval.Params

	// Generation overrides the sampling knobs.
	Generation answer.GenerationOptions
}

// Result is the whole-answer outcome.
type Result struct {
	// Answer is the generated answer text.
	Answer string

	// Variant names the generation variant that answered.
	Variant string

	// Elapsed is the end-to-end time.
	Elapsed time.Duration

	// ChunkIDs lists the context chunks the answer was grounded on.
	ChunkIDs []string
}

// Runner executes QA requests against the wired collaborators.
type Runner struct {
	engine *retrieval.Engine
	chain  *answer.Chain
	store  store.Store
	log    *slog.Logger
}

// NewRunner builds a Runner. A nil logger falls back to the default slog
// logger.
func NewRunner(engine *retrieval.Engine, chain *answer.Chain, st store.Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{engine: engine, chain: chain, store: st, log: log}
}

// Ask answers a question in one shot and appends the query-log record.
func (r *Runner) Ask(ctx context.Context, ownerID, question string, opts Options) (Result, error) {
	start := time.Now()

	bundle, err := r.engine.Retrieve(ctx, ownerID, question, opts.Retrieval)
	if err != nil {
		return Result{}, err
	}

	res, err := r.chain.Generate(ctx, question, bundle, opts.Generation)
	if err != nil {
		return Result{}, err
	}

	elapsed := time.Since(start)
	chunkIDs := make([]string, len(bundle.Items))
	for i, it := range bundle.Items {
		chunkIDs[i] = it.ChunkID
	}

	r.appendRecord(ctx, ownerID, question, res.Text, elapsed, len(bundle.Items))
	return Result{
		Answer:   res.Text,
		Variant:  res.Variant,
		Elapsed:  elapsed,
		ChunkIDs: chunkIDs,
	}, nil
}

// Session is one in-flight streaming request.
type Session struct {
	mu    sync.Mutex
	state State

	events chan qa.StreamEvent
}

// Events is the session's event stream. It is closed when the session
// reaches a terminal state.
func (s *Session) Events() <-chan qa.StreamEvent { return s.events }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves to next unless the session is already terminal.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCompleted, StateErrored, StateCancelled:
		return false
	}
	s.state = next
	return true
}

// emit delivers an event, blocking for a slow consumer. It reports false
// when the context was cancelled instead; nothing is emitted after that.
func (s *Session) emit(ctx context.Context, ev qa.StreamEvent) bool {
	if ctx.Err() != nil {
		s.transition(StateCancelled)
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		s.transition(StateCancelled)
		return false
	}
}

// Stream starts a streaming session for the question and returns it
// immediately; events arrive on Session.Events until a terminal event, then
// the channel closes. Cancelling ctx cancels the session: in-flight work
// stops and no further events are delivered.
func (r *Runner) Stream(ctx context.Context, ownerID, question string, opts Options) *Session {
	s := &Session{state: StateInit, events: make(chan qa.StreamEvent, eventBuffer)}
	go r.run(ctx, s, ownerID, question, opts)
	return s
}

func (r *Runner) run(ctx context.Context, s *Session, ownerID, question string, opts Options) {
	defer close(s.events)
	start := time.Now()

	if ctx.Err() != nil {
		s.transition(StateCancelled)
		return
	}

	s.transition(StateSearching)
	if !s.emit(ctx, qa.StatusEvent("searching")) {
		return
	}

	bundle, err := r.engine.Retrieve(ctx, ownerID, question, opts.Retrieval)
	if err != nil {
		r.fail(ctx, s, ownerID, err)
		return
	}

	s.transition(StateGenerating)
	if !s.emit(ctx, qa.StatusEvent("generating")) {
		return
	}

	stream := r.chain.GenerateStream(ctx, question, bundle, opts.Generation, func(n answer.Notice) {
		s.emit(ctx, qa.StatusEvent("falling back from "+n.From+" to "+n.To))
	})
	defer stream.Close()

	var b strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.fail(ctx, s, ownerID, err)
			return
		}
		b.WriteString(fragment)
		if !s.emit(ctx, qa.ChunkEvent(fragment)) {
			return
		}
	}

	if ctx.Err() != nil {
		s.transition(StateCancelled)
		return
	}

	elapsed := time.Since(start)
	s.transition(StateCompleted)
	s.emit(ctx, qa.CompleteEvent(elapsed.Milliseconds(), len(bundle.Items)))
	// The record must land even if the client disconnects right after the
	// terminal event.
	r.appendRecord(context.WithoutCancel(ctx), ownerID, question, b.String(), elapsed, len(bundle.Items))
}

// fail moves the session to Errored and emits the single terminal error
// event, unless the root cause is cancellation — then nothing is emitted.
func (r *Runner) fail(ctx context.Context, s *Session, ownerID string, err error) {
	if ctx.Err() != nil {
		s.transition(StateCancelled)
		return
	}
	s.transition(StateErrored)
	r.log.ErrorContext(ctx, "streaming session failed", "owner", ownerID, "error", err)
	s.emit(ctx, qa.ErrorEvent(err))
}

// appendRecord writes the query-log row shared by both answer paths. A
// logging failure does not fail the request.
func (r *Runner) appendRecord(ctx context.Context, ownerID, question, answerText string, elapsed time.Duration, chunksUsed int) {
	err := r.store.AppendQuery(ctx, qa.QueryRecord{
		OwnerID:    ownerID,
		Question:   question,
		Answer:     answerText,
		Elapsed:    elapsed,
		ChunksUsed: chunksUsed,
	})
	if err != nil {
		r.log.WarnContext(ctx, "failed to append query log", "owner", ownerID, "error", err)
	}
}
