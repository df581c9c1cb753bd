package qa

import "errors"

// Error taxonomy for the pipeline. Packages wrap these sentinels with %w and
// a package-prefixed message; callers classify with errors.Is.
var (
	// ErrInvalidParameters marks a caller error (bad chunking parameters,
	// empty question, unknown backend name). Never retried.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrEmbeddingUnavailable marks an embedding backend failure after the
	// single bounded retry has been spent.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIndexUnavailable marks a vector index backend that cannot be
	// reached. The pipeline fails fast rather than substituting a different
	// backend mid-operation.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGenerationFailed marks exhaustion of the generation fallback chain.
	// Individual variant failures are absorbed by the chain and surface only
	// as status notices.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrSessionCancelled marks consumer-initiated cancellation of a
	// streaming session. It is a normal terminal state, not a fault.
	ErrSessionCancelled = errors.New("session cancelled")
)

// ErrorKind returns the machine-readable taxonomy kind for err, suitable for
// the "kind" field of a terminal stream error event. Unrecognised errors
// report as "internal".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrSessionCancelled):
		return "session_cancelled"
	default:
		return "internal"
	}
}
