package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mahmoudramadan155/qa-queue-service/internal/ingest"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/session"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for streaming answers.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the accepted document upload size.
	// Defaults to 10 MiB if zero.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metrics. Defaults to
	// prometheus.DefaultRegisterer; tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Server is the HTTP server exposing the document QA pipeline.
type Server struct {
	// runner executes whole-answer and streaming QA requests.
	runner *session.Runner
	// pipeline handles ingestion, document deletion, and owner wipes.
	pipeline *ingest.Pipeline
	// store serves document listings and query history.
	store store.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask and POST /api/ask/stream.
type askRequest struct {
	// Question is the user's natural-language question.
	Question string `json:"question"`
	// K overrides how many chunks retrieval requests. Optional.
	K int `json:"k,omitempty"`
	// MaxContextLength overrides the context character budget. Optional.
	MaxContextLength int `json:"max_context_length,omitempty"`
	// Temperature overrides the sampling temperature. Optional.
	Temperature float32 `json:"temperature,omitempty"`
	// TopP overrides the nucleus-sampling threshold. Optional.
	TopP float32 `json:"top_p,omitempty"`
	// MaxTokens overrides the output length cap. Optional.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// ResponseMillis is the end-to-end time in milliseconds.
	ResponseMillis int64 `json:"response_time"`
	// ChunkIDs lists the context chunks the answer was grounded on.
	ChunkIDs []string `json:"chunk_ids"`
	// Variant names the generation backend that answered.
	Variant string `json:"variant,omitempty"`
}

// uploadRequest is the JSON body for POST /api/documents.
type uploadRequest struct {
	// Filename is the display name of the uploaded document.
	Filename string `json:"filename"`
	// Content is the raw document text.
	Content string `json:"content"`
}

// documentResponse is the JSON shape of one document in listings and
// upload responses.
type documentResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
	Size       int    `json:"file_size"`
	CreatedAt  string `json:"created_at"`
	// Deduplicated is true when the upload matched an existing document.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// historyEntry is the JSON shape of one query-log record.
type historyEntry struct {
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	ResponseMillis int64  `json:"response_time"`
	ChunksUsed     int    `json:"chunks_used"`
	CreatedAt      string `json:"created_at"`
}

// newDocumentResponse converts a stored document to its wire shape.
func newDocumentResponse(doc qa.Document, deduplicated bool) documentResponse {
	return documentResponse{
		ID:           doc.ID,
		Filename:     doc.Filename,
		ChunkCount:   doc.ChunkCount,
		Size:         doc.Size,
		CreatedAt:    doc.CreatedAt.UTC().Format(time.RFC3339),
		Deduplicated: deduplicated,
	}
}
