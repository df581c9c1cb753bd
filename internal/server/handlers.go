package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
	"github.com/mahmoudramadan155/qa-queue-service/internal/qa"
	"github.com/mahmoudramadan155/qa-queue-service/internal/retrieval"
	"github.com/mahmoudramadan155/qa-queue-service/internal/session"
)

// defaultHistoryLimit bounds GET /api/history when no limit is given.
const defaultHistoryLimit = 10

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform JSON error shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps pipeline errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, qa.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, qa.ErrEmbeddingUnavailable), errors.Is(err, qa.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, qa.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sessionOptions converts the wire request knobs to pipeline options.
func (req askRequest) sessionOptions() session.Options {
	opts := session.Options{}
	opts.Retrieval = retrieval.Params{K: req.K, MaxContextLen: req.MaxContextLength}
	opts.Generation.Temperature = req.Temperature
	opts.Generation.TopP = req.TopP
	opts.Generation.MaxTokens = req.MaxTokens
	return opts
}

// decodeAsk reads and validates the shared ask request body.
func decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return askRequest{}, false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return askRequest{}, false
	}
	return req, true
}

// handleAsk handles POST /api/ask: retrieve, generate, and return the whole
// answer in one response.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}
	owner := ownerFromContext(r.Context())

	start := time.Now()
	result, err := s.runner.Ask(r.Context(), owner, req.Question, req.sessionOptions())
	if err != nil {
		outcome := "error"
		if r.Context().Err() != nil {
			outcome = "cancelled"
		}
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		writeError(w, errorStatus(err), err.Error())
		return
	}

	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, askResponse{
		Answer:         result.Answer,
		ResponseMillis: result.Elapsed.Milliseconds(),
		ChunkIDs:       result.ChunkIDs,
		Variant:        result.Variant,
	})
}

// handleAskStream handles POST /api/ask/stream. The session's events are
// delivered as Server-Sent Events, one JSON-encoded event per data frame.
// The stream always ends with a terminal complete or error event unless the
// client disconnects first.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}
	owner := ownerFromContext(r.Context())
	log := logging.FromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()

	start := time.Now()
	sess := s.runner.Stream(r.Context(), owner, req.Question, req.sessionOptions())

	outcome := "cancelled"
	for ev := range sess.Events() {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error("stream: marshal event", "error", err)
			break
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client went away; the session sees the request context cancel.
			break
		}
		flusher.Flush()

		switch ev.Type {
		case qa.EventComplete:
			outcome = "ok"
		case qa.EventError:
			outcome = "error"
		}
	}

	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// handleUpload handles POST /api/documents: ingest one text document for the
// calling owner. Re-uploading identical content returns the existing record
// with deduplicated set.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document exceeds the upload size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	owner := ownerFromContext(r.Context())
	doc, created, err := s.pipeline.Ingest(r.Context(), owner, req.Filename, []byte(req.Content))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, newDocumentResponse(doc, !created))
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	docs, err := s.store.ListDocuments(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, newDocumentResponse(doc, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// handleDeleteDocument handles DELETE /api/documents/{id}: remove the
// document's chunks from the index and the store.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	docID := r.PathValue("id")

	found, err := s.pipeline.Delete(r.Context(), owner, docID)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWipeOwner handles DELETE /api/owner: remove every document, chunk,
// vector, and history record belonging to the calling owner.
func (s *Server) handleWipeOwner(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	if err := s.pipeline.Wipe(r.Context(), owner); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory handles GET /api/history?limit=N, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.RecentQueries(r.Context(), owner, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, historyEntry{
			Question:       rec.Question,
			Answer:         rec.Answer,
			ResponseMillis: rec.Elapsed.Milliseconds(),
			ChunksUsed:     rec.ChunksUsed,
			CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": out})
}
