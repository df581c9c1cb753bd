package qa

// EventType discriminates the events emitted by a streaming session.
type EventType string

const (
	// EventStatus is a progress notice ("searching", "generating", fallback
	// notices). Informational only.
	EventStatus EventType = "status"

	// EventChunk carries a partial answer text fragment.
	EventChunk EventType = "chunk"

	// EventComplete terminates a successful session. It carries the elapsed
	// time and the number of context chunks used.
	EventComplete EventType = "complete"

	// EventError terminates a failed session. It carries a machine-readable
	// kind from the error taxonomy. No further events follow.
	EventError EventType = "error"
)

// StreamEvent is one ordered event in a streaming session. The four kinds
// and their fields are the compatibility contract with transports; wire
// framing (SSE, websocket, CLI) is up to the consumer.
type StreamEvent struct {
	// Type discriminates the event.
	Type EventType `json:"type"`

	// Message is the human-readable text for status and error events.
	Message string `json:"message,omitempty"`

	// Content is the partial answer text for chunk events.
	Content string `json:"content,omitempty"`

	// Kind is the machine-readable error taxonomy kind for error events.
	Kind string `json:"kind,omitempty"`

	// ResponseMillis is the total elapsed wall-clock time for complete
	// events, in milliseconds.
	ResponseMillis int64 `json:"response_time,omitempty"`

	// ChunksUsed is the number of context chunks used, for complete events.
	ChunksUsed int `json:"chunks_used,omitempty"`
}

// StatusEvent constructs a status event.
func StatusEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventStatus, Message: msg}
}

// ChunkEvent constructs a chunk event carrying a partial answer fragment.
func ChunkEvent(content string) StreamEvent {
	return StreamEvent{Type: EventChunk, Content: content}
}

// CompleteEvent constructs the terminal event of a successful session.
func CompleteEvent(elapsedMillis int64, chunksUsed int) StreamEvent {
	return StreamEvent{Type: EventComplete, ResponseMillis: elapsedMillis, ChunksUsed: chunksUsed}
}

// ErrorEvent constructs the terminal event of a failed session.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: EventError, Kind: ErrorKind(err), Message: err.Error()}
}
