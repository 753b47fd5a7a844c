package types

import "time"

// ChunkKind discriminates the variants of a streamed answer fragment
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkCitation ChunkKind = "citation"
	ChunkSession  ChunkKind = "session"
	ChunkOther    ChunkKind = "other"
)

// StreamChunk is one decoded fragment of a streamed query answer. Only the
// fields belonging to its Kind are populated: Content for text, File and
// Lines for citations, SessionID for session markers, and Data for anything
// the decoder did not recognize.
type StreamChunk struct {
	Kind      ChunkKind
	Timestamp time.Time

	// Text
	Content string

	// Citation
	File  string
	Lines []int

	// Session
	SessionID string

	// Other: the decoded object exactly as it arrived
	Data map[string]any
}

// Validate checks that the chunk carries a known kind and a timestamp.
func (c *StreamChunk) Validate() error {
	switch c.Kind {
	case ChunkText, ChunkCitation, ChunkSession, ChunkOther:
	default:
		return ErrUnknownChunkKind
	}
	if c.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Text reports whether the chunk contributes answer text.
func (c *StreamChunk) Text() bool {
	return c.Kind == ChunkText
}
