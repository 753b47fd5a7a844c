package greptile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/dshills/greptile-mcp/pkg/types"
)

const (
	// dataPrefix marks an SSE payload line
	dataPrefix = "data: "

	// maxLineBytes bounds a single SSE line
	maxLineBytes = 1024 * 1024
)

// Stream is a lazy, single-pass sequence of decoded answer chunks, consumed
// like a bufio.Scanner:
//
//	for stream.Next() {
//	    chunk := stream.Chunk()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
//
// The stream is forward-only and not restartable: an interrupted stream just
// ends, and callers re-issue the query to start over. Not safe for
// concurrent use.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	release func()
	onDrop  func(line string)

	cur     types.StreamChunk
	err     error
	done    bool
	dropped int
}

func newStream(conn streamConn, release func(), onDrop func(string)) *Stream {
	scanner := bufio.NewScanner(conn.resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Stream{
		body:    conn.resp.Body,
		scanner: scanner,
		cancel:  conn.cancel,
		release: release,
		onDrop:  onDrop,
	}
}

// Next advances to the next decodable chunk. Complete "data: " lines are
// decoded in arrival order; partial lines are never emitted. Malformed JSON
// payloads are dropped silently: the drop counter advances, the optional
// drop hook fires, and no error is raised.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			// Blank separators, comments, and other SSE fields
			continue
		}

		payload := strings.TrimPrefix(line, dataPrefix)
		var raw map[string]any
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			s.dropped++
			if s.onDrop != nil {
				s.onDrop(payload)
			}
			continue
		}

		s.cur = classifyChunk(raw)
		return true
	}

	s.finish(s.scanner.Err())
	return false
}

// Chunk returns the chunk produced by the last successful Next.
func (s *Stream) Chunk() types.StreamChunk {
	return s.cur
}

// Err returns the first abnormal read error, if any. Exhaustion, timeout,
// and cancellation are normal endings and report nil.
func (s *Stream) Err() error {
	return s.err
}

// Dropped returns how many malformed data lines were discarded.
func (s *Stream) Dropped() int {
	return s.dropped
}

// Close releases the underlying connection. Safe to call more than once and
// after the stream has ended on its own.
func (s *Stream) Close() error {
	s.finish(nil)
	return nil
}

func (s *Stream) finish(err error) {
	if s.done {
		return
	}
	s.done = true

	// EOF and cancellation are how a forward-only stream ends
	if err != nil && !errors.Is(err, io.EOF) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.err = err
	}

	_ = s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if s.release != nil {
		s.release()
	}
}

// classifyChunk maps a decoded SSE object onto its chunk variant. The type
// field discriminates; objects carrying a sessionId without a known type
// still mark the session; everything else lands in the other variant with
// its payload intact.
func classifyChunk(raw map[string]any) types.StreamChunk {
	chunk := types.StreamChunk{Timestamp: time.Now()}

	kind, _ := raw["type"].(string)
	sessionID, _ := raw["sessionId"].(string)

	switch {
	case kind == "text":
		chunk.Kind = types.ChunkText
		chunk.Content, _ = raw["content"].(string)
	case kind == "citation":
		chunk.Kind = types.ChunkCitation
		chunk.File, _ = raw["file"].(string)
		chunk.Lines = intSlice(raw["lines"])
	case kind == "session" || sessionID != "":
		chunk.Kind = types.ChunkSession
		chunk.SessionID = sessionID
	default:
		chunk.Kind = types.ChunkOther
		chunk.Data = raw
	}
	return chunk
}

// intSlice converts a decoded JSON array into line numbers, skipping
// anything non-numeric.
func intSlice(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, int(f))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
