package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dusk-indust/reelpipe/internal/runstate"
)

// SSEWriter writes run events as Server-Sent Events. Each frame carries the
// event's sequence number as its id and the event kind as its type:
//
//	id: 3
//	event: stage
//	data: {"event":"stage",...}
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps w. Streaming requires w to implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// CanFlush reports whether frames reach the client as they are written.
func (sw *SSEWriter) CanFlush() bool { return sw.flusher != nil }

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteEvent writes one envelope as a frame.
func (sw *SSEWriter) WriteEvent(env runstate.Envelope) error {
	data, err := json.Marshal(env.Event)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "id: %d\nevent: %s\ndata: %s\n\n", env.Seq, env.Event.Kind(), data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	sw.flush()
	return nil
}

// KeepAlive writes a comment frame so idle proxies keep the stream open.
func (sw *SSEWriter) KeepAlive() error {
	if _, err := io.WriteString(sw.w, ": keep-alive\n\n"); err != nil {
		return fmt.Errorf("sse: write keep-alive: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *SSEWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// StreamEvent is one decoded frame. Err is set when the frame could not be
// decoded; the reader keeps going after such frames.
type StreamEvent struct {
	Seq   int
	Event runstate.Event
	Err   error
}

// ReadEvents decodes run events from an SSE body and delivers them on the
// returned channel. The channel is closed when the body ends, a read error
// occurs or ctx is done. The body is closed when reading finishes.
//
// Multiple data lines of one frame are joined with newlines; comment lines
// and unknown fields are ignored.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()
		// Unblock a pending read when ctx ends.
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		var (
			data strings.Builder
			seq  int
		)
		flush := func() bool {
			if data.Len() == 0 {
				return true
			}
			ev := decodeFrame(seq, data.String())
			data.Reset()
			seq = 0
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			if line == "" {
				if !flush() {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}

			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			case "id":
				if n, err := strconv.Atoi(value); err == nil {
					seq = n
				}
			}
		}
		flush()
	}()
	return ch
}

func decodeFrame(seq int, raw string) StreamEvent {
	ev, err := runstate.DecodeEvent([]byte(raw))
	if err != nil {
		return StreamEvent{Seq: seq, Err: fmt.Errorf("sse: %w", err)}
	}
	return StreamEvent{Seq: seq, Event: ev}
}
