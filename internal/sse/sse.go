// Package sse implements the Server-Sent Events wire codec: one-way
// text/event-stream framing of event/data/id/retry lines plus a keepalive
// comment line, narrowed to the pure framing layer since scheduling and
// dispatch are owned by the connection state machine, not the codec.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ContentType is the default media type applied to an sse.start response
// when the application did not set its own content-type header.
const ContentType = "text/event-stream; charset=utf-8"

// Event is one outbound sse.send event, matching the sse.send event schema:
// an optional event name, one data payload (possibly multiline), an
// optional id, and an optional retry hint in milliseconds.
type Event struct {
	Name     string
	Data     string
	ID       string
	Retry    int
	HasRetry bool
}

// WriteEvent serializes one event per §4.3: optional "event:" line, one or
// more "data:" lines (multiline data split on '\n'), optional "id:" line,
// optional "retry:" line, terminated by a blank line. It flushes w so the
// event reaches the client immediately rather than waiting on a buffer to fill.
func WriteEvent(w *bufio.Writer, ev Event) error {
	if ev.Name != "" {
		if _, err := fmt.Fprintf(w, "event:%s\n", sanitizeField(ev.Name)); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		if _, err := fmt.Fprintf(w, "data:%s\n", sanitizeField(line)); err != nil {
			return err
		}
	}
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id:%s\n", sanitizeField(ev.ID)); err != nil {
			return err
		}
	}
	if ev.HasRetry {
		if _, err := fmt.Fprintf(w, "retry:%d\n", ev.Retry); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return w.Flush()
}

// WriteKeepalive emits a comment-only line, invisible to EventSource
// listeners, used to hold the connection open through idle intermediaries.
func WriteKeepalive(w *bufio.Writer) error {
	if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

// sanitizeField strips embedded line breaks, since each SSE field is
// exactly one line on the wire; callers that need multiline content use
// Event.Data, which WriteEvent itself splits into multiple data: lines.
func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
