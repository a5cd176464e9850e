// ABOUTME: Server-Sent Events reader for the transport's inbound stream.
// ABOUTME: Parses event/data/id fields and emits one event per blank-line boundary.

package rpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// maxEventSize bounds a single SSE line; tool results can be large.
const maxEventSize = 4 << 20

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	Event string
	Data  string
	ID    string
}

// readSSE reads events from body until EOF, a read error, or ctx cancellation.
// Events without an explicit type default to "message"; comment lines are skipped.
func readSSE(ctx context.Context, body io.Reader, onEvent func(sseEvent)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var eventType, eventID string
	var dataLines []string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if len(dataLines) > 0 {
				if eventType == "" {
					eventType = "message"
				}
				onEvent(sseEvent{
					Event: eventType,
					Data:  strings.Join(dataLines, "\n"),
					ID:    eventID,
				})
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			eventID = value
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return io.EOF
}
