// Package stream maintains a long-lived server-push connection, decodes
// it as a sequence of typed events, and reconnects with bounded linear
// backoff on failure.
package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DefaultEventType is assigned to blocks that carry no event field.
const DefaultEventType = "message"

// Well-known event types pushed by the backend. Unknown types are passed
// through uninterpreted — dispatch logic decides relevance.
const (
	EventWatchlistUpdated = "watchlist.updated"
	EventError            = "error"
)

// Event is one decoded push event.
type Event struct {
	Type string
	Data string
}

// scanEvents reads the wire body as blocks separated by blank lines and
// emits one Event per block. A later event or data field replaces an
// earlier one within the same block. Comment lines (leading colon) are
// ignored. A final block without a trailing blank-line terminator is
// flushed when the stream ends.
func scanEvents(r io.Reader, emit func(Event)) error {
	scanner := bufio.NewScanner(r)

	eventType := DefaultEventType
	data := ""

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				emit(Event{Type: eventType, Data: data})
			}

			eventType = DefaultEventType
			data = ""

		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive line.

		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream: reading events: %w", err)
	}

	// Flush the final block if the stream ended without a blank line.
	if data != "" {
		emit(Event{Type: eventType, Data: data})
	}

	return nil
}

// ParseEvents decodes a complete wire body into a slice of events.
// Exposed for tests and for consumers holding a buffered body.
func ParseEvents(body string) ([]Event, error) {
	var events []Event

	err := scanEvents(strings.NewReader(body), func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}
