package pubsub

import "context"

const (
	// IngestRequested asks the dispatcher to run the ingestion pipeline.
	IngestRequested EventType = "ingest"
	// QueryRequested asks the dispatcher to run the retrieval pipeline.
	QueryRequested EventType = "query"
)

// Subscriber hands out event channels scoped to a context.
type Subscriber[T any] interface {
	// Subscribe returns a read-only event channel that closes when the
	// context ends.
	Subscribe(context.Context) <-chan Event[T]
}

type (
	// EventType identifies the kind of an event.
	EventType string

	// Event carries a typed payload to subscribers.
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher delivers events to all subscribers, reporting how many
	// accepted them.
	Publisher[T any] interface {
		Publish(EventType, T) int
	}
)
