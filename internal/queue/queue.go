package queue

import (
	"context"
	"fmt"
)

// OutcomeQueue carries one event per committed call outcome.
const OutcomeQueue = "call.outcomes"

// Publisher publishes call outcome events.
type Publisher interface {
	Publish(ctx context.Context, event OutcomeEvent) error
	Close() error
}

// DLQName returns the dead-letter queue name for a queue, e.g. dlq.call.outcomes.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// NopPublisher drops every event. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OutcomeEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
