// Package bus defines the message bus port (interface).
package bus

import "context"

// Handler processes a message delivered from the bus. Delivery is
// at-least-once: the same task_id may arrive more than once, so handlers must
// be idempotent keyed by task_id. The context carries the conversation id for
// log correlation.
type Handler func(ctx context.Context, topic string, data []byte) error

// Bus is the port interface for publishing and subscribing to pipeline topics.
type Bus interface {
	// Publish sends a message to the given topic.
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe registers a handler for messages on the given topic.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, topic string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the bus immediately.
	Close() error

	// IsConnected reports whether the bus is currently usable.
	IsConnected() bool
}
