package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey int

const (
	conversationIDKey contextKey = iota
	taskIDKey
)

// WithConversationID returns a new context carrying the conversation id.
// Bus adapters set it before invoking handlers so every log line for a hop
// can be correlated back to its conversation.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationID extracts the conversation id from the context.
// Returns an empty string if none is set.
func ConversationID(ctx context.Context) string {
	id, _ := ctx.Value(conversationIDKey).(string)
	return id
}

// WithTaskID returns a new context carrying the hop's task id.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskID extracts the task id from the context, or "" if unset.
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey).(string)
	return id
}
