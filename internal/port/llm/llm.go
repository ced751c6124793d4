// Package llm defines the completion/embedding capability port. The draft
// generator reaches it only through the connection pool; nothing else in the
// core may hold a completion handle.
package llm

import "context"

// Request is a prompt/context bundle for free-text generation.
type Request struct {
	System  string   `json:"system,omitempty"`
	Prompt  string   `json:"prompt"`
	Context []string `json:"context,omitempty"` // augmentation fragments, rejection notes
}

// Client is one handle to the rate-limited completion service.
type Client interface {
	// Complete generates text for the request, honoring ctx's deadline.
	Complete(ctx context.Context, req Request) (string, error)

	// Embed returns an embedding vector for the input text.
	Embed(ctx context.Context, input string) ([]float64, error)

	// Close releases the underlying connection.
	Close() error
}
