// Package ticket defines the ticketing/handoff port used by the escalator.
package ticket

import "context"

// Request carries everything the ticketing collaborator needs to route a
// conversation to a human.
type Request struct {
	ConversationSummary string `json:"conversation_summary"`
	Priority            int    `json:"priority"`
	Queue               string `json:"queue"`
}

// Filer opens handoff tickets. Failures are non-fatal to the turn: the
// handoff envelope is emitted regardless, and the ticket id is attached when
// available.
type Filer interface {
	File(ctx context.Context, req Request) (ticketID string, err error)
}
